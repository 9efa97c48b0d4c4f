// Package config loads chatnode configuration from YAML with environment overrides.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"node-rpc/codec"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var ErrInvalid = errors.New("config: invalid value")

// Config is the root chatnode configuration.
type Config struct {
	// DataDir holds the node id file and the instance lock
	DataDir string `mapstructure:"data_dir"`

	Node NodeConfig `mapstructure:"node"`
	Log  LogConfig  `mapstructure:"log"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// DispatchTimeoutMS bounds every inbound dispatch; 0 disables
	DispatchTimeoutMS int `mapstructure:"dispatch_timeout_ms"`

	// Client settings used by the login, rooms and join commands
	Client ClientConfig `mapstructure:"client"`
}

// NodeConfig configures the local node and its transport.
type NodeConfig struct {
	// Listen is the endpoint to accept peers on; empty for dial-only nodes
	Listen string `mapstructure:"listen"`
	// Advertise is handed to chat clients as the room endpoint; defaults to Listen
	Advertise string `mapstructure:"advertise"`
	// NodeID 0 means load or create one under DataDir
	NodeID    uint64 `mapstructure:"node_id"`
	Codec     string `mapstructure:"codec"`
	Transport string `mapstructure:"transport"`

	HeartbeatMS          int `mapstructure:"heartbeat_ms"`
	DeadAfterMS          int `mapstructure:"dead_after_ms"`
	DialAttempts         int `mapstructure:"dial_attempts"`
	DialBackoffMS        int `mapstructure:"dial_backoff_ms"`
	IdleServiceTimeoutMS int `mapstructure:"idle_service_timeout_ms"`
	MaxEventsPerTick     int `mapstructure:"max_events_per_tick"`
	HistorySize          int `mapstructure:"history_size"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: text or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig controls rotation of file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"` // 0 disables
	Burst int     `mapstructure:"burst"`
}

type ClientConfig struct {
	Servers       []string `mapstructure:"servers"`
	Balancer      string   `mapstructure:"balancer"`
	CallTimeoutMS int      `mapstructure:"call_timeout_ms"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		Node: NodeConfig{
			Listen:               "127.0.0.1:5679",
			Codec:                "binary",
			Transport:            "tcp",
			HeartbeatMS:          1000,
			DeadAfterMS:          5000,
			DialAttempts:         3,
			DialBackoffMS:        200,
			IdleServiceTimeoutMS: 60000,
			MaxEventsPerTick:     256,
			HistorySize:          100,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "text",
			Outputs: []string{"stderr"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		DispatchTimeoutMS: 10000,
		Client: ClientConfig{
			Servers:       []string{"127.0.0.1:5679"},
			Balancer:      "round_robin",
			CallTimeoutMS: 5000,
		},
	}
}

// Load reads configuration from path, or when path is empty from chatnode.yaml in
// the working directory or ./configs. A missing file is not an error. Environment
// variables override file values: CHATNODE_NODE_LISTEN=:7000.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CHATNODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// env-only configs need every key known to viper
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("node.listen", cfg.Node.Listen)
	v.SetDefault("node.advertise", cfg.Node.Advertise)
	v.SetDefault("node.node_id", cfg.Node.NodeID)
	v.SetDefault("node.codec", cfg.Node.Codec)
	v.SetDefault("node.transport", cfg.Node.Transport)
	v.SetDefault("node.heartbeat_ms", cfg.Node.HeartbeatMS)
	v.SetDefault("node.dead_after_ms", cfg.Node.DeadAfterMS)
	v.SetDefault("node.dial_attempts", cfg.Node.DialAttempts)
	v.SetDefault("node.dial_backoff_ms", cfg.Node.DialBackoffMS)
	v.SetDefault("node.idle_service_timeout_ms", cfg.Node.IdleServiceTimeoutMS)
	v.SetDefault("node.max_events_per_tick", cfg.Node.MaxEventsPerTick)
	v.SetDefault("node.history_size", cfg.Node.HistorySize)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("rate_limit.rps", cfg.RateLimit.RPS)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)
	v.SetDefault("dispatch_timeout_ms", cfg.DispatchTimeoutMS)
	v.SetDefault("client.servers", cfg.Client.Servers)
	v.SetDefault("client.balancer", cfg.Client.Balancer)
	v.SetDefault("client.call_timeout_ms", cfg.Client.CallTimeoutMS)

	if path == "" {
		path = os.Getenv("CHATNODE_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("chatnode")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.Wrapf(ErrInvalid, "log.level %q", c.Log.Level)
	}
	if _, err := codec.ParseType(c.Node.Codec); err != nil {
		return errors.Wrapf(ErrInvalid, "node.codec %q", c.Node.Codec)
	}
	c.Node.Transport = strings.ToLower(strings.TrimSpace(c.Node.Transport))
	switch c.Node.Transport {
	case "tcp", "quic":
	default:
		return errors.Wrapf(ErrInvalid, "node.transport %q", c.Node.Transport)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.Wrap(ErrInvalid, "rate_limit must not be negative")
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	if c.Node.Advertise == "" {
		c.Node.Advertise = c.Node.Listen
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (n NodeConfig) HeartbeatInterval() time.Duration  { return ms(n.HeartbeatMS) }
func (n NodeConfig) DeadAfter() time.Duration          { return ms(n.DeadAfterMS) }
func (n NodeConfig) DialBackoff() time.Duration        { return ms(n.DialBackoffMS) }
func (n NodeConfig) IdleServiceTimeout() time.Duration { return ms(n.IdleServiceTimeoutMS) }
func (c *Config) DispatchTimeout() time.Duration       { return ms(c.DispatchTimeoutMS) }
func (c ClientConfig) CallTimeout() time.Duration      { return ms(c.CallTimeoutMS) }

const nodeIDFile = "node_id"

// LoadOrCreateNodeID returns the node id stored under dataDir, generating and
// persisting a fresh one on first use. gen must not return 0.
func LoadOrCreateNodeID(dataDir string, gen func() uint64) (uint64, error) {
	path := filepath.Join(dataDir, nodeIDFile)
	data, err := os.ReadFile(path)
	if err == nil {
		id, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
		if err != nil || id == 0 {
			return 0, errors.Wrapf(ErrInvalid, "node id file %s", path)
		}
		return id, nil
	}
	if !os.IsNotExist(err) {
		return 0, errors.Wrap(err, "read node id")
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return 0, errors.Wrap(err, "create data dir")
	}
	id := gen()
	if err := atomic.WriteFile(path, bytes.NewBufferString(strconv.FormatUint(id, 10)+"\n")); err != nil {
		return 0, errors.Wrap(err, "write node id")
	}
	return id, nil
}
