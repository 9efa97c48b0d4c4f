package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"node-rpc/chatserver"
	"node-rpc/codec"
	"node-rpc/config"
	"node-rpc/domain/testentity"
	"node-rpc/logging"
	"node-rpc/middleware"
	"node-rpc/node"
	"node-rpc/registry"
	"node-rpc/transport"
	"node-rpc/transport/quic"
	"node-rpc/transport/tcp"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const pumpTick = 10 * time.Millisecond

func newNetwork(kind string) (transport.Network, error) {
	switch kind {
	case "quic":
		return quic.New()
	case "tcp", "":
		return tcp.New(), nil
	default:
		return nil, errors.Errorf("unknown transport %q", kind)
	}
}

func nodeID() uint64 {
	for {
		if id := rand.Uint64(); id != 0 {
			return id
		}
	}
}

// nodeConfig maps the file config onto node.Config.
func nodeConfig(cfg *config.Config, id uint64) (node.Config, error) {
	ct, err := codec.ParseType(cfg.Node.Codec)
	if err != nil {
		return node.Config{}, err
	}
	return node.Config{
		ID:    id,
		Codec: ct,
		Transport: transport.Config{
			HeartbeatInterval: cfg.Node.HeartbeatInterval(),
			DeadAfter:         cfg.Node.DeadAfter(),
			DialAttempts:      cfg.Node.DialAttempts,
			DialBackoff:       cfg.Node.DialBackoff(),
		},
		IdleServiceTimeout: cfg.Node.IdleServiceTimeout(),
		MaxEventsPerTick:   cfg.Node.MaxEventsPerTick,
	}, nil
}

func setupLogger(cfg *config.Config) (*logrus.Logger, func(), error) {
	logger, closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = closer.Close() }, nil
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return errors.Wrap(err, "create data dir")
	}
	fl := flock.New(filepath.Join(cfg.DataDir, "chatnode.lock"))
	if locked, _ := fl.TryLock(); !locked {
		return errors.New("unable to lock the data dir, make sure there isn't another instance running")
	}
	defer func() {
		_ = fl.Unlock()
	}()

	id := cfg.Node.NodeID
	if id == 0 {
		if id, err = config.LoadOrCreateNodeID(cfg.DataDir, nodeID); err != nil {
			return err
		}
	}
	ncfg, err := nodeConfig(cfg, id)
	if err != nil {
		return err
	}
	network, err := newNetwork(cfg.Node.Transport)
	if err != nil {
		return err
	}

	log := logger.WithField("app", "chatnode")
	chatSvc := chatserver.New(cfg.Node.Advertise, cfg.Node.HistorySize, log)
	reg, err := chatSvc.Register(registry.NewBuilder()).
		AddContract(testentity.Contract).
		AddService(testentity.Service).
		Build()
	if err != nil {
		return err
	}

	mws := []middleware.Middleware{
		middleware.RecoverMiddleware(),
		middleware.LoggingMiddleware(log),
	}
	if d := cfg.DispatchTimeout(); d > 0 {
		mws = append(mws, middleware.TimeOutMiddleware(d))
	}
	if cfg.RateLimit.RPS > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(cfg.RateLimit.RPS, max(cfg.RateLimit.Burst, 1)))
	}

	n, err := node.New(reg, network, ncfg, log, mws...)
	if err != nil {
		return err
	}
	if err := chatSvc.Attach(n); err != nil {
		return err
	}
	if err := n.Start(cfg.Node.Listen); err != nil {
		return err
	}

	figure.NewColorFigure("chatnode", "", "cyan", true).Print()
	fmt.Printf("node %s listening on %s (%s, %s)\n",
		color.YellowString("%d", id), color.GreenString("%s", n.Addr()), cfg.Node.Transport, cfg.Node.Codec)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	_ = n.Run(ctx, pumpTick)

	fmt.Println("Shutting down node...")
	n.Stop()
	return nil
}
