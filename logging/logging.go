// Package logging builds the process logger from config.LogConfig.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"node-rpc/config"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup returns a logger writing to every configured output. File outputs rotate
// through lumberjack when rotation is enabled. The returned closer releases files.
func Setup(c config.LogConfig) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(c.Level)))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "log level %q", c.Level)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	if strings.EqualFold(c.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var writers []io.Writer
	var files closers
	for _, out := range c.Outputs {
		switch strings.ToLower(out) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			w, err := openFile(out, c.Rotation)
			if err != nil {
				_ = files.Close()
				return nil, nil, err
			}
			writers = append(writers, w)
			files = append(files, w)
		}
	}
	switch len(writers) {
	case 0:
		logger.SetOutput(os.Stderr)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}
	return logger, files, nil
}

func openFile(path string, r config.RotationConfig) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "log dir for %s", path)
		}
	}
	if r.Enable {
		return &lumberjack.Logger{
			Filename:   path,
			MaxSize:    max(r.MaxSizeMB, 1),
			MaxBackups: r.MaxBackups,
			MaxAge:     r.MaxAgeDays,
			Compress:   r.Compress,
		}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", path)
	}
	return f, nil
}

type closers []io.WriteCloser

func (cs closers) Close() error {
	var first error
	for _, c := range cs {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
