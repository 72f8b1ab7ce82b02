// Package logx configures the runtime logger: structured zap output through
// a rotating file so the TUI owns the terminal.
package logx

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options for the runtime logger.
type Options struct {
	Path    string // empty = $HOME/.local/state/netwatch/netwatch.log
	Debug   bool
	Console bool // log to stderr instead of the file (headless runs)
}

// New builds the logger and returns it with a flush function for the
// cooperative exit path.
func New(opts Options) (*zap.Logger, func(), error) {
	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if opts.Console {
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			level,
		)
		logger := zap.New(core)
		return logger, func() { _ = logger.Sync() }, nil
	}

	path := opts.Path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, err
		}
		path = filepath.Join(home, ".local", "state", "netwatch", "netwatch.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(rotator),
		level,
	)
	logger := zap.New(core)
	flush := func() {
		_ = logger.Sync()
		_ = rotator.Close()
	}
	return logger, flush, nil
}
