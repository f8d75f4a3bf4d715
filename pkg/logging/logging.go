package logging

import (
	"github.com/nftsnap/nftsnap/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects level, encoding and an optional extra log file.
// Empty fields fall back to LOG_LEVEL / LOG_ENCODING.
type Options struct {
	Level    string
	Encoding string
	File     string
}

// New builds the process logger. Output goes to stderr so stdout stays free for reports.
func New(o Options) (*zap.Logger, error) {
	level := o.Level
	if level == "" {
		level = utils.Env("LOG_LEVEL", "info")
	}
	encoding := o.Encoding
	if encoding == "" {
		encoding = utils.Env("LOG_ENCODING", "console")
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = encoding
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg.OutputPaths = []string{"stderr"}
	if o.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, o.File)
	}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if encoding == "console" {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	// Per-token warnings must all reach the log.
	cfg.Sampling = nil
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l, nil
}
