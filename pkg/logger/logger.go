// Package logger builds the zap logger shared by every subsystem's Config.
// Every constructor in internal/storage, internal/index, internal/compaction,
// and internal/engine takes a *zap.SugaredLogger rather than building its
// own, so this package has exactly one job: produce that logger once, at
// the top, for pkg/strata.Open to hand down.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Mode selects the base zap configuration.
type Mode int

const (
	// Production emits JSON logs at Info level and above.
	Production Mode = iota
	// Development emits human-readable console logs at Debug level and
	// above, with stack traces on Warn.
	Development
)

// New builds a *zap.SugaredLogger for the given mode. service is attached
// to every log line so logs from multiple engine handles in the same
// process can be told apart.
func New(mode Mode, service string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	switch mode {
	case Development:
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	base, err := cfg.Build(zap.AddCallerSkip(0))
	if err != nil {
		return nil, err
	}

	return base.Sugar().With("service", service), nil
}

// Noop returns a logger that discards everything, for tests that don't
// want to assert on log output.
func Noop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
