// Package logging builds the logr.Logger every rtx component logs
// through, backed by zap and adapted via zapr.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the root logger.
type Options struct {
	Debug bool
	JSON  bool
}

// New builds a logr.Logger from a zap core configured per opts. JSON
// selects zap's production config (JSON encoding); otherwise the
// development config (console encoding) is used. The level is info, or
// debug when Debug is set, independently of the encoding.
func New(opts Options) (logr.Logger, error) {
	var zcfg zap.Config
	if opts.JSON {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	if opts.Debug {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	zl, err := zcfg.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(zl), nil
}

// WithSource returns a child logger tagged with the provider/component
// name, so log lines from concurrent sources stay attributable.
func WithSource(log logr.Logger, source string) logr.Logger {
	return log.WithValues("source", source)
}
