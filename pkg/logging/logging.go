// Package logging builds the zap logger shared by every component.
package logging

import (
	"fmt"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/klog/v2"
)

// Options controls logger construction
type Options struct {
	// Development switches to the human readable console encoder
	Development bool
	Verbose     bool
	Component   string
}

// New builds a logger. Production mode emits JSON at info level, verbose lowers it to debug.
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	cfg.Level.SetLevel(zap.InfoLevel)
	if opts.Verbose {
		cfg.Level.SetLevel(zap.DebugLevel)
	}

	if opts.Component != "" {
		cfg.InitialFields = map[string]interface{}{"component": opts.Component}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// RedirectKlog routes client-go's klog output through the given logger
func RedirectKlog(logger *zap.Logger) {
	klog.SetLogger(zapr.NewLogger(logger.Named("client-go")))
}

// OrNop returns logger, or a no-op logger when it is nil
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
