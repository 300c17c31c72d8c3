// Package logging constructs the process-wide structured logger. The
// teacher's handlers log top-level lifecycle banners with the standard log
// package; this codebase keeps that for process startup/shutdown messages
// but uses zap everywhere a room id, session id, language pair, or latency
// sample needs structured fields (see SPEC_FULL.md §10.2).
package logging

import (
	"go.uber.org/zap"
)

// New builds a *zap.SugaredLogger. dev selects a human-readable console
// encoder (for local development); production builds a JSON encoder
// suitable for log aggregation.
func New(dev bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything, used as a safe default
// when a component is constructed without an explicit logger.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
