// Package logging constructs the zap logger shared by the engine and the
// simulation CLI, giving engine lifecycle events (admission, eviction,
// spill, rehydrate) a structured sink instead of plain counters.
package logging

import "go.uber.org/zap"

// New builds a production zap logger when debug is false, and a more
// verbose development logger (console-encoded, debug level) when true.
func New(debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if debug {
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

// Nop returns a logger that discards everything, for tests and for
// callers that don't want engine chatter.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
