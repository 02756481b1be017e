package common

import "go.uber.org/zap"

// NopLogger returns a logger that discards everything, used as the
// default when a caller does not supply one — the library stays silent
// unless a caller opts in by passing its own logger.
func NopLogger() *zap.Logger {
	return zap.NewNop()
}
