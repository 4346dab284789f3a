package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// slowOperationThreshold marks operations worth a warning in the logs.
const slowOperationThreshold = 5 * time.Second

// OperationTimer provides a defer-friendly way to measure operation duration.
// The returned function logs and returns the elapsed time.
//
// Usage:
//
//	done := utils.OperationTimer("montecarlo", log)
//	defer done()
func OperationTimer(operation string, log zerolog.Logger) func() time.Duration {
	start := time.Now()

	return func() time.Duration {
		duration := time.Since(start)

		log.Debug().
			Str("operation", operation).
			Dur("duration_ms", duration).
			Msg("Operation completed")

		if duration > slowOperationThreshold {
			log.Warn().
				Str("operation", operation).
				Dur("duration", duration).
				Msg("Slow operation detected")
		}

		return duration
	}
}
