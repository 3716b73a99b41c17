package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultSlowThreshold is the duration above which a ledger operation is logged as slow
const DefaultSlowThreshold = 2 * time.Second

// Timer measures one operation and warns when it runs past its threshold
type Timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
	slow  time.Duration
}

// NewTimer starts a timer. A zero slow threshold uses DefaultSlowThreshold.
func NewTimer(name string, slow time.Duration, log zerolog.Logger) *Timer {
	if slow <= 0 {
		slow = DefaultSlowThreshold
	}
	return &Timer{
		start: time.Now(),
		name:  name,
		log:   log,
		slow:  slow,
	}
}

// Elapsed returns the time since the timer started
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Stop logs the duration and returns it
func (t *Timer) Stop() time.Duration {
	duration := t.Elapsed()

	t.log.Debug().
		Str("operation", t.name).
		Dur("duration_ms", duration).
		Msg("Operation completed")

	if duration > t.slow {
		t.log.Warn().
			Str("operation", t.name).
			Dur("duration", duration).
			Dur("threshold", t.slow).
			Msg("Slow operation detected")
	}

	return duration
}

// OperationTimer provides a defer-friendly way to measure operation duration
//
// Usage:
//
//	defer utils.OperationTimer("ledger_audit", log)()
func OperationTimer(operation string, log zerolog.Logger) func() {
	t := NewTimer(operation, 0, log)
	return func() {
		t.Stop()
	}
}
