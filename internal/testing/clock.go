package testing

import (
	"fmt"
	"sync"
	"time"
)

// StepClock is a deterministic clock that advances by a fixed step on every call to Now.
// It keeps FIFO ordering by created_at stable in tests.
type StepClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewStepClock returns a clock starting at start that advances by step per reading
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{current: start.UTC(), step: step}
}

// NewClock returns a StepClock starting at 2024-01-01 UTC advancing one second per reading
func NewClock() *StepClock {
	return NewStepClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), time.Second)
}

// Now returns the current reading and advances the clock
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

// SequenceIDs generates predictable identifiers
type SequenceIDs struct {
	mu      sync.Mutex
	entries int
	events  int
}

// NewEntryNumber returns JE-000001, JE-000002, ...
func (s *SequenceIDs) NewEntryNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries++
	return fmt.Sprintf("JE-%06d", s.entries)
}

// NewEventID returns evt-1, evt-2, ...
func (s *SequenceIDs) NewEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events++
	return fmt.Sprintf("evt-%d", s.events)
}
