package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Clock provides the current time to anything that stamps ledger rows
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock, in UTC
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// IDGenerator produces external identifiers such as journal entry numbers
type IDGenerator interface {
	NewEntryNumber() string
	NewEventID() string
}

// UUIDGenerator generates identifiers from random UUIDs
type UUIDGenerator struct{}

// NewEntryNumber returns a journal entry number of the form JE-XXXXXXXXXXXX
func (UUIDGenerator) NewEntryNumber() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "JE-" + id[:12]
}

// NewEventID returns a random event identifier
func (UUIDGenerator) NewEventID() string {
	return uuid.NewString()
}
