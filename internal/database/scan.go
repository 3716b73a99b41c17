package database

import (
	"database/sql"
	"time"
)

// NullableID converts an optional foreign key into a bind argument
func NullableID(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

// IDPtr converts a scanned nullable foreign key into an optional ID
func IDPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	id := n.Int64
	return &id
}

// UnixTime converts a stored Unix timestamp back into UTC time
func UnixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// BoolInt converts a bool into SQLite's integer representation
func BoolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
