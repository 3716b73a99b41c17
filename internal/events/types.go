// Package events provides the in-process ledger event bus and its outbound sinks.
package events

import (
	"time"
)

// EventType represents different event types
type EventType string

const (
	TradeCreated          EventType = "TRADE_CREATED"
	ReceiptCreated        EventType = "RECEIPT_CREATED"
	ReceiptDeleted        EventType = "RECEIPT_DELETED"
	ReceiptRestored       EventType = "RECEIPT_RESTORED"
	SettlementReprocessed EventType = "SETTLEMENT_REPROCESSED"
	LedgerAuditFailed     EventType = "LEDGER_AUDIT_FAILED"
	BackupCompleted       EventType = "BACKUP_COMPLETED"
)

// AllTypes lists every event type the ledger emits
var AllTypes = []EventType{
	TradeCreated,
	ReceiptCreated,
	ReceiptDeleted,
	ReceiptRestored,
	SettlementReprocessed,
	LedgerAuditFailed,
	BackupCompleted,
}

// Event is one published ledger event
type Event struct {
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	Data      EventData `json:"data" msgpack:"data"`
	ID        string    `json:"id" msgpack:"id"`
	Type      EventType `json:"type" msgpack:"type"`
	Module    string    `json:"module" msgpack:"module"`
}
