package events

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// Amounts travel as decimal strings so every sink sees the exact ledger value.

// TradeCreatedData contains data for TradeCreated events
type TradeCreatedData struct {
	CounterpartyID *int64 `json:"counterparty_id,omitempty" msgpack:"counterparty_id,omitempty"`
	Profit         string `json:"profit,omitempty" msgpack:"profit,omitempty"`
	TradeNumber    string `json:"trade_number" msgpack:"trade_number"`
	TradeType      string `json:"trade_type" msgpack:"trade_type"`
	BaseCurrency   string `json:"base_currency" msgpack:"base_currency"`
	QuoteCurrency  string `json:"quote_currency" msgpack:"quote_currency"`
	Amount         string `json:"amount" msgpack:"amount"`
	Rate           string `json:"rate" msgpack:"rate"`
	TotalValue     string `json:"total_value" msgpack:"total_value"`
	TradeID        int64  `json:"trade_id" msgpack:"trade_id"`
}

// EventType returns the event type for TradeCreatedData
func (d *TradeCreatedData) EventType() EventType {
	return TradeCreated
}

// ReceiptData contains data for receipt lifecycle events
type ReceiptData struct {
	Type            EventType `json:"-" msgpack:"-"`
	Currency        string    `json:"currency" msgpack:"currency"`
	Amount          string    `json:"amount" msgpack:"amount"`
	Reason          string    `json:"reason,omitempty" msgpack:"reason,omitempty"`
	SettlementError string    `json:"settlement_error,omitempty" msgpack:"settlement_error,omitempty"`
	ReceiptID       int64     `json:"receipt_id" msgpack:"receipt_id"`
	Allocations     int       `json:"allocations" msgpack:"allocations"`
}

// EventType returns ReceiptCreated, ReceiptDeleted or ReceiptRestored
func (d *ReceiptData) EventType() EventType {
	if d.Type == "" {
		return ReceiptCreated
	}
	return d.Type
}

// SettlementReprocessedData contains data for SettlementReprocessed events
type SettlementReprocessedData struct {
	DurationMs  int64 `json:"duration_ms" msgpack:"duration_ms"`
	Receipts    int   `json:"receipts" msgpack:"receipts"`
	Allocations int   `json:"allocations" msgpack:"allocations"`
	TradesReset int   `json:"trades_reset" msgpack:"trades_reset"`
}

// EventType returns the event type for SettlementReprocessedData
func (d *SettlementReprocessedData) EventType() EventType {
	return SettlementReprocessed
}

// LedgerAuditFailedData contains data for LedgerAuditFailed events
type LedgerAuditFailedData struct {
	Problems          []string `json:"problems" msgpack:"problems"`
	UnbalancedEntries int      `json:"unbalanced_entries" msgpack:"unbalanced_entries"`
	StatementBreaks   int      `json:"statement_breaks" msgpack:"statement_breaks"`
}

// EventType returns the event type for LedgerAuditFailedData
func (d *LedgerAuditFailedData) EventType() EventType {
	return LedgerAuditFailed
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Location   string `json:"location" msgpack:"location"`
	SizeBytes  int64  `json:"size_bytes" msgpack:"size_bytes"`
	DurationMs int64  `json:"duration_ms" msgpack:"duration_ms"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}
