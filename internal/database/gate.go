package database

import "sync"

// Gate serializes ledger writers and lets readers share access.
// Every mutating ledger operation runs under Write; reads that must not
// observe a half-finished settlement reprocess run under Read.
// Gate is not reentrant: a function running under Write must not call
// anything that acquires the gate again.
type Gate struct {
	mu sync.RWMutex
}

// NewGate creates a new gate
func NewGate() *Gate {
	return &Gate{}
}

// Write runs fn with exclusive access
func (g *Gate) Write(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}

// Read runs fn with shared access
func (g *Gate) Read(fn func() error) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return fn()
}
