package repository

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one journaled mapper event
type Entry struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Sweep   string          `json:"sweep,omitempty"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Journal is the append-only event log
type Journal interface {
	// Append stores e and returns its assigned ID
	Append(ctx context.Context, e Entry) (int64, error)

	// Recent returns up to limit entries, newest first
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Close releases resources
	Close() error
}
