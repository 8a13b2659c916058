/*
Package audit records what opsroute routed and ran.

Records go to an asynchronous Recorder which fans them out to sinks: a SQLite
history database (modernc.org/sqlite, no cgo) and an append-only JSONL log.
The raw query is never persisted, only its sha256 hash.
*/
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Record is one handled request.
type Record struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	QueryHash  string    `json:"query_hash"`
	ActionID   string    `json:"action_id,omitempty"`
	Phrase     string    `json:"phrase,omitempty"`
	Distance   float64   `json:"distance"`
	Status     string    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	DurationMS int64     `json:"duration_ms"`
	Server     string    `json:"server,omitempty"`
	Issue      string    `json:"issue,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Sink persists records.
type Sink interface {
	Write(ctx context.Context, r Record) error
	Close() error
}

// HashQuery creates a SHA256 hash of a query string for privacy.
func HashQuery(query string) string {
	hash := sha256.Sum256([]byte(query))
	return hex.EncodeToString(hash[:])
}
