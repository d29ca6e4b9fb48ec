package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON files next to Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// InstanceRecord is the persisted form of an instance definition.
// Intervals are whole seconds; runtime state is never persisted.
type InstanceRecord struct {
	Name      string `json:"name"`
	Region    [4]int `json:"region"`
	IntervalA int    `json:"cadence_a_interval"`
	IntervalB int    `json:"cadence_b_interval"`
}

// ActionRecord is one finished action (after retries).
type ActionRecord struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	Instance string    `json:"instance"`
	Cadence  string    `json:"cadence"`
	Payload  string    `json:"payload"`
	Attempts int       `json:"attempts"`
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	TookMS   int64     `json:"took_ms"`
}

// Store is the persistence API used by the automation core and the app.
type Store interface {
	LoadInstances(ctx context.Context) ([]InstanceRecord, error)
	// SaveInstances replaces the whole persisted set.
	SaveInstances(ctx context.Context, recs []InstanceRecord) error
	AppendAction(ctx context.Context, rec ActionRecord) error
	// RecentActions returns up to limit records, newest last.
	RecentActions(ctx context.Context, limit int) ([]ActionRecord, error)
	Close() error
}
