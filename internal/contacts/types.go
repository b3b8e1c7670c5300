package contacts

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("contact not found")

// StoreError marks a persistence failure (as opposed to a delivery failure,
// which is the channel's domain).
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return "contacts: " + e.Op + " failed"
	}
	return "contacts: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// Group labels a set of recipients. The empty string normalizes to
// DefaultGroup so every row always belongs somewhere.
type Group string

const DefaultGroup Group = "general"

func NormalizeGroup(s string) Group {
	if s == "" {
		return DefaultGroup
	}
	return Group(s)
}

// Recipient is one row of the book. Phone is kept as entered; it is
// normalized at dispatch time, not here. Duplicate phones are allowed and
// produce duplicate sends downstream.
type Recipient struct {
	Name  string
	Phone string
	Group Group
}

// Store reads and writes the whole book. Implementations preserve row
// order: Load returns rows in the order Save received them.
type Store interface {
	Load(ctx context.Context) ([]Recipient, error)
	Save(ctx context.Context, rows []Recipient) error
	Close() error
}

// Config configures the contact store.
//
// Driver values:
//   - "csv": one CSV file (default)
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
