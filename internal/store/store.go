// Package store persists ranked candidate tables. The CSV FileStore is the
// artifact the sizer reads; PostgreSQL keeps every scan as a snapshot;
// Redis provides a read-through cache; MemoryStore serves tests.
package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/pennybuzz/engine/internal/model"
)

var (
	// ErrNotFound is returned when no table is stored under a name.
	ErrNotFound = errors.New("store: candidate table not found")

	// ErrMissingColumns is returned when a stored table lacks a required
	// column. It is a data-shape error and is not retried.
	ErrMissingColumns = errors.New("store: candidate table is missing required columns")

	// ErrMalformedRow is returned when a row value cannot be parsed.
	ErrMalformedRow = errors.New("store: malformed candidate row")

	// ErrInvalidName is returned for names that are not a plain file name.
	ErrInvalidName = errors.New("store: invalid table name")
)

// Columns are the required artifact columns, in write order.
var Columns = []string{"ticker", "mentions", "avg_sentiment", "last", "avg_dollar_vol", "rank_score"}

// Store saves and loads ranked candidate tables by name. Rows are returned
// in the order they were saved.
type Store interface {
	// SaveCandidates replaces the table stored under name.
	SaveCandidates(ctx context.Context, name string, rows []model.Candidate) error

	// LoadCandidates returns the table stored under name.
	LoadCandidates(ctx context.Context, name string) ([]model.Candidate, error)
}

// ValidateName accepts only a base file name without path separators.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return ErrInvalidName
	}
	return nil
}
