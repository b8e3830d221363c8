// Package store defines the NetworkStore interface for persisting network
// snapshots, with in-memory and SQLite implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/evonet/internal/network"
	"github.com/nvandessel/evonet/internal/sanitize"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("network not found")

// ErrAmbiguous is returned by Find when a reference matches several records.
var ErrAmbiguous = errors.New("ambiguous network reference")

// Record is a stored network.
type Record struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Architecture string           `json:"architecture,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Network      network.Snapshot `json:"network"`
}

// Summary describes a record without its parameters.
type Summary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Architecture string    `json:"architecture,omitempty"`
	Nodes        int       `json:"nodes"`
	Connections  int       `json:"connections"`
	Weights      int       `json:"weights"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summarize returns r's summary.
func Summarize(r Record) Summary {
	return Summary{
		ID:           r.ID,
		Name:         r.Name,
		Architecture: r.Architecture,
		Nodes:        len(r.Network.Nodes),
		Connections:  len(r.Network.Connections),
		Weights:      len(r.Network.Weights),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// NetworkStore persists network records.
type NetworkStore interface {
	// Save inserts or replaces a record and returns its ID. A record without
	// an ID is assigned a new one.
	Save(ctx context.Context, rec Record) (string, error)

	// Get returns the record with the given ID, or nil if there is none.
	Get(ctx context.Context, id string) (*Record, error)

	// List returns summaries ordered by creation time, oldest first.
	List(ctx context.Context) ([]Summary, error)

	// Delete removes a record. Deleting a missing record returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	Close() error
}

// prepare assigns an ID and timestamps, sanitizes the name and validates
// the snapshot.
func prepare(rec *Record, now time.Time) error {
	if err := rec.Network.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Name = sanitize.Name(rec.Name)
	if rec.Name == "" {
		rec.Name = rec.ID
		if len(rec.Name) > 8 {
			rec.Name = rec.Name[:8]
		}
	}
	now = now.UTC().Truncate(time.Microsecond)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = now
	return nil
}

func sortSummaries(s []Summary) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].CreatedAt.Equal(s[j].CreatedAt) {
			return s[i].CreatedAt.Before(s[j].CreatedAt)
		}
		return s[i].ID < s[j].ID
	})
}

// Find resolves ref to a record by exact ID, then by name, then by unique ID
// prefix.
func Find(ctx context.Context, s NetworkStore, ref string) (*Record, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty reference: %w", ErrNotFound)
	}
	rec, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}

	summaries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var byName, byPrefix []string
	for _, sum := range summaries {
		if sum.Name == ref {
			byName = append(byName, sum.ID)
		}
		if strings.HasPrefix(sum.ID, ref) {
			byPrefix = append(byPrefix, sum.ID)
		}
	}
	for _, ids := range [][]string{byName, byPrefix} {
		switch len(ids) {
		case 0:
			continue
		case 1:
			return s.Get(ctx, ids[0])
		default:
			return nil, fmt.Errorf("%q matches %d networks: %w", ref, len(ids), ErrAmbiguous)
		}
	}
	return nil, fmt.Errorf("%q: %w", ref, ErrNotFound)
}
