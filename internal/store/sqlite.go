package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/evonet/internal/network"
	"github.com/nvandessel/evonet/internal/squash"
)

// SQLiteStore implements NetworkStore on a SQLite database. Each snapshot
// is normalised into node, weight and connection rows.
type SQLiteStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Save inserts or replaces a record. Child rows are rewritten in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if rec.ID != "" && rec.CreatedAt.IsZero() {
		var created string
		err := tx.QueryRowContext(ctx, `SELECT created_at FROM networks WHERE id = ?`, rec.ID).Scan(&created)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return "", fmt.Errorf("failed to read network %s: %w", rec.ID, err)
		default:
			if rec.CreatedAt, err = parseTime(created); err != nil {
				return "", err
			}
		}
	}
	if err := prepare(&rec, s.now()); err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO networks (id, name, architecture, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			architecture = excluded.architecture,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		rec.ID, rec.Name, rec.Architecture, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	); err != nil {
		return "", fmt.Errorf("failed to upsert network: %w", err)
	}

	for _, table := range []string{"nodes", "weights", "connections"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE network_id = ?`, rec.ID); err != nil {
			return "", fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := insertSnapshot(ctx, tx, rec.ID, rec.Network); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return rec.ID, nil
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, id string, snap network.Snapshot) error {
	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (network_id, position, kind, output, constant, squash, bias, mask)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer nodeStmt.Close()
	for i, n := range snap.Nodes {
		if _, err := nodeStmt.ExecContext(ctx, id, i, n.Kind.String(), boolToInt(n.Output),
			boolToInt(n.Constant), n.Squash.String(), n.Bias, n.Mask); err != nil {
			return fmt.Errorf("failed to insert node %d: %w", i, err)
		}
	}

	weightStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO weights (network_id, position, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare weight insert: %w", err)
	}
	defer weightStmt.Close()
	for i, w := range snap.Weights {
		if _, err := weightStmt.ExecContext(ctx, id, i, w); err != nil {
			return fmt.Errorf("failed to insert weight %d: %w", i, err)
		}
	}

	connStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO connections (network_id, position, from_node, to_node, weight, gater)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare connection insert: %w", err)
	}
	defer connStmt.Close()
	for i, c := range snap.Connections {
		if _, err := connStmt.ExecContext(ctx, id, i, c.From, c.To, c.Weight, c.Gater); err != nil {
			return fmt.Errorf("failed to insert connection %d: %w", i, err)
		}
	}
	return nil
}

// Get loads a record, or returns nil if not found.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec := Record{ID: id}
	var arch sql.NullString
	var created, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, architecture, created_at, updated_at FROM networks WHERE id = ?`, id,
	).Scan(&rec.Name, &arch, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read network %s: %w", id, err)
	}
	rec.Architecture = arch.String
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}

	if rec.Network, err = s.loadSnapshot(ctx, id); err != nil {
		return nil, err
	}
	if err := rec.Network.Validate(); err != nil {
		return nil, fmt.Errorf("stored network %s: %w", id, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) loadSnapshot(ctx context.Context, id string) (network.Snapshot, error) {
	var snap network.Snapshot

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, output, constant, squash, bias, mask
		FROM nodes WHERE network_id = ? ORDER BY position`, id)
	if err != nil {
		return snap, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var nr network.NodeRecord
		var kind, sq string
		var output, constant int
		if err := rows.Scan(&kind, &output, &constant, &sq, &nr.Bias, &nr.Mask); err != nil {
			return snap, fmt.Errorf("failed to scan node: %w", err)
		}
		if err := nr.Kind.UnmarshalText([]byte(kind)); err != nil {
			return snap, err
		}
		if nr.Squash, err = squash.Parse(sq); err != nil {
			return snap, fmt.Errorf("stored node: %w", err)
		}
		nr.Output = output != 0
		nr.Constant = constant != 0
		snap.Nodes = append(snap.Nodes, nr)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	wrows, err := s.db.QueryContext(ctx, `
		SELECT value FROM weights WHERE network_id = ? ORDER BY position`, id)
	if err != nil {
		return snap, fmt.Errorf("failed to query weights: %w", err)
	}
	defer wrows.Close()
	for wrows.Next() {
		var w float64
		if err := wrows.Scan(&w); err != nil {
			return snap, fmt.Errorf("failed to scan weight: %w", err)
		}
		snap.Weights = append(snap.Weights, w)
	}
	if err := wrows.Err(); err != nil {
		return snap, err
	}

	crows, err := s.db.QueryContext(ctx, `
		SELECT from_node, to_node, weight, gater
		FROM connections WHERE network_id = ? ORDER BY position`, id)
	if err != nil {
		return snap, fmt.Errorf("failed to query connections: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var c network.ConnRecord
		if err := crows.Scan(&c.From, &c.To, &c.Weight, &c.Gater); err != nil {
			return snap, fmt.Errorf("failed to scan connection: %w", err)
		}
		snap.Connections = append(snap.Connections, c)
	}
	return snap, crows.Err()
}

// List returns summaries, oldest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT n.id, n.name, n.architecture, n.created_at, n.updated_at,
			(SELECT COUNT(*) FROM nodes WHERE network_id = n.id),
			(SELECT COUNT(*) FROM connections WHERE network_id = n.id),
			(SELECT COUNT(*) FROM weights WHERE network_id = n.id)
		FROM networks n`)
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		var arch sql.NullString
		var created, updated string
		if err := rows.Scan(&sum.ID, &sum.Name, &arch, &created, &updated,
			&sum.Nodes, &sum.Connections, &sum.Weights); err != nil {
			return nil, fmt.Errorf("failed to scan network: %w", err)
		}
		sum.Architecture = arch.String
		if sum.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if sum.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortSummaries(out)
	return out, nil
}

// Delete removes a record and, through cascading keys, its rows.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM networks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete network %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t, nil
}
