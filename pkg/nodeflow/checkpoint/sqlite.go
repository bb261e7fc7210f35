package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go driver registered as "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS node_outputs (
	graph_id  TEXT NOT NULL,
	node_id   TEXT NOT NULL,
	sequence  INTEGER NOT NULL,
	saved_at  TEXT NOT NULL,
	data      BLOB NOT NULL,
	PRIMARY KEY (graph_id, node_id)
);
CREATE INDEX IF NOT EXISTS idx_node_outputs_graph ON node_outputs(graph_id);
`

// SQLiteStore persists checkpoints in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens or creates a store at path. Use ":memory:" in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, graphID, nodeID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO node_outputs (graph_id, node_id, sequence, saved_at, data)
		VALUES (?, ?, COALESCE((SELECT MAX(sequence) FROM node_outputs WHERE graph_id = ?), 0) + 1, ?, ?)
		ON CONFLICT(graph_id, node_id) DO UPDATE SET
			sequence = (SELECT MAX(sequence) FROM node_outputs WHERE graph_id = excluded.graph_id) + 1,
			saved_at = excluded.saved_at,
			data = excluded.data
	`, graphID, nodeID, graphID, time.Now().UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, graphID, nodeID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM node_outputs WHERE graph_id = ? AND node_id = ?`,
		graphID, nodeID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return data, nil
}

func (s *SQLiteStore) List(ctx context.Context, graphID string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, sequence, saved_at, LENGTH(data)
		FROM node_outputs WHERE graph_id = ? ORDER BY sequence
	`, graphID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		info := Info{GraphID: graphID}
		var savedAt string
		if err := rows.Scan(&info.NodeID, &info.Sequence, &savedAt, &info.Size); err != nil {
			return nil, fmt.Errorf("scan checkpoint info: %w", err)
		}
		info.Timestamp, _ = time.Parse(time.RFC3339Nano, savedAt)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return infos, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, graphID, nodeID string) error {
	return s.exec(ctx, "delete checkpoint",
		`DELETE FROM node_outputs WHERE graph_id = ? AND node_id = ?`, graphID, nodeID)
}

func (s *SQLiteStore) DeleteGraph(ctx context.Context, graphID string) error {
	return s.exec(ctx, "delete graph checkpoints",
		`DELETE FROM node_outputs WHERE graph_id = ?`, graphID)
}

func (s *SQLiteStore) exec(ctx context.Context, op, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
