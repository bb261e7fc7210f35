// Package checkpoint persists evaluated node outputs so a graph can be
// restored without re-running its nodes.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// Store persists checkpoints keyed by graph and node.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores data for a node, replacing any previous checkpoint of it.
	Save(ctx context.Context, graphID, nodeID string, data []byte) error

	// Load returns the checkpoint of a node or ErrNotFound.
	Load(ctx context.Context, graphID, nodeID string) ([]byte, error)

	// List returns the checkpoints of a graph ordered by sequence.
	// An unknown graph yields an empty slice.
	List(ctx context.Context, graphID string) ([]Info, error)

	// Delete removes the checkpoint of a node. Missing checkpoints are not an error.
	Delete(ctx context.Context, graphID, nodeID string) error

	// DeleteGraph removes all checkpoints of a graph.
	DeleteGraph(ctx context.Context, graphID string) error

	// Close releases the store's resources.
	Close() error
}

// Info describes a stored checkpoint without its payload.
type Info struct {
	GraphID   string
	NodeID    string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

var (
	// ErrNotFound indicates a checkpoint does not exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrVersionMismatch indicates a checkpoint was written by an incompatible version.
	ErrVersionMismatch = errors.New("checkpoint version mismatch")
)
