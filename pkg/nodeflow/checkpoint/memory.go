package checkpoint

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps checkpoints in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	graphs map[string]map[string]entry // graph -> node -> entry
	seq    map[string]int
	closed bool
}

type entry struct {
	data      []byte
	sequence  int
	timestamp time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		graphs: make(map[string]map[string]entry),
		seq:    make(map[string]int),
	}
}

func (m *MemoryStore) Save(_ context.Context, graphID, nodeID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	nodes := m.graphs[graphID]
	if nodes == nil {
		nodes = make(map[string]entry)
		m.graphs[graphID] = nodes
	}
	m.seq[graphID]++
	nodes[nodeID] = entry{
		data:      slices.Clone(data),
		sequence:  m.seq[graphID],
		timestamp: time.Now().UTC(),
	}
	return nil
}

func (m *MemoryStore) Load(_ context.Context, graphID, nodeID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	e, ok := m.graphs[graphID][nodeID]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(e.data), nil
}

func (m *MemoryStore) List(_ context.Context, graphID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	nodes := m.graphs[graphID]
	infos := make([]Info, 0, len(nodes))
	for nodeID, e := range nodes {
		infos = append(infos, Info{
			GraphID:   graphID,
			NodeID:    nodeID,
			Sequence:  e.sequence,
			Timestamp: e.timestamp,
			Size:      int64(len(e.data)),
		})
	}
	slices.SortFunc(infos, func(a, b Info) int { return a.Sequence - b.Sequence })
	return infos, nil
}

func (m *MemoryStore) Delete(_ context.Context, graphID, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.graphs[graphID], nodeID)
	return nil
}

func (m *MemoryStore) DeleteGraph(_ context.Context, graphID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.graphs, graphID)
	delete(m.seq, graphID)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.graphs = nil
	return nil
}

// Len returns the number of stored checkpoints across all graphs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, nodes := range m.graphs {
		n += len(nodes)
	}
	return n
}
