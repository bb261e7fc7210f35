package nodeflow

import (
	"sync"
)

// GraphChangeKind classifies a structural change.
type GraphChangeKind int

const (
	NodeAppended GraphChangeKind = iota + 1
	NodeDeleted
	ConnectionAppended
	ConnectionDeleted
	PortInserted
	PortDeleted
	// NodeChanged reports an evaluation-relevant property change, see Node.NotifyChanged.
	NodeChanged
)

// String returns the change name.
func (k GraphChangeKind) String() string {
	switch k {
	case NodeAppended:
		return "node_appended"
	case NodeDeleted:
		return "node_deleted"
	case ConnectionAppended:
		return "connection_appended"
	case ConnectionDeleted:
		return "connection_deleted"
	case PortInserted:
		return "port_inserted"
	case PortDeleted:
		return "port_deleted"
	case NodeChanged:
		return "node_changed"
	default:
		return "unknown"
	}
}

// GraphChange describes a single structural change. Changes of nested graphs
// are delivered to the observers of every enclosing graph as well.
type GraphChange struct {
	Kind GraphChangeKind

	// Graph is the uuid of the node presenting the graph the change happened in.
	Graph NodeUUID

	// Node and NodeID identify the affected node for node and port changes.
	Node   NodeUUID
	NodeID NodeID

	// Port is set for port changes.
	Port PortID

	// Connection is set for connection changes.
	Connection ConnectionUUID
}

type observers struct {
	mu     sync.Mutex
	next   int
	fns    map[int]func(GraphChange)
	depth  int
	queued []GraphChange
}

// Observe registers fn to be called after every structural change of the
// graph or any graph nested in it. fn runs on the goroutine that made the
// change, after graph locks are released; it must not block.
// The returned function unregisters the observer.
func (g *Graph) Observe(fn func(GraphChange)) (cancel func()) {
	g.obs.mu.Lock()
	defer g.obs.mu.Unlock()
	if g.obs.fns == nil {
		g.obs.fns = make(map[int]func(GraphChange))
	}
	id := g.obs.next
	g.obs.next++
	g.obs.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			g.obs.mu.Lock()
			delete(g.obs.fns, id)
			g.obs.mu.Unlock()
		})
	}
}

// emit delivers c now, or queues it while a modification is open.
func (g *Graph) emit(c GraphChange) {
	if !c.Graph.IsValid() {
		c.Graph = g.UUID()
	}
	g.obs.mu.Lock()
	if g.obs.depth > 0 {
		g.obs.queued = append(g.obs.queued, c)
		g.obs.mu.Unlock()
		return
	}
	fns := make([]func(GraphChange), 0, len(g.obs.fns))
	for _, fn := range g.obs.fns {
		fns = append(fns, fn)
	}
	g.obs.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
	if parent := g.ParentGraph(); parent != nil {
		parent.emit(c)
	}
}

// Modification batches change notifications. Observers receive the queued
// changes in order when the outermost modification ends.
type Modification struct {
	g    *Graph
	once sync.Once
}

// BeginModification opens a batch. Modifications nest; call End exactly once
// per Begin, typically with defer.
func (g *Graph) BeginModification() *Modification {
	g.obs.mu.Lock()
	g.obs.depth++
	g.obs.mu.Unlock()
	return &Modification{g: g}
}

// End closes the batch. Extra calls are ignored.
func (m *Modification) End() {
	m.once.Do(func() {
		g := m.g
		g.obs.mu.Lock()
		g.obs.depth--
		if g.obs.depth > 0 {
			g.obs.mu.Unlock()
			return
		}
		queued := g.obs.queued
		g.obs.queued = nil
		g.obs.mu.Unlock()

		for _, c := range queued {
			g.emit(c)
		}
	})
}
