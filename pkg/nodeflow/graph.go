package nodeflow

import (
	"fmt"
	"slices"
	"sync"
)

// Graph owns an ordered set of nodes and the connections between them.
//
// A Graph is itself presented to its parent by a node (see Graph.Node) so
// graphs nest. Every graph contains an input and an output provider which
// mirror the graph node's ports on the inside.
//
// All methods are safe for concurrent use. Structural changes are reported to
// observers registered with Observe.
type Graph struct {
	mu sync.RWMutex

	node        *Node
	nodes       map[NodeID]*Node
	order       []NodeID
	byUUID      map[NodeUUID]NodeID
	connections []ConnectionID // copy-on-write
	nextID      NodeID

	input  *Node
	output *Node

	// Port triples linking graph node ports to provider ports.
	inputPairs  []portPair
	outputPairs []portPair

	obs observers
}

// NewGraph creates an empty graph presented by a node with the given caption.
// The presenting node accepts the same options as NewNode; its mode is always
// ForwardInputsToOutputs.
func NewGraph(caption string, opts ...NodeOption) *Graph {
	n := NewNode(caption, nil, opts...)
	n.mode = ForwardInputsToOutputs
	n.role = roleGraph
	if n.modelName == caption {
		n.modelName = "Graph"
	}

	g := &Graph{
		node:   n,
		nodes:  make(map[NodeID]*Node),
		byUUID: make(map[NodeUUID]NodeID),
	}
	n.subgraph = g

	g.input = newProvider("Input Provider", roleInputProvider)
	g.output = newProvider("Output Provider", roleOutputProvider)
	g.appendLocked(g.input)
	g.appendLocked(g.output)

	// Ports passed as options belong to the graph node and need providers.
	in, out := slices.Clone(n.inPorts), slices.Clone(n.outPorts)
	n.inPorts, n.outPorts = nil, nil
	for _, p := range in {
		g.insertBoundaryPort(PortIn, p)
	}
	for _, p := range out {
		g.insertBoundaryPort(PortOut, p)
	}
	return g
}

// Node returns the node presenting this graph.
func (g *Graph) Node() *Node {
	return g.node
}

// UUID returns the uuid of the presenting node.
func (g *Graph) UUID() NodeUUID {
	return g.node.UUID()
}

// Caption returns the caption of the presenting node.
func (g *Graph) Caption() string {
	return g.node.Caption()
}

// String implements fmt.Stringer.
func (g *Graph) String() string {
	return fmt.Sprintf("Graph(%s)", g.Caption())
}

// ParentGraph returns the enclosing graph, nil for a root graph.
func (g *Graph) ParentGraph() *Graph {
	return g.node.Graph()
}

// RootGraph returns the outermost enclosing graph.
func (g *Graph) RootGraph() *Graph {
	root := g
	for p := root.ParentGraph(); p != nil; p = root.ParentGraph() {
		root = p
	}
	return root
}

// InputProvider returns the node mirroring the graph's input ports.
func (g *Graph) InputProvider() *Node {
	return g.input
}

// OutputProvider returns the node mirroring the graph's output ports.
func (g *Graph) OutputProvider() *Node {
	return g.output
}

// AppendNode takes ownership of n and assigns it an id.
// It returns false if n is already owned, its requested id is taken, or its
// uuid (or the uuid of a node nested in it) already exists in the tree.
// Appending a graph into itself or one of its descendants panics.
func (g *Graph) AppendNode(n *Node) (*Node, bool) {
	if n == nil {
		panic("nodeflow: AppendNode called with nil node")
	}
	if sub := n.subgraph; sub != nil {
		for a := g; a != nil; a = a.ParentGraph() {
			if a == sub {
				panic("nodeflow: cannot append a graph into itself")
			}
		}
	}
	if n.Graph() != nil {
		return nil, false
	}

	root := g.RootGraph()
	for _, u := range collectUUIDs(n) {
		if root.FindNodeByUUID(u) != nil {
			return nil, false
		}
	}

	g.mu.Lock()
	if id := n.ID(); id.IsValid() {
		if _, taken := g.nodes[id]; taken {
			g.mu.Unlock()
			return nil, false
		}
	}
	g.appendLocked(n)
	id := n.ID()
	g.mu.Unlock()

	g.emit(GraphChange{Kind: NodeAppended, Node: n.UUID(), NodeID: id})
	return n, true
}

func (g *Graph) appendLocked(n *Node) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.id
	if !id.IsValid() {
		for {
			if _, taken := g.nodes[g.nextID]; !taken {
				break
			}
			g.nextID++
		}
		id = g.nextID
	}
	if id >= g.nextID {
		g.nextID = id + 1
	}
	n.id = id
	n.graph = g

	g.nodes[id] = n
	g.order = append(g.order, id)
	g.byUUID[n.uuid] = id
}

// DeleteNode removes a node together with all connections touching it.
// Providers cannot be deleted. Returns false if the node does not exist.
func (g *Graph) DeleteNode(id NodeID) bool {
	g.mu.Lock()
	n, ok := g.nodes[id]
	if !ok || n.IsProvider() {
		g.mu.Unlock()
		return false
	}
	removed := g.removeConnectionsLocked(func(c ConnectionID) bool {
		return c.OutNodeID == id || c.InNodeID == id
	})
	delete(g.nodes, id)
	delete(g.byUUID, n.UUID())
	g.order = slices.DeleteFunc(g.order, func(o NodeID) bool { return o == id })
	g.mu.Unlock()

	n.mu.Lock()
	n.graph = nil
	n.mu.Unlock()

	m := g.BeginModification()
	for _, c := range removed {
		g.emit(GraphChange{Kind: ConnectionDeleted, Connection: c})
	}
	g.emit(GraphChange{Kind: NodeDeleted, Node: n.UUID(), NodeID: id})
	m.End()
	return true
}

// FindNode returns the node with the given id, or nil.
func (g *Graph) FindNode(id NodeID) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// FindNodeByUUID searches this graph and all nested graphs.
func (g *Graph) FindNodeByUUID(u NodeUUID) *Node {
	if u == g.UUID() {
		return g.node
	}
	g.mu.RLock()
	if id, ok := g.byUUID[u]; ok {
		n := g.nodes[id]
		g.mu.RUnlock()
		return n
	}
	subs := g.subgraphsLocked()
	g.mu.RUnlock()

	for _, sub := range subs {
		if n := sub.FindNodeByUUID(u); n != nil {
			return n
		}
	}
	return nil
}

// Nodes returns the nodes in insertion order. Providers come first.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// NodeCount returns the number of nodes including providers.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Subgraphs returns the graphs directly nested in this graph.
func (g *Graph) Subgraphs() []*Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.subgraphsLocked()
}

func (g *Graph) subgraphsLocked() []*Graph {
	var out []*Graph
	for _, id := range g.order {
		if sub := g.nodes[id].subgraph; sub != nil {
			out = append(out, sub)
		}
	}
	return out
}

// walk visits every node of the tree rooted at g depth first, in insertion
// order. Graph nodes are visited before their contents.
func (g *Graph) walk(fn func(*Node)) {
	for _, n := range g.Nodes() {
		fn(n)
		if sub := n.subgraph; sub != nil {
			sub.walk(fn)
		}
	}
}

func collectUUIDs(n *Node) []NodeUUID {
	out := []NodeUUID{n.UUID()}
	if sub := n.subgraph; sub != nil {
		sub.walk(func(inner *Node) {
			out = append(out, inner.UUID())
		})
	}
	return out
}
