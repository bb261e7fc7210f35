package nodeflow

import (
	"iter"
	"slices"
)

// AppendConnection connects an output port to an input port of two nodes of
// this graph. It fails when either endpoint does not exist, the port
// directions do not match, a virtual port is involved, the input is already
// connected, or the connection would close a cycle.
func (g *Graph) AppendConnection(c ConnectionID) (ConnectionID, bool) {
	if !c.IsValid() {
		return InvalidConnectionID, false
	}

	g.mu.Lock()
	if !g.canConnectLocked(c) {
		g.mu.Unlock()
		return InvalidConnectionID, false
	}
	g.connections = append(slices.Clip(g.connections), c)
	cu := g.connectionUUIDLocked(c)
	g.mu.Unlock()

	g.emit(GraphChange{Kind: ConnectionAppended, Node: cu.InNodeID, NodeID: c.InNodeID, Port: c.InPort, Connection: cu})
	return c, true
}

func (g *Graph) canConnectLocked(c ConnectionID) bool {
	out, in := g.nodes[c.OutNodeID], g.nodes[c.InNodeID]
	if out == nil || in == nil {
		return false
	}
	op, ok := out.Port(c.OutPort)
	if !ok || op.Type != PortOut || op.Virtual {
		return false
	}
	ip, ok := in.Port(c.InPort)
	if !ok || ip.Type != PortIn || ip.Virtual {
		return false
	}
	for _, existing := range g.connections {
		if existing.InNodeID == c.InNodeID && existing.InPort == c.InPort {
			return false
		}
	}
	return !g.reachableLocked(c.InNodeID, c.OutNodeID)
}

// reachableLocked reports whether to can be reached from from by following
// connections downstream.
func (g *Graph) reachableLocked(from, to NodeID) bool {
	seen := map[NodeID]bool{from: true}
	queue := []NodeID{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true
		}
		for _, c := range g.connections {
			if c.OutNodeID == cur && !seen[c.InNodeID] {
				seen[c.InNodeID] = true
				queue = append(queue, c.InNodeID)
			}
		}
	}
	return false
}

// DeleteConnection removes a connection. Returns false if it does not exist.
func (g *Graph) DeleteConnection(c ConnectionID) bool {
	g.mu.Lock()
	removed := g.removeConnectionsLocked(func(existing ConnectionID) bool {
		return existing == c
	})
	g.mu.Unlock()
	if len(removed) == 0 {
		return false
	}
	g.emit(GraphChange{Kind: ConnectionDeleted, Node: removed[0].InNodeID, NodeID: c.InNodeID, Port: c.InPort, Connection: removed[0]})
	return true
}

// removeConnectionsLocked drops matching connections and returns their uuid
// form, resolved while the endpoints still exist.
func (g *Graph) removeConnectionsLocked(match func(ConnectionID) bool) []ConnectionUUID {
	var removed []ConnectionUUID
	kept := make([]ConnectionID, 0, len(g.connections))
	for _, c := range g.connections {
		if match(c) {
			removed = append(removed, g.connectionUUIDLocked(c))
			continue
		}
		kept = append(kept, c)
	}
	if len(removed) > 0 {
		g.connections = kept
	}
	return removed
}

// Connections returns a snapshot of all connections.
func (g *Graph) Connections() []ConnectionID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.connections)
}

// HasConnection reports whether c exists.
func (g *Graph) HasConnection(c ConnectionID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Contains(g.connections, c)
}

// FindConnections yields the connections touching a port of a node.
// The sequence reads a snapshot taken when iteration starts.
func (g *Graph) FindConnections(node NodeID, port PortID) iter.Seq[ConnectionID] {
	return func(yield func(ConnectionID) bool) {
		g.mu.RLock()
		snapshot := g.connections
		g.mu.RUnlock()
		for _, c := range snapshot {
			if (c.OutNodeID == node && c.OutPort == port) || (c.InNodeID == node && c.InPort == port) {
				if !yield(c) {
					return
				}
			}
		}
	}
}

// ConnectionsOf returns the connections on side t of a node: incoming for
// PortIn, outgoing for PortOut, both for NoPortType.
func (g *Graph) ConnectionsOf(node NodeID, t PortType) []ConnectionID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []ConnectionID
	for _, c := range g.connections {
		switch {
		case t != PortOut && c.InNodeID == node:
			out = append(out, c)
		case t != PortIn && c.OutNodeID == node:
			out = append(out, c)
		}
	}
	return out
}

// FindConnectedNodes returns the distinct nodes connected to side t of a
// node: upstream nodes for PortIn, downstream nodes for PortOut.
func (g *Graph) FindConnectedNodes(node NodeID, t PortType) []*Node {
	var out []*Node
	seen := make(map[NodeID]bool)
	for _, c := range g.ConnectionsOf(node, t) {
		other := c.Node(t.Inverse())
		if t == NoPortType {
			other = c.OutNodeID
			if other == node {
				other = c.InNodeID
			}
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		if n := g.FindNode(other); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// ConnectionUUID converts an id-addressed connection to its uuid form.
// The zero value is returned if an endpoint does not exist.
func (g *Graph) ConnectionUUID(c ConnectionID) ConnectionUUID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connectionUUIDLocked(c)
}

func (g *Graph) connectionUUIDLocked(c ConnectionID) ConnectionUUID {
	out, in := g.nodes[c.OutNodeID], g.nodes[c.InNodeID]
	if out == nil || in == nil {
		return ConnectionUUID{}
	}
	return ConnectionUUID{
		OutNodeID: out.UUID(),
		OutPort:   c.OutPort,
		InNodeID:  in.UUID(),
		InPort:    c.InPort,
	}
}

// ConnectionID converts a uuid-addressed connection to the ids of this graph.
// InvalidConnectionID is returned if an endpoint is not a direct child.
func (g *Graph) ConnectionID(c ConnectionUUID) ConnectionID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out, okOut := g.byUUID[c.OutNodeID]
	in, okIn := g.byUUID[c.InNodeID]
	if !okOut || !okIn {
		return InvalidConnectionID
	}
	return ConnectionID{OutNodeID: out, OutPort: c.OutPort, InNodeID: in, InPort: c.InPort}
}

// deleteNodePort removes a port of an owned node together with its connections.
func (g *Graph) deleteNodePort(n *Node, port PortID) bool {
	switch n.role {
	case roleGraph:
		return n.subgraph.DeletePort(port)
	case roleInputProvider, roleOutputProvider:
		return false
	}
	if _, ok := n.Port(port); !ok {
		return false
	}

	id := n.ID()
	g.mu.Lock()
	removed := g.removeConnectionsLocked(func(c ConnectionID) bool {
		return (c.OutNodeID == id && c.OutPort == port) || (c.InNodeID == id && c.InPort == port)
	})
	g.mu.Unlock()
	n.removePort(port)

	m := g.BeginModification()
	for _, cu := range removed {
		g.emit(GraphChange{Kind: ConnectionDeleted, Node: cu.InNodeID, Port: cu.InPort, Connection: cu})
	}
	g.emit(GraphChange{Kind: PortDeleted, Node: n.UUID(), NodeID: id, Port: port})
	m.End()
	return true
}
