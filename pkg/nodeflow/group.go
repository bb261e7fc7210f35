package nodeflow

import (
	"slices"
)

// portPair links a port of the graph node with the two ports of the
// corresponding boundary provider.
//
// For the input provider Virtual is an input port mirroring the graph node's
// input and Main is the output inner nodes connect from. For the output
// provider Main is the input inner nodes connect to and Virtual is an output
// whose data is copied onto the graph node's output.
type portPair struct {
	Graph   PortID
	Virtual PortID
	Main    PortID
}

func newProvider(caption string, role nodeRole) *Node {
	n := NewNode(caption, nil, WithEvalMode(ForwardInputsToOutputs))
	n.role = role
	n.modelName = caption
	return n
}

// InsertInPort adds an input port to the graph node and the matching ports
// to the input provider. It returns the graph node's port id.
func (g *Graph) InsertInPort(info PortInfo) PortID {
	return g.insertBoundaryPort(PortIn, info)
}

// InsertOutPort adds an output port to the graph node and the matching ports
// to the output provider. It returns the graph node's port id.
func (g *Graph) InsertOutPort(info PortInfo) PortID {
	return g.insertBoundaryPort(PortOut, info)
}

func (g *Graph) insertBoundaryPort(t PortType, info PortInfo) PortID {
	info.Virtual = false
	virtual := info
	virtual.Virtual = true
	main := info

	var pair portPair
	g.mu.Lock()
	g.node.mu.Lock()
	pair.Graph = g.node.addPortLocked(t, info)
	g.node.mu.Unlock()

	provider := g.input
	if t == PortOut {
		provider = g.output
	}
	provider.mu.Lock()
	if t == PortIn {
		pair.Virtual = provider.addPortLocked(PortIn, virtual)
		pair.Main = provider.addPortLocked(PortOut, main)
		g.inputPairs = append(g.inputPairs, pair)
	} else {
		pair.Main = provider.addPortLocked(PortIn, main)
		pair.Virtual = provider.addPortLocked(PortOut, virtual)
		g.outputPairs = append(g.outputPairs, pair)
	}
	provider.mu.Unlock()
	g.mu.Unlock()

	m := g.BeginModification()
	g.emit(GraphChange{Kind: PortInserted, Node: g.UUID(), NodeID: g.node.ID(), Port: pair.Graph})
	g.emit(GraphChange{Kind: PortInserted, Node: provider.UUID(), NodeID: provider.ID(), Port: pair.Virtual})
	g.emit(GraphChange{Kind: PortInserted, Node: provider.UUID(), NodeID: provider.ID(), Port: pair.Main})
	m.End()
	return pair.Graph
}

// DeletePort removes a port of the graph node together with its provider
// ports and every connection touching them, inside and outside the graph.
func (g *Graph) DeletePort(port PortID) bool {
	t := g.node.PortType(port)
	if t == NoPortType {
		return false
	}

	g.mu.Lock()
	pairs, provider := &g.inputPairs, g.input
	if t == PortOut {
		pairs, provider = &g.outputPairs, g.output
	}
	i := slices.IndexFunc(*pairs, func(p portPair) bool { return p.Graph == port })
	if i < 0 {
		g.mu.Unlock()
		return false
	}
	pair := (*pairs)[i]
	*pairs = slices.Delete(*pairs, i, i+1)
	pid := provider.ID()
	inner := g.removeConnectionsLocked(func(c ConnectionID) bool {
		return (c.OutNodeID == pid && c.OutPort == pair.Main) || (c.InNodeID == pid && c.InPort == pair.Main)
	})
	g.mu.Unlock()

	var outer []ConnectionUUID
	parent := g.ParentGraph()
	if parent != nil {
		gid := g.node.ID()
		parent.mu.Lock()
		outer = parent.removeConnectionsLocked(func(c ConnectionID) bool {
			return (c.OutNodeID == gid && c.OutPort == port) || (c.InNodeID == gid && c.InPort == port)
		})
		parent.mu.Unlock()
	}

	g.node.removePort(port)
	provider.removePort(pair.Virtual)
	provider.removePort(pair.Main)

	if parent != nil {
		pm := parent.BeginModification()
		defer pm.End()
		for _, cu := range outer {
			parent.emit(GraphChange{Kind: ConnectionDeleted, Node: cu.InNodeID, Port: cu.InPort, Connection: cu})
		}
	}
	m := g.BeginModification()
	for _, cu := range inner {
		g.emit(GraphChange{Kind: ConnectionDeleted, Node: cu.InNodeID, Port: cu.InPort, Connection: cu})
	}
	g.emit(GraphChange{Kind: PortDeleted, Node: provider.UUID(), NodeID: pid, Port: pair.Virtual})
	g.emit(GraphChange{Kind: PortDeleted, Node: provider.UUID(), NodeID: pid, Port: pair.Main})
	g.emit(GraphChange{Kind: PortDeleted, Node: g.UUID(), NodeID: g.node.ID(), Port: port})
	m.End()
	return true
}

// InputPort returns the input provider port inner nodes connect from for the
// graph input port.
func (g *Graph) InputPort(graphPort PortID) (PortID, bool) {
	p, ok := g.pair(PortIn, func(p portPair) bool { return p.Graph == graphPort })
	return p.Main, ok
}

// OutputPort returns the output provider port inner nodes connect to for the
// graph output port.
func (g *Graph) OutputPort(graphPort PortID) (PortID, bool) {
	p, ok := g.pair(PortOut, func(p portPair) bool { return p.Graph == graphPort })
	return p.Main, ok
}

func (g *Graph) pair(t PortType, match func(portPair) bool) (portPair, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	pairs := g.inputPairs
	if t == PortOut {
		pairs = g.outputPairs
	}
	if i := slices.IndexFunc(pairs, match); i >= 0 {
		return pairs[i], true
	}
	return portPair{}, false
}

// forwardMap returns the input to output port mapping a provider applies.
func (g *Graph) forwardMap(provider *Node) map[PortID]PortID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[PortID]PortID)
	switch provider {
	case g.input:
		for _, p := range g.inputPairs {
			out[p.Virtual] = p.Main
		}
	case g.output:
		for _, p := range g.outputPairs {
			out[p.Main] = p.Virtual
		}
	}
	return out
}

// pairs returns a snapshot of the port pairs on side t.
func (g *Graph) pairs(t PortType) []portPair {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if t == PortOut {
		return slices.Clone(g.outputPairs)
	}
	return slices.Clone(g.inputPairs)
}
