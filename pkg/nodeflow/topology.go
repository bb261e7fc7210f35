package nodeflow

// portRef addresses the data of one port of one node.
type portRef struct {
	node *Node
	port PortID
	side PortType
}

// sourceOf resolves where the data of an input port comes from.
//
// A connected input resolves to the upstream output. Virtual inputs of an
// input provider resolve through the graph node to whatever feeds it in the
// parent graph. An unconnected input resolves to its own stored data and
// connected is false.
func sourceOf(n *Node, port PortID) (ref portRef, connected bool) {
	if n.role == roleInputProvider {
		g := n.Graph()
		if pair, ok := g.pair(PortIn, func(p portPair) bool { return p.Virtual == port }); ok {
			return sourceOf(g.node, pair.Graph)
		}
	}
	self := portRef{node: n, port: port, side: PortIn}
	g := n.Graph()
	if g == nil {
		return self, false
	}
	id := n.ID()
	for c := range g.FindConnections(id, port) {
		if c.InNodeID != id || c.InPort != port {
			continue
		}
		if src := g.FindNode(c.OutNodeID); src != nil {
			return portRef{node: src, port: c.OutPort, side: PortOut}, true
		}
	}
	return self, false
}

// dependentsOf returns the nodes fed by the outputs of n. An output
// provider feeds the graph node presenting its graph; the outputs of a graph
// node only feed its parent-side neighbours.
func dependentsOf(n *Node) []*Node {
	var out []*Node
	if n.role == roleOutputProvider {
		out = append(out, n.Graph().node)
	}
	if g := n.Graph(); g != nil {
		out = append(out, g.FindConnectedNodes(n.ID(), PortOut)...)
	}
	return out
}

// boundaryFeeds returns the node that data reaching d from upstream flows
// into. Data entering a graph node through its inputs reaches its input
// provider; data arriving from the output provider stays on the graph node.
func boundaryFeeds(from, d *Node) *Node {
	if d.role == roleGraph && from != d.subgraph.output {
		return d.subgraph.input
	}
	return d
}

// upstreamOf returns the nodes n waits for before it can be dispatched.
// A graph node waits for its output provider.
func upstreamOf(n *Node) []*Node {
	if n.role == roleGraph {
		return []*Node{n.subgraph.output}
	}
	var out []*Node
	for _, p := range n.InPorts() {
		ref, connected := sourceOf(n, p.ID)
		if !connected {
			continue
		}
		out = append(out, ref.node)
	}
	return out
}

// graphsOf returns the graphs enclosing n from the innermost outwards.
func graphsOf(n *Node) []*Graph {
	var out []*Graph
	for g := n.Graph(); g != nil; g = g.ParentGraph() {
		out = append(out, g)
	}
	return out
}
