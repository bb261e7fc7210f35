package nodeflow

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGraph_AppendConnection verifies a valid connection is stored.
func TestGraph_AppendConnection(t *testing.T) {
	g := NewGraph("main")
	a := mustAppend(t, g, newValueNode(1).Node)
	b := mustAppend(t, g, newUnaryNode("b", square))

	c := ConnectionID{OutNodeID: a.ID(), OutPort: valueOut, InNodeID: b.ID(), InPort: unaryIn}
	got, ok := g.AppendConnection(c)
	require.True(t, ok)
	assert.Equal(t, c, got)
	assert.True(t, g.HasConnection(c))
	assert.Equal(t, []ConnectionID{c}, g.Connections())
	assert.Equal(t, "2:0->3:0", c.String())
}

// TestGraph_AppendConnection_Rejects verifies every refused connection.
func TestGraph_AppendConnection_Rejects(t *testing.T) {
	g := NewGraph("main")
	a := mustAppend(t, g, newValueNode(1).Node)
	x := mustAppend(t, g, newUnaryNode("x", square))
	y := mustAppend(t, g, newUnaryNode("y", square))
	z := mustAppend(t, g, newUnaryNode("z", square))
	mustConnect(t, g, x, unaryOut, y, unaryIn)
	mustConnect(t, g, y, unaryOut, z, unaryIn)

	sub := NewGraph("sub", WithInPort(PortInfo{Caption: "in"}))
	inner := mustAppend(t, sub, newUnaryNode("inner", square))
	virtualIn := sub.InputProvider().InPorts()[0].ID

	testCases := []struct {
		name  string
		graph *Graph
		conn  ConnectionID
	}{
		{
			name:  "unknown out node",
			graph: g,
			conn:  ConnectionID{OutNodeID: 99, OutPort: 0, InNodeID: x.ID(), InPort: unaryIn},
		},
		{
			name:  "unknown port",
			graph: g,
			conn:  ConnectionID{OutNodeID: a.ID(), OutPort: 7, InNodeID: x.ID(), InPort: unaryIn},
		},
		{
			name:  "input as source",
			graph: g,
			conn:  ConnectionID{OutNodeID: x.ID(), OutPort: unaryIn, InNodeID: a.ID(), InPort: valueOut},
		},
		{
			name:  "self loop",
			graph: g,
			conn:  ConnectionID{OutNodeID: x.ID(), OutPort: unaryOut, InNodeID: x.ID(), InPort: unaryIn},
		},
		{
			name:  "input already connected",
			graph: g,
			conn:  ConnectionID{OutNodeID: a.ID(), OutPort: valueOut, InNodeID: y.ID(), InPort: unaryIn},
		},
		{
			name:  "cycle",
			graph: g,
			conn:  ConnectionID{OutNodeID: z.ID(), OutPort: unaryOut, InNodeID: x.ID(), InPort: unaryIn},
		},
		{
			name:  "invalid ids",
			graph: g,
			conn:  InvalidConnectionID,
		},
		{
			name:  "virtual provider port",
			graph: sub,
			conn:  ConnectionID{OutNodeID: inner.ID(), OutPort: unaryOut, InNodeID: sub.InputProvider().ID(), InPort: virtualIn},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			before := tc.graph.Connections()
			got, ok := tc.graph.AppendConnection(tc.conn)
			assert.False(t, ok)
			assert.Equal(t, InvalidConnectionID, got)
			assert.Equal(t, before, tc.graph.Connections())
			assert.False(t, tc.graph.HasConnection(tc.conn))
		})
	}
}

// TestGraph_ConnectionRoundTrip verifies that adding and then removing a
// connection leaves every query as it was.
func TestGraph_ConnectionRoundTrip(t *testing.T) {
	ch := newChain(t, 2)
	g := ch.graph
	extra := mustAppend(t, g, newSinkNode(Optional))

	type snapshot struct {
		connections []ConnectionID
		in, out     map[NodeID][]ConnectionID
		up, down    map[NodeID][]*Node
	}
	take := func() snapshot {
		s := snapshot{
			connections: g.Connections(),
			in:          map[NodeID][]ConnectionID{},
			out:         map[NodeID][]ConnectionID{},
			up:          map[NodeID][]*Node{},
			down:        map[NodeID][]*Node{},
		}
		for _, n := range g.Nodes() {
			s.in[n.ID()] = g.ConnectionsOf(n.ID(), PortIn)
			s.out[n.ID()] = g.ConnectionsOf(n.ID(), PortOut)
			s.up[n.ID()] = g.FindConnectedNodes(n.ID(), PortIn)
			s.down[n.ID()] = g.FindConnectedNodes(n.ID(), PortOut)
		}
		return s
	}

	before := take()
	c := mustConnect(t, g, ch.b, unaryOut, extra, sinkIn)
	assert.NotEqual(t, before, take())
	assert.True(t, g.HasConnection(c))

	require.True(t, g.DeleteConnection(c))
	assert.Equal(t, before, take())
	assert.False(t, g.HasConnection(c))
	assert.False(t, g.DeleteConnection(c), "second delete")
}

// TestGraph_ConnectionQueries verifies lookups by node and port.
func TestGraph_ConnectionQueries(t *testing.T) {
	g := NewGraph("main")
	a := mustAppend(t, g, newValueNode(1).Node)
	b := mustAppend(t, g, newSinkNode(Required))
	c := mustAppend(t, g, newSinkNode(Required))
	ab := mustConnect(t, g, a, valueOut, b, sinkIn)
	ac := mustConnect(t, g, a, valueOut, c, sinkIn)

	assert.Equal(t, []ConnectionID{ab, ac}, slices.Collect(g.FindConnections(a.ID(), valueOut)))
	assert.Equal(t, []ConnectionID{ab}, slices.Collect(g.FindConnections(b.ID(), sinkIn)))
	assert.Empty(t, slices.Collect(g.FindConnections(a.ID(), 5)))

	assert.Equal(t, []*Node{b, c}, g.FindConnectedNodes(a.ID(), PortOut))
	assert.Equal(t, []*Node{a}, g.FindConnectedNodes(b.ID(), PortIn))
	assert.Equal(t, []*Node{a}, g.FindConnectedNodes(c.ID(), NoPortType))
	assert.Empty(t, g.FindConnectedNodes(a.ID(), PortIn))

	assert.Equal(t, []ConnectionID{ab, ac}, g.ConnectionsOf(a.ID(), NoPortType))
	assert.Empty(t, g.ConnectionsOf(a.ID(), PortIn))

	// Early break stops the sequence.
	var n int
	for range g.FindConnections(a.ID(), valueOut) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

// TestGraph_ConnectionUUID verifies the conversion between id and uuid form.
func TestGraph_ConnectionUUID(t *testing.T) {
	ch := newChain(t, 2)
	g := ch.graph
	c := g.Connections()[0]

	cu := g.ConnectionUUID(c)
	assert.True(t, cu.IsValid())
	assert.Equal(t, ch.a.UUID(), cu.OutNodeID)
	assert.Equal(t, ch.b.UUID(), cu.InNodeID)
	assert.Equal(t, c, g.ConnectionID(cu))

	assert.Equal(t, ConnectionUUID{}, g.ConnectionUUID(ConnectionID{OutNodeID: 50, InNodeID: 51}))
	assert.Equal(t, InvalidConnectionID, g.ConnectionID(ConnectionUUID{OutNodeID: "x", InNodeID: "y"}))
}

// TestConnectionID_Sides verifies side accessors.
func TestConnectionID_Sides(t *testing.T) {
	c := ConnectionID{OutNodeID: 1, OutPort: 2, InNodeID: 3, InPort: 4}

	assert.Equal(t, NodeID(1), c.Node(PortOut))
	assert.Equal(t, NodeID(3), c.Node(PortIn))
	assert.Equal(t, InvalidNodeID, c.Node(NoPortType))
	assert.Equal(t, PortID(2), c.Port(PortOut))
	assert.Equal(t, PortID(4), c.Port(PortIn))
	assert.True(t, c.IsValid())

	c.InNodeID = c.OutNodeID
	assert.False(t, c.IsValid(), "self loop")
}

// TestNode_DeletePort_RemovesConnections verifies deleting a connected port
// of an owned node drops its connections.
func TestNode_DeletePort_RemovesConnections(t *testing.T) {
	ch := newChain(t, 2)
	g := ch.graph
	changes, cancel := recordChanges(g)
	defer cancel()

	require.True(t, ch.b.DeletePort(unaryOut))
	assert.Len(t, g.Connections(), 1)
	assert.Equal(t, []GraphChangeKind{ConnectionDeleted, PortDeleted}, changeKinds(changes()))

	assert.False(t, g.InputProvider().DeletePort(0), "provider ports belong to the graph")
}
