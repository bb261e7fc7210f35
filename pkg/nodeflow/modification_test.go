package nodeflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGraph_Observe verifies observers see changes in order.
func TestGraph_Observe(t *testing.T) {
	g := NewGraph("main")
	changes, cancel := recordChanges(g)

	a := mustAppend(t, g, newValueNode(1).Node)
	b := mustAppend(t, g, newSinkNode(Required))
	mustConnect(t, g, a, valueOut, b, sinkIn)

	got := changes()
	require.Len(t, got, 3)
	assert.Equal(t, []GraphChangeKind{NodeAppended, NodeAppended, ConnectionAppended}, changeKinds(got))
	assert.Equal(t, a.UUID(), got[0].Node)
	assert.Equal(t, a.ID(), got[0].NodeID)
	assert.Equal(t, g.UUID(), got[0].Graph)
	assert.Equal(t, ConnectionUUID{OutNodeID: a.UUID(), OutPort: valueOut, InNodeID: b.UUID(), InPort: sinkIn}, got[2].Connection)

	cancel()
	cancel()
	mustAppend(t, g, NewNode("c", nil))
	assert.Len(t, changes(), 3, "canceled observers receive nothing")
}

// TestGraph_DeleteNode_Changes verifies connection removals precede the
// node removal.
func TestGraph_DeleteNode_Changes(t *testing.T) {
	ch := newChain(t, 1)
	changes, cancel := recordChanges(ch.graph)
	defer cancel()

	require.True(t, ch.graph.DeleteNode(ch.b.ID()))
	assert.Equal(t, []GraphChangeKind{ConnectionDeleted, ConnectionDeleted, NodeDeleted}, changeKinds(changes()))
}

// TestModification_Batches verifies notifications are held until the
// outermost modification ends.
func TestModification_Batches(t *testing.T) {
	g := NewGraph("main")
	changes, cancel := recordChanges(g)
	defer cancel()

	outer := g.BeginModification()
	mustAppend(t, g, NewNode("a", nil))
	inner := g.BeginModification()
	mustAppend(t, g, NewNode("b", nil))
	inner.End()
	assert.Empty(t, changes(), "nested end does not flush")

	outer.End()
	assert.Equal(t, []GraphChangeKind{NodeAppended, NodeAppended}, changeKinds(changes()))

	outer.End()
	mustAppend(t, g, NewNode("c", nil))
	assert.Len(t, changes(), 3, "extra End is ignored")
}

// TestGraph_Observe_Nested verifies changes of nested graphs reach the
// observers of enclosing graphs.
func TestGraph_Observe_Nested(t *testing.T) {
	root := NewGraph("root")
	sub := NewGraph("sub")
	mustAppend(t, root, sub.Node())

	changes, cancel := recordChanges(root)
	defer cancel()

	inner := mustAppend(t, sub, NewNode("inner", nil))
	inner.NotifyChanged()

	got := changes()
	require.Len(t, got, 2)
	assert.Equal(t, NodeAppended, got[0].Kind)
	assert.Equal(t, sub.UUID(), got[0].Graph)
	assert.Equal(t, NodeChanged, got[1].Kind)
	assert.Equal(t, inner.UUID(), got[1].Node)
}

// TestNode_NotifyChanged_Unowned verifies unowned nodes notify nobody.
func TestNode_NotifyChanged_Unowned(t *testing.T) {
	n := NewNode("n", nil)
	assert.NotPanics(t, n.NotifyChanged)
}

// TestGraphChangeKind_String verifies change names.
func TestGraphChangeKind_String(t *testing.T) {
	assert.Equal(t, "node_appended", NodeAppended.String())
	assert.Equal(t, "connection_deleted", ConnectionDeleted.String())
	assert.Equal(t, "node_changed", NodeChanged.String())
	assert.Equal(t, "unknown", GraphChangeKind(0).String())
}
