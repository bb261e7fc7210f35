package nodes

import (
	"sync"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
)

// ConstOut is the output port of a Const node.
const ConstOut nodeflow.PortID = 0

// Const emits a fixed value. Changing the value invalidates the node and
// everything downstream of it.
type Const struct {
	*nodeflow.Node

	mu    sync.RWMutex
	value any
}

// NewConst creates a Const node. It runs in MainThread mode unless opts say
// otherwise.
func NewConst(value any, typeID string, opts ...nodeflow.NodeOption) *Const {
	c := &Const{value: value}
	opts = append([]nodeflow.NodeOption{
		nodeflow.WithModelName("Const"),
		nodeflow.WithEvalMode(nodeflow.MainThread),
		nodeflow.WithOutPort(nodeflow.PortInfo{Caption: "value", TypeID: typeID}),
	}, opts...)
	c.Node = nodeflow.NewNode("Const", c.evaluate, opts...)
	return c
}

// Value returns the current value.
func (c *Const) Value() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// SetValue replaces the value and notifies the owning graph.
func (c *Const) SetValue(v any) {
	c.mu.Lock()
	c.value = v
	c.mu.Unlock()
	c.NotifyChanged()
}

func (c *Const) evaluate(ctx nodeflow.Context, data nodeflow.DataInterface) error {
	nodeflow.SetOutputData(ctx, data, ConstOut, c.Value())
	return nil
}
