package nodes

import (
	"sync"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
)

// DisplayIn is the input port of a Display node.
const DisplayIn nodeflow.PortID = 0

// Display is a sink recording the last value it received.
type Display struct {
	*nodeflow.Node

	mu      sync.Mutex
	last    nodeflow.NodeDataSet
	updates int
}

// NewDisplay creates a Display node with a Required input. It runs in
// MainThread mode unless opts say otherwise.
func NewDisplay(opts ...nodeflow.NodeOption) *Display {
	d := &Display{}
	opts = append([]nodeflow.NodeOption{
		nodeflow.WithModelName("Display"),
		nodeflow.WithEvalMode(nodeflow.MainThread),
		nodeflow.WithInPort(nodeflow.PortInfo{Caption: "value"}),
	}, opts...)
	d.Node = nodeflow.NewNode("Display", d.evaluate, opts...)
	return d
}

// Last returns the last received data set.
func (d *Display) Last() nodeflow.NodeDataSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Updates returns how often the node was evaluated.
func (d *Display) Updates() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updates
}

func (d *Display) evaluate(ctx nodeflow.Context, data nodeflow.DataInterface) error {
	in := nodeflow.InputData(ctx, data, DisplayIn)
	d.mu.Lock()
	d.last = in
	d.updates++
	d.mu.Unlock()
	ctx.Logger().Debug("display updated", "value", in.Data)
	return nil
}
