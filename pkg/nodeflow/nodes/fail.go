package nodes

import (
	"errors"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
)

// ErrAlwaysFails is the error returned by Fail nodes without a custom error.
var ErrAlwaysFails = errors.New("node always fails")

// NewFail creates a node that passes its input through, writes it to its
// output and then fails with err. A nil err means ErrAlwaysFails.
func NewFail(err error, opts ...nodeflow.NodeOption) *nodeflow.Node {
	if err == nil {
		err = ErrAlwaysFails
	}
	opts = append([]nodeflow.NodeOption{
		nodeflow.WithModelName("Fail"),
		nodeflow.WithInPort(nodeflow.PortInfo{Caption: "x", Policy: nodeflow.Optional}),
		nodeflow.WithOutPort(nodeflow.PortInfo{Caption: "y"}),
	}, opts...)
	return nodeflow.NewNode("Fail", func(ctx nodeflow.Context, data nodeflow.DataInterface) error {
		nodeflow.SetOutputData(ctx, data, UnaryOut, nodeflow.InputData(ctx, data, UnaryIn).Data)
		return err
	}, opts...)
}
