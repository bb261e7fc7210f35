package nodeflow

import (
	"context"
	"sync"
)

// ValidityState tells whether a port value reflects the latest evaluation.
type ValidityState int

const (
	// Outdated data is stale or missing.
	Outdated ValidityState = iota
	// Valid data is the result of the latest successful evaluation.
	Valid
)

// String returns the state name.
func (s ValidityState) String() string {
	if s == Valid {
		return "valid"
	}
	return "outdated"
}

// NodeDataSet is the value held by a port.
//
// Data is shared between readers and must be treated as immutable. A nil
// Data is a legal "no data" value and is distinct from Outdated.
type NodeDataSet struct {
	Data  any
	State ValidityState
}

// ValidData wraps v as a Valid data set.
func ValidData(v any) NodeDataSet {
	return NodeDataSet{Data: v, State: Valid}
}

// IsValid reports whether the data set is Valid.
func (d NodeDataSet) IsValid() bool {
	return d.State == Valid
}

// NodeEvalState is the lifecycle state of a node's most recent evaluation.
type NodeEvalState int

const (
	// EvalInvalid means the last evaluation failed or an input cannot be resolved.
	EvalInvalid NodeEvalState = iota
	// EvalOutdated means the node needs to be (re-)evaluated.
	EvalOutdated
	// EvalEvaluating means the node's callback is running.
	EvalEvaluating
	// EvalValid means all outputs reflect the current inputs.
	EvalValid
	// EvalPaused means evaluation is held externally.
	EvalPaused
)

// String returns the state name.
func (s NodeEvalState) String() string {
	switch s {
	case EvalInvalid:
		return "invalid"
	case EvalOutdated:
		return "outdated"
	case EvalEvaluating:
		return "evaluating"
	case EvalValid:
		return "valid"
	case EvalPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// isPending reports whether the state may still turn Valid without an
// external change.
func (s NodeEvalState) isPending() bool {
	return s == EvalOutdated || s == EvalEvaluating || s == EvalPaused
}

// DataInterface gives access to port data keyed by node and port identity.
//
// The execution model implements it for external callers. Callbacks receive a
// scoped implementation that only exposes the evaluating node's own ports:
// reads return the input snapshot taken at dispatch, writes collect outputs
// which the scheduler commits once the callback returns.
type DataInterface interface {
	// NodeData returns the data on a port, {nil, Outdated} if unknown.
	NodeData(node NodeUUID, port PortID) NodeDataSet
	// SetNodeData writes a port. Returns false if the port is unknown or not writable.
	SetNodeData(node NodeUUID, port PortID, data NodeDataSet) bool
}

// InputData reads an input of the node being evaluated.
func InputData(ctx Context, data DataInterface, port PortID) NodeDataSet {
	return data.NodeData(ctx.NodeUUID(), port)
}

// SetOutputData writes an output of the node being evaluated as Valid.
func SetOutputData(ctx Context, data DataInterface, port PortID, v any) bool {
	return data.SetNodeData(ctx.NodeUUID(), port, ValidData(v))
}

// evalScope is the DataInterface handed to callbacks.
type evalScope struct {
	mu      sync.Mutex
	node    NodeUUID
	inputs  map[PortID]NodeDataSet
	outPort map[PortID]bool
	outputs map[PortID]NodeDataSet
}

func newEvalScope(node NodeUUID, inputs map[PortID]NodeDataSet, outs []PortInfo) *evalScope {
	s := &evalScope{
		node:    node,
		inputs:  inputs,
		outPort: make(map[PortID]bool, len(outs)),
		outputs: make(map[PortID]NodeDataSet, len(outs)),
	}
	for _, p := range outs {
		s.outPort[p.ID] = true
	}
	return s
}

func (s *evalScope) NodeData(node NodeUUID, port PortID) NodeDataSet {
	if node != s.node {
		return NodeDataSet{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.inputs[port]; ok {
		return d
	}
	return s.outputs[port]
}

func (s *evalScope) SetNodeData(node NodeUUID, port PortID, data NodeDataSet) bool {
	if node != s.node || !s.outPort[port] {
		return false
	}
	s.mu.Lock()
	s.outputs[port] = data
	s.mu.Unlock()
	return true
}

// written returns the outputs collected so far.
func (s *evalScope) written() map[PortID]NodeDataSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[PortID]NodeDataSet, len(s.outputs))
	for k, v := range s.outputs {
		out[k] = v
	}
	return out
}

// StandaloneData is a single-node DataInterface for exercising a node's
// callback in isolation, without a graph or scheduler.
//
// Example:
//
//	sd := nodeflow.NewStandaloneData(square)
//	sd.SetNodeData(square.UUID(), in, nodeflow.ValidData(3))
//	err := sd.Evaluate(context.Background())
//	out := sd.NodeData(square.UUID(), outPort) // {9, Valid}
type StandaloneData struct {
	mu   sync.Mutex
	node *Node
	data map[PortID]NodeDataSet
}

// NewStandaloneData creates a stand-in data store for node.
func NewStandaloneData(node *Node) *StandaloneData {
	return &StandaloneData{
		node: node,
		data: make(map[PortID]NodeDataSet),
	}
}

// NodeData implements DataInterface.
func (s *StandaloneData) NodeData(node NodeUUID, port PortID) NodeDataSet {
	if node != s.node.UUID() {
		return NodeDataSet{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[port]
}

// SetNodeData implements DataInterface. Any port of the node is writable.
func (s *StandaloneData) SetNodeData(node NodeUUID, port PortID, data NodeDataSet) bool {
	if node != s.node.UUID() {
		return false
	}
	if _, ok := s.node.Port(port); !ok {
		return false
	}
	s.mu.Lock()
	s.data[port] = data
	s.mu.Unlock()
	return true
}

// Evaluate runs the node's callback synchronously against the stand-in data.
// Panics are recovered and returned as *PanicError.
func (s *StandaloneData) Evaluate(ctx context.Context) (err error) {
	n := s.node
	fn := n.evalFunc()
	if fn == nil {
		return &NodeError{NodeUUID: n.UUID(), Op: "evaluate", Err: ErrNoEvalFunc}
	}
	nodeCtx := newNodeContext(ctx, nil, n)

	inputs := make(map[PortID]NodeDataSet)
	s.mu.Lock()
	for _, p := range n.InPorts() {
		inputs[p.ID] = s.data[p.ID]
	}
	s.mu.Unlock()

	scope := newEvalScope(n.UUID(), inputs, n.OutPorts())
	err = invokeEval(nodeCtx, n, fn, scope)

	s.mu.Lock()
	for port, d := range scope.written() {
		if err == nil {
			d.State = Valid
		}
		s.data[port] = d
	}
	s.mu.Unlock()
	return err
}
