package nodeflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph lookups and the execution model.
var (
	// ErrModelClosed indicates the execution model was closed.
	ErrModelClosed = errors.New("execution model closed")

	// ErrNodeNotFound indicates a uuid or id does not resolve to a node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrPortNotFound indicates a port id does not exist on the node.
	ErrPortNotFound = errors.New("port not found")
)

// Sentinel errors recorded as the reason a node turned Invalid.
var (
	// ErrUnresolvedInput indicates a Required input is unconnected and has no data.
	ErrUnresolvedInput = errors.New("required input unresolved")

	// ErrUpstreamFailed indicates the source of a Required input is Invalid.
	ErrUpstreamFailed = errors.New("upstream node failed")

	// ErrNoEvalFunc indicates a node without callback was dispatched.
	ErrNoEvalFunc = errors.New("node has no evaluation function")
)

// Sentinel errors for checkpointing.
var (
	// ErrSerializeOutputs indicates node outputs could not be encoded.
	ErrSerializeOutputs = errors.New("failed to serialize outputs")

	// ErrDeserializeOutputs indicates a checkpoint could not be decoded.
	ErrDeserializeOutputs = errors.New("failed to deserialize outputs")
)

// NodeError wraps an error with the node it happened at.
type NodeError struct {
	// NodeUUID identifies the failing node.
	NodeUUID NodeUUID
	// Port is set when the error concerns a single port.
	Port PortID
	// Op is the operation that failed ("evaluate", "resolve", "checkpoint").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.Port.IsValid() && (e.Op == "resolve" || e.Op == "restore") {
		return fmt.Sprintf("node %s: %s port %d: %v", e.NodeUUID, e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("node %s: %s: %v", e.NodeUUID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised by a node callback.
type PanicError struct {
	// NodeUUID identifies the node that panicked.
	NodeUUID NodeUUID
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeUUID, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func unresolvedInput(n NodeUUID, port PortID) error {
	return &NodeError{NodeUUID: n, Port: port, Op: "resolve", Err: ErrUnresolvedInput}
}

func upstreamFailed(n NodeUUID, port PortID) error {
	return &NodeError{NodeUUID: n, Port: port, Op: "resolve", Err: ErrUpstreamFailed}
}
