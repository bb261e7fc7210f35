package nodeflow

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
)

// Context is passed to node callbacks.
// It extends context.Context with the logger and identity of the node being
// evaluated. The context is canceled when the execution model is closed.
//
// Callbacks must not call ExecutionModel methods synchronously: the
// coordinating goroutine may be waiting on them.
type Context interface {
	context.Context

	// Logger returns the logger enriched with graph and node attributes.
	// Never returns nil.
	Logger() *slog.Logger

	// NodeUUID returns the uuid of the node being evaluated.
	NodeUUID() NodeUUID

	// NodeID returns the id of the node within its graph.
	NodeID() NodeID

	// GraphUUID returns the uuid of the node presenting the owning graph,
	// empty for unowned nodes.
	GraphUUID() NodeUUID

	// EvalMode returns the mode the node is evaluated in.
	EvalMode() EvalMode
}

type nodeContext struct {
	context.Context

	logger    *slog.Logger
	nodeUUID  NodeUUID
	nodeID    NodeID
	graphUUID NodeUUID
	mode      EvalMode
}

func (c *nodeContext) Logger() *slog.Logger { return c.logger }
func (c *nodeContext) NodeUUID() NodeUUID   { return c.nodeUUID }
func (c *nodeContext) NodeID() NodeID       { return c.nodeID }
func (c *nodeContext) GraphUUID() NodeUUID  { return c.graphUUID }
func (c *nodeContext) EvalMode() EvalMode   { return c.mode }

// ContextOption configures a Context created with NewContext.
type ContextOption func(*nodeContext)

// WithContextLogger sets the logger of the context.
func WithContextLogger(logger *slog.Logger) ContextOption {
	return func(c *nodeContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextNode sets the node identity reported by the context.
func WithContextNode(n *Node) ContextOption {
	return func(c *nodeContext) {
		c.nodeUUID = n.UUID()
		c.nodeID = n.ID()
		c.mode = n.EvalMode()
		if g := n.Graph(); g != nil {
			c.graphUUID = g.UUID()
		}
	}
}

// NewContext wraps ctx for calling an EvalFunc directly, typically in tests.
//
// Example:
//
//	ctx := nodeflow.NewContext(context.Background(),
//	    nodeflow.WithContextLogger(logger),
//	    nodeflow.WithContextNode(node))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	c := &nodeContext{
		Context: ctx,
		logger:  slog.Default(),
		nodeID:  InvalidNodeID,
		mode:    Exclusive,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newNodeContext derives the per-evaluation context for n.
func newNodeContext(ctx context.Context, logger *slog.Logger, n *Node) *nodeContext {
	if logger == nil {
		logger = slog.Default()
	}
	c := &nodeContext{Context: ctx}
	WithContextNode(n)(c)
	c.logger = observability.EnrichLogger(logger, string(c.graphUUID), string(c.nodeUUID), n.Caption())
	return c
}
