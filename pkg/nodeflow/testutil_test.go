package nodeflow

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Port ids of the helper nodes. Ports are numbered in declaration order.
const (
	valueOut PortID = 0
	unaryIn  PortID = 0
	unaryOut PortID = 1
	sinkIn   PortID = 0
)

const waitTimeout = 2 * time.Second

var errBoom = errors.New("boom")

// valueNode emits a settable value on port 0.
type valueNode struct {
	*Node
	mu sync.Mutex
	v  any
}

func newValueNode(v any, opts ...NodeOption) *valueNode {
	vn := &valueNode{v: v}
	opts = append([]NodeOption{
		WithEvalMode(MainThread),
		WithModelName("Value"),
		WithOutPort(PortInfo{Caption: "out", TypeID: KindInt}),
	}, opts...)
	vn.Node = NewNode("value", func(ctx Context, data DataInterface) error {
		vn.mu.Lock()
		v := vn.v
		vn.mu.Unlock()
		SetOutputData(ctx, data, valueOut, v)
		return nil
	}, opts...)
	return vn
}

// set changes the value and notifies the owning graph.
func (vn *valueNode) set(v any) {
	vn.mu.Lock()
	vn.v = v
	vn.mu.Unlock()
	vn.NotifyChanged()
}

// newUnaryNode creates a node applying fn to a Required int input.
func newUnaryNode(caption string, fn func(int) int, opts ...NodeOption) *Node {
	opts = append([]NodeOption{
		WithInPort(PortInfo{Caption: "in", TypeID: KindInt}),
		WithOutPort(PortInfo{Caption: "out", TypeID: KindInt}),
	}, opts...)
	return NewNode(caption, func(ctx Context, data DataInterface) error {
		in, ok := InputData(ctx, data, unaryIn).Data.(int)
		if !ok {
			return errors.New("input is not an int")
		}
		SetOutputData(ctx, data, unaryOut, fn(in))
		return nil
	}, opts...)
}

func square(x int) int { return x * x }

// countingNode wraps a unary node and counts callback invocations.
type countingNode struct {
	*Node
	calls atomic.Int32
}

func newCountingSquare(opts ...NodeOption) *countingNode {
	cn := &countingNode{}
	opts = append([]NodeOption{
		WithInPort(PortInfo{Caption: "in", TypeID: KindInt}),
		WithOutPort(PortInfo{Caption: "out", TypeID: KindInt}),
	}, opts...)
	cn.Node = NewNode("square", func(ctx Context, data DataInterface) error {
		cn.calls.Add(1)
		in, _ := InputData(ctx, data, unaryIn).Data.(int)
		SetOutputData(ctx, data, unaryOut, in*in)
		return nil
	}, opts...)
	return cn
}

// newSinkNode creates a node with a single input and no outputs.
func newSinkNode(policy PortPolicy, opts ...NodeOption) *Node {
	opts = append([]NodeOption{
		WithEvalMode(MainThread),
		WithInPort(PortInfo{Caption: "in", Policy: policy}),
	}, opts...)
	return NewNode("sink", func(Context, DataInterface) error { return nil }, opts...)
}

// newFailingNode creates a node that writes its output and then fails.
func newFailingNode(err error, opts ...NodeOption) *Node {
	opts = append([]NodeOption{
		WithOutPort(PortInfo{Caption: "out", TypeID: KindInt}),
	}, opts...)
	return NewNode("fail", func(ctx Context, data DataInterface) error {
		SetOutputData(ctx, data, 0, 1)
		return err
	}, opts...)
}

// mustAppend appends n to g and fails the test if it is rejected.
func mustAppend(t *testing.T, g *Graph, n *Node) *Node {
	t.Helper()
	_, ok := g.AppendNode(n)
	require.True(t, ok, "append %s", n.Caption())
	return n
}

// mustConnect connects out:outPort to in:inPort in g.
func mustConnect(t *testing.T, g *Graph, out *Node, outPort PortID, in *Node, inPort PortID) ConnectionID {
	t.Helper()
	c, ok := g.AppendConnection(ConnectionID{
		OutNodeID: out.ID(),
		OutPort:   outPort,
		InNodeID:  in.ID(),
		InPort:    inPort,
	})
	require.True(t, ok, "connect %s -> %s", out.Caption(), in.Caption())
	return c
}

// chain is value -> square -> sink.
type chain struct {
	graph *Graph
	a     *valueNode
	b     *Node
	c     *Node
}

func newChain(t *testing.T, v int) chain {
	t.Helper()
	g := NewGraph("chain")
	ch := chain{
		graph: g,
		a:     newValueNode(v),
		b:     newUnaryNode("square", square),
		c:     newSinkNode(Required),
	}
	mustAppend(t, g, ch.a.Node)
	mustAppend(t, g, ch.b)
	mustAppend(t, g, ch.c)
	mustConnect(t, g, ch.a.Node, valueOut, ch.b, unaryIn)
	mustConnect(t, g, ch.b, unaryOut, ch.c, sinkIn)
	return ch
}

// newModel creates an execution model closed at the end of the test.
func newModel(t *testing.T, g *Graph, opts ...Option) *ExecutionModel {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	em := NewExecutionModel(g, opts...)
	t.Cleanup(func() {
		_ = em.Close()
	})
	return em
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordChanges collects the changes observed on g.
func recordChanges(g *Graph) (changes func() []GraphChange, cancel func()) {
	var mu sync.Mutex
	var got []GraphChange
	cancel = g.Observe(func(c GraphChange) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	})
	return func() []GraphChange {
		mu.Lock()
		defer mu.Unlock()
		return append([]GraphChange(nil), got...)
	}, cancel
}

func changeKinds(changes []GraphChange) []GraphChangeKind {
	out := make([]GraphChangeKind, 0, len(changes))
	for _, c := range changes {
		out = append(out, c.Kind)
	}
	return out
}
