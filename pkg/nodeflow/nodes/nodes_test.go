package nodes_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/config"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/nodes"
)

// evaluate runs a node in isolation with the given inputs.
func evaluate(t *testing.T, n *nodeflow.Node, inputs map[nodeflow.PortID]any) (*nodeflow.StandaloneData, error) {
	t.Helper()
	sd := nodeflow.NewStandaloneData(n)
	for port, v := range inputs {
		require.True(t, sd.SetNodeData(n.UUID(), port, nodeflow.ValidData(v)))
	}
	return sd, sd.Evaluate(context.Background())
}

func TestConst(t *testing.T) {
	c := nodes.NewConst(2, nodeflow.KindInt)
	assert.Equal(t, nodeflow.MainThread, c.EvalMode())
	assert.Equal(t, "Const", c.ModelName())

	sd, err := evaluate(t, c.Node, nil)
	require.NoError(t, err)
	assert.Equal(t, nodeflow.ValidData(2), sd.NodeData(c.UUID(), nodes.ConstOut))

	c.SetValue(5)
	assert.Equal(t, 5, c.Value())
}

func TestConstChangeNotifiesGraph(t *testing.T) {
	g := nodeflow.NewGraph("g")
	c := nodes.NewConst(1, nodeflow.KindInt)
	_, ok := g.AppendNode(c.Node)
	require.True(t, ok)

	var changes []nodeflow.GraphChange
	cancel := g.Observe(func(ch nodeflow.GraphChange) { changes = append(changes, ch) })
	defer cancel()

	c.SetValue(3)
	require.Len(t, changes, 1)
	assert.Equal(t, nodeflow.NodeChanged, changes[0].Kind)
	assert.Equal(t, c.UUID(), changes[0].Node)
}

func TestUnary(t *testing.T) {
	t.Run("square int", func(t *testing.T) {
		n := nodes.NewSquare[int]()
		sd, err := evaluate(t, n, map[nodeflow.PortID]any{nodes.UnaryIn: 3})
		require.NoError(t, err)
		assert.Equal(t, nodeflow.ValidData(9), sd.NodeData(n.UUID(), nodes.UnaryOut))
	})

	t.Run("converts numeric inputs", func(t *testing.T) {
		n := nodes.NewSquare[float64]()
		sd, err := evaluate(t, n, map[nodeflow.PortID]any{nodes.UnaryIn: 3})
		require.NoError(t, err)
		assert.Equal(t, 9.0, sd.NodeData(n.UUID(), nodes.UnaryOut).Data)
	})

	t.Run("negate", func(t *testing.T) {
		n := nodes.NewNegate[int]()
		sd, err := evaluate(t, n, map[nodeflow.PortID]any{nodes.UnaryIn: 4})
		require.NoError(t, err)
		assert.Equal(t, -4, sd.NodeData(n.UUID(), nodes.UnaryOut).Data)
	})

	t.Run("rejects non-numbers", func(t *testing.T) {
		n := nodes.NewSquare[int]()
		_, err := evaluate(t, n, map[nodeflow.PortID]any{nodes.UnaryIn: "x"})
		require.ErrorIs(t, err, nodes.ErrTypeMismatch)
	})

	t.Run("declares typed ports", func(t *testing.T) {
		n := nodes.NewSquare[float64]()
		in, ok := n.Port(nodes.UnaryIn)
		require.True(t, ok)
		assert.Equal(t, nodeflow.KindFloat, in.TypeID)
		assert.True(t, in.IsRequired())
	})
}

func TestDisplay(t *testing.T) {
	d := nodes.NewDisplay()
	_, err := evaluate(t, d.Node, map[nodeflow.PortID]any{nodes.DisplayIn: "hello"})
	require.NoError(t, err)
	assert.Equal(t, nodeflow.ValidData("hello"), d.Last())
	assert.Equal(t, 1, d.Updates())
}

func TestFormula(t *testing.T) {
	t.Run("evaluates over inputs", func(t *testing.T) {
		f, err := nodes.NewFormula("a * 2 + b", []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, "a * 2 + b", f.Expression())

		sd, err := evaluate(t, f.Node, map[nodeflow.PortID]any{0: 3, 1: 1})
		require.NoError(t, err)
		assert.EqualValues(t, 7, sd.NodeData(f.UUID(), f.Out()).Data)
	})

	t.Run("compile error", func(t *testing.T) {
		_, err := nodes.NewFormula("a +", []string{"a"})
		require.Error(t, err)
	})

	t.Run("runtime error fails the node", func(t *testing.T) {
		f, err := nodes.NewFormula("a.b.c", []string{"a"})
		require.NoError(t, err)
		_, err = evaluate(t, f.Node, map[nodeflow.PortID]any{0: 1})
		require.Error(t, err)
	})
}

func TestJSONQuery(t *testing.T) {
	doc := `{"name":"graph","size":3,"ok":true,"tags":["a","b"]}`
	cases := []struct {
		path string
		want any
	}{
		{"name", "graph"},
		{"size", 3.0},
		{"ok", true},
		{"tags", `["a","b"]`},
		{"tags.1", "b"},
		{"missing", nil},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			n := nodes.NewJSONQuery(tc.path)
			sd, err := evaluate(t, n, map[nodeflow.PortID]any{nodes.UnaryIn: doc})
			require.NoError(t, err)
			assert.Equal(t, tc.want, sd.NodeData(n.UUID(), nodes.UnaryOut).Data)
		})
	}

	t.Run("encodes structured input", func(t *testing.T) {
		n := nodes.NewJSONQuery("a")
		sd, err := evaluate(t, n, map[nodeflow.PortID]any{nodes.UnaryIn: map[string]any{"a": "x"}})
		require.NoError(t, err)
		assert.Equal(t, "x", sd.NodeData(n.UUID(), nodes.UnaryOut).Data)
	})

	t.Run("invalid document", func(t *testing.T) {
		n := nodes.NewJSONQuery("a")
		_, err := evaluate(t, n, map[nodeflow.PortID]any{nodes.UnaryIn: "{not json"})
		require.Error(t, err)
	})
}

func TestFail(t *testing.T) {
	boom := errors.New("boom")
	n := nodes.NewFail(boom)
	sd, err := evaluate(t, n, map[nodeflow.PortID]any{nodes.UnaryIn: 1})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, sd.NodeData(n.UUID(), nodes.UnaryOut).Data, "outputs written before failing are kept")

	_, err = evaluate(t, nodes.NewFail(nil), nil)
	require.ErrorIs(t, err, nodes.ErrAlwaysFails)
}

func TestCatalog(t *testing.T) {
	assert.Equal(t, []string{"Const", "Display", "Fail", "Formula", "JSONQuery", "Negate", "Square"}, nodes.Catalog.Keys())

	n, err := nodes.New("Formula", config.New(map[string]any{
		"expression": "x + 1",
		"vars":       []any{"x"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "Formula", n.ModelName())
	assert.Len(t, n.InPorts(), 1)

	n, err = nodes.New("Const", config.New(map[string]any{"value": 4.0, "type": "float"}))
	require.NoError(t, err)
	out, _ := n.Port(nodes.ConstOut)
	assert.Equal(t, nodeflow.KindFloat, out.TypeID)

	_, err = nodes.New("Nope", config.New(nil))
	require.Error(t, err)

	_, err = nodes.New("Formula", config.New(map[string]any{"expression": "+"}))
	require.Error(t, err)
}

// TestChain evaluates Const -> Square -> Display through an execution model.
func TestChain(t *testing.T) {
	g := nodeflow.NewGraph("chain")
	c := nodes.NewConst(2, nodeflow.KindInt)
	sq := nodes.NewSquare[int]()
	d := nodes.NewDisplay()
	for _, n := range []*nodeflow.Node{c.Node, sq, d.Node} {
		_, ok := g.AppendNode(n)
		require.True(t, ok)
	}
	_, ok := g.AppendConnection(nodeflow.ConnectionID{OutNodeID: c.ID(), OutPort: nodes.ConstOut, InNodeID: sq.ID(), InPort: nodes.UnaryIn})
	require.True(t, ok)
	_, ok = g.AppendConnection(nodeflow.ConnectionID{OutNodeID: sq.ID(), OutPort: nodes.UnaryOut, InNodeID: d.ID(), InPort: nodes.DisplayIn})
	require.True(t, ok)

	em := nodeflow.NewExecutionModel(g)
	defer em.Close()

	require.True(t, em.EvaluateGraph().Wait(time.Second))
	assert.Equal(t, 4, d.Last().Data)

	c.SetValue(5)
	require.Eventually(t, func() bool {
		return em.NodeEvalState(d.UUID()) == nodeflow.EvalOutdated
	}, time.Second, time.Millisecond)
	require.True(t, em.EvaluateGraph().Wait(time.Second))
	assert.Equal(t, 25, d.Last().Data)
}
