package nodes

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
)

// Formula evaluates an expr-lang expression over its inputs. Each variable
// name becomes an input port, in order, and the result is written to the
// single output port following them.
//
// Example:
//
//	f, err := nodes.NewFormula("a * 2 + b", []string{"a", "b"})
//	// inputs: port 0 "a", port 1 "b"; output: f.Out()
type Formula struct {
	*nodeflow.Node

	expression string
	vars       []string
	program    *vm.Program
	out        nodeflow.PortID
}

// NewFormula compiles expression and creates the node. Unconnected
// variables without data evaluate as nil, so inputs are Optional.
func NewFormula(expression string, vars []string, opts ...nodeflow.NodeOption) (*Formula, error) {
	env := make(map[string]any, len(vars))
	for _, v := range vars {
		env[v] = nil
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile formula %q: %w", expression, err)
	}

	f := &Formula{expression: expression, vars: vars, program: program}
	base := []nodeflow.NodeOption{nodeflow.WithModelName("Formula")}
	for _, v := range vars {
		base = append(base, nodeflow.WithInPort(nodeflow.PortInfo{Caption: v, TypeID: nodeflow.KindJSON, Policy: nodeflow.Optional}))
	}
	base = append(base, nodeflow.WithOutPort(nodeflow.PortInfo{Caption: "result", TypeID: nodeflow.KindJSON}))
	f.Node = nodeflow.NewNode("Formula", f.evaluate, append(base, opts...)...)
	f.out = f.PortID(nodeflow.PortOut, 0)
	return f, nil
}

// Expression returns the source expression.
func (f *Formula) Expression() string {
	return f.expression
}

// Out returns the output port.
func (f *Formula) Out() nodeflow.PortID {
	return f.out
}

func (f *Formula) evaluate(ctx nodeflow.Context, data nodeflow.DataInterface) error {
	env := make(map[string]any, len(f.vars))
	for i, v := range f.vars {
		port := f.PortID(nodeflow.PortIn, nodeflow.PortIndex(i))
		env[v] = nodeflow.InputData(ctx, data, port).Data
	}
	result, err := expr.Run(f.program, env)
	if err != nil {
		return fmt.Errorf("run formula %q: %w", f.expression, err)
	}
	nodeflow.SetOutputData(ctx, data, f.out, result)
	return nil
}
