package nodes

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
)

// Ports of single-input kinds.
const (
	UnaryIn  nodeflow.PortID = 0
	UnaryOut nodeflow.PortID = 1
)

// ErrTypeMismatch is returned when an input holds a value of the wrong type.
var ErrTypeMismatch = errors.New("input has unexpected type")

// Number is the set of types numeric node kinds operate on.
type Number interface {
	constraints.Integer | constraints.Float
}

// NewUnary creates a node applying fn to a single Required numeric input.
// Inputs of any numeric type are converted to T.
func NewUnary[T Number](caption string, fn func(T) T, opts ...nodeflow.NodeOption) *nodeflow.Node {
	typeID := kindOf[T]()
	opts = append([]nodeflow.NodeOption{
		nodeflow.WithInPort(nodeflow.PortInfo{Caption: "x", TypeID: typeID}),
		nodeflow.WithOutPort(nodeflow.PortInfo{Caption: "y", TypeID: typeID}),
	}, opts...)
	return nodeflow.NewNode(caption, func(ctx nodeflow.Context, data nodeflow.DataInterface) error {
		x, err := toNumber[T](nodeflow.InputData(ctx, data, UnaryIn).Data)
		if err != nil {
			return err
		}
		nodeflow.SetOutputData(ctx, data, UnaryOut, fn(x))
		return nil
	}, opts...)
}

// NewSquare creates a node squaring its input.
func NewSquare[T Number](opts ...nodeflow.NodeOption) *nodeflow.Node {
	opts = append([]nodeflow.NodeOption{nodeflow.WithModelName("Square")}, opts...)
	return NewUnary("Square", func(x T) T { return x * x }, opts...)
}

// NewNegate creates a node negating its input.
func NewNegate[T constraints.Signed | constraints.Float](opts ...nodeflow.NodeOption) *nodeflow.Node {
	opts = append([]nodeflow.NodeOption{nodeflow.WithModelName("Negate")}, opts...)
	return NewUnary("Negate", func(x T) T { return -x }, opts...)
}

func toNumber[T Number](v any) (T, error) {
	switch n := v.(type) {
	case T:
		return n, nil
	case int:
		return T(n), nil
	case int32:
		return T(n), nil
	case int64:
		return T(n), nil
	case uint:
		return T(n), nil
	case uint32:
		return T(n), nil
	case uint64:
		return T(n), nil
	case float32:
		return T(n), nil
	case float64:
		return T(n), nil
	default:
		var zero T
		return zero, fmt.Errorf("%w: %T", ErrTypeMismatch, v)
	}
}

func kindOf[T Number]() string {
	var zero T
	switch any(zero).(type) {
	case float32, float64:
		return nodeflow.KindFloat
	default:
		return nodeflow.KindInt
	}
}
