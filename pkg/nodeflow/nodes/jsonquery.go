package nodes

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
)

// NewJSONQuery creates a node extracting a value from a JSON document with
// a gjson path. The input may be a string, a byte slice or any value that
// encodes to JSON. Strings, numbers and booleans come out as string,
// float64 and bool; objects and arrays as their raw JSON text. A path
// without a match yields nil.
func NewJSONQuery(path string, opts ...nodeflow.NodeOption) *nodeflow.Node {
	opts = append([]nodeflow.NodeOption{
		nodeflow.WithModelName("JSONQuery"),
		nodeflow.WithInPort(nodeflow.PortInfo{Caption: "document", TypeID: nodeflow.KindJSON}),
		nodeflow.WithOutPort(nodeflow.PortInfo{Caption: path, TypeID: nodeflow.KindJSON}),
	}, opts...)
	return nodeflow.NewNode("JSONQuery", func(ctx nodeflow.Context, data nodeflow.DataInterface) error {
		doc, err := documentBytes(nodeflow.InputData(ctx, data, UnaryIn).Data)
		if err != nil {
			return err
		}
		if !gjson.ValidBytes(doc) {
			return fmt.Errorf("query %q: invalid JSON document", path)
		}

		res := gjson.GetBytes(doc, path)
		var out any
		switch res.Type {
		case gjson.String:
			out = res.String()
		case gjson.Number:
			out = res.Float()
		case gjson.True, gjson.False:
			out = res.Bool()
		case gjson.JSON:
			out = res.Raw
		}
		nodeflow.SetOutputData(ctx, data, UnaryOut, out)
		return nil
	}, opts...)
}

func documentBytes(v any) ([]byte, error) {
	switch d := v.(type) {
	case string:
		return []byte(d), nil
	case []byte:
		return d, nil
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("%w: %T", ErrTypeMismatch, v)
		}
		return b, nil
	}
}
