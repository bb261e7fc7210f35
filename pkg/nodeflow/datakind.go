package nodeflow

import (
	"bytes"
	"encoding/json"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/registry"
)

// DecodeFunc turns a checkpointed JSON value back into port data.
type DecodeFunc func(raw json.RawMessage) (any, error)

// Built-in data kinds, usable as PortInfo.TypeID.
const (
	KindInt    = "int"
	KindFloat  = "float"
	KindString = "string"
	KindBool   = "bool"
	KindJSON   = "json"
)

// DataKinds maps PortInfo.TypeID to the decoder used when restoring
// checkpoints. Unknown or empty type ids decode as generic JSON.
//
// Example:
//
//	nodeflow.DataKinds.Register("point", nodeflow.DecodeAs[Point])
var DataKinds = registry.New[string, DecodeFunc]()

func init() {
	DataKinds.Register(KindInt, DecodeAs[int])
	DataKinds.Register(KindFloat, DecodeAs[float64])
	DataKinds.Register(KindString, DecodeAs[string])
	DataKinds.Register(KindBool, DecodeAs[bool])
	DataKinds.Register(KindJSON, DecodeAs[any])
}

// DecodeAs decodes raw into a T. JSON null decodes to a nil value.
func DecodeAs[T any](raw json.RawMessage) (any, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeData decodes raw with the decoder registered for typeID.
func decodeData(typeID string, raw json.RawMessage) (any, error) {
	decode, ok := DataKinds.Get(typeID)
	if !ok {
		decode = DecodeAs[any]
	}
	return decode(raw)
}
