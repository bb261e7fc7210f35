package event

// Event types emitted by the execution model.
const (
	TypeDataChanged   = "data.changed"
	TypeNodeEvaluated = "node.evaluated"
	TypeNodeFailed    = "node.failed"
	TypeStateChanged  = "node.state_changed"
)

// Source is the source of every event emitted by the execution model.
const Source = "nodeflow"

// DataChanged reports a write to a port.
type DataChanged struct {
	NodeUUID string `json:"node_uuid"`
	Port     uint32 `json:"port"`
	Output   bool   `json:"output"`
	Valid    bool   `json:"valid"`
}

// NodeEvaluated reports a successful evaluation.
type NodeEvaluated struct {
	NodeUUID   string  `json:"node_uuid"`
	Caption    string  `json:"caption"`
	DurationMs float64 `json:"duration_ms"`
}

// NodeFailed reports a node turning Invalid.
type NodeFailed struct {
	NodeUUID string `json:"node_uuid"`
	Caption  string `json:"caption"`
	Error    string `json:"error"`
}

// StateChanged reports an evaluation state transition.
type StateChanged struct {
	NodeUUID string `json:"node_uuid"`
	From     string `json:"from"`
	To       string `json:"to"`
}
