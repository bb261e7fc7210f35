package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the current checkpoint format version.
const Version = 1

// Checkpoint is the persisted result of one successful node evaluation.
type Checkpoint struct {
	Version   int       `json:"version"`
	GraphID   string    `json:"graph_id"`
	NodeID    string    `json:"node_id"`
	Model     string    `json:"model,omitempty"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	Outputs []PortOutput `json:"outputs"`
}

// PortOutput is the encoded value of one output port.
type PortOutput struct {
	Port   uint32          `json:"port"`
	TypeID string          `json:"type_id,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// New creates a checkpoint for a node of a graph.
func New(graphID, nodeID, model string, sequence int) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		GraphID:   graphID,
		NodeID:    nodeID,
		Model:     model,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
	}
}

// AddOutput encodes v as JSON and appends it as the value of port.
func (c *Checkpoint) AddOutput(port uint32, typeID string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode port %d: %w", port, err)
	}
	c.Outputs = append(c.Outputs, PortOutput{Port: port, TypeID: typeID, Data: raw})
	return nil
}

// Marshal serializes the checkpoint.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint and checks its version.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, c.Version, Version)
	}
	return &c, nil
}
