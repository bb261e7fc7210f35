package nodeflow

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// NodeID identifies a node within a single graph instance.
// Ids are dense and assigned by Graph.AppendNode.
type NodeID uint32

// InvalidNodeID is returned wherever a node could not be resolved.
const InvalidNodeID NodeID = math.MaxUint32

// IsValid reports whether id is not the invalid sentinel.
func (id NodeID) IsValid() bool {
	return id != InvalidNodeID
}

// NodeUUID identifies a node globally. Unlike NodeID it stays stable when a
// node is moved between graphs, which is why the scheduler and data store are
// keyed by it.
type NodeUUID string

// NewNodeUUID generates a random node uuid.
func NewNodeUUID() NodeUUID {
	return NodeUUID(uuid.NewString())
}

// IsValid reports whether u is non-empty.
func (u NodeUUID) IsValid() bool {
	return u != ""
}

// PortID identifies a port within the lifetime of its node.
// Port ids are never reused while the node exists.
type PortID uint32

// InvalidPortID marks an unknown port.
const InvalidPortID PortID = math.MaxUint32

// IsValid reports whether id is not the invalid sentinel.
func (id PortID) IsValid() bool {
	return id != InvalidPortID
}

// PortIndex is the position of a port in its node's ordered in or out list.
type PortIndex uint32

// InvalidPortIndex marks an unknown port position.
const InvalidPortIndex PortIndex = math.MaxUint32

// IsValid reports whether idx is not the invalid sentinel.
func (idx PortIndex) IsValid() bool {
	return idx != InvalidPortIndex
}

// PortType is the direction of a port.
type PortType int

const (
	// NoPortType is returned for ports that do not exist.
	NoPortType PortType = iota
	// PortIn consumes data.
	PortIn
	// PortOut produces data.
	PortOut
)

// String returns the direction name.
func (t PortType) String() string {
	switch t {
	case PortIn:
		return "in"
	case PortOut:
		return "out"
	default:
		return "none"
	}
}

// Inverse returns the opposite direction.
func (t PortType) Inverse() PortType {
	switch t {
	case PortIn:
		return PortOut
	case PortOut:
		return PortIn
	default:
		return NoPortType
	}
}

// ConnectionID addresses a connection by the node ids of one graph.
type ConnectionID struct {
	OutNodeID NodeID
	OutPort   PortID
	InNodeID  NodeID
	InPort    PortID
}

// InvalidConnectionID is returned by failed connection lookups.
var InvalidConnectionID = ConnectionID{
	OutNodeID: InvalidNodeID,
	OutPort:   InvalidPortID,
	InNodeID:  InvalidNodeID,
	InPort:    InvalidPortID,
}

// IsValid reports whether all ids are set and the connection is not a self loop.
// It does not check that the referenced ports exist.
func (c ConnectionID) IsValid() bool {
	return c.OutNodeID.IsValid() && c.InNodeID.IsValid() &&
		c.OutPort.IsValid() && c.InPort.IsValid() &&
		c.OutNodeID != c.InNodeID
}

// Node returns the node id on the given side of the connection.
func (c ConnectionID) Node(t PortType) NodeID {
	switch t {
	case PortOut:
		return c.OutNodeID
	case PortIn:
		return c.InNodeID
	default:
		return InvalidNodeID
	}
}

// Port returns the port id on the given side of the connection.
func (c ConnectionID) Port(t PortType) PortID {
	switch t {
	case PortOut:
		return c.OutPort
	case PortIn:
		return c.InPort
	default:
		return InvalidPortID
	}
}

// String formats the connection as "out:port->in:port".
func (c ConnectionID) String() string {
	return fmt.Sprintf("%d:%d->%d:%d", c.OutNodeID, c.OutPort, c.InNodeID, c.InPort)
}

// ConnectionUUID is the uuid-addressed equivalent of ConnectionID. It stays
// meaningful across graphs and is used for cross-graph references.
type ConnectionUUID struct {
	OutNodeID NodeUUID
	OutPort   PortID
	InNodeID  NodeUUID
	InPort    PortID
}

// IsValid reports whether both node uuids and port ids are set.
func (c ConnectionUUID) IsValid() bool {
	return c.OutNodeID.IsValid() && c.InNodeID.IsValid() &&
		c.OutPort.IsValid() && c.InPort.IsValid() &&
		c.OutNodeID != c.InNodeID
}
