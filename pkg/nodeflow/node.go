package nodeflow

import (
	"fmt"
	"slices"
	"sync"
)

// EvalMode declares where and how a node's callback may run.
type EvalMode int

const (
	// MainThread callbacks run inline on the scheduler's coordinating goroutine.
	// Use it for callbacks that touch state shared with the caller.
	MainThread EvalMode = iota

	// Blocking callbacks run synchronously and stall scheduling until done.
	Blocking

	// Exclusive callbacks run on their own goroutine but never concurrently
	// with another Exclusive or ExclusiveDetached node of the same graph.
	Exclusive

	// ExclusiveDetached callbacks have the same exclusivity as Exclusive and
	// are dispatched to the bounded background worker pool.
	ExclusiveDetached

	// ForwardInputsToOutputs runs no user code. It is reserved for group
	// boundary providers which copy their inputs to their outputs.
	ForwardInputsToOutputs
)

// String returns the mode name used in logs and span attributes.
func (m EvalMode) String() string {
	switch m {
	case MainThread:
		return "main_thread"
	case Blocking:
		return "blocking"
	case Exclusive:
		return "exclusive"
	case ExclusiveDetached:
		return "exclusive_detached"
	case ForwardInputsToOutputs:
		return "forward_inputs_to_outputs"
	default:
		return "unknown"
	}
}

// isExclusive reports whether the mode takes part in per-graph exclusion.
func (m EvalMode) isExclusive() bool {
	return m == Exclusive || m == ExclusiveDetached
}

// PortPolicy controls whether a node may evaluate without data on a port.
type PortPolicy int

const (
	// Required inputs must be resolved before the node is dispatched.
	Required PortPolicy = iota
	// Optional inputs may be missing or stale.
	Optional
)

// String returns the policy name.
func (p PortPolicy) String() string {
	if p == Optional {
		return "optional"
	}
	return "required"
}

// PortInfo describes a single port. ID and Type are assigned when the port is
// added to a node.
type PortInfo struct {
	ID   PortID
	Type PortType

	// TypeID is the data-kind tag. Compatibility between tags is decided by
	// an external registry; the core only uses it to decode checkpoints.
	TypeID  string
	Caption string
	Policy  PortPolicy

	// Virtual marks boundary-provider ports that mirror a graph's ports.
	// Virtual ports cannot be connected from inside the graph.
	Virtual bool
}

// IsRequired reports whether the port must be resolved before evaluation.
func (p PortInfo) IsRequired() bool {
	return p.Policy == Required
}

// EvalFunc produces a node's outputs by writing them through data.
// Returning an error marks the node Invalid.
type EvalFunc func(ctx Context, data DataInterface) error

type nodeRole int

const (
	roleRegular nodeRole = iota
	roleGraph
	roleInputProvider
	roleOutputProvider
)

// Node is a unit of computation with ordered input and output ports.
// A Node is owned by at most one Graph; Graph() is a non-owning back reference.
type Node struct {
	mu sync.RWMutex

	id        NodeID
	uuid      NodeUUID
	caption   string
	modelName string
	mode      EvalMode
	eval      EvalFunc

	inPorts    []PortInfo
	outPorts   []PortInfo
	nextPortID PortID

	graph    *Graph // parent, nil while unowned
	subgraph *Graph // set when the node presents a graph to its parent
	role     nodeRole
}

// NodeOption configures a Node at construction.
type NodeOption func(*Node)

// WithEvalMode sets the node's evaluation mode. Default: Exclusive.
func WithEvalMode(mode EvalMode) NodeOption {
	return func(n *Node) {
		n.mode = mode
	}
}

// WithModelName sets the model (kind) name of the node.
func WithModelName(name string) NodeOption {
	return func(n *Node) {
		n.modelName = name
	}
}

// WithNodeUUID sets a fixed uuid instead of a generated one.
func WithNodeUUID(uuid NodeUUID) NodeOption {
	return func(n *Node) {
		if uuid.IsValid() {
			n.uuid = uuid
		}
	}
}

// WithNodeID requests a specific id. AppendNode fails if it is taken.
func WithNodeID(id NodeID) NodeOption {
	return func(n *Node) {
		n.id = id
	}
}

// WithInPort adds an input port at construction.
func WithInPort(info PortInfo) NodeOption {
	return func(n *Node) {
		n.addPortLocked(PortIn, info)
	}
}

// WithOutPort adds an output port at construction.
func WithOutPort(info PortInfo) NodeOption {
	return func(n *Node) {
		n.addPortLocked(PortOut, info)
	}
}

// NewNode creates an unowned node. eval may be nil for nodes that only
// forward data; dispatching such a node in a user mode fails it.
func NewNode(caption string, eval EvalFunc, opts ...NodeOption) *Node {
	n := &Node{
		id:        InvalidNodeID,
		uuid:      NewNodeUUID(),
		caption:   caption,
		modelName: caption,
		mode:      Exclusive,
		eval:      eval,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ID returns the node id, InvalidNodeID while the node is unowned and no id
// was requested.
func (n *Node) ID() NodeID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.id
}

// UUID returns the node's stable uuid.
func (n *Node) UUID() NodeUUID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.uuid
}

// Caption returns the display caption.
func (n *Node) Caption() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.caption
}

// SetCaption changes the display caption.
func (n *Node) SetCaption(caption string) {
	n.mu.Lock()
	n.caption = caption
	n.mu.Unlock()
}

// ModelName returns the node kind name.
func (n *Node) ModelName() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.modelName
}

// EvalMode returns the declared evaluation mode.
func (n *Node) EvalMode() EvalMode {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.mode
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	return fmt.Sprintf("Node#%d(%s)", n.ID(), n.Caption())
}

// Graph returns the owning graph, or nil.
func (n *Node) Graph() *Graph {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.graph
}

// Subgraph returns the graph this node presents, or nil for ordinary nodes.
func (n *Node) Subgraph() *Graph {
	return n.subgraph
}

// IsGraph reports whether the node presents a nested graph.
func (n *Node) IsGraph() bool {
	return n.role == roleGraph
}

// IsProvider reports whether the node is a group boundary provider.
func (n *Node) IsProvider() bool {
	return n.role == roleInputProvider || n.role == roleOutputProvider
}

// Ports returns a copy of the ports of one direction in order.
func (n *Node) Ports(t PortType) []PortInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	switch t {
	case PortIn:
		return slices.Clone(n.inPorts)
	case PortOut:
		return slices.Clone(n.outPorts)
	default:
		return nil
	}
}

// InPorts returns the input ports in order.
func (n *Node) InPorts() []PortInfo {
	return n.Ports(PortIn)
}

// OutPorts returns the output ports in order.
func (n *Node) OutPorts() []PortInfo {
	return n.Ports(PortOut)
}

// Port looks up a port by id.
func (n *Node) Port(id PortID) (PortInfo, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if p := n.findPortLocked(id); p != nil {
		return *p, true
	}
	return PortInfo{}, false
}

// PortType returns the direction of a port, NoPortType if it does not exist.
func (n *Node) PortType(id PortID) PortType {
	p, ok := n.Port(id)
	if !ok {
		return NoPortType
	}
	return p.Type
}

// PortIndex returns the position of a port within its direction.
func (n *Node) PortIndex(t PortType, id PortID) PortIndex {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for i, p := range n.portsLocked(t) {
		if p.ID == id {
			return PortIndex(i)
		}
	}
	return InvalidPortIndex
}

// PortID returns the id of the port at idx.
func (n *Node) PortID(t PortType, idx PortIndex) PortID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ports := n.portsLocked(t)
	if !idx.IsValid() || int(idx) >= len(ports) {
		return InvalidPortID
	}
	return ports[idx].ID
}

// AddInPort appends an input port and returns its id.
func (n *Node) AddInPort(info PortInfo) PortID {
	return n.addPort(PortIn, info)
}

// AddOutPort appends an output port and returns its id.
func (n *Node) AddOutPort(info PortInfo) PortID {
	return n.addPort(PortOut, info)
}

// DeletePort removes a port. Connections touching it are removed first when
// the node is owned by a graph. Returns false if the port does not exist.
func (n *Node) DeletePort(id PortID) bool {
	if g := n.Graph(); g != nil {
		return g.deleteNodePort(n, id)
	}
	return n.removePort(id)
}

// NotifyChanged tells the owning graph that an evaluation-relevant property
// of the node changed (for example a constant's value). Observers such as
// the execution model react by invalidating the node.
func (n *Node) NotifyChanged() {
	if g := n.Graph(); g != nil {
		g.emit(GraphChange{Kind: NodeChanged, Node: n.UUID(), NodeID: n.ID()})
	}
}

func (n *Node) addPort(t PortType, info PortInfo) PortID {
	n.mu.Lock()
	id := n.addPortLocked(t, info)
	g := n.graph
	n.mu.Unlock()

	if g != nil {
		g.emit(GraphChange{Kind: PortInserted, Node: n.UUID(), NodeID: n.ID(), Port: id})
	}
	return id
}

func (n *Node) addPortLocked(t PortType, info PortInfo) PortID {
	info.ID = n.nextPortID
	info.Type = t
	n.nextPortID++
	if t == PortIn {
		n.inPorts = append(n.inPorts, info)
	} else {
		n.outPorts = append(n.outPorts, info)
	}
	return info.ID
}

func (n *Node) removePort(id PortID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if i := slices.IndexFunc(n.inPorts, func(p PortInfo) bool { return p.ID == id }); i >= 0 {
		n.inPorts = slices.Delete(n.inPorts, i, i+1)
		return true
	}
	if i := slices.IndexFunc(n.outPorts, func(p PortInfo) bool { return p.ID == id }); i >= 0 {
		n.outPorts = slices.Delete(n.outPorts, i, i+1)
		return true
	}
	return false
}

func (n *Node) portsLocked(t PortType) []PortInfo {
	switch t {
	case PortIn:
		return n.inPorts
	case PortOut:
		return n.outPorts
	default:
		return nil
	}
}

func (n *Node) findPortLocked(id PortID) *PortInfo {
	for i := range n.inPorts {
		if n.inPorts[i].ID == id {
			return &n.inPorts[i]
		}
	}
	for i := range n.outPorts {
		if n.outPorts[i].ID == id {
			return &n.outPorts[i]
		}
	}
	return nil
}

func (n *Node) evalFunc() EvalFunc {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.eval
}
