package nodeflow

import (
	"slices"
)

// portData is the stored value of a single port.
type portData struct {
	port PortID
	data NodeDataSet
}

// dataItem holds everything the scheduler tracks for one node.
type dataItem struct {
	inputs  []portData
	outputs []portData

	state  NodeEvalState
	paused bool

	// dirty is set when the node is invalidated while its callback runs;
	// the result is then committed as Outdated.
	dirty bool

	// token identifies the current dispatch so stale results are dropped.
	token uint64

	// running counts dispatched nodes nested in a graph node.
	running int

	err error
}

// dataModel stores port data keyed by node uuid. It is owned by the
// coordinating goroutine of an ExecutionModel and is not safe for concurrent
// use.
type dataModel struct {
	items map[NodeUUID]*dataItem
}

func newDataModel() *dataModel {
	return &dataModel{items: make(map[NodeUUID]*dataItem)}
}

// item returns the item of n, creating an Outdated one on first use.
func (d *dataModel) item(n *Node) *dataItem {
	u := n.UUID()
	it, ok := d.items[u]
	if !ok {
		it = &dataItem{state: EvalOutdated}
		d.items[u] = it
		d.syncPorts(n, it)
	}
	return it
}

// lookup returns the item of a node uuid without creating one.
func (d *dataModel) lookup(u NodeUUID) (*dataItem, bool) {
	it, ok := d.items[u]
	return it, ok
}

// syncPorts aligns stored ports with the node's current ports, keeping data
// of ports that still exist.
func (d *dataModel) syncPorts(n *Node, it *dataItem) {
	it.inputs = alignPorts(it.inputs, n.InPorts())
	it.outputs = alignPorts(it.outputs, n.OutPorts())
}

func alignPorts(existing []portData, ports []PortInfo) []portData {
	out := make([]portData, 0, len(ports))
	for _, p := range ports {
		pd := portData{port: p.ID}
		if i := slices.IndexFunc(existing, func(e portData) bool { return e.port == p.ID }); i >= 0 {
			pd = existing[i]
		}
		out = append(out, pd)
	}
	return out
}

// remove drops the item of a node.
func (d *dataModel) remove(u NodeUUID) {
	delete(d.items, u)
}

// portData returns the data of a port on side t, {nil, Outdated} if unknown.
func (d *dataModel) portData(n *Node, port PortID, t PortType) NodeDataSet {
	if p := d.port(d.item(n), port, t); p != nil {
		return p.data
	}
	return NodeDataSet{}
}

// setPortData writes a port on side t. Returns false for unknown ports.
func (d *dataModel) setPortData(n *Node, port PortID, t PortType, data NodeDataSet) bool {
	it := d.item(n)
	p := d.port(it, port, t)
	if p == nil {
		// The node may have gained the port since the item was created.
		d.syncPorts(n, it)
		if p = d.port(it, port, t); p == nil {
			return false
		}
	}
	p.data = data
	return true
}

func (d *dataModel) port(it *dataItem, port PortID, t PortType) *portData {
	list := it.inputs
	if t == PortOut {
		list = it.outputs
	}
	for i := range list {
		if list[i].port == port {
			return &list[i]
		}
	}
	return nil
}

// outdateOutputs marks every output Outdated, keeping the data.
func (it *dataItem) outdateOutputs() {
	for i := range it.outputs {
		it.outputs[i].data.State = Outdated
	}
}

// visibleState is the state reported to callers.
func (it *dataItem) visibleState() NodeEvalState {
	if it.paused && it.state != EvalEvaluating {
		return EvalPaused
	}
	return it.state
}

// inputSnapshot copies the stored inputs for a callback.
func (it *dataItem) inputSnapshot() map[PortID]NodeDataSet {
	out := make(map[PortID]NodeDataSet, len(it.inputs))
	for _, p := range it.inputs {
		out[p.port] = p.data
	}
	return out
}
