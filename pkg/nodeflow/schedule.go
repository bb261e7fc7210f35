package nodeflow

import (
	"errors"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/event"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
)

// schedule dispatches every ready node until no more progress is possible,
// then resolves watchers. It runs after each batch of mailbox messages.
func (em *ExecutionModel) schedule() {
	if em.closed {
		return
	}
	for {
		need := em.needed()
		progress := false
		em.graph.walk(func(n *Node) {
			if n.role == roleGraph || (need != nil && !need[n]) {
				return
			}
			it := em.data.item(n)
			if it.state != EvalOutdated || it.paused {
				return
			}
			ready, err := em.readiness(n)
			switch {
			case err != nil:
				em.fail(n, err)
				progress = true
			case !ready:
			case n.EvalMode().isExclusive() && em.busy[n.Graph()]:
			default:
				em.dispatch(n)
				progress = true
			}
		})
		if !progress {
			break
		}
	}
	em.resolveWatchers()
}

// needed returns the nodes pending requests depend on, nil when every node
// is needed.
func (em *ExecutionModel) needed() map[*Node]bool {
	if em.auto {
		return nil
	}
	need := make(map[*Node]bool)
	var queue []*Node
	enqueue := func(u NodeUUID) {
		if n := em.graph.FindNodeByUUID(u); n != nil && !need[n] {
			need[n] = true
			queue = append(queue, n)
		}
	}
	for u := range em.pending {
		enqueue(u)
	}
	for _, w := range em.watchers {
		for _, u := range w.targets {
			enqueue(u)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, up := range upstreamOf(n) {
			if !need[up] {
				need[up] = true
				queue = append(queue, up)
			}
		}
	}
	return need
}

// readiness decides whether n can be dispatched. A non-nil error means n can
// never run with its current inputs and must fail.
func (em *ExecutionModel) readiness(n *Node) (bool, error) {
	ready := true
	for _, p := range n.InPorts() {
		ref, connected := sourceOf(n, p.ID)
		if !connected {
			d := em.data.portData(ref.node, ref.port, ref.side)
			if p.IsRequired() && (!d.IsValid() || d.Data == nil) {
				return false, unresolvedInput(n.UUID(), p.ID)
			}
			continue
		}

		src := em.data.item(ref.node)
		switch {
		case src.state == EvalInvalid:
			if p.IsRequired() {
				return false, upstreamFailed(n.UUID(), p.ID)
			}
		case src.state == EvalValid && em.data.portData(ref.node, ref.port, PortOut).IsValid():
		case src.paused:
			if p.IsRequired() {
				ready = false
			}
		default:
			ready = false
		}
	}
	return ready, nil
}

// dispatch hands n to the executor.
func (em *ExecutionModel) dispatch(n *Node) {
	it := em.data.item(n)
	em.nextToken++
	it.token = em.nextToken
	it.dirty = false
	it.err = nil

	for _, p := range n.InPorts() {
		ref, _ := sourceOf(n, p.ID)
		if ref.node != n {
			em.data.setPortData(n, p.ID, PortIn, em.data.portData(ref.node, ref.port, ref.side))
		}
	}

	graphs := graphsOf(n)
	if n.role == roleInputProvider {
		g := graphs[0]
		for _, pair := range g.pairs(PortIn) {
			em.data.setPortData(g.node, pair.Graph, PortIn, em.data.portData(n, pair.Virtual, PortIn))
		}
	}

	mode := n.EvalMode()
	if mode.isExclusive() {
		em.busy[graphs[0]] = true
	}
	for _, g := range graphs {
		gi := em.data.item(g.node)
		gi.running++
		if gi.state == EvalOutdated {
			em.setState(g.node, gi, EvalEvaluating)
		}
	}
	em.setState(n, it, EvalEvaluating)

	req := evalRequest{
		node:   n,
		token:  it.token,
		mode:   mode,
		inputs: it.inputSnapshot(),
		outs:   n.OutPorts(),
		graphs: graphs,
	}
	if mode == ForwardInputsToOutputs {
		req.forward = graphs[0].forwardMap(n)
	}
	if res, ok := em.exec.execute(req); ok {
		em.complete(res)
	}
}

// complete applies a finished evaluation. Results of superseded dispatches
// only release the resources they held.
func (em *ExecutionModel) complete(res evalResult) {
	req := res.req
	n := req.node

	if req.mode.isExclusive() && len(req.graphs) > 0 {
		delete(em.busy, req.graphs[0])
	}
	for _, g := range req.graphs {
		gi, ok := em.data.lookup(g.UUID())
		if !ok || gi.running == 0 {
			continue
		}
		gi.running--
		if gi.running == 0 && gi.state == EvalEvaluating {
			em.setState(g.node, gi, em.settledGraphState(g))
		}
	}

	it, ok := em.data.lookup(n.UUID())
	if !ok || it.token != req.token || it.state != EvalEvaluating {
		return
	}

	if it.dirty {
		it.dirty = false
		for port, d := range res.outputs {
			d.State = Outdated
			em.data.setPortData(n, port, PortOut, d)
		}
		em.setState(n, it, EvalOutdated)
		return
	}

	if res.err != nil {
		for port, d := range res.outputs {
			em.data.setPortData(n, port, PortOut, d)
		}
		em.fail(n, res.err)
		return
	}

	for _, p := range req.outs {
		d := res.outputs[p.ID]
		d.State = Valid
		if em.data.setPortData(n, p.ID, PortOut, d) {
			publish(em, event.TypeDataChanged, event.DataChanged{
				NodeUUID: string(n.UUID()),
				Port:     uint32(p.ID),
				Output:   true,
				Valid:    true,
			})
		}
	}
	em.setState(n, it, EvalValid)

	if n.role == roleOutputProvider {
		g := req.graphs[0]
		gi := em.data.item(g.node)
		for _, pair := range g.pairs(PortOut) {
			em.data.setPortData(g.node, pair.Graph, PortOut, em.data.portData(n, pair.Virtual, PortOut))
		}
		gi.err = nil
		em.setState(g.node, gi, EvalValid)
	}

	if !n.IsProvider() {
		publish(em, event.TypeNodeEvaluated, event.NodeEvaluated{
			NodeUUID:   string(n.UUID()),
			Caption:    n.Caption(),
			DurationMs: float64(res.duration.Microseconds()) / 1000,
		})
	}
	if err := em.saveCheckpoint(n); err != nil {
		em.fail(n, err)
	}
}

// settledGraphState is the state of a graph node once nothing inside it
// runs: Valid when its output provider holds a current result.
func (em *ExecutionModel) settledGraphState(g *Graph) NodeEvalState {
	if out, ok := em.data.lookup(g.output.UUID()); ok && out.state == EvalValid && !out.paused {
		return EvalValid
	}
	return EvalOutdated
}

// fail marks n Invalid and propagates the failure to dependents whose
// Required inputs it feeds.
func (em *ExecutionModel) fail(n *Node, err error) {
	it := em.data.item(n)
	it.err = err
	it.dirty = false
	em.setState(n, it, EvalInvalid)

	// The executor already logged failures of the callback itself.
	var nodeErr *NodeError
	var panicErr *PanicError
	if !errors.As(err, &panicErr) && (!errors.As(err, &nodeErr) || nodeErr.Op != "evaluate") {
		observability.LogNodeInvalidated(em.cfg.logger, string(n.UUID()), err)
	}
	publish(em, event.TypeNodeFailed, event.NodeFailed{
		NodeUUID: string(n.UUID()),
		Caption:  n.Caption(),
		Error:    err.Error(),
	})

	if n.role == roleOutputProvider {
		g := n.Graph()
		gi := em.data.item(g.node)
		if gi.state != EvalInvalid {
			gi.err = err
			em.setState(g.node, gi, EvalInvalid)
			em.propagateFailure(g.node)
		}
	}
	em.propagateFailure(n)
}

func (em *ExecutionModel) propagateFailure(n *Node) {
	for _, d := range dependentsOf(n) {
		// fail already handled the graph node of a failed output provider.
		if d.role == roleGraph {
			if d = boundaryFeeds(n, d); d.role == roleGraph {
				continue
			}
		}
		em.failIfBlocked(d)
	}
}

// failIfBlocked fails an Outdated node if a Required input is fed by an
// Invalid node.
func (em *ExecutionModel) failIfBlocked(n *Node) {
	it := em.data.item(n)
	if it.state != EvalOutdated {
		return
	}
	for _, p := range n.InPorts() {
		if !p.IsRequired() {
			continue
		}
		ref, connected := sourceOf(n, p.ID)
		if !connected {
			continue
		}
		if em.data.item(ref.node).state == EvalInvalid {
			em.fail(n, upstreamFailed(n.UUID(), p.ID))
			return
		}
	}
}

// invalidate marks n and everything reachable downstream Outdated. A graph
// node is invalidated as a whole: its contents are recomputed from both
// providers.
func (em *ExecutionModel) invalidate(n *Node) {
	seen := make(map[*Node]bool)
	if n.role == roleGraph {
		em.invalidateFrom(n.subgraph.output, seen)
		em.invalidateFrom(n.subgraph.input, seen)
	}
	em.invalidateFrom(n, seen)
}

// invalidateDependents invalidates what n feeds but not n itself.
func (em *ExecutionModel) invalidateDependents(n *Node) {
	seen := map[*Node]bool{n: true}
	for _, d := range dependentsOf(n) {
		em.invalidateFrom(boundaryFeeds(n, d), seen)
	}
}

func (em *ExecutionModel) invalidateFrom(n *Node, seen map[*Node]bool) {
	if seen[n] {
		return
	}
	seen[n] = true

	it := em.data.item(n)
	it.err = nil
	it.outdateOutputs()
	switch {
	case n.role == roleGraph:
		if it.running > 0 {
			em.setState(n, it, EvalEvaluating)
		} else {
			em.setState(n, it, EvalOutdated)
		}
	case it.state == EvalEvaluating:
		it.dirty = true
	default:
		em.setState(n, it, EvalOutdated)
	}

	for _, d := range dependentsOf(n) {
		em.invalidateFrom(boundaryFeeds(n, d), seen)
	}
}

// onGraphChange reacts to a structural change of the graph.
func (em *ExecutionModel) onGraphChange(c GraphChange) {
	switch c.Kind {
	case NodeAppended:
		if n := em.graph.FindNodeByUUID(c.Node); n != nil {
			em.invalidate(n)
		}
	case NodeDeleted:
		em.prune()
	case ConnectionAppended, ConnectionDeleted:
		n := em.graph.FindNodeByUUID(c.Connection.InNodeID)
		if n == nil {
			return
		}
		em.data.setPortData(n, c.Connection.InPort, PortIn, NodeDataSet{})
		em.invalidate(boundaryFeeds(nil, n))
	case PortInserted, PortDeleted, NodeChanged:
		n := em.graph.FindNodeByUUID(c.Node)
		if n == nil {
			return
		}
		em.data.syncPorts(n, em.data.item(n))
		em.invalidate(n)
	}
}

// prune drops data of nodes that left the graph.
func (em *ExecutionModel) prune() {
	live := make(map[NodeUUID]bool)
	for _, u := range collectUUIDs(em.graph.node) {
		live[u] = true
	}
	for u := range em.data.items {
		if !live[u] {
			em.data.remove(u)
			delete(em.pending, u)
		}
	}
}
