package nodeflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/event"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
)

// errTargetsFailed ends request spans whose targets did not all turn Valid.
var errTargetsFailed = errors.New("evaluation targets not valid")

// ExecutionModel schedules the evaluation of a graph.
//
// A single coordinating goroutine owns all port data and evaluation state.
// Public methods post to it and wait for the answer, so they are safe for
// concurrent use but must not be called synchronously from node callbacks.
// Structural graph changes are picked up through Graph.Observe.
//
// Example:
//
//	em := nodeflow.NewExecutionModel(graph, nodeflow.WithLogger(logger))
//	defer em.Close()
//
//	if em.EvaluateGraph().Wait(time.Second) {
//	    out := em.NodeData(display.UUID(), in)
//	}
type ExecutionModel struct {
	graph *Graph
	cfg   modelConfig

	ctx    context.Context
	cancel context.CancelFunc

	box       *mailbox
	exec      *nodeExecutor
	unobserve func()

	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	// Owned by the coordinating goroutine.
	data        *dataModel
	auto        bool
	closed      bool
	busy        map[*Graph]bool
	pending     map[NodeUUID]bool
	watchers    map[uint64]*watcher
	nextWatcher uint64
	nextToken   uint64
	sequence    int
}

// watcher is resolved once every target is Valid or one is Invalid.
type watcher struct {
	targets []NodeUUID
	resolve func(ok bool)
}

// NewExecutionModel starts a scheduler for graph, normally a root graph.
// Call Close to stop it.
func NewExecutionModel(graph *Graph, opts ...Option) *ExecutionModel {
	if graph == nil {
		panic("nodeflow: NewExecutionModel called with nil graph")
	}
	cfg := defaultModelConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.metricsEnabled {
		cfg.metrics = observability.NewMetricsRecorder()
	}
	if cfg.tracingEnabled {
		cfg.spans = observability.NewSpanManager()
	}

	ctx, cancel := context.WithCancel(cfg.baseCtx)
	em := &ExecutionModel{
		graph:    graph,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		box:      newMailbox(),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		data:     newDataModel(),
		auto:     cfg.autoEvaluate,
		busy:     make(map[*Graph]bool),
		pending:  make(map[NodeUUID]bool),
		watchers: make(map[uint64]*watcher),
	}
	em.exec = newNodeExecutor(ctx, &em.cfg, func(res evalResult) {
		em.box.post(func() { em.complete(res) })
	})
	em.unobserve = graph.Observe(func(c GraphChange) {
		em.box.post(func() { em.onGraphChange(c) })
	})

	go em.loop()
	if em.auto {
		observability.LogAutoEvaluation(cfg.logger, true)
		em.box.post(func() {})
	}
	return em
}

// Graph returns the evaluated graph.
func (em *ExecutionModel) Graph() *Graph {
	return em.graph
}

func (em *ExecutionModel) loop() {
	defer close(em.done)
	for {
		select {
		case <-em.box.signal:
			for _, fn := range em.box.drain() {
				fn()
			}
			em.schedule()
		case <-em.closing:
			em.shutdown()
			return
		}
	}
}

// shutdown runs on the coordinating goroutine when Close is called.
func (em *ExecutionModel) shutdown() {
	em.closed = true
	em.box.close()
	em.cancel()
	for id, w := range em.watchers {
		delete(em.watchers, id)
		w.resolve(false)
	}
}

// call runs fn on the coordinating goroutine and waits for it.
func (em *ExecutionModel) call(fn func()) error {
	done := make(chan struct{})
	if !em.box.post(func() {
		fn()
		close(done)
	}) {
		return ErrModelClosed
	}
	select {
	case <-done:
		return nil
	case <-em.done:
		select {
		case <-done:
			return nil
		default:
			return ErrModelClosed
		}
	}
}

// Close stops the scheduler. Outstanding futures resolve false, running
// callbacks see their context canceled and Close waits for them to return.
// A checkpoint store opened by OptionsFromEngine is closed as well.
func (em *ExecutionModel) Close() error {
	em.closeOnce.Do(func() {
		em.unobserve()
		close(em.closing)
		// The loop may be waiting on a Blocking callback.
		em.cancel()
		<-em.done
		em.exec.wait()
		if em.cfg.ownsStore && em.cfg.store != nil {
			em.closeErr = em.cfg.store.Close()
		}
	})
	return em.closeErr
}

// EvaluateGraph requests evaluation of every node of the graph, nested
// graphs included. The returned future resolves once all of them are Valid
// or one of them is Invalid.
func (em *ExecutionModel) EvaluateGraph() *Future {
	return em.request("graph", func() ([]NodeUUID, bool) {
		return em.allNodes(), true
	})
}

// EvaluateNode requests evaluation of one node and whatever it depends on.
// The future fails immediately if the uuid is unknown.
func (em *ExecutionModel) EvaluateNode(u NodeUUID) *Future {
	return em.request("node", func() ([]NodeUUID, bool) {
		if em.graph.FindNodeByUUID(u) == nil {
			return nil, false
		}
		return []NodeUUID{u}, true
	})
}

// AutoEvaluateGraph switches to reactive mode: every change is followed by
// re-evaluation of everything it affects. The future tracks the initial
// evaluation of the whole graph.
func (em *ExecutionModel) AutoEvaluateGraph() *Future {
	return em.request("auto", func() ([]NodeUUID, bool) {
		if !em.auto {
			em.auto = true
			observability.LogAutoEvaluation(em.cfg.logger, true)
		}
		return em.allNodes(), true
	})
}

// StopAutoEvaluatingGraph leaves reactive mode. Running callbacks finish;
// nodes only evaluate on request afterwards.
func (em *ExecutionModel) StopAutoEvaluatingGraph() {
	_ = em.call(func() {
		if em.auto {
			em.auto = false
			observability.LogAutoEvaluation(em.cfg.logger, false)
		}
	})
}

// IsAutoEvaluatingGraph reports whether the model is in reactive mode.
func (em *ExecutionModel) IsAutoEvaluatingGraph() bool {
	var auto bool
	if err := em.call(func() { auto = em.auto }); err != nil {
		return false
	}
	return auto
}

// Reset discards all port data and evaluation state. Every node becomes
// Outdated; results of callbacks still running are discarded.
func (em *ExecutionModel) Reset() {
	_ = em.call(func() {
		for u, it := range em.data.items {
			if it.state != EvalEvaluating && it.running == 0 {
				em.data.remove(u)
				continue
			}
			for i := range it.inputs {
				it.inputs[i].data = NodeDataSet{}
			}
			for i := range it.outputs {
				it.outputs[i].data = NodeDataSet{}
			}
			it.err = nil
			it.paused = false
			if it.running > 0 {
				it.state = EvalEvaluating
			}
			it.dirty = it.state == EvalEvaluating
		}
	})
}

// Invalidate marks a node and everything downstream of it Outdated.
// Returns false if the uuid is unknown.
func (em *ExecutionModel) Invalidate(u NodeUUID) bool {
	var ok bool
	_ = em.call(func() {
		if n := em.graph.FindNodeByUUID(u); n != nil {
			em.invalidate(n)
			ok = true
		}
	})
	return ok
}

// NodeEvalState returns the state of a node. Unknown nodes and a closed
// model report EvalInvalid.
func (em *ExecutionModel) NodeEvalState(u NodeUUID) NodeEvalState {
	state := EvalInvalid
	_ = em.call(func() { state = em.stateOf(u) })
	return state
}

// LastError returns the reason a node is Invalid, nil otherwise.
func (em *ExecutionModel) LastError(u NodeUUID) error {
	var err error
	_ = em.call(func() {
		if it, ok := em.data.lookup(u); ok && it.state == EvalInvalid {
			err = it.err
		}
	})
	return err
}

// NodeData implements DataInterface. It returns {nil, Outdated} for unknown
// nodes or ports.
func (em *ExecutionModel) NodeData(u NodeUUID, port PortID) NodeDataSet {
	var d NodeDataSet
	_ = em.call(func() {
		n := em.graph.FindNodeByUUID(u)
		if n == nil {
			return
		}
		if t := n.PortType(port); t != NoPortType {
			d = em.data.portData(n, port, t)
		}
	})
	return d
}

// SetNodeData implements DataInterface. Writing an input invalidates the
// node; writing an output invalidates its dependents. Returns false for
// unknown nodes or ports and after Close.
func (em *ExecutionModel) SetNodeData(u NodeUUID, port PortID, data NodeDataSet) bool {
	var ok bool
	_ = em.call(func() {
		n := em.graph.FindNodeByUUID(u)
		if n == nil {
			return
		}
		t := n.PortType(port)
		if t == NoPortType || !em.data.setPortData(n, port, t, data) {
			return
		}
		ok = true
		publish(em, event.TypeDataChanged, event.DataChanged{
			NodeUUID: string(u),
			Port:     uint32(port),
			Output:   t == PortOut,
			Valid:    data.IsValid(),
		})
		if t == PortIn {
			em.invalidate(n)
		} else {
			em.invalidateDependents(n)
		}
	})
	return ok
}

// PauseNode holds a node back from evaluation. A running callback finishes
// normally. Required dependents wait until the node is resumed.
func (em *ExecutionModel) PauseNode(u NodeUUID) bool {
	return em.setPaused(u, true)
}

// ResumeNode releases a paused node.
func (em *ExecutionModel) ResumeNode(u NodeUUID) bool {
	return em.setPaused(u, false)
}

func (em *ExecutionModel) setPaused(u NodeUUID, paused bool) bool {
	var ok bool
	_ = em.call(func() {
		n := em.graph.FindNodeByUUID(u)
		if n == nil {
			return
		}
		it := em.data.item(n)
		from := it.visibleState()
		it.paused = paused
		em.stateChanged(n, from, it.visibleState())
		ok = true
	})
	return ok
}

// request registers targets as pending and returns a future for them.
func (em *ExecutionModel) request(kind string, targets func() ([]NodeUUID, bool)) *Future {
	f := newFuture(em)
	err := em.call(func() {
		uuids, ok := targets()
		if !ok {
			f.markFailed()
			return
		}
		for _, u := range uuids {
			f.Append(u, em.stateOf(u))
			em.pending[u] = true
		}
		em.trackRequest(kind, uuids)
	})
	if err != nil {
		f.markFailed()
	}
	return f
}

// trackRequest logs, counts and traces a request until its targets resolve.
func (em *ExecutionModel) trackRequest(kind string, targets []NodeUUID) {
	logger := em.cfg.logger
	observability.LogEvaluationRequested(logger, kind, len(targets))
	em.cfg.metrics.RecordRequest(em.ctx, kind, len(targets))
	_, span := em.cfg.spans.StartEvaluationSpan(em.ctx, kind, string(em.graph.UUID()), len(targets))
	elapsed := observability.TimedOperation()

	em.addWatcher(targets, func(ok bool) {
		var err error
		if !ok {
			err = errTargetsFailed
		}
		em.cfg.spans.EndSpanWithError(span, err)
		observability.LogEvaluationResolved(logger, kind, ok, elapsed())
	})
}

// addWatcher registers resolve for targets, calling it right away if they
// are already settled. Unsettled targets become pending.
func (em *ExecutionModel) addWatcher(targets []NodeUUID, resolve func(bool)) uint64 {
	if ok, settled := em.settled(targets); settled {
		resolve(ok)
		return 0
	}
	for _, u := range targets {
		em.pending[u] = true
	}
	em.nextWatcher++
	em.watchers[em.nextWatcher] = &watcher{targets: targets, resolve: resolve}
	return em.nextWatcher
}

// settled reports whether targets are resolved and whether all are Valid.
func (em *ExecutionModel) settled(targets []NodeUUID) (ok, settled bool) {
	all := true
	for _, u := range targets {
		switch em.stateOf(u) {
		case EvalInvalid:
			return false, true
		case EvalValid:
		default:
			all = false
		}
	}
	return all, all
}

// resolveWatchers resolves settled watchers and drops settled pending targets.
func (em *ExecutionModel) resolveWatchers() {
	for id, w := range em.watchers {
		if ok, settled := em.settled(w.targets); settled {
			delete(em.watchers, id)
			w.resolve(ok)
		}
	}
	for u := range em.pending {
		if s := em.stateOf(u); !s.isPending() {
			delete(em.pending, u)
		}
	}
}

// stateOf returns the visible state of a node, EvalInvalid if it does not
// exist.
func (em *ExecutionModel) stateOf(u NodeUUID) NodeEvalState {
	n := em.graph.FindNodeByUUID(u)
	if n == nil {
		return EvalInvalid
	}
	return em.data.item(n).visibleState()
}

func (em *ExecutionModel) allNodes() []NodeUUID {
	var out []NodeUUID
	em.graph.walk(func(n *Node) {
		out = append(out, n.UUID())
	})
	return out
}

// setState moves a node to state s and reports visible transitions.
func (em *ExecutionModel) setState(n *Node, it *dataItem, s NodeEvalState) {
	from := it.visibleState()
	it.state = s
	em.stateChanged(n, from, it.visibleState())
}

func (em *ExecutionModel) stateChanged(n *Node, from, to NodeEvalState) {
	if from == to {
		return
	}
	publish(em, event.TypeStateChanged, event.StateChanged{
		NodeUUID: string(n.UUID()),
		From:     from.String(),
		To:       to.String(),
	})
}

// publish sends an event to the configured bus, if any.
func publish[T any](em *ExecutionModel, eventType string, payload T) {
	if em.cfg.bus == nil {
		return
	}
	evt := event.New(eventType, event.Source, string(em.graph.UUID()), payload)
	if err := em.cfg.bus.Publish(em.ctx, evt); err != nil {
		em.cfg.logger.Warn("event publish failed",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
	}
}
