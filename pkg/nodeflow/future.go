package nodeflow

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Future tracks the completion of a set of target nodes.
//
// It resolves true once every target is Valid and false as soon as one is
// Invalid. Futures are returned by the evaluation requests of an
// ExecutionModel and can be combined with Append and Join.
type Future struct {
	em *ExecutionModel

	mu      sync.Mutex
	states  map[NodeUUID]NodeEvalState
	targets []NodeUUID
	failed  bool
}

func newFuture(em *ExecutionModel) *Future {
	return &Future{em: em, states: make(map[NodeUUID]NodeEvalState)}
}

// Append adds a target with the state it was observed in. Registering a
// target twice keeps Invalid if either registration is Invalid, otherwise a
// pending state over Valid.
func (f *Future) Append(u NodeUUID, state NodeEvalState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, ok := f.states[u]
	if !ok {
		f.targets = append(f.targets, u)
		f.states[u] = state
		return
	}
	f.states[u] = mergeStates(prev, state)
}

func mergeStates(a, b NodeEvalState) NodeEvalState {
	switch {
	case a == EvalInvalid || b == EvalInvalid:
		return EvalInvalid
	case a.isPending():
		return a
	case b.isPending():
		return b
	default:
		return EvalValid
	}
}

// Targets returns the target uuids in registration order.
func (f *Future) Targets() []NodeUUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.targets)
}

// State returns the registered state of a target.
func (f *Future) State(u NodeUUID) (NodeEvalState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[u]
	return s, ok
}

// Join merges the targets of other into f and returns f. Joining futures of
// different execution models panics.
func (f *Future) Join(other *Future) *Future {
	if other == nil || other == f {
		return f
	}
	if other.em != f.em {
		panic("nodeflow: cannot join futures of different execution models")
	}
	other.mu.Lock()
	targets := slices.Clone(other.targets)
	states := make(map[NodeUUID]NodeEvalState, len(targets))
	for _, u := range targets {
		states[u] = other.states[u]
	}
	failed := other.failed
	other.mu.Unlock()

	for _, u := range targets {
		f.Append(u, states[u])
	}
	if failed {
		f.markFailed()
	}
	return f
}

// Wait blocks until the targets resolve or timeout elapses and reports
// whether all targets are Valid. A non-positive timeout uses the model's
// wait timeout. Timing out does not cancel evaluation.
func (f *Future) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
		if f.em != nil {
			timeout = f.em.cfg.waitTimeout
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return f.WaitContext(ctx)
}

// WaitContext is Wait bounded by ctx instead of a timeout.
func (f *Future) WaitContext(ctx context.Context) bool {
	targets, ok, settled := f.snapshot()
	if settled {
		return ok
	}
	if f.em == nil {
		return false
	}

	resolved := make(chan bool, 1)
	var id uint64
	err := f.em.call(func() {
		id = f.em.addWatcher(targets, func(ok bool) { resolved <- ok })
	})
	if err != nil {
		return false
	}

	select {
	case ok := <-resolved:
		return ok
	case <-ctx.Done():
		f.em.box.post(func() { delete(f.em.watchers, id) })
		select {
		case ok := <-resolved:
			return ok
		default:
			return false
		}
	}
}

// Then calls fn with the result once the targets resolve. fn runs on its
// own goroutine. If the model is closed first, fn receives false.
func (f *Future) Then(fn func(ok bool)) {
	go func() {
		fn(f.WaitContext(context.Background()))
	}()
}

// Get waits like Wait and returns the data of a port. It returns
// {nil, Outdated} if the wait fails.
func (f *Future) Get(u NodeUUID, port PortID, timeout time.Duration) NodeDataSet {
	if !f.Wait(timeout) || f.em == nil {
		return NodeDataSet{}
	}
	return f.em.NodeData(u, port)
}

// snapshot decides the result from the registered states alone when
// possible. Otherwise it returns the targets to watch.
func (f *Future) snapshot() (targets []NodeUUID, ok, settled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return nil, false, true
	}
	all := true
	for _, u := range f.targets {
		switch f.states[u] {
		case EvalInvalid:
			return nil, false, true
		case EvalValid:
		default:
			all = false
		}
	}
	if all {
		return nil, true, true
	}
	return slices.Clone(f.targets), false, false
}

func (f *Future) markFailed() {
	f.mu.Lock()
	f.failed = true
	f.mu.Unlock()
}
