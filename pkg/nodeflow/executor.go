package nodeflow

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
)

// evalRequest is one dispatched evaluation. It carries everything the
// callback needs so workers never touch the data model.
type evalRequest struct {
	node   *Node
	token  uint64
	mode   EvalMode
	inputs map[PortID]NodeDataSet
	outs   []PortInfo

	// forward maps provider inputs to outputs for ForwardInputsToOutputs.
	forward map[PortID]PortID

	// graphs are the enclosing graphs at dispatch time, innermost first.
	graphs []*Graph
}

// evalResult reports a finished evaluation back to the scheduler.
type evalResult struct {
	req      evalRequest
	outputs  map[PortID]NodeDataSet
	err      error
	duration time.Duration
}

// nodeExecutor runs callbacks according to their evaluation mode.
type nodeExecutor struct {
	ctx     context.Context
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	pool *semaphore.Weighted
	wg   sync.WaitGroup

	// report delivers asynchronous results to the coordinating goroutine.
	report func(evalResult)
}

func newNodeExecutor(ctx context.Context, cfg *modelConfig, report func(evalResult)) *nodeExecutor {
	return &nodeExecutor{
		ctx:     ctx,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		spans:   cfg.spans,
		pool:    semaphore.NewWeighted(int64(cfg.detachedWorkers)),
		report:  report,
	}
}

// execute starts req. For MainThread, Blocking and ForwardInputsToOutputs
// the result is returned directly and ok is true; the other modes report
// through x.report exactly once.
func (x *nodeExecutor) execute(req evalRequest) (res evalResult, ok bool) {
	switch req.mode {
	case ForwardInputsToOutputs:
		return x.forward(req), true

	case MainThread:
		return x.run(req), true

	case Blocking:
		done := make(chan evalResult, 1)
		x.wg.Add(1)
		go func() {
			defer x.wg.Done()
			done <- x.run(req)
		}()
		select {
		case res = <-done:
			return res, true
		case <-x.ctx.Done():
			// The callback still owns the node; its result arrives late.
			x.wg.Add(1)
			go func() {
				defer x.wg.Done()
				x.report(<-done)
			}()
			return evalResult{}, false
		}

	case ExclusiveDetached:
		x.wg.Add(1)
		go func() {
			defer x.wg.Done()
			if err := x.pool.Acquire(x.ctx, 1); err != nil {
				x.report(evalResult{req: req, err: &NodeError{NodeUUID: req.node.UUID(), Op: "evaluate", Err: err}})
				return
			}
			defer x.pool.Release(1)
			x.report(x.run(req))
		}()
		return evalResult{}, false

	default:
		x.wg.Add(1)
		go func() {
			defer x.wg.Done()
			x.report(x.run(req))
		}()
		return evalResult{}, false
	}
}

// run invokes the node callback with logging, metrics and tracing.
func (x *nodeExecutor) run(req evalRequest) evalResult {
	n := req.node
	mode := req.mode.String()

	spanCtx, span := x.spans.StartNodeSpan(x.ctx, n.Caption(), string(n.UUID()), mode)
	nodeCtx := newNodeContext(spanCtx, x.logger, n)
	nodeCtx.mode = req.mode
	observability.LogNodeStart(nodeCtx.logger, mode)

	scope := newEvalScope(n.UUID(), req.inputs, req.outs)
	start := time.Now()

	var err error
	if fn := n.evalFunc(); fn == nil {
		err = &NodeError{NodeUUID: n.UUID(), Op: "evaluate", Err: ErrNoEvalFunc}
	} else {
		err = invokeEval(nodeCtx, n, fn, scope)
	}
	duration := time.Since(start)
	outputs := scope.written()

	x.spans.AddSpanEvent(spanCtx, "outputs.written", attribute.Int("outputs", len(outputs)))
	x.metrics.RecordNodeEvaluation(spanCtx, n.ModelName(), mode, duration, err)
	x.spans.EndSpanWithError(span, err)
	if err != nil {
		observability.LogNodeError(nodeCtx.logger, err)
	} else {
		observability.LogNodeComplete(nodeCtx.logger, float64(duration.Microseconds())/1000)
	}

	return evalResult{req: req, outputs: outputs, err: err, duration: duration}
}

// forward copies provider inputs to the paired outputs.
func (x *nodeExecutor) forward(req evalRequest) evalResult {
	outputs := make(map[PortID]NodeDataSet, len(req.forward))
	for in, out := range req.forward {
		outputs[out] = req.inputs[in]
	}
	return evalResult{req: req, outputs: outputs}
}

// wait blocks until every started worker has returned.
func (x *nodeExecutor) wait() {
	x.wg.Wait()
}

// invokeEval calls fn, turning a panic into *PanicError and wrapping a
// returned error in *NodeError.
func invokeEval(ctx *nodeContext, n *Node, fn EvalFunc, scope *evalScope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{
				NodeUUID: n.UUID(),
				Value:    r,
				Stack:    string(debug.Stack()),
			}
		}
	}()

	if err := fn(ctx, scope); err != nil {
		var nodeErr *NodeError
		if errors.As(err, &nodeErr) && nodeErr.NodeUUID == n.UUID() {
			return err
		}
		return &NodeError{NodeUUID: n.UUID(), Op: "evaluate", Err: err}
	}
	return nil
}

