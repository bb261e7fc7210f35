package nodeflow

import (
	"context"
	"fmt"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/checkpoint"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/observability"
)

// saveCheckpoint stores the outputs of a node that just turned Valid.
// Failures are logged and ignored unless checkpoint failures are fatal.
func (em *ExecutionModel) saveCheckpoint(n *Node) error {
	store := em.cfg.store
	if store == nil || n.IsProvider() {
		return nil
	}
	nodeID := string(n.UUID())
	graphID := string(em.graph.UUID())

	em.sequence++
	cp := checkpoint.New(graphID, nodeID, n.ModelName(), em.sequence)
	for _, p := range n.OutPorts() {
		d := em.data.portData(n, p.ID, PortOut)
		if err := cp.AddOutput(uint32(p.ID), p.TypeID, d.Data); err != nil {
			return em.checkpointFailed(n, "serialize", fmt.Errorf("%w: %w", ErrSerializeOutputs, err))
		}
	}
	data, err := cp.Marshal()
	if err != nil {
		return em.checkpointFailed(n, "marshal", fmt.Errorf("%w: %w", ErrSerializeOutputs, err))
	}
	if err := store.Save(em.ctx, graphID, nodeID, data); err != nil {
		return em.checkpointFailed(n, "save", err)
	}

	observability.LogCheckpoint(em.cfg.logger, nodeID, len(data))
	em.cfg.metrics.RecordCheckpoint(em.ctx, n.ModelName(), int64(len(data)))
	return nil
}

func (em *ExecutionModel) checkpointFailed(n *Node, op string, err error) error {
	if em.cfg.checkpointHard {
		return &NodeError{NodeUUID: n.UUID(), Op: "checkpoint", Err: fmt.Errorf("%s: %w", op, err)}
	}
	observability.LogCheckpointError(em.cfg.logger, string(n.UUID()), op, err)
	return nil
}

// restoredNode holds decoded checkpoint outputs waiting to be applied.
type restoredNode struct {
	node     *Node
	sequence int
	outputs  map[PortID]NodeDataSet
	// skipped holds outputs whose port no longer exists.
	skipped []error
}

// Restore loads the checkpoints saved for this graph and installs their
// outputs as Valid data. Dependents of restored nodes are invalidated unless
// they are restored themselves, so stale checkpoints are recomputed.
// Checkpoints of nodes no longer in the graph and outputs of ports that no
// longer exist are skipped with a warning. It returns the number of restored
// nodes.
//
// Checkpoints are keyed by the root graph's uuid; build graphs with
// WithNodeUUID to restore across processes.
func (em *ExecutionModel) Restore(ctx context.Context) (int, error) {
	store := em.cfg.store
	if store == nil {
		return 0, nil
	}
	graphID := string(em.graph.UUID())

	infos, err := store.List(ctx, graphID)
	if err != nil {
		return 0, fmt.Errorf("list checkpoints: %w", err)
	}

	batch := make([]restoredNode, 0, len(infos))
	for _, info := range infos {
		n, err := em.checkpointNode(info.NodeID)
		if err != nil {
			observability.LogCheckpointError(em.cfg.logger, info.NodeID, "restore", err)
			continue
		}
		raw, err := store.Load(ctx, graphID, info.NodeID)
		if err != nil {
			return 0, fmt.Errorf("load checkpoint %s: %w", info.NodeID, err)
		}
		r, err := decodeCheckpoint(n, raw)
		if err != nil {
			return 0, err
		}
		for _, skip := range r.skipped {
			observability.LogCheckpointError(em.cfg.logger, info.NodeID, "restore", skip)
		}
		batch = append(batch, r)
	}

	var count int
	err = em.call(func() {
		for _, r := range batch {
			it := em.data.item(r.node)
			if it.state == EvalEvaluating {
				continue
			}
			for port, d := range r.outputs {
				em.data.setPortData(r.node, port, PortOut, d)
			}
			it.err = nil
			em.setState(r.node, it, EvalValid)
			em.invalidateDependents(r.node)
			em.sequence = max(em.sequence, r.sequence)
			count++
		}
	})
	return count, err
}

// checkpointNode resolves the node a checkpoint was saved for.
func (em *ExecutionModel) checkpointNode(id string) (*Node, error) {
	n := em.graph.FindNodeByUUID(NodeUUID(id))
	if n == nil {
		return nil, &NodeError{NodeUUID: NodeUUID(id), Op: "restore", Err: ErrNodeNotFound}
	}
	return n, nil
}

func decodeCheckpoint(n *Node, raw []byte) (restoredNode, error) {
	cp, err := checkpoint.Unmarshal(raw)
	if err != nil {
		return restoredNode{}, &NodeError{NodeUUID: n.UUID(), Op: "restore", Err: fmt.Errorf("%w: %w", ErrDeserializeOutputs, err)}
	}
	r := restoredNode{node: n, sequence: cp.Sequence, outputs: make(map[PortID]NodeDataSet, len(cp.Outputs))}
	for _, out := range cp.Outputs {
		port := PortID(out.Port)
		info, ok := n.Port(port)
		if !ok || info.Type != PortOut {
			r.skipped = append(r.skipped, &NodeError{NodeUUID: n.UUID(), Port: port, Op: "restore", Err: ErrPortNotFound})
			continue
		}
		typeID := info.TypeID
		if typeID == "" {
			typeID = out.TypeID
		}
		v, err := decodeData(typeID, out.Data)
		if err != nil {
			return restoredNode{}, &NodeError{NodeUUID: n.UUID(), Port: port, Op: "restore", Err: fmt.Errorf("%w: %w", ErrDeserializeOutputs, err)}
		}
		r.outputs[port] = ValidData(v)
	}
	return r, nil
}
