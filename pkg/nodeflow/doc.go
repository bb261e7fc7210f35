/*
Package nodeflow provides the evaluation core of a node-based dataflow graph.

# Overview

Nodes have ordered input and output ports. Connections run from an output
port to an input port of another node in the same graph. A graph is itself
presented to its parent by a node, so graphs nest; an input and an output
provider mirror the graph node's ports on the inside.

An ExecutionModel evaluates a graph. It tracks the data on every port and
the evaluation state of every node, and dispatches node callbacks as soon
as their Required inputs are Valid.

# Basic Usage

	graph := nodeflow.NewGraph("main")

	value := nodeflow.NewNode("Const", func(ctx nodeflow.Context, data nodeflow.DataInterface) error {
	    nodeflow.SetOutputData(ctx, data, 0, 2)
	    return nil
	}, nodeflow.WithOutPort(nodeflow.PortInfo{Caption: "value", TypeID: nodeflow.KindInt}))

	square := nodeflow.NewNode("Square", func(ctx nodeflow.Context, data nodeflow.DataInterface) error {
	    v := nodeflow.InputData(ctx, data, 0).Data.(int)
	    nodeflow.SetOutputData(ctx, data, 1, v*v)
	    return nil
	},
	    nodeflow.WithInPort(nodeflow.PortInfo{Caption: "x", TypeID: nodeflow.KindInt}),
	    nodeflow.WithOutPort(nodeflow.PortInfo{Caption: "x²", TypeID: nodeflow.KindInt}))

	graph.AppendNode(value)
	graph.AppendNode(square)
	graph.AppendConnection(nodeflow.ConnectionID{
	    OutNodeID: value.ID(), OutPort: 0,
	    InNodeID: square.ID(), InPort: 0,
	})

	em := nodeflow.NewExecutionModel(graph)
	defer em.Close()

	if em.EvaluateGraph().Wait(time.Second) {
	    fmt.Println(em.NodeData(square.UUID(), 1).Data) // 4
	}

Ready-made node kinds live in the nodes subpackage.

# Evaluation States

Every node is in one of the states of NodeEvalState. Nodes start Outdated.
A change to a node's inputs or structure makes it and everything downstream
Outdated again. A failing callback makes the node Invalid, and so does a
Required input that is unconnected and has no data; Invalid spreads to
dependents that require the failed node's outputs. Failed nodes are not
retried until something upstream changes.

# Evaluation Modes

A node's EvalMode decides where its callback runs:

  - MainThread runs inline on the coordinating goroutine.
  - Blocking runs synchronously and holds up all other scheduling.
  - Exclusive runs on its own goroutine, never together with another
    Exclusive or ExclusiveDetached node of the same graph.
  - ExclusiveDetached is like Exclusive but runs on a bounded worker pool.
  - ForwardInputsToOutputs copies inputs to outputs and is used by the
    boundary providers of nested graphs.

# Requests and Futures

EvaluateGraph and EvaluateNode evaluate on demand and return a Future.
AutoEvaluateGraph switches to reactive mode where every change triggers
re-evaluation. Futures resolve true once all targets are Valid and false as
soon as one is Invalid. Closing the model resolves outstanding futures with
false.

# Observability

WithLogger, WithMetrics and WithTracing enable structured logging,
OpenTelemetry metrics and spans. WithEventBus publishes data and state
events, and WithCheckpointing saves evaluated outputs so Restore can reload
them later.
*/
package nodeflow
