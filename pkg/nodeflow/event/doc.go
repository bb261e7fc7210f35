// Package event publishes execution model activity to subscribers.
//
// The execution model emits events when port data changes, when a node
// finishes or fails, and when a node's evaluation state changes. Payloads are
// the typed structs in this package; subscribers either switch on Type() or
// wrap a function with TypedHandler.
//
//	bus := event.NewBus(event.BusConfig{NonBlocking: true})
//	bus.Subscribe([]string{event.TypeNodeFailed}, event.TypedHandler(
//	    func(ctx context.Context, p event.NodeFailed, _ event.Metadata) error {
//	        log.Printf("%s failed: %s", p.Caption, p.Error)
//	        return nil
//	    }))
package event
