package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable notification.
type Event interface {
	ID() string
	Type() string
	// Source names the emitter, "nodeflow" for the execution model.
	Source() string

	// CorrelationID groups the events of one evaluation request.
	CorrelationID() string
	// CausationID is the id of the event that caused this one, if any.
	CausationID() string

	Timestamp() time.Time
	// GraphID is the uuid of the root graph the event belongs to.
	GraphID() string

	Data() any
	DataBytes() []byte
}

// Metadata holds the fields common to all events.
type Metadata struct {
	EventID       string    `json:"id"`
	EventType     string    `json:"type"`
	EventSource   string    `json:"source"`
	CorrelationID string    `json:"correlation_id"`
	CausationID   string    `json:"causation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	GraphID       string    `json:"graph_id"`
}

// BaseEvent is the generic Event implementation with payload type T.
type BaseEvent[T any] struct {
	Meta    Metadata `json:"metadata"`
	Payload T        `json:"payload"`
}

func (e *BaseEvent[T]) ID() string            { return e.Meta.EventID }
func (e *BaseEvent[T]) Type() string          { return e.Meta.EventType }
func (e *BaseEvent[T]) Source() string        { return e.Meta.EventSource }
func (e *BaseEvent[T]) CorrelationID() string { return e.Meta.CorrelationID }
func (e *BaseEvent[T]) CausationID() string   { return e.Meta.CausationID }
func (e *BaseEvent[T]) Timestamp() time.Time  { return e.Meta.Timestamp }
func (e *BaseEvent[T]) GraphID() string       { return e.Meta.GraphID }
func (e *BaseEvent[T]) Data() any             { return e.Payload }

// TypedData returns the payload without a type assertion.
func (e *BaseEvent[T]) TypedData() T {
	return e.Payload
}

// DataBytes returns the JSON encoding of the payload, nil if it cannot be encoded.
func (e *BaseEvent[T]) DataBytes() []byte {
	b, err := json.Marshal(e.Payload)
	if err != nil {
		return nil
	}
	return b
}

// Option configures event creation.
type Option func(*Metadata)

// WithEventID sets the event id instead of a generated uuid.
func WithEventID(id string) Option {
	return func(m *Metadata) {
		m.EventID = id
	}
}

// WithCorrelationID sets the correlation id. Defaults to the event id.
func WithCorrelationID(id string) Option {
	return func(m *Metadata) {
		m.CorrelationID = id
	}
}

// WithCausationID sets the id of the causing event.
func WithCausationID(id string) Option {
	return func(m *Metadata) {
		m.CausationID = id
	}
}

// WithTimestamp overrides the creation time.
func WithTimestamp(t time.Time) Option {
	return func(m *Metadata) {
		m.Timestamp = t
	}
}

// New creates an event.
func New[T any](eventType, source, graphID string, payload T, opts ...Option) *BaseEvent[T] {
	meta := Metadata{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		EventSource: source,
		Timestamp:   time.Now(),
		GraphID:     graphID,
	}
	for _, opt := range opts {
		opt(&meta)
	}
	if meta.CorrelationID == "" {
		meta.CorrelationID = meta.EventID
	}
	return &BaseEvent[T]{Meta: meta, Payload: payload}
}

// NewFromParent creates an event caused by parent, inheriting its
// correlation id and graph.
func NewFromParent[T any](parent Event, eventType, source string, payload T, opts ...Option) *BaseEvent[T] {
	all := append([]Option{
		WithCorrelationID(parent.CorrelationID()),
		WithCausationID(parent.ID()),
	}, opts...)
	return New(eventType, source, parent.GraphID(), payload, all...)
}

// Handler consumes events delivered by a Bus.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// TypedHandler adapts a function taking a concrete payload type. Events
// carrying another payload type are reported as *EventError.
func TypedHandler[T any](fn func(ctx context.Context, payload T, meta Metadata) error) Handler {
	return HandlerFunc(func(ctx context.Context, evt Event) error {
		payload, ok := evt.Data().(T)
		if !ok {
			return &EventError{Event: evt, Message: "unexpected payload type"}
		}
		return fn(ctx, payload, Metadata{
			EventID:       evt.ID(),
			EventType:     evt.Type(),
			EventSource:   evt.Source(),
			CorrelationID: evt.CorrelationID(),
			CausationID:   evt.CausationID(),
			Timestamp:     evt.Timestamp(),
			GraphID:       evt.GraphID(),
		})
	})
}
