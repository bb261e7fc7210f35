package event

import (
	"errors"
	"fmt"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

// EventError reports a failure to publish or handle an event.
type EventError struct {
	Event   Event
	Message string
	Err     error
}

// Error implements the error interface.
func (e *EventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("event %s (%s): %s: %v", e.Event.ID(), e.Event.Type(), e.Message, e.Err)
	}
	return fmt.Sprintf("event %s (%s): %s", e.Event.ID(), e.Event.Type(), e.Message)
}

// Unwrap returns the underlying error.
func (e *EventError) Unwrap() error {
	return e.Err
}
