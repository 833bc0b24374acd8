// Package eventbus implements an in-process, type-safe event dispatch
// engine. Producers publish events by value; consumers register handlers
// keyed by event type and receive events in priority order with
// per-handler configuration (subtype matching, exclusivity, stickiness).
package eventbus

import "reflect"

// Event is any value handed to Dispatch/DispatchAwait. Its concrete
// reflect.Type is the key the dispatch engine matches handlers against.
type Event = any

// GenericTyped is implemented by events that carry runtime-erased type
// parameters they want matched against a handler's generic spec (C6). An
// event with no type parameters, or one that doesn't implement this
// interface, is simply never subject to generic matching.
type GenericTyped interface {
	// GenericTypeArgs returns the concrete classes bound to the event's
	// type parameters, in declaration order.
	GenericTypeArgs() []reflect.Type
}

// DeadEvent wraps an event that found no non-silent handler on a given
// dispatch. It is synthesized by the engine and redispatched through the
// normal matching pipeline; a DeadEvent that itself finds no handlers does
// not recurse (see Engine.dispatch).
type DeadEvent struct {
	// Original is the event that was not handled.
	Original Event
}
