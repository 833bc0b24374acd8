package eventbus

import (
	"context"
	"reflect"
)

// InvokeFunc is the non-suspending invocation closure (spec C3 `invoke`).
type InvokeFunc func(ctx context.Context, event Event, args []any) error

// InvokeSuspendFunc is the cooperative invocation closure (spec C3
// `invoke_suspend`). isWaiting is true only when called from
// Engine.DispatchAwait; fire-and-forget launches from Engine.Dispatch pass
// false.
type InvokeSuspendFunc func(ctx context.Context, event Event, args []any, isWaiting bool) error

// Variance controls how HandlerDescriptor.GenericSpec entries accept an
// event's runtime generic-type arguments (spec §4.5).
type Variance int

const (
	Invariant Variance = iota
	Covariant
	Contravariant
	Unconstrained
)

// GenericParam is one positional entry of a handler's generic-type spec.
// Bound is nil (and ignored) when Variance is Unconstrained.
type GenericParam struct {
	Variance Variance
	Bound    reflect.Type
}

// HandlerDescriptor is the immutable record the engine accepts from any
// producer (reflection, code generation, or hand-written) (spec C3). The
// engine never constructs these itself; it only validates the required
// fields on Register.
type HandlerDescriptor struct {
	// EventType is the concrete (or marker-interface) type the handler is
	// keyed under for subtype/generic matching.
	EventType reflect.Type

	// Config carries the recognized configuration keys (priority,
	// disallow_subtypes, exclusive, silent, ignore_sticky, name) plus any
	// adapter-defined custom keys.
	Config Configuration

	// Suspends is true if the handler may cooperatively suspend.
	Suspends bool

	// HandlerID is a stable identifier per registration, used as the
	// exclusive-gate key. Uniqueness across independent registrations of
	// the same function is the caller's responsibility.
	HandlerID string

	// OwnerTag is an opaque identity used by UnregisterOwner to remove all
	// descriptors belonging to one registered source.
	OwnerTag any

	// GenericSpec is the handler's declared variance spec, empty if the
	// event type takes no parameters or no spec was given.
	GenericSpec []GenericParam

	// Invoke is called for non-suspending activations.
	Invoke InvokeFunc

	// InvokeSuspend is called for suspending activations. If nil and
	// Suspends is false, Register fills it in as a thin wrapper around
	// Invoke so callers never need to special-case it.
	InvokeSuspend InvokeSuspendFunc

	// ArgStrategies produces, in order, the extra arguments passed to
	// Invoke/InvokeSuspend alongside the event itself.
	ArgStrategies []ArgStrategy

	// seq is assigned by Engine.Register and used to break priority ties
	// in stable, insertion order regardless of the sort algorithm used.
	seq uint64
}

func (d *HandlerDescriptor) priority() int {
	return GetOrDefault(d.Config, PriorityKey)
}

func (d *HandlerDescriptor) disallowSubtypes() bool {
	return GetOrDefault(d.Config, DisallowSubtypesKey)
}

func (d *HandlerDescriptor) exclusive() bool {
	return GetOrDefault(d.Config, ExclusiveKey)
}

func (d *HandlerDescriptor) silent() bool {
	return GetOrDefault(d.Config, SilentKey)
}

func (d *HandlerDescriptor) ignoreSticky() bool {
	return GetOrDefault(d.Config, IgnoreStickyKey)
}
