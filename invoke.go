package eventbus

import (
	"context"
	"fmt"
)

// InvokeKind tags how one activation of a descriptor is carried out,
// replacing a class hierarchy of "registered listener" types with a single
// descriptor record plus a switch on the tag (spec §9 design note).
type InvokeKind int

const (
	InvokeKindPlain InvokeKind = iota
	InvokeKindSuspendingFire
	InvokeKindSuspendingAwait
)

func kindFor(d *HandlerDescriptor, await bool) InvokeKind {
	if !d.Suspends {
		return InvokeKindPlain
	}
	if await {
		return InvokeKindSuspendingAwait
	}
	return InvokeKindSuspendingFire
}

// safeInvoke runs f, converting a panic into an error so that handler
// failures always reach the error sink rather than the dispatcher's
// caller (spec §4.9's exception substitute, see the "Error propagation"
// design note in spec.md §9).
func safeInvoke(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus: handler panicked: %v", r)
		}
	}()
	return f()
}

// resolveArgs builds the extra argument slice from d.ArgStrategies, in
// order, for one activation.
func (e *Engine) resolveArgs(ctx context.Context, d *HandlerDescriptor, event Event, isWaiting bool) ([]any, error) {
	if len(d.ArgStrategies) == 0 {
		return nil, nil
	}
	args := make([]any, len(d.ArgStrategies))
	for i, strat := range d.ArgStrategies {
		v, err := strat.Produce(ctx, event, isWaiting, d.Config, e.resolver)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// invoke carries out one activation of d against event, in the dispatch
// mode selected by await. release is called exactly once, at the point
// the activation actually completes (which, for a fire-and-forget
// suspending handler, is after the launched goroutine finishes, not after
// invoke returns) — this is what keeps the exclusive gate held for the
// handler's true duration rather than just its launch.
func (e *Engine) invoke(ctx context.Context, d *HandlerDescriptor, event Event, await bool, release func()) {
	if release == nil {
		release = func() {}
	}

	kind := kindFor(d, await)
	isWaiting := kind == InvokeKindSuspendingAwait

	args, err := e.resolveArgs(ctx, d, event, isWaiting)
	if err != nil {
		release()
		e.reportError(ctx, d, event, err)
		return
	}

	switch kind {
	case InvokeKindPlain:
		defer release()
		if err := safeInvoke(func() error { return d.Invoke(ctx, event, args) }); err != nil {
			e.reportError(ctx, d, event, err)
		}

	case InvokeKindSuspendingFire:
		// Launched on the engine-owned scheduler; the dispatch call does
		// not wait on it. The gate stays held until this goroutine
		// actually finishes.
		e.scheduler.Go(func() {
			defer release()
			if err := safeInvoke(func() error { return d.InvokeSuspend(ctx, event, args, false) }); err != nil {
				e.reportError(ctx, d, event, err)
			}
		})

	case InvokeKindSuspendingAwait:
		defer release()
		if err := safeInvoke(func() error { return d.InvokeSuspend(ctx, event, args, true) }); err != nil {
			e.reportError(ctx, d, event, err)
		}
	}
}

// reportError routes a handler failure to the configured ErrorSink,
// recovering if the sink itself panics (spec §4.9: "Error sink itself
// throws: log internally; do not propagate").
func (e *Engine) reportError(ctx context.Context, d *HandlerDescriptor, event Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("error sink panicked", "recovered", r, "handler_id", d.HandlerID)
		}
	}()
	e.errorSink.HandleError(ctx, d, event, err)
}
