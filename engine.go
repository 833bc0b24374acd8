package eventbus

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
)

// ErrorSink is the external collaborator that receives handler and
// error-sink failures (spec §4.9, §7). It is never allowed to propagate
// back to the caller of Dispatch/DispatchAwait.
type ErrorSink interface {
	HandleError(ctx context.Context, d *HandlerDescriptor, event Event, err error)
}

// ErrorSinkFunc adapts a plain function to ErrorSink.
type ErrorSinkFunc func(ctx context.Context, d *HandlerDescriptor, event Event, err error)

func (f ErrorSinkFunc) HandleError(ctx context.Context, d *HandlerDescriptor, event Event, err error) {
	f(ctx, d, event, err)
}

// Components bundles the Engine's collaborators and bootstrap tuning. Every
// field is optional; NewEngine fills in safe defaults (a no-op logger, a
// log-to-logger error sink, a 4-worker scheduler, dead events and sticky
// both enabled) for anything left zero-valued.
type Components struct {
	Logger    Logger
	ErrorSink ErrorSink
	Resolver  Resolver
	Recorder  *EventRecorder

	SchedulerWorkers   int
	SchedulerQueueSize int
	DeadEventDisabled  bool
	StickyDisabled     bool
}

// DispatchOptions controls one Dispatch/DispatchAwait call (spec §6).
type DispatchOptions struct {
	// Sticky, if true, retains event for replay to future matching
	// registrations after this dispatch completes.
	Sticky bool

	// DeadEvent, if true (the default), allows this dispatch to synthesize
	// a DeadEvent when no non-silent handler matched.
	DeadEvent bool
}

// DefaultDispatchOptions returns {Sticky: false, DeadEvent: true}.
func DefaultDispatchOptions() DispatchOptions {
	return DispatchOptions{Sticky: false, DeadEvent: true}
}

// Engine is the dispatch engine: the type registry, handler buckets,
// exclusive gate, sticky store, and the matching/invocation loop that ties
// them together (spec C7). Safe for concurrent use from multiple
// goroutines; see spec.md §5.
type Engine struct {
	components Components

	registry  *typeRegistry
	gate      *exclusiveGate
	sticky    *stickyStore
	scheduler *activationScheduler

	logger    Logger
	errorSink ErrorSink
	resolver  Resolver
	recorder  *EventRecorder

	closed     atomic.Bool
	seqCounter atomic.Uint64

	dispatchedCount    atomic.Uint64
	handledCount       atomic.Uint64
	deadEventCount     atomic.Uint64
	exclusiveSkipCount atomic.Uint64
	stickyReplayCount  atomic.Uint64
}

// NewEngine constructs an Engine with the given collaborators. The
// returned engine is open and its scheduler is already running.
func NewEngine(components Components) *Engine {
	logger := components.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	errSink := components.ErrorSink
	if errSink == nil {
		capturedLogger := logger
		errSink = ErrorSinkFunc(func(_ context.Context, d *HandlerDescriptor, _ Event, err error) {
			capturedLogger.Error("handler failed", "handler_id", d.HandlerID, "event_type", d.EventType, "error", err)
		})
	}

	workers := components.SchedulerWorkers
	queueSize := components.SchedulerQueueSize

	e := &Engine{
		components: components,
		registry:   newTypeRegistry(),
		gate:       newExclusiveGate(),
		sticky:     newStickyStore(),
		scheduler:  newActivationScheduler(workers, queueSize),
		logger:     logger,
		errorSink:  errSink,
		resolver:   components.Resolver,
		recorder:   components.Recorder,
	}
	return e
}

// Stats returns a point-in-time snapshot of the engine's delivery counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Dispatched:     e.dispatchedCount.Load(),
		Handled:        e.handledCount.Load(),
		DeadEvents:     e.deadEventCount.Load(),
		ExclusiveSkips: e.exclusiveSkipCount.Load(),
		StickyReplays:  e.stickyReplayCount.Load(),
	}
}

// Register validates and adds d to its bucket, then (unless suppressed)
// replays any matching sticky event to it in isolation (spec §4.4, §4.7.1).
func (e *Engine) Register(d *HandlerDescriptor) (*Token, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if d.EventType == nil {
		return nil, fmt.Errorf("%w: event type is required", ErrInvalidDescriptor)
	}
	if d.HandlerID == "" {
		return nil, fmt.Errorf("%w: handler id is required", ErrInvalidDescriptor)
	}
	if d.Suspends {
		if d.InvokeSuspend == nil {
			return nil, fmt.Errorf("%w: invoke_suspend closure is required when suspends=true", ErrInvalidDescriptor)
		}
	} else {
		if d.Invoke == nil {
			return nil, fmt.Errorf("%w: invoke closure is required", ErrInvalidDescriptor)
		}
		if d.InvokeSuspend == nil {
			// "may equal invoke when !suspends" (spec C3) — fill in so the
			// invocation path never needs a nil check.
			inv := d.Invoke
			d.InvokeSuspend = func(ctx context.Context, event Event, args []any, _ bool) error {
				return inv(ctx, event, args)
			}
		}
	}

	d.seq = e.seqCounter.Add(1)
	e.registry.bucketFor(d.EventType).insert(d)

	e.logger.Debug("handler registered", "event_type", d.EventType.String(), "handler_id", d.HandlerID)
	e.recorder.record(context.Background(), RecordTypeHandlerRegistered, map[string]any{
		"event_type": d.EventType.String(),
		"handler_id": d.HandlerID,
	})

	e.replayStickyFor(d)

	return &Token{engine: e, handlerID: d.HandlerID, eventType: d.EventType}, nil
}

// replayStickyFor delivers every retained sticky event that d would match
// were it dispatched live, once, in isolation. Replay never synthesizes a
// DeadEvent even if d is the only handler that could ever have matched.
func (e *Engine) replayStickyFor(d *HandlerDescriptor) {
	if e.components.StickyDisabled || d.ignoreSticky() {
		return
	}
	for _, entry := range e.sticky.snapshot() {
		if !e.handlerMatches(d, entry.concreteType, entry.event) {
			continue
		}
		e.stickyReplayCount.Add(1)
		e.recorder.record(context.Background(), RecordTypeStickyReplayed, map[string]any{
			"event_type": entry.concreteType.String(),
			"handler_id": d.HandlerID,
		})
		e.invoke(context.Background(), d, entry.event, false, nil)
	}
}

// handlerMatches applies the same subtype/disallow/generic rules dispatch
// uses (spec §4.7.2) to decide whether a single descriptor accepts an
// event of concrete type k.
func (e *Engine) handlerMatches(d *HandlerDescriptor, k reflect.Type, event Event) bool {
	kPrime := d.EventType
	if !(kPrime == k || (kPrime.Kind() == reflect.Interface && k.Implements(kPrime))) {
		return false
	}
	if d.disallowSubtypes() && k != kPrime {
		return false
	}
	if k == kPrime {
		if gt, ok := event.(GenericTyped); ok && len(d.GenericSpec) > 0 {
			if args := gt.GenericTypeArgs(); len(args) > 0 && !matchesGeneric(d.GenericSpec, args) {
				return false
			}
		}
	}
	return true
}

// unregisterToken removes the single descriptor a Token was issued for.
func (e *Engine) unregisterToken(t *Token) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	et, _ := t.eventType.(reflect.Type)
	bucket, ok := e.registry.existing(et)
	if !ok || !bucket.removeByID(t.handlerID) {
		return ErrNoSuchRegistration
	}
	return nil
}

// UnregisterOwner removes every descriptor registered with OwnerTag ==
// owner (used by source-adapter-built registrations).
func (e *Engine) UnregisterOwner(owner any) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if e.registry.removeByOwner(owner) == 0 {
		return ErrNoSuchRegistration
	}
	return nil
}

// SourceAdapter is the external collaborator that turns an arbitrary
// "source" object (annotated struct, generated binding, ...) into
// HandlerDescriptor values. Descriptor construction itself is explicitly
// out of the core's scope (spec §1); the engine only knows how to call it.
type SourceAdapter interface {
	BuildDescriptors(source any) ([]*HandlerDescriptor, error)
}

// RegisterSource delegates descriptor construction to adapter and
// registers every resulting descriptor, tagging each with source as its
// OwnerTag unless the adapter already set one. If any registration fails,
// already-registered descriptors from this call are rolled back.
func (e *Engine) RegisterSource(adapter SourceAdapter, source any) (*TokenBag, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	descs, err := adapter.BuildDescriptors(source)
	if err != nil {
		return nil, err
	}
	bag := &TokenBag{}
	for _, d := range descs {
		if d.OwnerTag == nil {
			d.OwnerTag = source
		}
		tok, err := e.Register(d)
		if err != nil {
			for _, t := range bag.tokens {
				_ = t.Unregister()
			}
			return nil, err
		}
		bag.tokens = append(bag.tokens, tok)
	}
	return bag, nil
}

// UnregisterSource unregisters every token in bag.
func (e *Engine) UnregisterSource(bag *TokenBag) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if bag == nil {
		return nil
	}
	for _, t := range bag.tokens {
		_ = t.Unregister()
	}
	return nil
}

// Dispatch delivers event non-blockingly: it returns once every
// non-suspending handler has executed; suspending handlers are launched
// fire-and-forget (spec §4.7.3).
func (e *Engine) Dispatch(ctx context.Context, event Event, opts ...DispatchOptions) error {
	o := DefaultDispatchOptions()
	if len(opts) > 0 {
		o = opts[0]
	}
	return e.dispatch(ctx, event, false, o)
}

// DispatchAwait delivers event, awaiting every matched handler's
// completion in priority order, including suspending ones (spec §4.7.3).
func (e *Engine) DispatchAwait(ctx context.Context, event Event, opts ...DispatchOptions) error {
	o := DefaultDispatchOptions()
	if len(opts) > 0 {
		o = opts[0]
	}
	return e.dispatch(ctx, event, true, o)
}

func (e *Engine) dispatch(ctx context.Context, event Event, await bool, opts DispatchOptions) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	k := reflect.TypeOf(event)
	if k == nil {
		return fmt.Errorf("%w: event must be a non-nil concrete value", ErrInvalidDescriptor)
	}

	e.dispatchedCount.Add(1)

	var genericArgs []reflect.Type
	if gt, ok := event.(GenericTyped); ok {
		genericArgs = gt.GenericTypeArgs()
	}

	handled := false

	for _, kPrime := range e.registry.matchingKeys(k) {
		bucket, ok := e.registry.existing(kPrime)
		if !ok {
			continue
		}
		for _, d := range bucket.snapshot() {
			if d.disallowSubtypes() && k != kPrime {
				continue
			}
			if k == kPrime && len(genericArgs) > 0 && len(d.GenericSpec) > 0 {
				if !matchesGeneric(d.GenericSpec, genericArgs) {
					continue
				}
			}

			var release func()
			if d.exclusive() {
				if !e.gate.tryAcquire(d.HandlerID) {
					e.exclusiveSkipCount.Add(1)
					e.logger.Debug("exclusive handler skipped", "handler_id", d.HandlerID)
					e.recorder.record(ctx, RecordTypeHandlerSkipped, map[string]any{"handler_id": d.HandlerID})
					continue
				}
				release = func() { e.gate.release(d.HandlerID) }
			}

			e.invoke(ctx, d, event, await, release)

			if !d.silent() {
				handled = true
				e.handledCount.Add(1)
			}
		}
	}

	if opts.Sticky && !e.components.StickyDisabled {
		e.sticky.put(k, event)
	}

	if !handled && opts.DeadEvent && !e.components.DeadEventDisabled {
		if _, alreadyDead := event.(DeadEvent); !alreadyDead {
			e.deadEventCount.Add(1)
			e.logger.Debug("dead event synthesized", "event_type", k.String())
			e.recorder.record(ctx, RecordTypeDeadEvent, map[string]any{"event_type": k.String()})
			return e.dispatch(ctx, DeadEvent{Original: event}, await, DispatchOptions{Sticky: false, DeadEvent: true})
		}
	}

	if handled {
		e.recorder.record(ctx, RecordTypeDelivered, map[string]any{"event_type": k.String()})
	}

	return nil
}

// ClearSticky discards every retained sticky event.
func (e *Engine) ClearSticky() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	e.sticky.clear()
	return nil
}

// RemoveSticky discards the retained sticky event for eventType, if any.
func (e *Engine) RemoveSticky(eventType reflect.Type) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	e.sticky.remove(eventType)
	return nil
}

// Close transitions the engine to closed: every public operation
// afterwards fails with ErrEngineClosed, including a second Close call.
// Buckets and sticky entries are cleared, the exclusive gate is pruned,
// and the engine-owned scheduler is cancelled.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}
	e.registry.clear()
	e.sticky.clear()
	e.gate.prune()
	e.scheduler.close()
	e.logger.Info("engine closed")
	e.recorder.record(context.Background(), RecordTypeEngineClosed, nil)
	return nil
}
