package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event type constants for the optional event recorder, following
// CloudEvents reverse-domain convention.
const (
	RecordTypeDelivered        = "io.eventbus.manager.dispatch.delivered"
	RecordTypeDeadEvent        = "io.eventbus.manager.dispatch.dead_event"
	RecordTypeHandlerSkipped   = "io.eventbus.manager.handler.exclusive_skipped"
	RecordTypeHandlerRegistered = "io.eventbus.manager.handler.registered"
	RecordTypeStickyReplayed   = "io.eventbus.manager.sticky.replayed"
	RecordTypeEngineClosed     = "io.eventbus.manager.engine.closed"
)

// Observer receives CloudEvents emitted by an EventRecorder. This mirrors
// the teacher's modular.Observer/Subject pattern, so anything already
// built against that shape (a logging sink, an audit trail, a metrics
// bridge) plugs straight in.
type Observer interface {
	OnEvent(ctx context.Context, event cloudevents.Event) error
	ObserverID() string
}

// Subject is implemented by EventRecorder.
type Subject interface {
	RegisterObserver(observer Observer) error
	UnregisterObserver(observer Observer) error
	NotifyObservers(ctx context.Context, event cloudevents.Event) error
}

// EventRecorder is the "optional event recorder" spec.md keeps outside the
// core's scope, given a concrete, swappable home: it wraps the events the
// engine already produces (delivered, dead-event, sticky replay, ...) as
// CloudEvents and fans them out to registered Observers. Observers are
// called synchronously on the engine goroutine that produced the
// occurrence and their errors are ignored; a nil *EventRecorder is always
// safe to call through.
type EventRecorder struct {
	mu        sync.RWMutex
	observers map[string]Observer
	source    string
}

// NewEventRecorder creates a recorder that stamps every CloudEvent's
// source attribute with source (defaulting to "eventbus.manager").
func NewEventRecorder(source string) *EventRecorder {
	if source == "" {
		source = "eventbus.manager"
	}
	return &EventRecorder{observers: make(map[string]Observer), source: source}
}

func (r *EventRecorder) RegisterObserver(o Observer) error {
	if o == nil {
		return fmt.Errorf("eventbus: observer cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers[o.ObserverID()] = o
	return nil
}

func (r *EventRecorder) UnregisterObserver(o Observer) error {
	if o == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observers, o.ObserverID())
	return nil
}

func (r *EventRecorder) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	r.mu.RLock()
	obs := make([]Observer, 0, len(r.observers))
	for _, o := range r.observers {
		obs = append(obs, o)
	}
	r.mu.RUnlock()

	for _, o := range obs {
		if err := o.OnEvent(ctx, event); err != nil {
			return fmt.Errorf("observer %s: %w", o.ObserverID(), err)
		}
	}
	return nil
}

// record builds a CloudEvent of the given type wrapping payload and
// notifies observers, best-effort. It never blocks dispatch on observer
// failures (the only caller is the Engine's own instrumentation, not a
// user-visible API).
func (r *EventRecorder) record(ctx context.Context, eventType string, payload map[string]any) {
	if r == nil {
		return
	}
	ce := cloudevents.NewEvent()
	ce.SetID(uuid.NewString())
	ce.SetSource(r.source)
	ce.SetType(eventType)
	ce.SetTime(time.Now())
	ce.SetSpecVersion(cloudevents.VersionV1)
	if payload != nil {
		_ = ce.SetData(cloudevents.ApplicationJSON, payload)
	}
	_ = r.NotifyObservers(ctx, ce)
}
