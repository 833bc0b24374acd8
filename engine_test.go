package eventbus

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderPlaced struct {
	ID string
}

type orderEvent interface{ isOrder() }

func (orderPlaced) isOrder() {}

type prioritySample struct{ N int }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(Components{SchedulerWorkers: 2, SchedulerQueueSize: 8})
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestDispatchInvokesHandlersInPriorityOrder(t *testing.T) {
	e := newTestEngine(t)

	var mu sync.Mutex
	var order []string

	register := func(id string, priority int) {
		_, err := e.Register(&HandlerDescriptor{
			EventType: reflect.TypeOf(prioritySample{}),
			HandlerID: id,
			Config:    NewConfiguration(map[string]any{PriorityKey.ID(): priority}),
			Invoke: func(_ context.Context, _ Event, _ []any) error {
				mu.Lock()
				order = append(order, id)
				mu.Unlock()
				return nil
			},
		})
		require.NoError(t, err)
	}

	register("low", 0)
	register("high", 10)
	register("mid", 5)

	require.NoError(t, e.DispatchAwait(context.Background(), prioritySample{N: 1}))

	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestDispatchMatchesSubtypeViaMarkerInterface(t *testing.T) {
	e := newTestEngine(t)

	var got atomic.Int64
	_, err := e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf((*orderEvent)(nil)).Elem(),
		HandlerID: "order-listener",
		Invoke: func(_ context.Context, _ Event, _ []any) error {
			got.Add(1)
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.DispatchAwait(context.Background(), orderPlaced{ID: "o1"}))
	assert.Equal(t, int64(1), got.Load())
}

func TestDisallowSubtypesRejectsInterfaceMatch(t *testing.T) {
	e := newTestEngine(t)

	var got atomic.Int64
	_, err := e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf((*orderEvent)(nil)).Elem(),
		HandlerID: "exact-only",
		Config:    NewConfiguration(map[string]any{DisallowSubtypesKey.ID(): true}),
		Invoke: func(_ context.Context, _ Event, _ []any) error {
			got.Add(1)
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.DispatchAwait(context.Background(), orderPlaced{ID: "o1"}, DispatchOptions{DeadEvent: false}))
	assert.Equal(t, int64(0), got.Load())
}

func TestDeadEventSynthesizedWhenNoHandlerMatches(t *testing.T) {
	e := newTestEngine(t)

	var dead atomic.Int64
	var originalType string
	_, err := e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf(DeadEvent{}),
		HandlerID: "dead-listener",
		Invoke: func(_ context.Context, event Event, _ []any) error {
			dead.Add(1)
			originalType = reflect.TypeOf(event.(DeadEvent).Original).String()
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.DispatchAwait(context.Background(), widget{}))
	assert.Equal(t, int64(1), dead.Load())
	assert.Equal(t, "eventbus.widget", originalType)
}

func TestDeadEventDoesNotRecurse(t *testing.T) {
	e := newTestEngine(t)

	var dead atomic.Int64
	_, err := e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf(DeadEvent{}),
		HandlerID: "dead-listener",
		Config:    NewConfiguration(map[string]any{SilentKey.ID(): true}),
		Invoke: func(_ context.Context, _ Event, _ []any) error {
			dead.Add(1)
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.DispatchAwait(context.Background(), widget{}))
	// The original widget{} produced exactly one DeadEvent; that DeadEvent
	// itself found only a silent handler, so a second DeadEvent must not
	// have been synthesized around it.
	assert.Equal(t, int64(1), dead.Load())
}

func TestSilentHandlerStillAllowsDeadEventFromOtherNonSilentAbsence(t *testing.T) {
	e := newTestEngine(t)

	var silentCalls, dead atomic.Int64
	_, err := e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf(widget{}),
		HandlerID: "silent-listener",
		Config:    NewConfiguration(map[string]any{SilentKey.ID(): true}),
		Invoke: func(_ context.Context, _ Event, _ []any) error {
			silentCalls.Add(1)
			return nil
		},
	})
	require.NoError(t, err)

	_, err = e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf(DeadEvent{}),
		HandlerID: "dead-listener",
		Invoke: func(_ context.Context, _ Event, _ []any) error {
			dead.Add(1)
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.DispatchAwait(context.Background(), widget{}))
	assert.Equal(t, int64(1), silentCalls.Load())
	assert.Equal(t, int64(1), dead.Load())
}

func TestExclusiveHandlerSkipsConcurrentActivation(t *testing.T) {
	e := newTestEngine(t)

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var activeCount atomic.Int32
	var maxActive atomic.Int32

	_, err := e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf(widget{}),
		HandlerID: "exclusive-worker",
		Config:    NewConfiguration(map[string]any{ExclusiveKey.ID(): true}),
		Invoke: func(_ context.Context, _ Event, _ []any) error {
			n := activeCount.Add(1)
			for {
				old := maxActive.Load()
				if n <= old || maxActive.CompareAndSwap(old, n) {
					break
				}
			}
			started <- struct{}{}
			<-release
			activeCount.Add(-1)
			return nil
		},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = e.Dispatch(context.Background(), widget{}) }()
	<-started

	go func() { defer wg.Done(); _ = e.Dispatch(context.Background(), widget{}) }()
	time.Sleep(20 * time.Millisecond)

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestStickyReplayOnRegisterAndIgnoreStickySuppression(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.Dispatch(context.Background(), widget{}, DispatchOptions{Sticky: true, DeadEvent: false}))

	var replayed atomic.Int64
	_, err := e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf(widget{}),
		HandlerID: "late-subscriber",
		Invoke: func(_ context.Context, _ Event, _ []any) error {
			replayed.Add(1)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), replayed.Load())

	var ignored atomic.Int64
	_, err = e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf(widget{}),
		HandlerID: "opted-out",
		Config:    NewConfiguration(map[string]any{IgnoreStickyKey.ID(): true}),
		Invoke: func(_ context.Context, _ Event, _ []any) error {
			ignored.Add(1)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), ignored.Load())
}

func TestCloseIsIdempotentAndReturnsErrEngineClosed(t *testing.T) {
	e := NewEngine(Components{})
	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.Close(), ErrEngineClosed)

	assert.ErrorIs(t, e.Dispatch(context.Background(), widget{}), ErrEngineClosed)
	_, err := e.Register(&HandlerDescriptor{EventType: reflect.TypeOf(widget{}), HandlerID: "x", Invoke: func(context.Context, Event, []any) error { return nil }})
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestHandlerPanicIsIsolatedAndReportedToErrorSink(t *testing.T) {
	var reported []string
	var mu sync.Mutex

	e := NewEngine(Components{
		ErrorSink: ErrorSinkFunc(func(_ context.Context, d *HandlerDescriptor, _ Event, err error) {
			mu.Lock()
			reported = append(reported, d.HandlerID)
			mu.Unlock()
			assert.Error(t, err)
		}),
	})
	t.Cleanup(func() { _ = e.Close() })

	var secondRan atomic.Bool
	_, err := e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf(widget{}),
		HandlerID: "panics",
		Config:    NewConfiguration(map[string]any{PriorityKey.ID(): 10}),
		Invoke: func(context.Context, Event, []any) error {
			panic("boom")
		},
	})
	require.NoError(t, err)

	_, err = e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf(widget{}),
		HandlerID: "runs-after",
		Config:    NewConfiguration(map[string]any{PriorityKey.ID(): 0}),
		Invoke: func(context.Context, Event, []any) error {
			secondRan.Store(true)
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.DispatchAwait(context.Background(), widget{}, DispatchOptions{DeadEvent: false}))

	assert.True(t, secondRan.Load())
	mu.Lock()
	assert.Contains(t, reported, "panics")
	mu.Unlock()
}

func TestDispatchFireAndForgetSuspendingHandlerRunsAsynchronously(t *testing.T) {
	e := newTestEngine(t)

	done := make(chan bool, 1)
	_, err := e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf(widget{}),
		HandlerID: "suspender",
		Suspends:  true,
		InvokeSuspend: func(_ context.Context, _ Event, _ []any, isWaiting bool) error {
			done <- isWaiting
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.Dispatch(context.Background(), widget{}, DispatchOptions{DeadEvent: false}))

	select {
	case isWaiting := <-done:
		assert.False(t, isWaiting)
	case <-time.After(time.Second):
		t.Fatal("suspending handler never ran")
	}
}

func TestDispatchAwaitSuspendingHandlerRunsInPlace(t *testing.T) {
	e := newTestEngine(t)

	var isWaitingSeen bool
	_, err := e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf(widget{}),
		HandlerID: "suspender",
		Suspends:  true,
		InvokeSuspend: func(_ context.Context, _ Event, _ []any, isWaiting bool) error {
			isWaitingSeen = isWaiting
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.DispatchAwait(context.Background(), widget{}, DispatchOptions{DeadEvent: false}))
	assert.True(t, isWaitingSeen)
}

func TestErrorSinkPanicIsRecoveredAndDoesNotPropagate(t *testing.T) {
	e := NewEngine(Components{
		ErrorSink: ErrorSinkFunc(func(context.Context, *HandlerDescriptor, Event, error) {
			panic("sink exploded")
		}),
	})
	t.Cleanup(func() { _ = e.Close() })

	_, err := e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf(widget{}),
		HandlerID: "panics",
		Invoke:    func(context.Context, Event, []any) error { return errors.New("boom") },
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_ = e.DispatchAwait(context.Background(), widget{}, DispatchOptions{DeadEvent: false})
	})
}

func TestStatsTrackDispatchAndHandled(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf(widget{}),
		HandlerID: "h",
		Invoke:    func(context.Context, Event, []any) error { return nil },
	})
	require.NoError(t, err)

	require.NoError(t, e.DispatchAwait(context.Background(), widget{}, DispatchOptions{DeadEvent: false}))

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.Dispatched)
	assert.Equal(t, uint64(1), stats.Handled)
}

func TestHealthCheckReflectsClosedState(t *testing.T) {
	e := NewEngine(Components{})
	report := e.HealthCheck()
	assert.Equal(t, HealthStatusHealthy, report.Status)

	require.NoError(t, e.Close())
	report = e.HealthCheck()
	assert.Equal(t, HealthStatusUnhealthy, report.Status)
}
