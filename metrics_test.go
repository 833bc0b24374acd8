package eventbus

import (
	"context"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollectorReportsDispatchCount(t *testing.T) {
	e := newTestEngine(t)
	collector := NewPrometheusCollector(e, "")

	_, err := e.Register(&HandlerDescriptor{
		EventType: reflect.TypeOf(widget{}),
		HandlerID: "h",
		Invoke:    func(context.Context, Event, []any) error { return nil },
	})
	require.NoError(t, err)

	require.NoError(t, e.DispatchAwait(context.Background(), widget{}, DispatchOptions{DeadEvent: false}))

	count := testutil.CollectAndCount(collector)
	assert.Equal(t, 5, count)
}
