package eventbus

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStickyStorePutGetRemove(t *testing.T) {
	s := newStickyStore()
	ty := reflect.TypeOf(widget{})

	_, ok := s.get(ty)
	assert.False(t, ok)

	s.put(ty, widget{})
	v, ok := s.get(ty)
	assert.True(t, ok)
	assert.Equal(t, widget{}, v)

	s.remove(ty)
	_, ok = s.get(ty)
	assert.False(t, ok)
}

func TestStickyStoreSnapshotAndClear(t *testing.T) {
	s := newStickyStore()
	s.put(reflect.TypeOf(widget{}), widget{})
	s.put(reflect.TypeOf(0), 42)

	assert.Len(t, s.snapshot(), 2)

	s.clear()
	assert.Empty(t, s.snapshot())
}
