package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerCoalescesBursts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var fired atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 5; i++ {
		n := int32(i)
		d.Trigger("alice", func() {
			fired.Add(1)
			last.Store(n)
		})
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load(), "burst must collapse into one run")
	assert.Equal(t, int32(5), last.Load(), "the newest trigger wins")
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	defer d.Stop()

	var a, b atomic.Int32
	d.Trigger("alice", func() { a.Add(1) })
	d.Trigger("bob", func() { b.Add(1) })

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(1), b.Load())
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	var fired atomic.Int32
	d.Trigger("alice", func() { fired.Add(1) })
	d.Cancel("alice")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestDebouncerZeroWindowRunsInline(t *testing.T) {
	d := NewDebouncer(0)
	var fired int
	d.Trigger("alice", func() { fired++ })
	d.Trigger("alice", func() { fired++ })
	assert.Equal(t, 2, fired)
}
