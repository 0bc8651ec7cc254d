package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sensor_sync/internal/measure"
)

func TestAcquireExhausted(t *testing.T) {
	p := New(2)

	s1, ok := p.Acquire()
	require.True(t, ok)
	s2, ok := p.Acquire()
	require.True(t, ok)
	require.NotSame(t, s1, s2)

	_, ok = p.Acquire()
	assert.False(t, ok, "third acquire on capacity 2 must report exhaustion")

	p.Release(s1)
	s3, ok := p.Acquire()
	require.True(t, ok)
	assert.Same(t, s1, s3, "released slot must be reused, not reallocated")
}

func TestFIFOOrder(t *testing.T) {
	p := New(4)
	for _, ts := range []int64{10, 20, 30} {
		s, ok := p.Acquire()
		require.True(t, ok)
		s.Timestamp = ts
		p.Enqueue(s)
	}

	head, ok := p.Head()
	require.True(t, ok)
	assert.Equal(t, int64(10), head.Timestamp)

	tail, ok := p.Tail()
	require.True(t, ok)
	assert.Equal(t, int64(30), tail.Timestamp)

	var got []int64
	for {
		s, ok := p.PopHead()
		if !ok {
			break
		}
		got = append(got, s.Timestamp)
		p.Release(s)
	}
	assert.Equal(t, []int64{10, 20, 30}, got)
	assert.Equal(t, 4, p.Free())
}

func TestResizeInvariant(t *testing.T) {
	tests := []struct {
		name        string
		enqueue     int
		newCapacity int
		wantCap     int
	}{
		{name: "grow empty", enqueue: 0, newCapacity: 8, wantCap: 8},
		{name: "shrink empty", enqueue: 0, newCapacity: 2, wantCap: 2},
		{name: "grow with enqueued", enqueue: 3, newCapacity: 10, wantCap: 10},
		{name: "shrink keeps enqueued", enqueue: 3, newCapacity: 1, wantCap: 3},
		{name: "shrink to enqueued count", enqueue: 2, newCapacity: 2, wantCap: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(4)
			enqueued := make([]*measure.Sample, 0, tt.enqueue)
			for i := 0; i < tt.enqueue; i++ {
				s, ok := p.Acquire()
				require.True(t, ok)
				s.Timestamp = int64(i)
				p.Enqueue(s)
				enqueued = append(enqueued, s)
			}

			p.Resize(tt.newCapacity)

			assert.Equal(t, tt.wantCap, p.Capacity())
			assert.Equal(t, tt.wantCap, p.Free()+p.Len(),
				"available + enqueued must equal capacity at rest")

			// No enqueued entry may be evicted by a resize.
			require.Equal(t, tt.enqueue, p.Len())
			for i, want := range enqueued {
				s, ok := p.PopHead()
				require.True(t, ok)
				assert.Same(t, want, s, "enqueued entry %d", i)
				p.Release(s)
			}
		})
	}
}

func TestResetRestoresFullCapacity(t *testing.T) {
	p := New(3)
	for i := 0; i < 3; i++ {
		s, ok := p.Acquire()
		require.True(t, ok)
		p.Enqueue(s)
	}
	require.Equal(t, 0, p.Free())

	p.Reset()

	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 3, p.Free())
	assert.Equal(t, 3, p.Capacity())
}

func TestRingWrapAround(t *testing.T) {
	p := New(2)

	// Cycle more samples than the capacity through the FIFO to cross the
	// ring boundary several times.
	for ts := int64(0); ts < 10; ts++ {
		s, ok := p.Acquire()
		require.True(t, ok)
		s.Timestamp = ts
		p.Enqueue(s)

		head, ok := p.PopHead()
		require.True(t, ok)
		assert.Equal(t, ts, head.Timestamp)
		p.Release(head)
	}
}
