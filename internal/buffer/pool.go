// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package buffer

import (
	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// Pool is the fixed-capacity sample store for one channel. Slots are
// preallocated and recycled: at rest every slot is either on the available
// free list or in the enqueued FIFO, so steady-state ingestion performs no
// heap allocation.
//
// A slot handed out by Acquire (and not yet enqueued or released) is owned
// by the caller; releasing a slot twice corrupts the free list, so callers
// must track ownership. Pool is not goroutine-safe.
type Pool struct {
	capacity  int
	available []*measure.Sample

	// enqueued FIFO as a ring, oldest at head.
	ring  []*measure.Sample
	head  int
	count int
}

// New creates a pool with the given capacity (minimum 1).
func New(capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	p := &Pool{
		capacity:  capacity,
		available: make([]*measure.Sample, 0, capacity),
		ring:      make([]*measure.Sample, capacity),
	}
	for i := 0; i < capacity; i++ {
		p.available = append(p.available, &measure.Sample{})
	}
	return p
}

// Capacity returns the total number of slots.
func (p *Pool) Capacity() int { return p.capacity }

// Len returns the number of enqueued samples.
func (p *Pool) Len() int { return p.count }

// Free returns the number of slots on the free list.
func (p *Pool) Free() int { return len(p.available) }

// Acquire takes a slot off the free list. The second return is false when
// the pool is exhausted; callers must not allocate a replacement slot.
func (p *Pool) Acquire() (*measure.Sample, bool) {
	n := len(p.available)
	if n == 0 {
		return nil, false
	}
	s := p.available[n-1]
	p.available = p.available[:n-1]
	return s, true
}

// Release returns a slot to the free list.
func (p *Pool) Release(s *measure.Sample) {
	p.available = append(p.available, s)
}

// Enqueue appends an acquired slot to the tail of the FIFO. Samples arrive
// in timestamp order per channel, so append preserves oldest-first order.
func (p *Pool) Enqueue(s *measure.Sample) {
	p.ring[(p.head+p.count)%len(p.ring)] = s
	p.count++
}

// Head returns the oldest enqueued sample without removing it.
func (p *Pool) Head() (*measure.Sample, bool) {
	if p.count == 0 {
		return nil, false
	}
	return p.ring[p.head], true
}

// Tail returns the newest enqueued sample without removing it.
func (p *Pool) Tail() (*measure.Sample, bool) {
	if p.count == 0 {
		return nil, false
	}
	return p.ring[(p.head+p.count-1)%len(p.ring)], true
}

// PopHead removes and returns the oldest enqueued sample. Ownership moves
// to the caller, which must eventually Release or re-Enqueue the slot.
func (p *Pool) PopHead() (*measure.Sample, bool) {
	if p.count == 0 {
		return nil, false
	}
	s := p.ring[p.head]
	p.ring[p.head] = nil
	p.head = (p.head + 1) % len(p.ring)
	p.count--
	return s, true
}

// Resize grows the free list with fresh slots or shrinks it by discarding
// free slots. Enqueued samples are never evicted: shrinking below the
// number of in-use slots stops once the free list is empty.
func (p *Pool) Resize(newCapacity int) {
	if newCapacity < 1 {
		newCapacity = 1
	}
	if newCapacity > p.capacity {
		for i := p.capacity; i < newCapacity; i++ {
			p.available = append(p.available, &measure.Sample{})
		}
		p.capacity = newCapacity
	} else if newCapacity < p.capacity {
		drop := p.capacity - newCapacity
		if drop > len(p.available) {
			drop = len(p.available)
		}
		p.available = p.available[:len(p.available)-drop]
		p.capacity -= drop
	}
	p.rebuildRing()
}

// Reset moves every enqueued sample back to the free list, restoring the
// pool to its full configured capacity.
func (p *Pool) Reset() {
	for {
		s, ok := p.PopHead()
		if !ok {
			break
		}
		p.Release(s)
	}
	p.head = 0
}

// rebuildRing reallocates the FIFO storage for the current capacity,
// preserving enqueued order.
func (p *Pool) rebuildRing() {
	ring := make([]*measure.Sample, p.capacity)
	for i := 0; i < p.count; i++ {
		ring[i] = p.ring[(p.head+i)%len(p.ring)]
	}
	p.ring = ring
	p.head = 0
}
