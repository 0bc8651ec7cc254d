// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package syncer

import (
	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// CarryForwardSyncer is the primary-driven merge strategy. One designated
// primary channel drives emission; each secondary channel contributes its
// most recent sample with timestamp at or before the primary's, carried
// forward from the last known value when nothing fresher exists.
//
// Not goroutine-safe; see the package comment.
type CarryForwardSyncer struct {
	channels    []*channelState
	primary     *channelState
	secondaries []*channelState

	skipWhenProcessing   bool
	stopWhenFilledBuffer bool
	stopWhenOutOfOrder   bool
	detectStale          bool
	staleOffset          int64

	listeners Listeners
	clock     func() int64

	life       lifecycle
	ts         timestamps
	processed  uint64
	processing bool

	// synced is the reusable composite handed to OnSynced, overwritten in
	// place on every emission.
	synced *measure.SyncedSample

	// staleBatch is the reusable scratch for the stale sweep.
	staleBatch []measure.Sample
}

// New creates a carry-forward syncer. The engine starts idle; Start begins
// adapter delivery.
func New(cfg Config) (*CarryForwardSyncer, error) {
	states, primary, err := buildChannels(cfg.Channels)
	if err != nil {
		return nil, err
	}

	s := &CarryForwardSyncer{
		channels:             states,
		primary:              primary,
		skipWhenProcessing:   cfg.SkipWhenProcessing,
		stopWhenFilledBuffer: cfg.StopWhenFilledBuffer,
		stopWhenOutOfOrder:   cfg.StopWhenOutOfOrder,
		detectStale:          cfg.DetectStale,
		staleOffset:          cfg.StaleOffsetNanos,
		listeners:            cfg.Listeners,
		clock:                defaultClock(cfg.Clock),
		life:                 newLifecycle(states),
		synced:               measure.NewSyncedSample(channelTypes(states)),
	}
	for _, st := range states {
		if st != primary {
			s.secondaries = append(s.secondaries, st)
		}
	}

	bind(states, s.Ingest, s.accuracyChanged)
	return s, nil
}

// Start resets all engine state and starts the configured adapters, using
// the engine clock for the start timestamp.
func (s *CarryForwardSyncer) Start() error {
	return s.StartAt(s.clock())
}

// StartAt is Start with an explicit start timestamp in monotonic
// nanoseconds. Returns ErrAlreadyRunning when the engine is not idle; a
// failed adapter start leaves the engine idle.
func (s *CarryForwardSyncer) StartAt(startTimestamp int64) error {
	if s.life.running {
		return ErrAlreadyRunning
	}
	s.reset()
	s.life.startTS = startTimestamp
	if err := s.life.startAdapters(startTimestamp); err != nil {
		return err
	}
	s.life.running = true
	return nil
}

// Stop stops every adapter (best effort), returns all buffered samples to
// their pools, clears counters, timestamps and carry-forward state, and
// leaves the engine idle. Always succeeds; calling Stop on an idle engine
// is a no-op beyond re-clearing already-clear state.
func (s *CarryForwardSyncer) Stop() {
	s.life.stopAdapters()
	s.life.running = false
	s.reset()
}

func (s *CarryForwardSyncer) reset() {
	for _, st := range s.channels {
		st.resetCarry()
		st.pool.Reset()
		st.pool.Resize(st.capacity)
	}
	s.ts.clear()
	s.processed = 0
	s.life.startTS = 0
}

// Running reports whether the engine is between a successful Start and the
// next Stop.
func (s *CarryForwardSyncer) Running() bool { return s.life.running }

// StartTimestamp returns the timestamp the engine was started at, or zero
// when idle.
func (s *CarryForwardSyncer) StartTimestamp() int64 { return s.life.startTS }

// ProcessedMeasurements returns the number of synced samples emitted since
// Start.
func (s *CarryForwardSyncer) ProcessedMeasurements() uint64 { return s.processed }

// MostRecentTimestamp returns the maximum timestamp accepted on any channel
// so far. The second return is false before the first ingestion.
func (s *CarryForwardSyncer) MostRecentTimestamp() (int64, bool) {
	return s.ts.mostRecent, s.ts.hasMostRecent
}

// OldestTimestamp returns the minimum timestamp among currently buffered
// samples. The second return is false when all buffers are empty.
func (s *CarryForwardSyncer) OldestTimestamp() (int64, bool) {
	return s.ts.oldest, s.ts.hasOldest
}

// Usage returns the enqueued count and capacity for one channel.
func (s *CarryForwardSyncer) Usage(ch measure.ChannelType) (enqueued, capacity int) {
	if st := s.state(ch); st != nil {
		return st.pool.Len(), st.pool.Capacity()
	}
	return 0, 0
}

func (s *CarryForwardSyncer) state(ch measure.ChannelType) *channelState {
	for _, st := range s.channels {
		if st.channel == ch {
			return st
		}
	}
	return nil
}

// Ingest feeds a batch of new samples for one channel. Batches must be
// timestamp-ordered within the channel. Secondary batches only buffer;
// primary batches buffer and then drive synchronization.
func (s *CarryForwardSyncer) Ingest(ch measure.ChannelType, batch []measure.Sample) {
	if !s.life.running {
		return
	}
	st := s.state(ch)
	if st == nil {
		return
	}

	if st != s.primary {
		for i := range batch {
			s.buffer(st, &batch[i])
			if !s.life.running {
				return
			}
		}
		return
	}

	for i := range batch {
		if s.skipWhenProcessing && s.processing {
			// Re-entrant arrival mid-synchronization: shed it.
			continue
		}
		if s.buffer(st, &batch[i]) {
			s.process()
		}
		if !s.life.running {
			return
		}
	}
}

// buffer copies one incoming sample into a pooled slot. On exhaustion the
// sample is dropped, a buffer-filled notification is raised and, per
// configuration, the engine stops.
func (s *CarryForwardSyncer) buffer(st *channelState, sample *measure.Sample) bool {
	slot, ok := st.pool.Acquire()
	if !ok {
		if s.listeners.OnBufferFilled != nil {
			s.listeners.OnBufferFilled(st.channel)
		}
		if s.stopWhenFilledBuffer {
			s.Stop()
		}
		return false
	}
	slot.CopyFrom(sample)
	slot.Channel = st.channel
	st.pool.Enqueue(slot)
	s.ts.accept(slot.Timestamp)
	s.ts.refreshOldest(s.channels)
	return true
}

// process synchronizes every buffered primary sample, oldest first,
// stopping at the first one that cannot yet be matched.
func (s *CarryForwardSyncer) process() {
	if s.processing {
		return
	}
	s.processing = true
	defer func() { s.processing = false }()

	for s.life.running {
		ph, ok := s.primary.pool.Head()
		if !ok {
			break
		}
		if !s.advanceCarry(ph.Timestamp) {
			// Some secondary has never produced a value: the primary
			// sample stays buffered and is retried on the next batch.
			break
		}

		// Build the composite: the primary contributes its own sample and
		// the reference time; secondaries contribute their carry values
		// with their original timestamps unchanged.
		s.synced.Timestamp = ph.Timestamp
		for i, st := range s.channels {
			if st == s.primary {
				s.synced.Samples[i] = *ph
			} else {
				s.synced.Samples[i] = *st.carry
			}
		}

		s.primary.pool.PopHead()
		s.primary.pool.Release(ph)
		s.processed++
		s.ts.refreshOldest(s.channels)

		outOfOrder := s.checkOrder()
		if !s.life.running {
			// A listener stopped the engine from OnOutOfOrder; carry
			// state is already cleared.
			return
		}

		if s.listeners.OnSynced != nil {
			s.listeners.OnSynced(s.synced)
		}
		if !s.life.running {
			// Stopped re-entrantly from OnSynced.
			return
		}
		for _, sec := range s.secondaries {
			sec.lastEmitted = sec.carry.Timestamp
			sec.hasLastEmitted = true
		}

		if outOfOrder && s.stopWhenOutOfOrder {
			s.Stop()
			return
		}
	}

	if s.detectStale {
		s.sweepStale()
	}
}

// advanceCarry consumes, for each secondary channel, every buffered sample
// with timestamp at or before primaryTS, keeping the newest as the carry
// value and releasing the slot it replaces. Returns false if any secondary
// has never established a carry value.
func (s *CarryForwardSyncer) advanceCarry(primaryTS int64) bool {
	ready := true
	for _, sec := range s.secondaries {
		for {
			head, ok := sec.pool.Head()
			if !ok || head.Timestamp > primaryTS {
				break
			}
			sec.pool.PopHead()
			if sec.carry != nil && sec.carry != head {
				sec.pool.Release(sec.carry)
			}
			sec.carry = head
			sec.carrySet = true
		}
		if !sec.carrySet {
			ready = false
		}
	}
	return ready
}
