// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package syncer

import (
	"errors"

	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// WindowedConfig configures a windowed syncer.
type WindowedConfig struct {
	Channels []ChannelConfig

	// WindowNanos is the global retention window. On every arrival, all
	// channels discard entries older than the new sample's timestamp minus
	// the window.
	WindowNanos int64

	// Interpolate restamps each secondary's most recent value at the
	// primary's timestamp (zero-order hold). When false, secondary values
	// keep their own timestamps.
	Interpolate bool

	// StopWhenFilledBuffer stops the engine when a channel's pool is
	// exhausted; otherwise the incoming sample is dropped.
	StopWhenFilledBuffer bool

	Listeners Listeners

	// Clock supplies monotonic nanoseconds for Start. Defaults to
	// measure.Nanotime.
	Clock func() int64
}

// WindowedSyncer is the sliding-window strategy: a single global time
// window bounds retention on every channel, any channel may be primary, and
// secondary values are optionally interpolated to the primary's timestamp.
// It trades the carry-forward strategy's stale and out-of-order bookkeeping
// for a simpler window-bounded memory model.
//
// Not goroutine-safe; see the package comment.
type WindowedSyncer struct {
	channels    []*channelState
	primary     *channelState
	secondaries []*channelState

	window               int64
	interpolate          bool
	stopWhenFilledBuffer bool

	listeners Listeners
	clock     func() int64

	life      lifecycle
	ts        timestamps
	processed uint64

	synced *measure.SyncedSample
}

// NewWindowed creates a windowed syncer.
func NewWindowed(cfg WindowedConfig) (*WindowedSyncer, error) {
	if cfg.WindowNanos <= 0 {
		return nil, errors.New("syncer: window must be positive")
	}
	states, primary, err := buildChannels(cfg.Channels)
	if err != nil {
		return nil, err
	}

	s := &WindowedSyncer{
		channels:             states,
		primary:              primary,
		window:               cfg.WindowNanos,
		interpolate:          cfg.Interpolate,
		stopWhenFilledBuffer: cfg.StopWhenFilledBuffer,
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

// Start resets all engine state and starts the configured adapters.
func (s *WindowedSyncer) Start() error {
	return s.StartAt(s.clock())
}

// StartAt is Start with an explicit start timestamp. Returns
// ErrAlreadyRunning when the engine is not idle.
func (s *WindowedSyncer) StartAt(startTimestamp int64) error {
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

// Stop stops every adapter (best effort), clears all buffers and counters,
// and leaves the engine idle. Always succeeds.
func (s *WindowedSyncer) Stop() {
	s.life.stopAdapters()
	s.life.running = false
	s.reset()
}

func (s *WindowedSyncer) reset() {
	for _, st := range s.channels {
		st.pool.Reset()
		st.pool.Resize(st.capacity)
	}
	s.ts.clear()
	s.processed = 0
	s.life.startTS = 0
}

// Running reports whether the engine is between a successful Start and the
// next Stop.
func (s *WindowedSyncer) Running() bool { return s.life.running }

// StartTimestamp returns the timestamp the engine was started at, or zero
// when idle.
func (s *WindowedSyncer) StartTimestamp() int64 { return s.life.startTS }

// ProcessedMeasurements returns the number of synced samples emitted since
// Start.
func (s *WindowedSyncer) ProcessedMeasurements() uint64 { return s.processed }

// MostRecentTimestamp returns the maximum timestamp accepted on any channel
// so far. The second return is false before the first ingestion.
func (s *WindowedSyncer) MostRecentTimestamp() (int64, bool) {
	return s.ts.mostRecent, s.ts.hasMostRecent
}

// OldestTimestamp returns the minimum timestamp among currently buffered
// samples. The second return is false when all buffers are empty.
func (s *WindowedSyncer) OldestTimestamp() (int64, bool) {
	return s.ts.oldest, s.ts.hasOldest
}

// Usage returns the enqueued count and capacity for one channel.
func (s *WindowedSyncer) Usage(ch measure.ChannelType) (enqueued, capacity int) {
	if st := s.state(ch); st != nil {
		return st.pool.Len(), st.pool.Capacity()
	}
	return 0, 0
}

func (s *WindowedSyncer) state(ch measure.ChannelType) *channelState {
	for _, st := range s.channels {
		if st.channel == ch {
			return st
		}
	}
	return nil
}

// Ingest feeds a batch of new samples for one channel. Every arrival first
// trims all channels to the window; primary arrivals then attempt a
// synchronization immediately.
func (s *WindowedSyncer) Ingest(ch measure.ChannelType, batch []measure.Sample) {
	if !s.life.running {
		return
	}
	st := s.state(ch)
	if st == nil {
		return
	}

	for i := range batch {
		// A listener may stop the engine mid-batch; later elements must
		// not reach the freshly reset pools.
		if !s.life.running {
			return
		}
		sample := &batch[i]
		s.trim(sample.Timestamp - s.window)
		if !s.buffer(st, sample) {
			continue
		}
		if st == s.primary {
			s.attempt(sample.Timestamp)
		}
	}
}

// trim discards, on every channel, buffered entries older than the cutoff.
func (s *WindowedSyncer) trim(cutoff int64) {
	trimmed := false
	for _, st := range s.channels {
		for {
			head, ok := st.pool.Head()
			if !ok || head.Timestamp >= cutoff {
				break
			}
			st.pool.PopHead()
			st.pool.Release(head)
			trimmed = true
		}
	}
	if trimmed {
		s.ts.refreshOldest(s.channels)
	}
}

func (s *WindowedSyncer) buffer(st *channelState, sample *measure.Sample) bool {
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

// attempt builds and emits a composite at the primary timestamp. It fails
// silently when any secondary's window holds no sample yet; the engine just
// waits for more data.
func (s *WindowedSyncer) attempt(primaryTS int64) {
	for _, sec := range s.secondaries {
		if sec.pool.Len() == 0 {
			return
		}
	}

	p, _ := s.primary.pool.Tail()
	s.synced.Timestamp = primaryTS
	for i, st := range s.channels {
		if st == s.primary {
			s.synced.Samples[i] = *p
			continue
		}
		latest, _ := st.pool.Tail()
		s.synced.Samples[i] = *latest
		if s.interpolate {
			// Zero-order hold: carry the most recent secondary value,
			// restamped at the primary's timestamp.
			s.synced.Samples[i].Timestamp = primaryTS
		}
	}

	s.processed++
	if s.listeners.OnSynced != nil {
		s.listeners.OnSynced(s.synced)
	}
}

// accuracyChanged forwards adapter accuracy notifications to the listener.
func (s *WindowedSyncer) accuracyChanged(ch measure.ChannelType, accuracy measure.Accuracy) {
	if s.listeners.OnAccuracyChanged != nil {
		s.listeners.OnAccuracyChanged(ch, accuracy)
	}
}
