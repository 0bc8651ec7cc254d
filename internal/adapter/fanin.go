// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package adapter

import (
	"sync"

	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// FanIn funnels sample and accuracy callbacks from any number of adapters
// onto one dispatch goroutine. The syncer performs no internal locking, so
// adapters that each run their own read loop must be wrapped before being
// handed to it: Wrap returns an adapter whose callbacks fire serially on
// the FanIn goroutine, in arrival order.
type FanIn struct {
	events chan func()
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// NewFanIn creates a dispatcher with the given queue depth.
func NewFanIn(queueSize int) *FanIn {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &FanIn{
		events: make(chan func(), queueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the dispatch goroutine.
func (f *FanIn) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return
	}
	f.started = true
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-f.done:
				return
			case fn := <-f.events:
				fn()
			}
		}
	}()
}

// Stop terminates dispatch. Events still queued are discarded; adapters
// should be stopped first. A FanIn is single-use: once stopped it cannot be
// started again.
func (f *FanIn) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return
	}
	f.started = false
	close(f.done)
	f.wg.Wait()
}

// Do runs fn on the dispatch goroutine, serialized with sample delivery,
// and waits for it to finish. Lets callers drive and inspect an engine
// without racing the ingestion path. Must not be called from inside a
// dispatched callback.
func (f *FanIn) Do(fn func()) {
	done := make(chan struct{})
	f.dispatch(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
	case <-f.done:
	}
}

func (f *FanIn) dispatch(fn func()) {
	select {
	case f.events <- fn:
	case <-f.done:
	}
}

// Wrap returns an adapter that delegates Start/Stop/Poll to a and delivers
// its callbacks through the FanIn goroutine. The batch is copied before
// crossing goroutines because sources reuse their batch slices.
func (f *FanIn) Wrap(a ChannelAdapter) ChannelAdapter {
	return &serialAdapter{inner: a, fan: f}
}

type serialAdapter struct {
	inner ChannelAdapter
	fan   *FanIn
}

func (s *serialAdapter) Channel() measure.ChannelType { return s.inner.Channel() }

func (s *serialAdapter) Start(startTimestamp int64) error { return s.inner.Start(startTimestamp) }

func (s *serialAdapter) Stop() { s.inner.Stop() }

func (s *serialAdapter) PollNewSamples(sinceTimestamp int64) []measure.Sample {
	return s.inner.PollNewSamples(sinceTimestamp)
}

func (s *serialAdapter) SetSampleFunc(fn SampleFunc) {
	if fn == nil {
		s.inner.SetSampleFunc(nil)
		return
	}
	fan := s.fan
	s.inner.SetSampleFunc(func(ch measure.ChannelType, batch []measure.Sample) {
		cp := make([]measure.Sample, len(batch))
		copy(cp, batch)
		fan.dispatch(func() { fn(ch, cp) })
	})
}

func (s *serialAdapter) SetAccuracyFunc(fn AccuracyFunc) {
	if fn == nil {
		s.inner.SetAccuracyFunc(nil)
		return
	}
	fan := s.fan
	s.inner.SetAccuracyFunc(func(ch measure.ChannelType, accuracy measure.Accuracy) {
		fan.dispatch(func() { fn(ch, accuracy) })
	})
}
