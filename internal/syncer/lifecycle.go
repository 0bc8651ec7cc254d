// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package syncer

import (
	"fmt"

	"github.com/relabs-tech/sensor_sync/internal/adapter"
	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// lifecycle coordinates adapter start/stop and holds the Idle/Running
// state shared by both synchronization strategies.
type lifecycle struct {
	adapters []adapter.ChannelAdapter // configured order; nil entries skipped
	running  bool
	startTS  int64
}

func newLifecycle(states []*channelState) lifecycle {
	adapters := make([]adapter.ChannelAdapter, len(states))
	for i, st := range states {
		adapters[i] = st.adapter
	}
	return lifecycle{adapters: adapters}
}

// startAdapters starts every adapter in configured order. On the first
// failure the adapters already started are stopped again before the error
// is returned, so a failed start never leaks a running source.
func (l *lifecycle) startAdapters(ts int64) error {
	for i, a := range l.adapters {
		if a == nil {
			continue
		}
		if err := a.Start(ts); err != nil {
			for j := i - 1; j >= 0; j-- {
				if l.adapters[j] != nil {
					l.adapters[j].Stop()
				}
			}
			return fmt.Errorf("start channel %s: %w", a.Channel(), err)
		}
	}
	return nil
}

// stopAdapters stops every adapter, best effort.
func (l *lifecycle) stopAdapters() {
	for _, a := range l.adapters {
		if a != nil {
			a.Stop()
		}
	}
}

// timestamps tracks the accepted/buffered timestamp bounds of an engine.
// Both values are undefined until the first sample is ingested.
type timestamps struct {
	mostRecent    int64
	hasMostRecent bool
	oldest        int64
	hasOldest     bool
}

func (t *timestamps) accept(ts int64) {
	if !t.hasMostRecent || ts > t.mostRecent {
		t.mostRecent = ts
		t.hasMostRecent = true
	}
}

// refreshOldest recomputes the oldest buffered timestamp from the channel
// buffer heads. Undefined when every buffer is empty.
func (t *timestamps) refreshOldest(states []*channelState) {
	t.hasOldest = false
	for _, st := range states {
		head, ok := st.pool.Head()
		if !ok {
			continue
		}
		if !t.hasOldest || head.Timestamp < t.oldest {
			t.oldest = head.Timestamp
			t.hasOldest = true
		}
	}
}

func (t *timestamps) clear() {
	*t = timestamps{}
}

// bind registers the engine callbacks on every configured adapter.
func bind(states []*channelState, onSample adapter.SampleFunc, onAccuracy adapter.AccuracyFunc) {
	for _, st := range states {
		if st.adapter == nil {
			continue
		}
		st.adapter.SetSampleFunc(onSample)
		st.adapter.SetAccuracyFunc(onAccuracy)
	}
}

func defaultClock(clock func() int64) func() int64 {
	if clock != nil {
		return clock
	}
	return measure.Nanotime
}
