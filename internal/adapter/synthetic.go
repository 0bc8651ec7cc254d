// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package adapter

import (
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// Synthetic generates smooth sine-wave readings for one channel at a fixed
// rate, standing in for hardware that is absent on a dev machine. It is the
// default source for the magnetometer channel, whose driver lives outside
// the supported hardware set.
type Synthetic struct {
	channel  measure.ChannelType
	interval time.Duration

	mu       sync.Mutex
	onSample SampleFunc
	running  bool
	done     chan struct{}
}

// NewSynthetic creates a generator emitting one sample every interval.
func NewSynthetic(channel measure.ChannelType, interval time.Duration) *Synthetic {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Synthetic{channel: channel, interval: interval}
}

func (s *Synthetic) Channel() measure.ChannelType { return s.channel }

func (s *Synthetic) SetSampleFunc(fn SampleFunc) {
	s.mu.Lock()
	s.onSample = fn
	s.mu.Unlock()
}

// SetAccuracyFunc is a no-op: the generator's accuracy never changes.
func (s *Synthetic) SetAccuracyFunc(fn AccuracyFunc) {}

// PollNewSamples returns nil; the generator is push-only.
func (s *Synthetic) PollNewSamples(sinceTimestamp int64) []measure.Sample { return nil }

func (s *Synthetic) Start(startTimestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.running = true
	s.done = make(chan struct{})
	go s.run(s.done)
	return nil
}

func (s *Synthetic) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.done)
}

func (s *Synthetic) run(done chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	start := time.Now()
	batch := make([]measure.Sample, 1)

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			elapsed := time.Since(start).Seconds()
			batch[0] = measure.Sample{
				Timestamp: measure.Nanotime(),
				Channel:   s.channel,
				Accuracy:  measure.AccuracyMedium,
				Values: [3]float64{
					20 * math.Sin(elapsed),
					15 * math.Cos(elapsed*0.7),
					math.Mod(elapsed*30, 360),
				},
			}

			s.mu.Lock()
			fn := s.onSample
			s.mu.Unlock()
			if fn != nil {
				fn(s.channel, batch)
			}
		}
	}
}
