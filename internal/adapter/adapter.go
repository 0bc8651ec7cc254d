// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package adapter

import (
	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// SampleFunc receives a batch of new samples for one channel. Batches are
// ordered by timestamp within the channel; ordering between channels is not
// guaranteed.
type SampleFunc func(ch measure.ChannelType, batch []measure.Sample)

// AccuracyFunc receives accuracy-level changes reported by the source.
type AccuracyFunc func(ch measure.ChannelType, accuracy measure.Accuracy)

// ChannelAdapter is the engine-facing contract of one sensor source.
//
// Implementations deliver samples push-style via the registered SampleFunc
// and must guarantee monotonic timestamps within the channel. Callbacks are
// registered before Start and must not be changed while running.
type ChannelAdapter interface {
	// Channel returns the channel type this adapter produces.
	Channel() measure.ChannelType

	// Start begins sample delivery. startTimestamp is the engine's start
	// time in monotonic nanoseconds; samples older than it are not
	// delivered.
	Start(startTimestamp int64) error

	// Stop halts delivery. Safe to call when not started.
	Stop()

	// PollNewSamples returns buffered samples newer than sinceTimestamp,
	// ordered by timestamp, for sources that are polled rather than
	// push-driven. Push-only adapters return nil.
	PollNewSamples(sinceTimestamp int64) []measure.Sample

	// SetSampleFunc registers the batch delivery callback.
	SetSampleFunc(fn SampleFunc)

	// SetAccuracyFunc registers the accuracy-change callback.
	SetAccuracyFunc(fn AccuracyFunc)
}
