// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package syncer aligns readings from independently clocked sensor channels
// into composite synced samples. Two strategies are provided: the
// carry-forward syncer (primary-driven merge, the default) and the windowed
// syncer (sliding time window with optional interpolation). Both share the
// pooled per-channel buffers and the adapter start/stop lifecycle.
//
// Neither syncer spawns goroutines or locks: buffering, matching and
// listener notification all happen synchronously on the caller of Ingest.
// Callers whose adapters deliver from multiple goroutines must serialize
// delivery, e.g. with adapter.FanIn.
package syncer

import (
	"errors"
	"fmt"

	"github.com/relabs-tech/sensor_sync/internal/adapter"
	"github.com/relabs-tech/sensor_sync/internal/buffer"
	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// ErrAlreadyRunning is returned by Start when the engine is not idle.
var ErrAlreadyRunning = errors.New("syncer: already running")

// DefaultChannelCapacity is used when a ChannelConfig leaves Capacity zero.
const DefaultChannelCapacity = 100

// ChannelConfig describes one channel the engine synchronizes.
type ChannelConfig struct {
	// Channel identifies the stream. Required; must be unique per engine.
	Channel measure.ChannelType

	// Adapter is the sample source started and stopped with the engine.
	// May be nil when samples are fed through Ingest directly.
	Adapter adapter.ChannelAdapter

	// Capacity is the maximum number of buffered samples for the channel.
	Capacity int

	// Primary marks the channel whose arrivals drive synchronization.
	// Exactly one channel must be primary.
	Primary bool
}

// Listeners holds the optional notification callbacks. Exactly one
// subscriber per event kind; a nil slot drops that event. Callbacks run
// synchronously on the ingestion path and must not block. The SyncedSample
// passed to OnSynced, and the samples passed to OnStaleMeasurements, are
// reused after the callback returns and must be copied if retained.
type Listeners struct {
	OnSynced            func(ss *measure.SyncedSample)
	OnAccuracyChanged   func(ch measure.ChannelType, accuracy measure.Accuracy)
	OnBufferFilled      func(ch measure.ChannelType)
	OnStaleMeasurements func(ch measure.ChannelType, removed []measure.Sample)
	OnOutOfOrder        func(ch measure.ChannelType, previous, current int64)
}

// Config configures a carry-forward syncer.
type Config struct {
	Channels []ChannelConfig

	// SkipWhenProcessing drops primary samples that arrive re-entrantly
	// while a synchronization pass is in progress, instead of buffering
	// them. Deliberately lossy to bound latency.
	SkipWhenProcessing bool

	// StopWhenFilledBuffer stops the engine when any channel's pool is
	// exhausted; otherwise the incoming sample is dropped.
	StopWhenFilledBuffer bool

	// StopWhenOutOfOrder stops the engine after an out-of-order emission.
	StopWhenOutOfOrder bool

	// DetectStale enables the stale sweep after each primary pass.
	DetectStale bool

	// StaleOffsetNanos is the retention threshold behind the most recent
	// accepted timestamp. Buffered samples older than that are discarded
	// unmatched.
	StaleOffsetNanos int64

	Listeners Listeners

	// Clock supplies monotonic nanoseconds for Start. Defaults to
	// measure.Nanotime.
	Clock func() int64
}

// channelState is the per-channel runtime state shared by both strategies.
// carry/carrySet and the emission bookkeeping are only used by the
// carry-forward strategy.
type channelState struct {
	channel  measure.ChannelType
	adapter  adapter.ChannelAdapter
	capacity int
	pool     *buffer.Pool

	carry    *measure.Sample
	carrySet bool

	lastEmitted    int64
	hasLastEmitted bool
}

func (st *channelState) resetCarry() {
	if st.carry != nil {
		st.pool.Release(st.carry)
		st.carry = nil
	}
	st.carrySet = false
	st.hasLastEmitted = false
}

// buildChannels validates the channel list and returns the per-channel
// states in configured order plus the primary.
func buildChannels(channels []ChannelConfig) ([]*channelState, *channelState, error) {
	if len(channels) == 0 {
		return nil, nil, errors.New("syncer: no channels configured")
	}

	states := make([]*channelState, 0, len(channels))
	seen := make(map[measure.ChannelType]bool, len(channels))
	var primary *channelState

	for _, cc := range channels {
		if seen[cc.Channel] {
			return nil, nil, fmt.Errorf("syncer: duplicate channel %s", cc.Channel)
		}
		seen[cc.Channel] = true

		capacity := cc.Capacity
		if capacity <= 0 {
			capacity = DefaultChannelCapacity
		}
		st := &channelState{
			channel:  cc.Channel,
			adapter:  cc.Adapter,
			capacity: capacity,
			pool:     buffer.New(capacity),
		}
		states = append(states, st)

		if cc.Primary {
			if primary != nil {
				return nil, nil, fmt.Errorf("syncer: channels %s and %s both marked primary",
					primary.channel, st.channel)
			}
			primary = st
		}
	}
	if primary == nil {
		return nil, nil, errors.New("syncer: no primary channel configured")
	}
	return states, primary, nil
}

func channelTypes(states []*channelState) []measure.ChannelType {
	out := make([]measure.ChannelType, len(states))
	for i, st := range states {
		out[i] = st.channel
	}
	return out
}
