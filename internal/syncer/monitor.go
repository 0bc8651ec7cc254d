// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package syncer

import (
	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// Stale and out-of-order monitoring for the carry-forward strategy. The
// windowed strategy needs neither: its sliding window already bounds
// retention.

// checkOrder compares each secondary's carry timestamp against the value it
// contributed to the previous emission. A decrease means the composite's
// governing timestamp went backwards; the notification is raised per
// offending channel.
func (s *CarryForwardSyncer) checkOrder() bool {
	outOfOrder := false
	for _, sec := range s.secondaries {
		if sec.hasLastEmitted && sec.carry.Timestamp < sec.lastEmitted {
			outOfOrder = true
			if s.listeners.OnOutOfOrder != nil {
				s.listeners.OnOutOfOrder(sec.channel, sec.lastEmitted, sec.carry.Timestamp)
			}
		}
	}
	return outOfOrder
}

// sweepStale removes, per channel, every buffered sample older than the
// retention threshold behind the most recent accepted timestamp. Removed
// samples are reported in one batch per channel and their slots released:
// a channel that stops producing can no longer block synchronization or
// grow its buffer, at the cost of silently discarding data that arrived
// too late to ever be matched.
func (s *CarryForwardSyncer) sweepStale() {
	if !s.life.running || !s.ts.hasMostRecent {
		return
	}
	threshold := s.ts.mostRecent - s.staleOffset

	removed := false
	for _, st := range s.channels {
		s.staleBatch = s.staleBatch[:0]
		for {
			head, ok := st.pool.Head()
			if !ok || head.Timestamp >= threshold {
				break
			}
			st.pool.PopHead()
			s.staleBatch = append(s.staleBatch, *head)
			st.pool.Release(head)
		}
		if len(s.staleBatch) > 0 {
			removed = true
			if s.listeners.OnStaleMeasurements != nil {
				s.listeners.OnStaleMeasurements(st.channel, s.staleBatch)
			}
		}
	}
	if removed {
		s.ts.refreshOldest(s.channels)
	}
}

// accuracyChanged forwards adapter accuracy notifications to the listener.
func (s *CarryForwardSyncer) accuracyChanged(ch measure.ChannelType, accuracy measure.Accuracy) {
	if s.listeners.OnAccuracyChanged != nil {
		s.listeners.OnAccuracyChanged(ch, accuracy)
	}
}
