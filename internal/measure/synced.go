package measure

// SyncedSample is one time-aligned composite reading: a reference timestamp
// plus one resolved Sample per configured channel, in the channel order the
// syncer was configured with.
//
// The syncer owns the SyncedSample it hands to listeners and overwrites it
// in place on the next emission. Listeners must not retain it (or the
// embedded Samples) beyond the callback; use Clone to keep a copy.
type SyncedSample struct {
	Timestamp int64    `json:"ts"`
	Samples   []Sample `json:"samples"`
}

// NewSyncedSample preallocates a composite for the given channels.
func NewSyncedSample(channels []ChannelType) *SyncedSample {
	ss := &SyncedSample{Samples: make([]Sample, len(channels))}
	for i, c := range channels {
		ss.Samples[i].Channel = c
	}
	return ss
}

// Sample returns the resolved entry for the given channel, or nil if the
// channel is not part of this composite.
func (ss *SyncedSample) Sample(ch ChannelType) *Sample {
	for i := range ss.Samples {
		if ss.Samples[i].Channel == ch {
			return &ss.Samples[i]
		}
	}
	return nil
}

// Clone returns an independent copy safe to retain after the callback.
func (ss *SyncedSample) Clone() *SyncedSample {
	out := &SyncedSample{
		Timestamp: ss.Timestamp,
		Samples:   make([]Sample, len(ss.Samples)),
	}
	copy(out.Samples, ss.Samples)
	return out
}
