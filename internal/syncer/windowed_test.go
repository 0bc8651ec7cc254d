package syncer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sensor_sync/internal/measure"
)

func newWindowed(t *testing.T, cfg WindowedConfig) (*WindowedSyncer, *[]measure.SyncedSample) {
	t.Helper()

	var emitted []measure.SyncedSample
	onSynced := cfg.Listeners.OnSynced
	cfg.Listeners.OnSynced = func(ss *measure.SyncedSample) {
		emitted = append(emitted, *ss.Clone())
		if onSynced != nil {
			onSynced(ss)
		}
	}
	if cfg.Channels == nil {
		cfg.Channels = []ChannelConfig{
			{Channel: measure.ChannelAccelerometer, Capacity: 10, Primary: true},
			{Channel: measure.ChannelGyroscope, Capacity: 10},
		}
	}
	if cfg.WindowNanos == 0 {
		cfg.WindowNanos = 1_000_000
	}

	s, err := NewWindowed(cfg)
	require.NoError(t, err)
	require.NoError(t, s.StartAt(0))
	return s, &emitted
}

func TestWindowTrimsAllChannels(t *testing.T) {
	s, _ := newWindowed(t, WindowedConfig{WindowNanos: 1_000_000})

	s.Ingest(measure.ChannelAccelerometer, []measure.Sample{at(100), at(200)})
	s.Ingest(measure.ChannelGyroscope, []measure.Sample{at(150)})

	accN, _ := s.Usage(measure.ChannelAccelerometer)
	gyroN, _ := s.Usage(measure.ChannelGyroscope)
	require.Equal(t, 2, accN)
	require.Equal(t, 1, gyroN)

	// A sample two windows later evicts every earlier entry on every
	// channel before it is buffered.
	s.Ingest(measure.ChannelGyroscope, []measure.Sample{at(2_000_200)})

	accN, _ = s.Usage(measure.ChannelAccelerometer)
	gyroN, _ = s.Usage(measure.ChannelGyroscope)
	assert.Equal(t, 0, accN)
	assert.Equal(t, 1, gyroN)

	oldest, ok := s.OldestTimestamp()
	require.True(t, ok)
	assert.Equal(t, int64(2_000_200), oldest)
}

func TestWindowedInterpolateRestamps(t *testing.T) {
	s, emitted := newWindowed(t, WindowedConfig{Interpolate: true})

	s.Ingest(measure.ChannelGyroscope, []measure.Sample{at(400)})
	s.Ingest(measure.ChannelAccelerometer, []measure.Sample{at(500)})

	require.Len(t, *emitted, 1)
	ss := (*emitted)[0]
	assert.Equal(t, int64(500), ss.Timestamp)
	gyro := ss.Sample(measure.ChannelGyroscope)
	// Zero-order hold: the value is the gyro's most recent, the timestamp
	// is the primary's.
	assert.Equal(t, int64(500), gyro.Timestamp)
	assert.Equal(t, at(400).Values, gyro.Values)
}

func TestWindowedRawKeepsOwnTimestamp(t *testing.T) {
	s, emitted := newWindowed(t, WindowedConfig{Interpolate: false})

	s.Ingest(measure.ChannelGyroscope, []measure.Sample{at(300), at(400)})
	s.Ingest(measure.ChannelAccelerometer, []measure.Sample{at(500)})

	require.Len(t, *emitted, 1)
	gyro := (*emitted)[0].Sample(measure.ChannelGyroscope)
	assert.Equal(t, int64(400), gyro.Timestamp, "most recent secondary, raw timestamp")
	assert.Equal(t, at(400).Values, gyro.Values)
}

func TestWindowedSilentWithoutSecondaryData(t *testing.T) {
	s, emitted := newWindowed(t, WindowedConfig{})

	s.Ingest(measure.ChannelAccelerometer, []measure.Sample{at(100), at(200)})

	assert.Empty(t, *emitted, "empty secondary window produces no emission")
	assert.Equal(t, uint64(0), s.ProcessedMeasurements())
	assert.True(t, s.Running())

	// Data arriving later does not retroactively emit; the next primary
	// sample does.
	s.Ingest(measure.ChannelGyroscope, []measure.Sample{at(250)})
	assert.Empty(t, *emitted)

	s.Ingest(measure.ChannelAccelerometer, []measure.Sample{at(300)})
	require.Len(t, *emitted, 1)
	assert.Equal(t, int64(300), (*emitted)[0].Timestamp)
	assert.Equal(t, uint64(1), s.ProcessedMeasurements())
}

func TestWindowedListenerStopMidBatch(t *testing.T) {
	var s *WindowedSyncer
	cfg := WindowedConfig{
		Listeners: Listeners{
			OnSynced: func(*measure.SyncedSample) { s.Stop() },
		},
	}
	s, emitted := newWindowed(t, cfg)

	s.Ingest(measure.ChannelGyroscope, []measure.Sample{at(400)})
	s.Ingest(measure.ChannelAccelerometer, []measure.Sample{at(500), at(600)})

	require.Len(t, *emitted, 1)
	assert.Equal(t, int64(500), (*emitted)[0].Timestamp)
	assert.False(t, s.Running())
	assert.Equal(t, uint64(0), s.ProcessedMeasurements())

	// Batch elements after the re-entrant stop must not land in the
	// freshly reset pools.
	for _, ch := range []measure.ChannelType{measure.ChannelAccelerometer, measure.ChannelGyroscope} {
		enqueued, _ := s.Usage(ch)
		assert.Equal(t, 0, enqueued)
	}
}

func TestWindowedBufferFilled(t *testing.T) {
	var filled []measure.ChannelType
	s, _ := newWindowed(t, WindowedConfig{
		Channels: []ChannelConfig{
			{Channel: measure.ChannelAccelerometer, Capacity: 10, Primary: true},
			{Channel: measure.ChannelGyroscope, Capacity: 2},
		},
		StopWhenFilledBuffer: true,
		Listeners: Listeners{
			OnBufferFilled: func(ch measure.ChannelType) { filled = append(filled, ch) },
		},
	})

	// Three gyro samples inside one window overflow the capacity-2 pool.
	s.Ingest(measure.ChannelGyroscope, []measure.Sample{at(100), at(200), at(300)})

	require.Equal(t, []measure.ChannelType{measure.ChannelGyroscope}, filled)
	assert.False(t, s.Running())
}

func TestWindowedValidation(t *testing.T) {
	_, err := NewWindowed(WindowedConfig{})
	assert.Error(t, err, "window required")

	_, err = NewWindowed(WindowedConfig{WindowNanos: 1})
	assert.Error(t, err, "channels required")
}
