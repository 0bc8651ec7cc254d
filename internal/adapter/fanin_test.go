package adapter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// stubSource is a minimal push-style adapter for dispatcher tests.
type stubSource struct {
	channel    measure.ChannelType
	started    bool
	onSample   SampleFunc
	onAccuracy AccuracyFunc
}

func (s *stubSource) Channel() measure.ChannelType          { return s.channel }
func (s *stubSource) Start(int64) error                     { s.started = true; return nil }
func (s *stubSource) Stop()                                 { s.started = false }
func (s *stubSource) PollNewSamples(int64) []measure.Sample { return nil }
func (s *stubSource) SetSampleFunc(fn SampleFunc)           { s.onSample = fn }
func (s *stubSource) SetAccuracyFunc(fn AccuracyFunc)       { s.onAccuracy = fn }

func TestFanInSerializesDelivery(t *testing.T) {
	fan := NewFanIn(1024)
	fan.Start()
	defer fan.Stop()

	acc := &stubSource{channel: measure.ChannelAccelerometer}
	gyro := &stubSource{channel: measure.ChannelGyroscope}

	// All callbacks run on the single dispatch goroutine; the mutex only
	// covers the test's own reads.
	var mu sync.Mutex
	perChannel := map[measure.ChannelType][]int64{}
	handler := func(ch measure.ChannelType, batch []measure.Sample) {
		mu.Lock()
		perChannel[ch] = append(perChannel[ch], batch[0].Timestamp)
		mu.Unlock()
	}

	wrappedAcc := fan.Wrap(acc)
	wrappedGyro := fan.Wrap(gyro)
	wrappedAcc.SetSampleFunc(handler)
	wrappedGyro.SetSampleFunc(handler)

	const perSource = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < perSource; i++ {
			acc.onSample(acc.channel, []measure.Sample{{Timestamp: int64(i)}})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < perSource; i++ {
			gyro.onSample(gyro.channel, []measure.Sample{{Timestamp: int64(i)}})
		}
	}()
	wg.Wait()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(perChannel[acc.channel])+len(perChannel[gyro.channel]) == 2*perSource
	}, time.Second, 5*time.Millisecond)

	// Delivery order within a channel must survive the fan-in.
	mu.Lock()
	defer mu.Unlock()
	for ch, timestamps := range perChannel {
		for i := 1; i < len(timestamps); i++ {
			assert.Less(t, timestamps[i-1], timestamps[i], "channel %s reordered", ch)
		}
	}
}

func TestFanInCopiesBatches(t *testing.T) {
	fan := NewFanIn(16)
	fan.Start()
	defer fan.Stop()

	src := &stubSource{channel: measure.ChannelMagnetometer}
	wrapped := fan.Wrap(src)

	received := make(chan []measure.Sample, 1)
	wrapped.SetSampleFunc(func(_ measure.ChannelType, batch []measure.Sample) {
		received <- batch
	})

	// The source reuses its batch slice; the wrapper must have copied it.
	batch := []measure.Sample{{Timestamp: 1}}
	src.onSample(src.channel, batch)
	batch[0].Timestamp = 999

	select {
	case got := <-received:
		assert.Equal(t, int64(1), got[0].Timestamp)
	case <-time.After(time.Second):
		t.Fatal("batch never delivered")
	}
}

func TestFanInDelegatesLifecycle(t *testing.T) {
	fan := NewFanIn(16)
	fan.Start()
	defer fan.Stop()

	src := &stubSource{channel: measure.ChannelGPS}
	wrapped := fan.Wrap(src)

	require.Equal(t, measure.ChannelGPS, wrapped.Channel())
	require.NoError(t, wrapped.Start(0))
	assert.True(t, src.started)
	wrapped.Stop()
	assert.False(t, src.started)
}

func TestFanInAccuracyForwarded(t *testing.T) {
	fan := NewFanIn(16)
	fan.Start()
	defer fan.Stop()

	src := &stubSource{channel: measure.ChannelGPS}
	wrapped := fan.Wrap(src)

	received := make(chan measure.Accuracy, 1)
	wrapped.SetAccuracyFunc(func(_ measure.ChannelType, a measure.Accuracy) {
		received <- a
	})

	src.onAccuracy(src.channel, measure.AccuracyHigh)
	select {
	case got := <-received:
		assert.Equal(t, measure.AccuracyHigh, got)
	case <-time.After(time.Second):
		t.Fatal("accuracy change never delivered")
	}
}
