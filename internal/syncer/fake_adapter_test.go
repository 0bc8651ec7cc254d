package syncer

import (
	"errors"

	"github.com/relabs-tech/sensor_sync/internal/adapter"
	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// fakeAdapter is a hand-driven ChannelAdapter for engine tests. Emit pushes
// a batch through the registered callback, the way a real source would from
// its read loop.
type fakeAdapter struct {
	channel  measure.ChannelType
	startErr error

	started  bool
	startTS  int64
	stops    int
	eventLog *[]string

	onSample   adapter.SampleFunc
	onAccuracy adapter.AccuracyFunc
}

var errStartFailed = errors.New("source unavailable")

func newFakeAdapter(ch measure.ChannelType) *fakeAdapter {
	return &fakeAdapter{channel: ch}
}

func (f *fakeAdapter) Channel() measure.ChannelType { return f.channel }

func (f *fakeAdapter) Start(startTimestamp int64) error {
	f.logEvent("start " + f.channel.String())
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	f.startTS = startTimestamp
	return nil
}

func (f *fakeAdapter) Stop() {
	f.logEvent("stop " + f.channel.String())
	f.started = false
	f.stops++
}

func (f *fakeAdapter) PollNewSamples(sinceTimestamp int64) []measure.Sample { return nil }

func (f *fakeAdapter) SetSampleFunc(fn adapter.SampleFunc)     { f.onSample = fn }
func (f *fakeAdapter) SetAccuracyFunc(fn adapter.AccuracyFunc) { f.onAccuracy = fn }

func (f *fakeAdapter) Emit(batch ...measure.Sample) {
	if f.onSample != nil {
		f.onSample(f.channel, batch)
	}
}

func (f *fakeAdapter) EmitAccuracy(a measure.Accuracy) {
	if f.onAccuracy != nil {
		f.onAccuracy(f.channel, a)
	}
}

func (f *fakeAdapter) logEvent(ev string) {
	if f.eventLog != nil {
		*f.eventLog = append(*f.eventLog, ev)
	}
}

// at builds a sample with the given timestamp and a payload derived from it
// so tests can tell samples apart.
func at(ts int64) measure.Sample {
	return measure.Sample{
		Timestamp: ts,
		Accuracy:  measure.AccuracyHigh,
		Values:    [3]float64{float64(ts), float64(ts) * 2, float64(ts) * 3},
	}
}
