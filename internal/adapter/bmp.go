// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package adapter

import (
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// BMP reads a BMP280-class barometer over SPI and delivers one pressure
// sample per tick: pressure (Pa), temperature (°C) and pressure (hPa) in
// the three payload axes.
type BMP struct {
	dev      *bmxx80.Dev
	interval time.Duration

	mu       sync.Mutex
	running  bool
	done     chan struct{}
	onSample SampleFunc
}

// NewBMP initializes the barometer on the given SPI device. interval is the
// read cadence.
func NewBMP(spiDev string, interval time.Duration) (*BMP, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("bmp: periph host init: %w", err)
	}

	bus, err := spireg.Open(spiDev)
	if err != nil {
		return nil, fmt.Errorf("bmp: SPI open (%s): %w", spiDev, err)
	}

	dev, err := bmxx80.NewSPI(bus, &bmxx80.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("bmp: device init: %w", err)
	}

	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &BMP{dev: dev, interval: interval}, nil
}

func (b *BMP) Channel() measure.ChannelType { return measure.ChannelPressure }

func (b *BMP) SetSampleFunc(fn SampleFunc) {
	b.mu.Lock()
	b.onSample = fn
	b.mu.Unlock()
}

// SetAccuracyFunc is a no-op: the barometer does not report accuracy.
func (b *BMP) SetAccuracyFunc(fn AccuracyFunc) {}

// PollNewSamples returns nil; the barometer is push-only.
func (b *BMP) PollNewSamples(sinceTimestamp int64) []measure.Sample { return nil }

func (b *BMP) Start(startTimestamp int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}
	b.running = true
	b.done = make(chan struct{})
	go b.run(b.done)
	return nil
}

func (b *BMP) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return
	}
	b.running = false
	close(b.done)
}

func (b *BMP) run(done chan struct{}) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	batch := make([]measure.Sample, 1)

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		var e physic.Env
		if err := b.dev.Sense(&e); err != nil {
			log.Printf("bmp: sense error: %v", err)
			continue
		}

		pa := float64(e.Pressure) / float64(physic.Pascal)
		batch[0] = measure.Sample{
			Timestamp: measure.Nanotime(),
			Channel:   measure.ChannelPressure,
			Accuracy:  measure.AccuracyHigh,
			Values:    [3]float64{pa, e.Temperature.Celsius(), pa / 100},
		}

		b.mu.Lock()
		fn := b.onSample
		b.mu.Unlock()
		if fn != nil {
			fn(measure.ChannelPressure, batch)
		}
	}
}
