// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package adapter

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// GPS reads NMEA sentences from a serial port and delivers one sample per
// RMC fix: latitude (deg), longitude (deg) and speed over ground (knots)
// in the three payload axes. Fix validity maps to the accuracy level; a
// validity change raises an accuracy-changed notification.
type GPS struct {
	portName string
	baudRate uint

	mu         sync.Mutex
	running    bool
	port       io.ReadWriteCloser
	onSample   SampleFunc
	onAccuracy AccuracyFunc

	lastAccuracy    measure.Accuracy
	hasLastAccuracy bool
}

// NewGPS creates a GPS adapter for the given serial port.
func NewGPS(portName string, baudRate int) *GPS {
	if baudRate <= 0 {
		baudRate = 9600
	}
	return &GPS{portName: portName, baudRate: uint(baudRate)}
}

func (g *GPS) Channel() measure.ChannelType { return measure.ChannelGPS }

func (g *GPS) SetSampleFunc(fn SampleFunc) {
	g.mu.Lock()
	g.onSample = fn
	g.mu.Unlock()
}

func (g *GPS) SetAccuracyFunc(fn AccuracyFunc) {
	g.mu.Lock()
	g.onAccuracy = fn
	g.mu.Unlock()
}

// PollNewSamples returns nil; the GPS is push-only.
func (g *GPS) PollNewSamples(sinceTimestamp int64) []measure.Sample { return nil }

func (g *GPS) Start(startTimestamp int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return nil
	}

	port, err := serial.Open(serial.OpenOptions{
		PortName:        g.portName,
		BaudRate:        g.baudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return fmt.Errorf("gps: open %s: %w", g.portName, err)
	}
	log.Printf("gps: serial port opened on %s at %d baud", g.portName, g.baudRate)

	g.port = port
	g.running = true
	g.hasLastAccuracy = false
	go g.run(port)
	return nil
}

func (g *GPS) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return
	}
	g.running = false
	// Closing the port unblocks the reader loop, which then exits on the
	// read error.
	g.port.Close()
	g.port = nil
}

func (g *GPS) run(port io.Reader) {
	reader := bufio.NewReader(port)
	batch := make([]measure.Sample, 1)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			g.mu.Lock()
			running := g.running
			g.mu.Unlock()
			if running {
				log.Printf("gps: read error: %v", err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "$") {
			continue
		}

		sentence, err := nmea.Parse(line)
		if err != nil {
			// Noisy receivers emit partial sentences; skip them.
			continue
		}
		if sentence.DataType() != nmea.TypeRMC {
			continue
		}
		rmc := sentence.(nmea.RMC)

		accuracy := measure.AccuracyUnreliable
		if rmc.Validity == "A" {
			accuracy = measure.AccuracyHigh
		}
		g.reportAccuracy(accuracy)

		batch[0] = measure.Sample{
			Timestamp: measure.Nanotime(),
			Channel:   measure.ChannelGPS,
			Accuracy:  accuracy,
			Values:    [3]float64{rmc.Latitude, rmc.Longitude, rmc.Speed},
		}

		g.mu.Lock()
		fn := g.onSample
		g.mu.Unlock()
		if fn != nil {
			fn(measure.ChannelGPS, batch)
		}
	}
}

func (g *GPS) reportAccuracy(accuracy measure.Accuracy) {
	g.mu.Lock()
	changed := !g.hasLastAccuracy || accuracy != g.lastAccuracy
	g.lastAccuracy = accuracy
	g.hasLastAccuracy = true
	fn := g.onAccuracy
	g.mu.Unlock()

	if changed && fn != nil {
		fn(measure.ChannelGPS, accuracy)
	}
}
