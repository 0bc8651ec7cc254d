// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package adapter

import (
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// IMU owns one MPU-9250 over SPI and exposes its accelerometer and
// gyroscope as two independent channel adapters sharing a single read
// loop. The loop runs while at least one of the two channels is started.
//
// Payloads are raw sensor counts as float64; unit conversion is left to
// the consumer.
type IMU struct {
	name     string
	imu      *mpu9250.MPU9250
	interval time.Duration

	mu      sync.Mutex
	started int
	done    chan struct{}

	accel *imuChannel
	gyro  *imuChannel
}

// NewIMU initializes an MPU-9250 on the given SPI device with the given
// chip-select pin and returns its channel fan-out. interval is the read
// cadence for both channels.
func NewIMU(name, spiDev, csPin string, interval time.Duration) (*IMU, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: periph host init: %w", name, err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("%s IMU: CS pin %q not found", name, csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: SPI transport (%s): %w", name, spiDev, err)
	}

	imu, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: device creation: %w", name, err)
	}

	if err := imu.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: initialization: %w", name, err)
	}

	if err := imu.Calibrate(); err != nil {
		log.Printf("Warning: %s IMU calibration failed: %v", name, err)
	}

	if interval <= 0 {
		interval = 10 * time.Millisecond
	}

	d := &IMU{name: name, imu: imu, interval: interval}
	d.accel = &imuChannel{parent: d, channel: measure.ChannelAccelerometer}
	d.gyro = &imuChannel{parent: d, channel: measure.ChannelGyroscope}
	return d, nil
}

// Accelerometer returns the accelerometer channel adapter.
func (d *IMU) Accelerometer() ChannelAdapter { return d.accel }

// Gyroscope returns the gyroscope channel adapter.
func (d *IMU) Gyroscope() ChannelAdapter { return d.gyro }

func (d *IMU) startChannel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started++
	if d.started == 1 {
		d.done = make(chan struct{})
		go d.run(d.done)
	}
}

func (d *IMU) stopChannel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started == 0 {
		return
	}
	d.started--
	if d.started == 0 {
		close(d.done)
	}
}

func (d *IMU) run(done chan struct{}) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	accelBatch := make([]measure.Sample, 1)
	gyroBatch := make([]measure.Sample, 1)

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		ts := measure.Nanotime()

		ax, err := d.imu.GetAccelerationX()
		if err != nil {
			log.Printf("%s IMU: accel X read error: %v", d.name, err)
			continue
		}
		ay, err := d.imu.GetAccelerationY()
		if err != nil {
			log.Printf("%s IMU: accel Y read error: %v", d.name, err)
			continue
		}
		az, err := d.imu.GetAccelerationZ()
		if err != nil {
			log.Printf("%s IMU: accel Z read error: %v", d.name, err)
			continue
		}

		gx, err := d.imu.GetRotationX()
		if err != nil {
			log.Printf("%s IMU: gyro X read error: %v", d.name, err)
			continue
		}
		gy, err := d.imu.GetRotationY()
		if err != nil {
			log.Printf("%s IMU: gyro Y read error: %v", d.name, err)
			continue
		}
		gz, err := d.imu.GetRotationZ()
		if err != nil {
			log.Printf("%s IMU: gyro Z read error: %v", d.name, err)
			continue
		}

		if d.accel.active() {
			accelBatch[0] = measure.Sample{
				Timestamp: ts,
				Channel:   measure.ChannelAccelerometer,
				Accuracy:  measure.AccuracyHigh,
				Values:    [3]float64{float64(ax), float64(ay), float64(az)},
			}
			d.accel.deliver(accelBatch)
		}
		if d.gyro.active() {
			gyroBatch[0] = measure.Sample{
				Timestamp: ts,
				Channel:   measure.ChannelGyroscope,
				Accuracy:  measure.AccuracyHigh,
				Values:    [3]float64{float64(gx), float64(gy), float64(gz)},
			}
			d.gyro.deliver(gyroBatch)
		}
	}
}

// imuChannel is one channel view of a shared IMU.
type imuChannel struct {
	parent  *IMU
	channel measure.ChannelType

	mu       sync.Mutex
	running  bool
	onSample SampleFunc
}

func (c *imuChannel) Channel() measure.ChannelType { return c.channel }

func (c *imuChannel) Start(startTimestamp int64) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()
	c.parent.startChannel()
	return nil
}

func (c *imuChannel) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()
	c.parent.stopChannel()
}

// PollNewSamples returns nil; the IMU is push-only.
func (c *imuChannel) PollNewSamples(sinceTimestamp int64) []measure.Sample { return nil }

func (c *imuChannel) SetSampleFunc(fn SampleFunc) {
	c.mu.Lock()
	c.onSample = fn
	c.mu.Unlock()
}

// SetAccuracyFunc is a no-op: the MPU-9250 does not report accuracy.
func (c *imuChannel) SetAccuracyFunc(fn AccuracyFunc) {}

func (c *imuChannel) active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *imuChannel) deliver(batch []measure.Sample) {
	c.mu.Lock()
	fn := c.onSample
	c.mu.Unlock()
	if fn != nil {
		fn(c.channel, batch)
	}
}
