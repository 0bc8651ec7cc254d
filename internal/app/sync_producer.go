// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/sensor_sync/internal/adapter"
	"github.com/relabs-tech/sensor_sync/internal/config"
	"github.com/relabs-tech/sensor_sync/internal/measure"
	"github.com/relabs-tech/sensor_sync/internal/syncer"
)

// engine is the surface shared by both synchronization strategies.
type engine interface {
	Start() error
	Stop()
	Running() bool
	ProcessedMeasurements() uint64
	MostRecentTimestamp() (int64, bool)
	OldestTimestamp() (int64, bool)
	Usage(ch measure.ChannelType) (enqueued, capacity int)
}

// eventPayload is the JSON schema published to the events topic for the
// side-channel notifications (buffer-filled, stale, out-of-order,
// accuracy-changed).
type eventPayload struct {
	Kind     string `json:"kind"`
	Channel  string `json:"channel,omitempty"`
	Accuracy string `json:"accuracy,omitempty"`
	Previous int64  `json:"previous,omitempty"`
	Current  int64  `json:"current,omitempty"`
	Removed  int    `json:"removed,omitempty"`
	Time     string `json:"time"`
}

// RunSyncProducer builds the configured channel adapters, runs the
// synchronization engine over them, and publishes every synced sample as
// JSON to MQTT, with engine notifications on a separate events topic.
func RunSyncProducer() error {
	log.Println("starting sensor_sync producer (channels → syncer → MQTT)")

	cfg := config.Get()

	// --- connect to MQTT ---
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID(cfg.MQTTClientIDSync, "sensor-sync-producer"))

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("connected to MQTT broker at %s", cfg.MQTTBroker)

	syncedTopic := topic(cfg.TopicSynced, "sensor_sync/synced")
	eventsTopic := topic(cfg.TopicEvents, "sensor_sync/events")

	publishEvent := func(ev eventPayload) {
		ev.Time = time.Now().UTC().Format(time.RFC3339Nano)
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Printf("event marshal error: %v", err)
			return
		}
		client.Publish(eventsTopic, 0, false, payload)
	}

	listeners := syncer.Listeners{
		OnSynced: func(ss *measure.SyncedSample) {
			payload, err := json.Marshal(ss)
			if err != nil {
				log.Printf("synced sample marshal error: %v", err)
				return
			}
			client.Publish(syncedTopic, 0, false, payload)
		},
		OnAccuracyChanged: func(ch measure.ChannelType, accuracy measure.Accuracy) {
			publishEvent(eventPayload{Kind: "accuracy", Channel: ch.String(), Accuracy: accuracy.String()})
		},
		OnBufferFilled: func(ch measure.ChannelType) {
			log.Printf("buffer filled on channel %s", ch)
			publishEvent(eventPayload{Kind: "buffer_filled", Channel: ch.String()})
		},
		OnStaleMeasurements: func(ch measure.ChannelType, removed []measure.Sample) {
			log.Printf("discarded %d stale measurements on channel %s", len(removed), ch)
			publishEvent(eventPayload{Kind: "stale", Channel: ch.String(), Removed: len(removed)})
		},
		OnOutOfOrder: func(ch measure.ChannelType, previous, current int64) {
			log.Printf("out-of-order emission on channel %s: %d after %d", ch, current, previous)
			publishEvent(eventPayload{Kind: "out_of_order", Channel: ch.String(), Previous: previous, Current: current})
		},
	}

	// --- build adapters and engine ---
	fan := adapter.NewFanIn(512)
	channels, err := buildChannels(cfg, fan)
	if err != nil {
		return err
	}

	var eng engine
	switch cfg.SyncMode {
	case "windowed":
		eng, err = syncer.NewWindowed(syncer.WindowedConfig{
			Channels:             channels,
			WindowNanos:          cfg.WindowNanos,
			Interpolate:          cfg.Interpolate,
			StopWhenFilledBuffer: cfg.StopWhenFilled,
			Listeners:            listeners,
		})
	default:
		eng, err = syncer.New(syncer.Config{
			Channels:             channels,
			SkipWhenProcessing:   cfg.SkipWhenProcessing,
			StopWhenFilledBuffer: cfg.StopWhenFilled,
			StopWhenOutOfOrder:   cfg.StopWhenOutOfOrder,
			DetectStale:          cfg.DetectStale,
			StaleOffsetNanos:     cfg.StaleOffsetNanos,
			Listeners:            listeners,
		})
	}
	if err != nil {
		return fmt.Errorf("build %s syncer: %w", cfg.SyncMode, err)
	}

	fan.Start()
	defer fan.Stop()

	// The engine itself is single-threaded: every call that touches it,
	// including start and stop, goes through the dispatch goroutine.
	var startErr error
	fan.Do(func() { startErr = eng.Start() })
	if startErr != nil {
		return fmt.Errorf("start syncer: %w", startErr)
	}
	defer fan.Do(eng.Stop)
	log.Printf("%s syncer running, publishing to %s", cfg.SyncMode, syncedTopic)

	// --- stats loop until shutdown ---
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-sig:
			log.Println("shutting down sync producer")
			return nil
		case <-statsTicker.C:
			// Engine state is only touched on the dispatch goroutine.
			fan.Do(func() {
				if !eng.Running() {
					log.Println("stats: engine stopped")
					return
				}
				line := fmt.Sprintf("stats: processed=%d", eng.ProcessedMeasurements())
				for _, ch := range cfg.SyncChannels {
					enqueued, capacity := eng.Usage(ch)
					line += fmt.Sprintf(" %s=%d/%d", ch, enqueued, capacity)
				}
				log.Println(line)
			})
		}
	}
}

// buildChannels creates one adapter per configured channel, wrapped in the
// fan-in so delivery reaches the engine serially. Synthetic sources replace
// hardware when configured, and always serve the magnetometer, which has no
// supported hardware driver.
func buildChannels(cfg *config.Config, fan *adapter.FanIn) ([]syncer.ChannelConfig, error) {
	var imu *adapter.IMU

	syntheticInterval := time.Duration(cfg.SyntheticInterval) * time.Millisecond

	channels := make([]syncer.ChannelConfig, 0, len(cfg.SyncChannels))
	for _, ch := range cfg.SyncChannels {
		var src adapter.ChannelAdapter

		if cfg.UseSyntheticSources {
			src = adapter.NewSynthetic(ch, syntheticInterval)
		} else {
			switch ch {
			case measure.ChannelAccelerometer, measure.ChannelGyroscope:
				if imu == nil {
					var err error
					imu, err = adapter.NewIMU("main", cfg.IMUSPIDevice, cfg.IMUCSPin,
						time.Duration(cfg.IMUSampleInterval)*time.Millisecond)
					if err != nil {
						return nil, err
					}
				}
				if ch == measure.ChannelAccelerometer {
					src = imu.Accelerometer()
				} else {
					src = imu.Gyroscope()
				}
			case measure.ChannelGPS:
				src = adapter.NewGPS(cfg.GPSSerialPort, cfg.GPSBaudRate)
			case measure.ChannelPressure:
				bmp, err := adapter.NewBMP(cfg.BMPSPIDevice,
					time.Duration(cfg.BMPSampleInterval)*time.Millisecond)
				if err != nil {
					return nil, err
				}
				src = bmp
			default:
				src = adapter.NewSynthetic(ch, syntheticInterval)
			}
		}

		channels = append(channels, syncer.ChannelConfig{
			Channel:  ch,
			Adapter:  fan.Wrap(src),
			Capacity: cfg.ChannelCapacity,
			Primary:  ch == cfg.SyncPrimaryChannel,
		})
	}
	return channels, nil
}

func clientID(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

func topic(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}
