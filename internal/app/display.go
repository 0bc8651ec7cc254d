// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/sensor_sync/internal/config"
	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// displayData holds the latest synced sample for the update loop.
type displayData struct {
	mu       sync.RWMutex
	last     measure.SyncedSample
	haveLast bool
	count    uint64
}

// RunDisplay shows the live synced stream on an SSD1306 OLED: the composite
// timestamp plus one line per channel.
func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized on bus %s", bus)

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &displayData{}

	// Connect to MQTT
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID(cfg.MQTTClientIDDisplay, "sensor-sync-display"))

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	syncedTopic := topic(cfg.TopicSynced, "sensor_sync/synced")
	token := client.Subscribe(syncedTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var ss measure.SyncedSample
		if err := json.Unmarshal(msg.Payload(), &ss); err != nil {
			log.Printf("display: synced sample unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.last = ss
		data.haveLast = true
		data.count++
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", syncedTopic)

	interval := cfg.DisplayUpdateInterval
	if interval <= 0 {
		interval = 200
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		snapshot := measure.SyncedSample{
			Timestamp: data.last.Timestamp,
			Samples:   append([]measure.Sample(nil), data.last.Samples...),
		}
		haveData := data.haveLast
		count := data.count
		data.mu.RUnlock()

		if err := updateSyncedDisplay(dev, snapshot, haveData, count); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

func showSplash(dev *ssd1306.Dev) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(0, 26)
	drawer.DrawBytes([]byte("sensor_sync"))
	drawer.Dot = fixed.P(0, 39)
	drawer.DrawBytes([]byte("Waiting..."))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func updateSyncedDisplay(dev *ssd1306.Dev, ss measure.SyncedSample, haveData bool, count uint64) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	if !haveData {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Synced stream"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
		return dev.Draw(dev.Bounds(), img, image.Point{})
	}

	// Header line: sample count and composite timestamp in milliseconds.
	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(fmt.Sprintf("#%d t=%dms", count, ss.Timestamp/1_000_000)))

	// One line per channel, 13px rows, first letter of the channel name.
	y := 26
	for _, s := range ss.Samples {
		if y > 64 {
			break
		}
		name := s.Channel.String()
		tag := "?"
		if name != "" {
			tag = string(name[0])
		}
		drawer.Dot = fixed.P(0, y)
		drawer.DrawBytes([]byte(fmt.Sprintf("%s:%6.1f %6.1f %6.1f", tag, s.Values[0], s.Values[1], s.Values[2])))
		y += 13
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
