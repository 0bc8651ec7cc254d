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

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/sensor_sync/internal/config"
	"github.com/relabs-tech/sensor_sync/internal/measure"
)

// RunConsoleMQTT subscribes to the synced-sample and event topics and
// pretty-prints everything that arrives.
func RunConsoleMQTT() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID(cfg.MQTTClientIDConsole, "sensor-sync-console"))

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	syncedTopic := topic(cfg.TopicSynced, "sensor_sync/synced")
	syncedToken := client.Subscribe(syncedTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var ss measure.SyncedSample
		if err := json.Unmarshal(msg.Payload(), &ss); err != nil {
			log.Printf("console: synced sample unmarshal error: %v", err)
			return
		}

		line := fmt.Sprintf("[SYNC] t=%d", ss.Timestamp)
		for _, s := range ss.Samples {
			line += fmt.Sprintf("  %s@%d=(%7.2f %7.2f %7.2f)",
				s.Channel, s.Timestamp, s.Values[0], s.Values[1], s.Values[2])
		}
		fmt.Println(line)
	})
	syncedToken.Wait()
	if syncedToken.Error() != nil {
		return syncedToken.Error()
	}
	log.Printf("console: subscribed to %s", syncedTopic)

	eventsTopic := topic(cfg.TopicEvents, "sensor_sync/events")
	eventsToken := client.Subscribe(eventsTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var ev eventPayload
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			log.Printf("console: event unmarshal error: %v", err)
			return
		}

		switch ev.Kind {
		case "out_of_order":
			fmt.Printf("[EVNT] out-of-order on %s: %d after %d\n", ev.Channel, ev.Current, ev.Previous)
		case "stale":
			fmt.Printf("[EVNT] %d stale measurements dropped on %s\n", ev.Removed, ev.Channel)
		case "accuracy":
			fmt.Printf("[EVNT] accuracy on %s changed to %s\n", ev.Channel, ev.Accuracy)
		default:
			fmt.Printf("[EVNT] %s on %s\n", ev.Kind, ev.Channel)
		}
	})
	eventsToken.Wait()
	if eventsToken.Error() != nil {
		return eventsToken.Error()
	}
	log.Printf("console: subscribed to %s", eventsTopic)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("console: shutting down")
	return nil
}
