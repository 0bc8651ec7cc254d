// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/sensor_sync/internal/config"
	"github.com/relabs-tech/sensor_sync/internal/measure"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local monitoring UI only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// webState holds the latest synced sample plus the set of live websocket
// subscribers.
type webState struct {
	mu       sync.RWMutex
	last     measure.SyncedSample
	haveLast bool

	subMu sync.Mutex
	subs  map[*websocket.Conn]chan []byte
}

func (s *webState) subscribe(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 16)
	s.subMu.Lock()
	s.subs[conn] = ch
	s.subMu.Unlock()
	return ch
}

func (s *webState) unsubscribe(conn *websocket.Conn) {
	s.subMu.Lock()
	if ch, ok := s.subs[conn]; ok {
		delete(s.subs, conn)
		close(ch)
	}
	s.subMu.Unlock()
}

func (s *webState) broadcast(payload []byte) {
	s.subMu.Lock()
	for conn, ch := range s.subs {
		select {
		case ch <- payload:
		default:
			// Slow client: drop the frame rather than stall the feed.
			_ = conn
		}
	}
	s.subMu.Unlock()
}

// RunWeb serves the live monitoring UI: a JSON API with the latest synced
// sample and a websocket that streams every sample as it is published.
func RunWeb() error {
	cfg := config.Get()

	state := &webState{subs: make(map[*websocket.Conn]chan []byte)}

	// 1) Connect to MQTT and mirror the synced topic into state.
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID(cfg.MQTTClientIDWeb, "sensor-sync-web"))

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	syncedTopic := topic(cfg.TopicSynced, "sensor_sync/synced")
	token := client.Subscribe(syncedTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var ss measure.SyncedSample
		if err := json.Unmarshal(msg.Payload(), &ss); err != nil {
			log.Printf("web: synced sample unmarshal error: %v", err)
			return
		}
		state.mu.Lock()
		state.last = ss
		state.haveLast = true
		state.mu.Unlock()

		state.broadcast(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: subscribed to %s", syncedTopic)

	// 2) JSON API endpoint: latest synced sample.
	http.HandleFunc("/api/synced", func(w http.ResponseWriter, r *http.Request) {
		state.mu.RLock()
		defer state.mu.RUnlock()

		if !state.haveLast {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(state.last); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// 3) Websocket endpoint: push every synced sample to the browser.
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()
		defer state.unsubscribe(conn)

		feed := state.subscribe(conn)
		for payload := range feed {
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("web: websocket error: %v", err)
				}
				return
			}
		}
	})

	// 4) Static files from ./web as the root.
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	port := cfg.WebServerPort
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
