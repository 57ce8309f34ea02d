// Package main runs a demo WebSocket client against the solve stream.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/solve/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "dispatcher")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	solve := map[string]any{
		"seed":          7,
		"maxIterations": 50,
		"orders": []map[string]any{{
			"id":             "o1",
			"consignor":      map[string]any{"location": map[string]float64{"lat": 52.50, "lng": 13.40}},
			"consignee":      map[string]any{"location": map[string]float64{"lat": 52.55, "lng": 13.45}},
			"pickupWindow":   map[string]string{"start": "2025-01-15T08:00:00Z", "end": "2025-01-16T18:00:00Z"},
			"deliveryWindow": map[string]string{"start": "2025-01-15T08:00:00Z", "end": "2025-01-16T18:00:00Z"},
			"weightKg":       500,
		}},
		"vehicles": []map[string]any{{
			"id":          "v1",
			"maxWeightKg": 1000,
			"location":    map[string]float64{"lat": 52.49, "lng": 13.39},
			"status":      "available",
		}},
	}
	pl, _ := json.Marshal(solve)
	if err := c.WriteJSON(wsMessage{Type: "solve", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				log.Printf("read: %v", err)
				return
			}
			var m struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(raw, &m)
			log.Printf("WS <- %s", string(raw))
			if m.Type == "solve.result" || m.Type == "error" {
				return
			}
		}
	}()

	select {
	case <-time.After(10 * time.Second):
	case <-done:
	}
}
