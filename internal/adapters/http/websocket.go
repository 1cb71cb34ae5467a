package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/detscore/internal/adapters/nats"
	"github.com/samirrijal/detscore/internal/core/domain"
	"github.com/samirrijal/detscore/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to completion events.
type wsMessage struct {
	Action   string `json:"action"`   // "subscribe" | "unsubscribe"
	Strategy string `json:"strategy"` // "grouped" | "nearest" | "" (all)
}

func wsSubject(strategy string) (string, bool) {
	switch domain.Strategy(strategy) {
	case "":
		return natsadapter.SubjectCompletedAll, true
	case domain.StrategyGrouped, domain.StrategyNearest:
		return natsadapter.CompletedSubject(domain.Strategy(strategy)), true
	}
	return "", false
}

// WebSocketHandler relays evaluation.completed events to connected clients as
// JSON. Every client starts subscribed to all strategies and can narrow with
// {"action":"unsubscribe"} followed by {"action":"subscribe","strategy":"grouped"}.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		remoteAddr := c.RemoteAddr().String()
		log := slog.Default().With("remote", remoteAddr)
		log.Info("ws client connected")

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		if nc == nil {
			_ = writeJSON(map[string]string{"error": "event stream unavailable"})
			return
		}

		relay := func(msg *nats.Msg) {
			data, err := natsadapter.ToJSON(msg.Data)
			if err != nil {
				log.Warn("ws drop undecodable event", "subject", msg.Subject, "error", err)
				return
			}
			_ = writeJSON(json.RawMessage(data))
		}

		subs := make(map[string]*nats.Subscription) // subject -> subscription
		sub, err := nc.Subscribe(natsadapter.SubjectCompletedAll, relay)
		if err != nil {
			log.Error("ws default subscribe", "error", err)
			return
		}
		subs[natsadapter.SubjectCompletedAll] = sub

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			subject, ok := wsSubject(m.Strategy)
			if !ok {
				_ = writeJSON(map[string]string{"error": "unknown strategy: " + m.Strategy})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				s, err := nc.Subscribe(subject, relay)
				if err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				subs[subject] = s
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		log.Info("ws client disconnected")
	}
}
