package broadcast

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// incoming is the shape of a client-originated message. Subscription is
// only populated for a "subscribe" payload.
type incoming struct {
	Type         string `json:"type"`
	Subscription string `json:"subscription"`
}

// HandleMessage implements the per-session incoming message handling of
// §4.7. Malformed JSON does not close the session, it replies with an
// error frame.
func (h *Hub) HandleMessage(channel Channel, raw []byte) {
	var msg incoming
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.send(channel, frame{Type: "error", Message: "Invalid JSON format"})
		return
	}

	switch msg.Type {
	case "ping":
		h.send(channel, frame{Type: "pong", Timestamp: now()})

	case "subscribe":
		if !validSubscriptions[msg.Subscription] {
			h.send(channel, frame{Type: "error", Message: "unknown subscription: " + msg.Subscription})
			return
		}
		h.mu.Lock()
		if session, ok := h.sessions[channel]; ok {
			session.Subscriptions[msg.Subscription] = true
		}
		h.mu.Unlock()
		h.send(channel, frame{
			Type:         "subscription_confirmed",
			Subscription: msg.Subscription,
			Message:      "subscribed to " + msg.Subscription,
		})

	case "get_metrics":
		h.send(channel, frame{Type: "metrics_response", Data: h.registry.Summary()})

	case "get_stats":
		h.send(channel, frame{Type: "stats_response", Data: h.connStats(channel)})

	default:
		h.logger.WithFields(logrus.Fields{"type": msg.Type}).Debug("unrecognized session message type")
		h.send(channel, frame{Type: "error", Message: "unknown message type: " + msg.Type})
	}
}

// connStats reports the calling session's own connection statistics,
// the payload of a get_stats response.
func (h *Hub) connStats(channel Channel) map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	session, ok := h.sessions[channel]
	if !ok {
		return map[string]interface{}{}
	}

	subs := make([]string, 0, len(session.Subscriptions))
	for s := range session.Subscriptions {
		subs = append(subs, s)
	}

	return map[string]interface{}{
		"client_id":      session.ID,
		"message_count":  session.MessageCount,
		"subscriptions":  subs,
		"connected_at":   session.ConnectedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		"total_sessions": len(h.sessions),
	}
}
