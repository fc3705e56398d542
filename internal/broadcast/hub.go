// Package broadcast implements BroadcastHub: the subscriber set and
// periodic broadcast loop that fan processing results and metrics out
// to long-lived connections. Grounded on the teacher's
// internal/transport/http/handlers/websocket (Hub.clients set,
// register/unregister channels, broadcastMessage snapshot-then-send,
// per-client Send buffer) generalized from a single per-user broadcast
// target to the spec's four broadcast message types (metrics, recent_events,
// anomaly_alert, throughput_warning) and request/response session
// protocol.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dimasergei/streampulse/internal/core/domain/stream"
	"github.com/dimasergei/streampulse/internal/core/services/anomaly"
	"github.com/dimasergei/streampulse/internal/core/services/metrics"
)

// broadcastInterval is the cadence of the periodic metrics/recent_events
// broadcast loop.
const broadcastInterval = 5 * time.Second

// recentEventsCount is how many of the most recent processed entries
// the broadcast loop samples per tick.
const recentEventsCount = 10

// Channel is the transport-specific handshake/send surface a session is
// built around. The gorilla/websocket adapter in internal/transport/ws
// is the only production implementation; tests use an in-memory fake.
type Channel interface {
	Send(message []byte) error
	Close() error
}

// Session tracks one connected subscriber.
type Session struct {
	ID            string
	Channel       Channel
	Subscriptions map[string]bool
	MessageCount  int64
	ConnectedAt   time.Time
}

// validSubscriptions are the subscription names §4.7 recognizes.
var validSubscriptions = map[string]bool{"metrics": true, "events": true, "anomalies": true}

// Hub is BroadcastHub.
type Hub struct {
	mu       sync.RWMutex
	sessions map[Channel]*Session

	registry *metrics.Registry
	log      stream.LogClient
	logger   *logrus.Logger
}

// NewHub constructs a Hub.
func NewHub(registry *metrics.Registry, log stream.LogClient, logger *logrus.Logger) *Hub {
	return &Hub{
		sessions: make(map[Channel]*Session),
		registry: registry,
		log:      log,
		logger:   logger,
	}
}

// Connect registers channel as a subscriber, assigning clientID if
// empty, and sends the welcome frame.
func (h *Hub) Connect(channel Channel, clientID string) *Session {
	h.mu.Lock()
	if clientID == "" {
		clientID = fmt.Sprintf("client_%d", len(h.sessions))
	}
	session := &Session{
		ID:            clientID,
		Channel:       channel,
		Subscriptions: make(map[string]bool),
		ConnectedAt:   time.Now(),
	}
	h.sessions[channel] = session
	count := len(h.sessions)
	h.mu.Unlock()

	h.registry.SetActiveConnections(count)

	h.send(channel, frame{
		Type:      "connected",
		ClientID:  clientID,
		Message:   "connected to streampulse",
	})

	return session
}

// Disconnect removes channel from the subscriber set. Idempotent.
func (h *Hub) Disconnect(channel Channel) {
	h.mu.Lock()
	_, existed := h.sessions[channel]
	delete(h.sessions, channel)
	count := len(h.sessions)
	h.mu.Unlock()

	if existed {
		h.registry.SetActiveConnections(count)
	}
}

// frame is the envelope used by every message this hub ever sends.
// Fields are tagged omitempty so each call site only populates what its
// message type needs.
type frame struct {
	Type             string      `json:"type"`
	ClientID         string      `json:"client_id,omitempty"`
	Message          string      `json:"message,omitempty"`
	Data             interface{} `json:"data,omitempty"`
	Timestamp        string      `json:"timestamp,omitempty"`
	Count            int         `json:"count,omitempty"`
	Subscription     string      `json:"subscription,omitempty"`
	AlertTimestamp   string      `json:"alert_timestamp,omitempty"`
	WarningTimestamp string      `json:"warning_timestamp,omitempty"`
}

// send serializes message as JSON and transmits it on channel. On
// error the channel is disconnected. On success the session's message
// count is incremented.
func (h *Hub) send(channel Channel, message frame) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal broadcast frame")
		return
	}

	if err := channel.Send(payload); err != nil {
		h.Disconnect(channel)
		return
	}

	h.mu.Lock()
	if session, ok := h.sessions[channel]; ok {
		session.MessageCount++
	}
	h.mu.Unlock()
}

// Broadcast sends message to every connected subscriber. Sends are
// attempted against a snapshot of the subscriber set; any channel whose
// send fails is collected and disconnected only after the snapshot has
// been fully iterated, so the set is never mutated mid-iteration.
func (h *Hub) Broadcast(message frame) {
	h.mu.RLock()
	channels := make([]Channel, 0, len(h.sessions))
	for ch := range h.sessions {
		channels = append(channels, ch)
	}
	h.mu.RUnlock()

	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal broadcast frame")
		return
	}

	var failed []Channel
	for _, ch := range channels {
		if err := ch.Send(payload); err != nil {
			failed = append(failed, ch)
			continue
		}
		h.mu.Lock()
		if session, ok := h.sessions[ch]; ok {
			session.MessageCount++
		}
		h.mu.Unlock()
	}

	for _, ch := range failed {
		h.Disconnect(ch)
	}
}

// Run is the broadcast loop: every broadcastInterval it snapshots
// MetricsRegistry and the processed log's tail and broadcasts both. It
// does not terminate on a per-iteration failure; it stops only when ctx
// is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Hub) tick(ctx context.Context) {
	summary := h.registry.Summary()
	h.Broadcast(frame{Type: "metrics", Data: summary, Timestamp: now()})

	entries, err := h.log.ReadRange(ctx, stream.Processed, "-", "+", true, recentEventsCount)
	if err != nil {
		h.logger.WithError(err).Warn("broadcast loop: failed to read recent processed entries")
		return
	}
	h.Broadcast(frame{Type: "recent_events", Data: entriesToDTO(entries), Count: len(entries)})
}

// NotifyAnomaly implements workers.AnomalyNotifier: it turns a single
// worker's anomaly detection into an anomaly_alert broadcast.
func (h *Hub) NotifyAnomaly(ctx context.Context, eventID string, value, zScore float64, timestamp time.Time) {
	h.Broadcast(frame{
		Type: "anomaly_alert",
		Data: map[string]interface{}{
			"event_id":  eventID,
			"value":     value,
			"z_score":   zScore,
			"timestamp": timestamp.Format(time.RFC3339),
			"severity":  anomaly.Severity(zScore),
		},
		AlertTimestamp: now(),
	})
}

// NotifyThroughputWarning broadcasts a throughput_warning frame; callers
// (the metrics updater task) decide when throughput has fallen below
// target via metrics.Registry.ThroughputBelowTarget.
func (h *Hub) NotifyThroughputWarning(current, target, threshold, ratio float64) {
	h.Broadcast(frame{
		Type: "throughput_warning",
		Data: map[string]interface{}{
			"current_throughput":  current,
			"target_throughput":   target,
			"threshold":           threshold,
			"performance_ratio":   ratio,
		},
		WarningTimestamp: now(),
	})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func entriesToDTO(entries []stream.Entry) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		dto := make(map[string]interface{}, len(e.Fields)+1)
		for k, v := range e.Fields {
			dto[k] = v
		}
		dto["id"] = e.ID
		out = append(out, dto)
	}
	return out
}
