package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/curtaincall/internal/metrics"
)

// Topics clients can subscribe to.
const (
	TopicRewards = "rewards"
	// TopicReports carries incident reports and is limited to admins.
	TopicReports = "reports"
)

func MemberTopic(memberID string) string { return "member:" + memberID }

func GroupTopic(groupID string) string { return "group:" + groupID }

func AnnouncementTopic(audience string) string { return "announcements:" + audience }

// Message is a change notification pushed to subscribers of Topic.
type Message struct {
	Type   string         `json:"type"`
	Topic  string         `json:"topic,omitempty"`
	Entity string         `json:"entity,omitempty"`
	Action string         `json:"action,omitempty"`
	ID     string         `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action, id string, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub maintains the set of active WebSocket clients and routes messages to
// the clients subscribed to each topic.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHub creates a new Hub. m may be nil.
func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		metrics: m,
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetLiveClients(n)
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetLiveClients(n)
}

// Publish sends msg to every client subscribed to any of topics. A client
// subscribed to several of them receives the message once, stamped with the
// first matching topic.
func (h *Hub) Publish(msg Message, topics ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		topic, ok := c.firstSubscribed(topics)
		if !ok {
			continue
		}
		m := msg
		m.Topic = topic
		data, err := json.Marshal(m)
		if err != nil {
			h.logger.Error("marshal publish", "error", err)
			return
		}
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop message to avoid blocking
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
