package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	ws "github.com/coder/websocket"
	"github.com/dukerupert/curtaincall/internal/auth"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	maxReadBytes   = 4096
)

// request is a control frame sent by clients.
type request struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// Client represents a single WebSocket connection.
type Client struct {
	hub     *Hub
	conn    *ws.Conn
	session auth.Session
	send    chan []byte

	mu     sync.RWMutex
	topics map[string]bool
}

// NewClient creates a Client tied to the given hub, connection and session.
func NewClient(hub *Hub, conn *ws.Conn, session auth.Session) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		session: session,
		send:    make(chan []byte, sendBufferSize),
		topics:  make(map[string]bool),
	}
}

// Run registers the client, starts the write pump, and runs the read pump.
// It blocks until the connection is closed, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// Subscribe adds topic to the client's subscriptions if the session may
// watch it.
func (c *Client) Subscribe(topic string) bool {
	if !allowed(c.session, topic) {
		return false
	}
	c.mu.Lock()
	c.topics[topic] = true
	c.mu.Unlock()
	return true
}

func (c *Client) Unsubscribe(topic string) {
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
}

func (c *Client) firstSubscribed(topics []string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range topics {
		if c.topics[t] {
			return t, true
		}
	}
	return "", false
}

// allowed reports whether s may subscribe to topic. Staff may watch any
// member or group and admins also see incident reports. Everyone else gets
// their own member topic, their linked children's topics and their
// audience's announcements.
func allowed(s auth.Session, topic string) bool {
	if s.UserID == "" {
		return false
	}
	if topic == AnnouncementTopic(s.Audience()) {
		return true
	}
	if s.IsStaff() {
		return topic == TopicRewards ||
			topic == TopicReports && s.IsAdmin() ||
			strings.HasPrefix(topic, "member:") && len(topic) > len("member:") ||
			strings.HasPrefix(topic, "group:") && len(topic) > len("group:")
	}
	if id, ok := strings.CutPrefix(topic, "member:"); ok {
		return s.CanAccessMember(id)
	}
	return false
}

// handle applies one control frame and returns the reply.
func (c *Client) handle(data []byte) Message {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return Message{Type: "error", Error: "malformed request"}
	}
	switch req.Action {
	case "subscribe":
		if !c.Subscribe(req.Topic) {
			return Message{Type: "error", Topic: req.Topic, Error: "subscription not allowed"}
		}
		return Message{Type: "subscribed", Topic: req.Topic}
	case "unsubscribe":
		c.Unsubscribe(req.Topic)
		return Message{Type: "unsubscribed", Topic: req.Topic}
	default:
		return Message{Type: "error", Error: "unknown action"}
	}
}

// reply queues msg for this client only. It is dropped if the buffer is full.
func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump applies subscribe and unsubscribe requests. It returns on error
// (connection close), which triggers cleanup.
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxReadBytes)
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != ws.MessageText {
			continue
		}
		c.reply(c.handle(data))
	}
}

// writePump drains the send channel and writes messages to the WebSocket.
// It also sends periodic pings to detect stale connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				// Hub closed the channel, connection is done
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
