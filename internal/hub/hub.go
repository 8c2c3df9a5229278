package hub

import (
	"encoding/json"
	"log"
	"sync"
)

// Topics published by the API.
const (
	TopicDevice     = "device"
	TopicPublishJob = "publish_job"
	TopicTrainJob   = "train_job"
	TopicSettings   = "settings"
)

type Writer interface {
	Write(message []byte) error
	Close() error
}

// Connection is one subscriber. An empty Topics set receives everything.
type Connection struct {
	Topics map[string]struct{}
	Writer Writer
}

func NewConnection(w Writer, topics ...string) *Connection {
	c := &Connection{Topics: make(map[string]struct{}, len(topics)), Writer: w}
	for _, t := range topics {
		if t != "" {
			c.Topics[t] = struct{}{}
		}
	}
	return c
}

func (c *Connection) wants(topic string) bool {
	if len(c.Topics) == 0 {
		return true
	}
	_, ok := c.Topics[topic]
	return ok
}

type Event struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  any    `json:"data,omitempty"`
}

type Hub struct {
	mu          sync.RWMutex
	connections map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn] = struct{}{}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, conn)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Publish sends data to every subscriber of topic. A nil hub is a no-op so
// callers without live updates need no special casing.
func (h *Hub) Publish(topic string, data any) {
	if h == nil {
		return
	}
	out, err := json.Marshal(Event{Type: "event", Topic: topic, Data: data})
	if err != nil {
		log.Printf("hub: marshal %s event: %v", topic, err)
		return
	}
	h.Broadcast(topic, out)
}

// Broadcast writes message to each subscriber of topic. Connections whose
// write fails are closed and dropped.
func (h *Hub) Broadcast(topic string, message []byte) {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.connections))
	for c := range h.connections {
		if c.wants(topic) {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}
