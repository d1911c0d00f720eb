package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-interview/attention/internal/metrics"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains session_id -> set of connections and broadcasts messages.
// With Redis configured, broadcasts go through pub/sub so every instance delivers
// them to its own connections exactly once.
type Hub struct {
	// sessionID -> map[clientID]*Client
	sessions map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per session
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
	metrics  *metrics.Metrics
}

// RedisPublisher publishes session events for cross-instance broadcast.
type RedisPublisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to session channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
		metrics:  m,
	}
}

// Register adds a client to a session room. Starts the Redis subscription for the session if first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.sessions[c.SessionID] == nil {
		h.sessions[c.SessionID] = make(map[string]*Client)
		if h.redisSub != nil {
			id := c.SessionID
			cancel, err := h.redisSub.SubscribeSession(id, func(event string, payload []byte) {
				h.Broadcast(id, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[id] = cancel
			} else {
				h.logger.Warn("redis subscribe failed", zap.String("session_id", id.String()), zap.Error(err))
			}
		}
	}
	h.sessions[c.SessionID][c.ID] = c
	h.mu.Unlock()
	h.metrics.Connected(string(c.Role), 1)
	h.logger.Debug("client joined session", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()))
}

// Unregister removes a client from a session room. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	m, ok := h.sessions[c.SessionID]
	if ok {
		if _, present := m[c.ID]; !present {
			ok = false
		}
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.sessions, c.SessionID)
			if cancel, found := h.subs[c.SessionID]; found {
				cancel()
				delete(h.subs, c.SessionID)
			}
		}
	}
	h.mu.Unlock()
	if ok {
		h.metrics.Connected(string(c.Role), -1)
	}
	h.logger.Debug("client left session", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()))
}

// Broadcast sends a message to all clients of a session on this instance.
func (h *Hub) Broadcast(sessionID uuid.UUID, event string, payload interface{}) {
	msg, err := newMessage(event, payload)
	if err != nil {
		h.logger.Warn("encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.sessions[sessionID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastToSession delivers an event to every watcher of the session. With Redis it
// publishes only, and the subscriber callback performs the local broadcast on every
// instance including this one.
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, event string, payload interface{}) {
	if h.redis == nil {
		h.Broadcast(sessionID, event, payload)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.redis.PublishSessionEvent(sessionID, event, data); err != nil {
		h.logger.Warn("redis publish failed, delivering locally", zap.String("session_id", sessionID.String()), zap.Error(err))
		h.Broadcast(sessionID, event, json.RawMessage(data))
	}
}

// ViewerCount returns the number of connected clients in a session.
func (h *Hub) ViewerCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func newMessage(event string, payload interface{}) (WSMessage, error) {
	var data []byte
	switch v := payload.(type) {
	case nil:
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return WSMessage{}, err
		}
	}
	return WSMessage{Event: event, Data: data}, nil
}
