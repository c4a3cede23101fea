// Package realtime fans committed domain events out to websocket clients.
// Rooms are keyed by event topic; a client joins the topics it cares about
// on connect and is dropped on the first failed write. Clients that miss
// events re-fetch authoritative state when they reconnect.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/events"
)

type client struct {
	conn    *websocket.Conn
	topics  map[events.Topic]struct{}
	writeMu sync.Mutex
}

// Hub is the websocket subscriber registry. It implements events.Sink so it
// can be wired directly to the broadcaster on single-instance deployments.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]*client),
		logger:  logger,
	}
}

// Register adds a connection subscribed to the given topics.
func (h *Hub) Register(conn *websocket.Conn, topics ...events.Topic) {
	set := make(map[events.Topic]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	h.mu.Lock()
	h.clients[conn] = &client{conn: conn, topics: set}
	h.mu.Unlock()
}

// Unregister removes a connection and closes it.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

// Deliver writes the event to every client subscribed to its topic.
func (h *Hub) Deliver(_ context.Context, event events.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("marshal event for websocket", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if _, ok := c.topics[event.Topic]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.writeMu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, payload)
		c.writeMu.Unlock()
		if err != nil {
			h.Unregister(c.conn)
		}
	}
}

// ListenRedis consumes the Redis event bus and re-delivers to local rooms.
// Blocks until ctx is cancelled; run it in its own goroutine.
func (h *Hub) ListenRedis(ctx context.Context, rdb *redis.Client) {
	sub := rdb.PSubscribe(ctx, events.ChannelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				h.logger.Warn("decode event from redis", zap.Error(err))
				continue
			}
			h.Deliver(ctx, event)
		}
	}
}
