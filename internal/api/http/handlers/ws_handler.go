package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/realtime"
)

const (
	wsUserKey = "ws_user_id"
	wsRoleKey = "ws_role"
)

// WSHandler upgrades connections into hub rooms.
type WSHandler struct {
	hub            *realtime.Hub
	authMiddleware *auth.AuthMiddleware
}

// NewWSHandler constructs handler.
func NewWSHandler(hub *realtime.Hub, authMiddleware *auth.AuthMiddleware) *WSHandler {
	return &WSHandler{hub: hub, authMiddleware: authMiddleware}
}

// Upgrade gates a route to websocket upgrade requests.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// AuthenticateOperator resolves the token query parameter before the upgrade;
// browsers cannot set an Authorization header on websocket requests.
func (h *WSHandler) AuthenticateOperator(c *fiber.Ctx) error {
	principal, err := h.authMiddleware.Authenticate(c, c.Query("token"))
	if err != nil {
		return err
	}
	c.Locals(wsUserKey, principal.User.ID)
	c.Locals(wsRoleKey, principal.Role)
	return c.Next()
}

// StatusSocket GET /ws/status. Subscribes to the public feed and, when
// ?category_id is given, that category's room.
func (h *WSHandler) StatusSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		topics := []events.Topic{events.TopicPublic}
		if categoryID := conn.Query("category_id"); categoryID != "" {
			topics = append(topics, events.CategoryTopic(categoryID))
		}
		h.serve(conn, topics...)
	})
}

// AgentSocket GET /ws/agent. Subscribes the authenticated agent to its own
// room plus the public feed.
func (h *WSHandler) AgentSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals(wsUserKey).(string)
		if !ok || userID == "" {
			_ = conn.Close()
			return
		}
		h.serve(conn, events.AgentTopic(userID), events.TopicPublic)
	})
}

// AdminSocket GET /ws/admin. Admins name the rooms they want to watch via
// ?topics=agent:a1,category:c1; the public feed is always included.
func (h *WSHandler) AdminSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		role, ok := conn.Locals(wsRoleKey).(domain.Role)
		if !ok || role != domain.RoleAdmin {
			_ = conn.Close()
			return
		}
		topics := []events.Topic{events.TopicPublic}
		for _, raw := range strings.Split(conn.Query("topics"), ",") {
			if raw = strings.TrimSpace(raw); raw != "" {
				topics = append(topics, events.Topic(raw))
			}
		}
		h.serve(conn, topics...)
	})
}

// serve registers the connection and drains inbound frames until the client
// goes away. Inbound payloads are ignored; the socket is push only.
func (h *WSHandler) serve(conn *websocket.Conn, topics ...events.Topic) {
	h.hub.Register(conn, topics...)
	defer h.hub.Unregister(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
