package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"mentorship-chat-service/internal/auth"
	"mentorship-chat-service/internal/models"
	"mentorship-chat-service/internal/observability"
	"mentorship-chat-service/internal/telemetry"
)

// Handler owns the /ws endpoint: authenticate, upgrade, register, dispatch.
type Handler struct {
	hub      *Hub
	verifier *auth.Verifier
	services Services
}

// NewHandler constructs the websocket endpoint handler.
func NewHandler(hub *Hub, verifier *auth.Verifier, services Services) *Handler {
	h := &Handler{hub: hub, verifier: verifier, services: services}
	if h.services.OnEvent == nil {
		h.services.OnEvent = func(event models.EventName) {
			observability.IncWSEvent("chat", string(event))
		}
	}
	return h
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and runs the read loop until the client
// goes away. Rooms are joined per conversation via join-conversation frames;
// the connection itself is scoped to the user, not to one conversation.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("mentorship-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	identity, err := h.verifier.Verify(ctx, bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": wsAuthReason(err)})
		return
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	conn := NewConnection(identity.UserID, sock)
	conn.Start()
	h.hub.Register(conn)

	traceID := telemetry.TraceIDFromContext(ctx)
	requestID := observability.RequestIDFromRequest(c.Request)
	connectedAt := time.Now()

	observability.IncWSActive("chat")
	observability.IncWSEvent("chat", "ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":    "chat",
				"event":   "ws_connect",
				"conn_id": conn.ID,
			},
			"identity": map[string]interface{}{
				"user_id":   identity.UserID,
				"device_id": observability.DeviceIDFromRequest(c.Request),
				"ip":        observability.IPFromRequest(c.Request),
			},
		},
	}, observability.BuildHeaders(requestID, traceID))

	client := NewClient(conn, h.hub, identity, h.services)

	go func() {
		defer func() {
			remaining, vacated := h.hub.Unregister(conn)
			conn.Close(websocket.CloseNormalClosure, "")
			if remaining == 0 {
				// Last device gone: the user is offline everywhere.
				h.services.Presence.Disconnect(context.Background(), identity.UserID)
			} else {
				// Another device is still connected but not joined to
				// these rooms; their members see the user go offline.
				for _, conversationID := range vacated {
					h.services.Presence.Leave(context.Background(), conversationID, identity.UserID)
				}
			}
			observability.DecWSActive("chat")
			observability.IncWSEvent("chat", "ws_disconnect")
			_ = observability.PublishEvent(context.Background(), "ws_events.chat", observability.EventEnvelope{
				EventType: "ws_events",
				EventName: "ws_disconnect",
				Payload: map[string]interface{}{
					"ws": map[string]interface{}{
						"kind":        "chat",
						"event":       "ws_disconnect",
						"conn_id":     conn.ID,
						"duration_ms": time.Since(connectedAt).Milliseconds(),
					},
					"identity": map[string]interface{}{
						"user_id": identity.UserID,
					},
				},
			}, observability.BuildHeaders(requestID, traceID))
		}()

		client.ReadLoop(context.Background())
	}()
}

// bearerToken accepts the token from the Authorization header or, for
// browser websocket clients that cannot set headers, a token query param.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return header
	}
	return c.Query("token")
}

func wsAuthReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, auth.ErrAccountInactive):
		return "account inactive"
	default:
		return "invalid token"
	}
}
