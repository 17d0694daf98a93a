package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"mentorship-chat-service/internal/auth"
	"mentorship-chat-service/internal/chat"
	"mentorship-chat-service/internal/models"
)

// Services bundles the chat-layer collaborators the dispatch loop drives.
type Services struct {
	Presence  *chat.PresenceTracker
	Typing    *chat.TypingTracker
	Pipeline  *chat.Pipeline
	Reactions *chat.ReactionManager
	Calls     *chat.CallRelay

	// OnEvent, when set, observes every well-formed inbound frame.
	OnEvent func(event models.EventName)
}

// Client owns one authenticated connection's read side and routes inbound
// frames to the chat services.
type Client struct {
	conn     *Connection
	hub      *Hub
	identity auth.Identity
	services Services
}

// NewClient binds a registered connection to its dispatch loop.
func NewClient(conn *Connection, hub *Hub, identity auth.Identity, services Services) *Client {
	return &Client{conn: conn, hub: hub, identity: identity, services: services}
}

// ReadLoop consumes frames until the peer goes away or misbehaves. It blocks;
// the caller runs teardown when it returns.
func (c *Client) ReadLoop(ctx context.Context) {
	c.conn.ws.SetReadLimit(maxMessageSize)
	_ = c.conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.ws.SetPongHandler(func(string) error {
		return c.conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws read error: user=%d conn=%s err=%v", c.conn.UserID, c.conn.ID, err)
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendError("malformed frame")
			continue
		}
		if c.services.OnEvent != nil {
			c.services.OnEvent(env.Event)
		}
		c.dispatch(ctx, env)
	}
}

// dispatch is the single switch over every client event. Unknown events get
// an error frame back instead of tearing the connection down.
func (c *Client) dispatch(ctx context.Context, env models.Envelope) {
	switch env.Event {
	case models.EventJoinConversation:
		var ref models.ConversationRef
		if !c.decode(env.Data, &ref) {
			return
		}
		if _, err := c.services.Presence.Join(ctx, ref.ConversationID, c.conn.UserID); err != nil {
			c.reject(env.Event, err)
			return
		}
		c.hub.JoinRoom(ref.ConversationID, c.conn)

	case models.EventLeaveConversation:
		var ref models.ConversationRef
		if !c.decode(env.Data, &ref) {
			return
		}
		c.hub.LeaveRoom(ref.ConversationID, c.conn)
		c.services.Presence.Leave(ctx, ref.ConversationID, c.conn.UserID)

	case models.EventSendMessage:
		var in models.SendMessagePayload
		if !c.decode(env.Data, &in) {
			return
		}
		_, err := c.services.Pipeline.Send(ctx, c.conn.UserID, c.identity.DisplayName, in, func(msg models.Message) {
			c.sendEvent(models.EventMessageSent, msg)
		})
		if err != nil {
			c.reject(env.Event, err)
		}

	case models.EventTypingStart:
		var ref models.ConversationRef
		if !c.decode(env.Data, &ref) {
			return
		}
		if err := c.services.Typing.Start(ctx, ref.ConversationID, c.conn.UserID); err != nil {
			c.reject(env.Event, err)
		}

	case models.EventTypingStop:
		var ref models.ConversationRef
		if !c.decode(env.Data, &ref) {
			return
		}
		if err := c.services.Typing.Stop(ctx, ref.ConversationID, c.conn.UserID); err != nil {
			c.reject(env.Event, err)
		}

	case models.EventMarkMessageRead:
		var ref models.MessageRef
		if !c.decode(env.Data, &ref) {
			return
		}
		if err := c.services.Pipeline.MarkMessageRead(ctx, ref.ConversationID, ref.MessageID, c.conn.UserID); err != nil {
			c.reject(env.Event, err)
		}

	case models.EventMarkConversationRead:
		var ref models.ConversationRef
		if !c.decode(env.Data, &ref) {
			return
		}
		if err := c.services.Pipeline.MarkConversationRead(ctx, ref.ConversationID, c.conn.UserID); err != nil {
			c.reject(env.Event, err)
		}

	case models.EventAddReaction:
		var in models.ReactionPayload
		if !c.decode(env.Data, &in) {
			return
		}
		if err := c.services.Reactions.Add(ctx, in.ConversationID, in.MessageID, c.conn.UserID, in.Emoji); err != nil {
			c.reject(env.Event, err)
		}

	case models.EventRemoveReaction:
		var in models.ReactionPayload
		if !c.decode(env.Data, &in) {
			return
		}
		if err := c.services.Reactions.Remove(ctx, in.ConversationID, in.MessageID, c.conn.UserID); err != nil {
			c.reject(env.Event, err)
		}

	case models.EventEditMessage:
		var in models.EditMessagePayload
		if !c.decode(env.Data, &in) {
			return
		}
		if _, err := c.services.Pipeline.Edit(ctx, in.ConversationID, in.MessageID, c.conn.UserID, in.Content); err != nil {
			c.reject(env.Event, err)
		}

	case models.EventDeleteMessage:
		var in models.DeleteMessagePayload
		if !c.decode(env.Data, &in) {
			return
		}
		if err := c.services.Pipeline.Delete(ctx, in.ConversationID, in.MessageID, c.conn.UserID, in.Scope); err != nil {
			c.reject(env.Event, err)
		}

	case models.EventCallInvite, models.EventCallAccept, models.EventCallReject, models.EventCallEnd:
		var sig models.CallSignal
		if !c.decode(env.Data, &sig) {
			return
		}
		c.services.Calls.Relay(env.Event, c.conn.UserID, sig)

	default:
		c.sendError("unknown event")
	}
}

func (c *Client) decode(raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		c.sendError("missing event data")
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.sendError("malformed event data")
		return false
	}
	return true
}

// reject maps a service failure onto the wire. Authorization failures are
// logged but stay silent on the socket so a probe learns nothing about
// conversations it does not belong to.
func (c *Client) reject(event models.EventName, err error) {
	if errors.Is(err, chat.ErrForbidden) {
		log.Printf("rejected %s: user=%d err=%v", event, c.conn.UserID, err)
		return
	}
	log.Printf("failed %s: user=%d err=%v", event, c.conn.UserID, err)
	c.sendError(clientMessage(err))
}

func (c *Client) sendEvent(event models.EventName, data any) {
	payload, err := models.NewEnvelope(event, data)
	if err != nil {
		return
	}
	_ = c.conn.Send(payload)
}

func (c *Client) sendError(msg string) {
	c.sendEvent(models.EventError, models.ErrorEvent{Message: msg})
}

// clientMessage keeps internal failure detail off the wire; only the known
// rejection reasons go back verbatim.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return err.Error()
	case errors.Is(err, chat.ErrNotSender):
		return "only the sender may do that"
	case errors.Is(err, chat.ErrEditWindowClosed):
		return "edit window has closed"
	case errors.Is(err, chat.ErrMessageDeleted):
		return "message was deleted"
	case errors.Is(err, chat.ErrConversationGone):
		return "conversation is no longer available"
	default:
		return "operation failed"
	}
}
