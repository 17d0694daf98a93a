package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeDeliver is the asynq task type for a single push delivery.
const TypeDeliver = "push:deliver"

// DeliverPayload is the serialized task body.
type DeliverPayload struct {
	Token     string            `json:"token"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	MessageID int               `json:"message_id"`
}

// NewDeliverTask builds the asynq task for one notification.
func NewDeliverTask(payload DeliverPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDeliver, body, asynq.MaxRetry(3)), nil
}

// DeliverHandler runs on the worker side and performs the HTTP push.
type DeliverHandler struct {
	pusher Pusher
}

func NewDeliverHandler(pusher Pusher) *DeliverHandler {
	return &DeliverHandler{pusher: pusher}
}

func (h *DeliverHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload DeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", TypeDeliver, err)
	}
	return h.pusher.Push(ctx, payload.Token, payload.Title, payload.Body, payload.Data)
}

// RegisterHandlers mounts the push task handlers on an asynq mux.
func RegisterHandlers(mux *asynq.ServeMux, pusher Pusher) {
	mux.Handle(TypeDeliver, NewDeliverHandler(pusher))
}
