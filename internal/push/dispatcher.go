package push

import (
	"context"
	"log"
	"strconv"

	"github.com/hibiken/asynq"

	"mentorship-chat-service/internal/models"
	"mentorship-chat-service/internal/observability"
	"mentorship-chat-service/internal/repositories"
)

// Enqueuer is the slice of asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher decides, per recipient, whether a message warrants a push and
// hands delivery to the task queue. When no queue is configured the push is
// sent inline so a standalone deployment still notifies.
type Dispatcher struct {
	users    repositories.UserRepository
	pusher   Pusher
	enqueuer Enqueuer
}

func NewDispatcher(users repositories.UserRepository, pusher Pusher, enqueuer Enqueuer) *Dispatcher {
	return &Dispatcher{users: users, pusher: pusher, enqueuer: enqueuer}
}

// Dispatch sends at most one notification for one message to one recipient.
// Muted participants, disabled notification settings and tokenless users all
// short-circuit quietly. Push failure never surfaces to the message sender.
func (d *Dispatcher) Dispatch(ctx context.Context, recipient models.Participant, senderName string, preview string, messageID int) {
	if recipient.Status == models.ParticipantMuted || !recipient.NotificationsEnabled {
		observability.IncPushDispatch("skipped")
		return
	}

	user, err := d.users.GetUser(ctx, recipient.UserID)
	if err != nil {
		log.Printf("push recipient lookup failed: user=%d err=%v", recipient.UserID, err)
		observability.IncPushDispatch("failed")
		return
	}
	if !user.NotificationsEnabled || user.PushToken == nil || *user.PushToken == "" {
		observability.IncPushDispatch("skipped")
		return
	}

	payload := DeliverPayload{
		Token:     *user.PushToken,
		Title:     senderName,
		Body:      preview,
		MessageID: messageID,
		Data: map[string]string{
			"conversation_id": strconv.Itoa(recipient.ConversationID),
			"message_id":      strconv.Itoa(messageID),
		},
	}

	if d.enqueuer != nil {
		task, err := NewDeliverTask(payload)
		if err == nil {
			if _, err = d.enqueuer.EnqueueContext(ctx, task); err == nil {
				observability.IncPushDispatch("enqueued")
				return
			}
		}
		log.Printf("push enqueue failed, sending inline: user=%d err=%v", recipient.UserID, err)
	}

	if err := d.pusher.Push(ctx, payload.Token, payload.Title, payload.Body, payload.Data); err != nil {
		log.Printf("push send failed: user=%d message=%d err=%v", recipient.UserID, messageID, err)
		observability.IncPushDispatch("failed")
		return
	}
	observability.IncPushDispatch("sent")
}
