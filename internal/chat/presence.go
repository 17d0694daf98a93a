package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"mentorship-chat-service/internal/models"
	"mentorship-chat-service/internal/repositories"
)

// LastSeenCache records best-effort last-seen timestamps for quick presence
// lookups by other services. Failures are logged, never propagated.
type LastSeenCache interface {
	Touch(ctx context.Context, userID int, at time.Time)
}

// RedisLastSeenCache stores last-seen under presence:user:{id}.
type RedisLastSeenCache struct {
	client *redis.Client
}

// NewRedisLastSeenCache constructs the cache on an existing client.
func NewRedisLastSeenCache(client *redis.Client) *RedisLastSeenCache {
	return &RedisLastSeenCache{client: client}
}

func (c *RedisLastSeenCache) Touch(ctx context.Context, userID int, at time.Time) {
	key := fmt.Sprintf("presence:user:%d", userID)
	if err := c.client.Set(ctx, key, at.UTC().Format(time.RFC3339), 24*time.Hour).Err(); err != nil {
		log.Printf("presence cache write failed: user=%d err=%v", userID, err)
	}
}

type noopLastSeenCache struct{}

func (noopLastSeenCache) Touch(ctx context.Context, userID int, at time.Time) {}

// NewLastSeenCache picks the Redis cache when a client is available.
func NewLastSeenCache(client *redis.Client) LastSeenCache {
	if client != nil {
		return NewRedisLastSeenCache(client)
	}
	return noopLastSeenCache{}
}

// PresenceTracker recomputes online/last-seen on every room join, leave and
// connection teardown, and broadcasts transitions so clients reflect presence
// without polling.
type PresenceTracker struct {
	conversations repositories.ConversationRepository
	participants  repositories.ParticipantRepository
	broadcaster   Broadcaster
	cache         LastSeenCache
	now           func() time.Time
}

// NewPresenceTracker constructs a PresenceTracker.
func NewPresenceTracker(conversations repositories.ConversationRepository, participants repositories.ParticipantRepository, broadcaster Broadcaster, cache LastSeenCache) *PresenceTracker {
	return &PresenceTracker{
		conversations: conversations,
		participants:  participants,
		broadcaster:   broadcaster,
		cache:         cache,
		now:           time.Now,
	}
}

// Join authorizes room entry. Only active participants of a live conversation
// may join; everyone else gets ErrForbidden. On success the online flag and
// last-seen are updated and the rest of the room is notified.
func (p *PresenceTracker) Join(ctx context.Context, conversationID int, userID int) (models.Participant, error) {
	conv, err := p.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Participant{}, ErrForbidden
	}
	if conv.Status == models.ConversationDeleted {
		return models.Participant{}, ErrConversationGone
	}

	part, err := p.participants.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		return models.Participant{}, ErrForbidden
	}
	if !part.CanParticipate() {
		return models.Participant{}, ErrForbidden
	}

	if err := p.participants.SetOnline(ctx, conversationID, userID, true); err != nil {
		return models.Participant{}, err
	}
	p.cache.Touch(ctx, userID, p.now())
	p.broadcastStatus(conversationID, userID, true)
	return part, nil
}

// Leave performs the symmetric update on explicit leave.
func (p *PresenceTracker) Leave(ctx context.Context, conversationID int, userID int) {
	if err := p.participants.SetOnline(ctx, conversationID, userID, false); err != nil {
		log.Printf("presence leave update failed: conversation=%d user=%d err=%v", conversationID, userID, err)
	}
	p.cache.Touch(ctx, userID, p.now())
	p.broadcastStatus(conversationID, userID, false)
}

// Disconnect handles connection teardown for a user whose last connection
// closed. The user may have been present in several conversations at once via
// multiple tabs or devices, so every conversation they belong to gets an
// offline broadcast, not just the rooms most recently joined.
func (p *PresenceTracker) Disconnect(ctx context.Context, userID int) {
	ids, err := p.participants.ConversationIDsForUser(ctx, userID)
	if err != nil {
		log.Printf("presence disconnect enumerate failed: user=%d err=%v", userID, err)
		return
	}
	if err := p.participants.SetOnlineEverywhere(ctx, userID, false); err != nil {
		log.Printf("presence disconnect update failed: user=%d err=%v", userID, err)
	}
	p.cache.Touch(ctx, userID, p.now())
	for _, conversationID := range ids {
		p.broadcastStatus(conversationID, userID, false)
	}
}

func (p *PresenceTracker) broadcastStatus(conversationID int, userID int, online bool) {
	at := p.now()
	payload, err := models.NewEnvelope(models.EventUserStatusChanged, models.PresenceEvent{
		ConversationID: conversationID,
		UserID:         userID,
		Online:         online,
		LastSeenAt:     &at,
	})
	if err != nil {
		return
	}
	p.broadcaster.BroadcastToRoom(conversationID, payload, userID)
}
