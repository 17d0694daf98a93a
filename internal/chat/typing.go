package chat

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"mentorship-chat-service/internal/models"
	"mentorship-chat-service/internal/repositories"
)

// typingWindow is how long a typing-start stays live without a refresh.
const typingWindow = 10 * time.Second

// TypingStore holds the self-expiring typing flags. Typing state is ephemeral:
// never persisted, never replayed.
type TypingStore interface {
	Start(ctx context.Context, conversationID int, userID int) error
	Stop(ctx context.Context, conversationID int, userID int) error
	Active(ctx context.Context, conversationID int, userID int) (bool, error)
}

// RedisTypingStore keeps typing flags as keys with a 10s TTL so expiry needs
// no sweeper.
type RedisTypingStore struct {
	client *redis.Client
}

// NewRedisTypingStore constructs a store on an existing client.
func NewRedisTypingStore(client *redis.Client) *RedisTypingStore {
	return &RedisTypingStore{client: client}
}

func typingKey(conversationID int, userID int) string {
	return fmt.Sprintf("typing:%d:%d", conversationID, userID)
}

func (s *RedisTypingStore) Start(ctx context.Context, conversationID int, userID int) error {
	return s.client.Set(ctx, typingKey(conversationID, userID), "1", typingWindow).Err()
}

func (s *RedisTypingStore) Stop(ctx context.Context, conversationID int, userID int) error {
	return s.client.Del(ctx, typingKey(conversationID, userID)).Err()
}

func (s *RedisTypingStore) Active(ctx context.Context, conversationID int, userID int) (bool, error) {
	n, err := s.client.Exists(ctx, typingKey(conversationID, userID)).Result()
	return n > 0, err
}

// MemoryTypingStore is the fallback when Redis is not configured; the flag is
// a timestamp checked against the 10s window at read time.
type MemoryTypingStore struct {
	mu      sync.Mutex
	started map[string]time.Time
	now     func() time.Time
}

// NewMemoryTypingStore constructs an in-memory store.
func NewMemoryTypingStore() *MemoryTypingStore {
	return &MemoryTypingStore{started: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryTypingStore) Start(ctx context.Context, conversationID int, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started[typingKey(conversationID, userID)] = s.now()
	return nil
}

func (s *MemoryTypingStore) Stop(ctx context.Context, conversationID int, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.started, typingKey(conversationID, userID))
	return nil
}

func (s *MemoryTypingStore) Active(ctx context.Context, conversationID int, userID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := typingKey(conversationID, userID)
	at, ok := s.started[key]
	if !ok {
		return false, nil
	}
	if s.now().Sub(at) >= typingWindow {
		delete(s.started, key)
		return false, nil
	}
	return true, nil
}

// NewTypingStore picks the Redis store when a client is available.
func NewTypingStore(client *redis.Client) TypingStore {
	if client != nil {
		return NewRedisTypingStore(client)
	}
	log.Println("redis not configured, typing state held in memory")
	return NewMemoryTypingStore()
}

// TypingTracker validates membership, records the flag and broadcasts
// user-typing transitions to the rest of the room.
type TypingTracker struct {
	store        TypingStore
	participants repositories.ParticipantRepository
	broadcaster  Broadcaster
}

// NewTypingTracker constructs a TypingTracker.
func NewTypingTracker(store TypingStore, participants repositories.ParticipantRepository, broadcaster Broadcaster) *TypingTracker {
	return &TypingTracker{store: store, participants: participants, broadcaster: broadcaster}
}

// Start records a typing flag valid for the next 10 seconds and notifies the
// other room members.
func (t *TypingTracker) Start(ctx context.Context, conversationID int, userID int) error {
	if err := t.authorize(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := t.store.Start(ctx, conversationID, userID); err != nil {
		return err
	}
	t.broadcast(conversationID, userID, true)
	return nil
}

// Stop clears the flag and notifies the room.
func (t *TypingTracker) Stop(ctx context.Context, conversationID int, userID int) error {
	if err := t.authorize(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := t.store.Stop(ctx, conversationID, userID); err != nil {
		return err
	}
	t.broadcast(conversationID, userID, false)
	return nil
}

// Active reports whether the user typed within the last 10 seconds.
func (t *TypingTracker) Active(ctx context.Context, conversationID int, userID int) (bool, error) {
	return t.store.Active(ctx, conversationID, userID)
}

// clearOnMessage drops the flag when the user's message lands; a new message
// ends the typing state without an explicit typing-stop.
func (t *TypingTracker) clearOnMessage(ctx context.Context, conversationID int, userID int) {
	if err := t.store.Stop(ctx, conversationID, userID); err != nil {
		log.Printf("clear typing failed: conversation=%d user=%d err=%v", conversationID, userID, err)
		return
	}
	t.broadcast(conversationID, userID, false)
}

func (t *TypingTracker) authorize(ctx context.Context, conversationID int, userID int) error {
	part, err := t.participants.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		return ErrForbidden
	}
	if !part.CanParticipate() {
		return ErrForbidden
	}
	return nil
}

func (t *TypingTracker) broadcast(conversationID int, userID int, typing bool) {
	payload, err := models.NewEnvelope(models.EventUserTyping, models.TypingEvent{
		ConversationID: conversationID,
		UserID:         userID,
		Typing:         typing,
	})
	if err != nil {
		return
	}
	t.broadcaster.BroadcastToRoom(conversationID, payload, userID)
}
