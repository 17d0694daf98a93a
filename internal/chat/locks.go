package chat

import "sync"

// conversationLocks serializes state mutations per conversation. Concurrent
// sends to the same conversation must not interleave in a way that corrupts
// the last-message pointer or broadcast order; cross-conversation operations
// proceed fully in parallel.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[int]*sync.Mutex)}
}

// acquire locks the conversation and returns the unlock function.
func (l *conversationLocks) acquire(conversationID int) func() {
	l.mu.Lock()
	lock, ok := l.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[conversationID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
