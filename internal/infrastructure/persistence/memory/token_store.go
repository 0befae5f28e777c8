package memory

import (
	"context"
	"sync"
)

// TokenStore remembers dedup tokens per user with a bounded FIFO
// window. It approximates the Redis store's TTL with a fixed capacity
// so long-running dev processes do not grow without bound.
type TokenStore struct {
	mu     sync.Mutex
	cap    int
	byUser map[int64]map[string]bool
	fifoBy map[int64][]string
}

const defaultTokenCap = 4096

func NewTokenStore() *TokenStore {
	return &TokenStore{
		cap:    defaultTokenCap,
		byUser: make(map[int64]map[string]bool),
		fifoBy: make(map[int64][]string),
	}
}

func (s *TokenStore) Seen(_ context.Context, userID int64, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.byUser[userID][token], nil
}

func (s *TokenStore) Mark(_ context.Context, userID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.byUser[userID]
	if !ok {
		set = make(map[string]bool)
		s.byUser[userID] = set
	}
	if set[token] {
		return nil
	}
	set[token] = true
	fifo := append(s.fifoBy[userID], token)
	if len(fifo) > s.cap {
		delete(set, fifo[0])
		fifo = fifo[1:]
	}
	s.fifoBy[userID] = fifo
	return nil
}
