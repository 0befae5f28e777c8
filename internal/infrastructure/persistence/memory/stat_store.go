// Package memory provides in-process implementations of the domain
// repositories. The worker falls back to them when Postgres is not
// configured, and the application tests use them as doubles.
package memory

import (
	"context"
	"sync"

	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/stats"
)

type StatStore struct {
	mu    sync.RWMutex
	byUID map[int64]stats.UserStat
}

func NewStatStore() *StatStore {
	return &StatStore{byUID: make(map[int64]stats.UserStat)}
}

func (s *StatStore) Get(_ context.Context, userID int64) (*stats.UserStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.byUID[userID]
	if !ok {
		return nil, shared.ErrUserStatNotFound
	}
	cp := st
	return &cp, nil
}

func (s *StatStore) Save(_ context.Context, st *stats.UserStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byUID[st.UserID] = *st
	return nil
}
