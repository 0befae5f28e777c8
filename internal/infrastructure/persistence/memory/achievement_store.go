package memory

import (
	"context"
	"sync"

	"github.com/kotoba-hub/progress-engine/internal/domain/achievement"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
)

type achievedKey struct {
	userID        int64
	achievementID int64
}

type AchievementStore struct {
	mu       sync.RWMutex
	achieved map[achievedKey]achievement.UserAchievement
}

func NewAchievementStore() *AchievementStore {
	return &AchievementStore{achieved: make(map[achievedKey]achievement.UserAchievement)}
}

func (s *AchievementStore) ListAchieved(_ context.Context, userID int64) (map[int64]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]bool)
	for k := range s.achieved {
		if k.userID == userID {
			out[k.achievementID] = true
		}
	}
	return out, nil
}

func (s *AchievementStore) CreateAchieved(_ context.Context, ua *achievement.UserAchievement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := achievedKey{ua.UserID, ua.AchievementID}
	if _, ok := s.achieved[key]; ok {
		return shared.ErrAlreadyExists
	}
	s.achieved[key] = *ua
	return nil
}

// CatalogueStore holds a fixed achievement catalogue. Tests build it
// from literals; the worker seeds it with the built-in catalogue when
// Postgres is absent.
type CatalogueStore struct {
	mu      sync.RWMutex
	entries []achievement.CatalogueEntry
}

func NewCatalogueStore(entries ...achievement.CatalogueEntry) *CatalogueStore {
	return &CatalogueStore{entries: entries}
}

func (s *CatalogueStore) List(_ context.Context) ([]achievement.CatalogueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]achievement.CatalogueEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}
