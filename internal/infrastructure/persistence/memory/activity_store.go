package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/streak"
	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

type activityKey struct {
	userID int64
	day    string
}

type ActivityStore struct {
	mu   sync.RWMutex
	rows map[activityKey]streak.DailyActivity
}

func NewActivityStore() *ActivityStore {
	return &ActivityStore{rows: make(map[activityKey]streak.DailyActivity)}
}

func dayKey(t time.Time) string {
	return t.Format(timeutil.FormatDay)
}

func (s *ActivityStore) Get(_ context.Context, userID int64, day time.Time) (*streak.DailyActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[activityKey{userID, dayKey(day)}]
	if !ok {
		return nil, shared.ErrActivityNotFound
	}
	cp := row
	return &cp, nil
}

func (s *ActivityStore) Upsert(_ context.Context, d *streak.DailyActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rows[activityKey{d.UserID, dayKey(d.Date)}] = *d
	return nil
}

func (s *ActivityStore) Range(_ context.Context, userID int64, from, to time.Time) ([]*streak.DailyActivity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := dayKey(from), dayKey(to)
	var out []*streak.DailyActivity
	for k, row := range s.rows {
		if k.userID != userID || k.day < lo || k.day > hi {
			continue
		}
		cp := row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (s *ActivityStore) ListActiveOn(_ context.Context, day time.Time) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := dayKey(day)
	seen := make(map[int64]bool)
	var out []int64
	for k, row := range s.rows {
		if k.day != key || !row.StreakPreserving() || seen[k.userID] {
			continue
		}
		seen[k.userID] = true
		out = append(out, k.userID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
