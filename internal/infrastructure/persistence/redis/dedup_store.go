package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
)

// DefaultDedupRetention bounds how long dedup tokens are remembered.
// Producers redeliver within minutes, not weeks; 30 days is generous.
const DefaultDedupRetention = 30 * 24 * time.Hour

// DedupStore remembers processed dedup tokens with a TTL. Implements
// the aggregate updater's TokenStore.
type DedupStore struct {
	client    *redis.Client
	retention time.Duration
}

// NewDedupStore creates a DedupStore.
func NewDedupStore(client *redis.Client, retention time.Duration) *DedupStore {
	if retention <= 0 {
		retention = DefaultDedupRetention
	}
	return &DedupStore{client: client, retention: retention}
}

func dedupKey(userID int64, token string) string {
	return fmt.Sprintf("%s%d:%s", PrefixDedup, userID, token)
}

// Seen reports whether the token was already marked.
func (s *DedupStore) Seen(ctx context.Context, userID int64, token string) (bool, error) {
	n, err := s.client.Exists(ctx, dedupKey(userID, token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: dedup seen: %v", shared.ErrTransientStorage, err)
	}
	return n > 0, nil
}

// Mark records the token for the retention window.
func (s *DedupStore) Mark(ctx context.Context, userID int64, token string) error {
	if err := s.client.Set(ctx, dedupKey(userID, token), 1, s.retention).Err(); err != nil {
		return fmt.Errorf("%w: dedup mark: %v", shared.ErrTransientStorage, err)
	}
	return nil
}
