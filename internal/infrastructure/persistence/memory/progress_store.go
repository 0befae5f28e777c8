package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/kotoba-hub/progress-engine/internal/domain/progress"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
)

type progressKey struct {
	userID int64
	itemID int64
	kind   progress.ItemKind
}

type ProgressStore struct {
	mu    sync.RWMutex
	items map[progressKey]progress.ItemProgress
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{items: make(map[progressKey]progress.ItemProgress)}
}

func (s *ProgressStore) Get(_ context.Context, userID, itemID int64, kind progress.ItemKind) (*progress.ItemProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.items[progressKey{userID, itemID, kind}]
	if !ok {
		return nil, shared.ErrItemNotFound
	}
	cp := p
	return &cp, nil
}

func (s *ProgressStore) Upsert(_ context.Context, p *progress.ItemProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[progressKey{p.UserID, p.ItemID, p.Kind}] = *p
	return nil
}

func (s *ProgressStore) ListByUser(_ context.Context, userID int64) ([]*progress.ItemProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*progress.ItemProgress
	for k, p := range s.items {
		if k.userID != userID {
			continue
		}
		cp := p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// RefTable is a RefChecker backed by a static set of known items.
// Tests seed it directly; the permissive variant accepts every item
// and backs the storage-free development mode.
type RefTable struct {
	mu       sync.RWMutex
	known    map[progressKey]bool
	allowAll bool
}

func NewRefTable() *RefTable {
	return &RefTable{known: make(map[progressKey]bool)}
}

// NewPermissiveRefTable returns a RefTable that treats every item as
// known.
func NewPermissiveRefTable() *RefTable {
	return &RefTable{known: make(map[progressKey]bool), allowAll: true}
}

func (t *RefTable) Add(kind progress.ItemKind, itemID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.known[progressKey{itemID: itemID, kind: kind}] = true
}

func (t *RefTable) ItemExists(_ context.Context, kind progress.ItemKind, itemID int64) (bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.allowAll {
		return true, nil
	}
	return t.known[progressKey{itemID: itemID, kind: kind}], nil
}
