package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/store"
)

// KeywordStore implements store.KeywordStore in memory.
type KeywordStore struct {
	mu       sync.RWMutex
	nextID   int64
	keywords []domain.Keyword
}

// NewKeywordStore creates a KeywordStore seeded with the given keywords.
// Seed IDs are reassigned.
func NewKeywordStore(seed ...domain.Keyword) *KeywordStore {
	s := &KeywordStore{}
	for i := range seed {
		kw := seed[i]
		_ = s.Create(context.Background(), &kw)
	}
	return s
}

// ListActive returns all active keywords ordered by ID.
func (s *KeywordStore) ListActive(ctx context.Context) ([]domain.Keyword, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]domain.Keyword, 0, len(s.keywords))
	for _, kw := range s.keywords {
		if kw.Active {
			active = append(active, kw)
		}
	}
	return active, nil
}

// Create adds a keyword and assigns its ID.
func (s *KeywordStore) Create(ctx context.Context, kw *domain.Keyword) error {
	if strings.TrimSpace(kw.Word) == "" {
		return fmt.Errorf("%w: keyword word cannot be empty", store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.keywords {
		if existing.Word == kw.Word {
			return fmt.Errorf("%w: keyword %q", store.ErrDuplicate, kw.Word)
		}
	}
	s.nextID++
	kw.ID = s.nextID
	s.keywords = append(s.keywords, *kw)
	return nil
}

var _ store.KeywordStore = (*KeywordStore)(nil)
