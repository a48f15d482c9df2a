package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/store"
)

type commentKey struct {
	ownerID, commentID int64
}

// CommentStore implements store.CommentStore in memory.
type CommentStore struct {
	mu       sync.RWMutex
	comments map[commentKey]*domain.Comment
}

// NewCommentStore creates an empty CommentStore.
func NewCommentStore() *CommentStore {
	return &CommentStore{comments: make(map[commentKey]*domain.Comment)}
}

// Upsert inserts or refreshes comments. Analysis fields of an existing
// comment survive a refresh.
func (s *CommentStore) Upsert(ctx context.Context, comments []*domain.Comment) (int, error) {
	for _, c := range comments {
		if err := c.Validate(); err != nil {
			return 0, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range comments {
		key := commentKey{c.OwnerID, c.ID}
		next := cloneComment(c)
		if prev, ok := s.comments[key]; ok {
			next.MatchedKeywords = prev.MatchedKeywords
			next.Sentiment = prev.Sentiment
			next.AnalyzedAt = prev.AnalyzedAt
		}
		s.comments[key] = next
	}
	return len(comments), nil
}

// Get retrieves a single comment.
func (s *CommentStore) Get(ctx context.Context, ownerID, commentID int64) (*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.comments[commentKey{ownerID, commentID}]
	if !ok {
		return nil, fmt.Errorf("%w: %d_%d", store.ErrCommentNotFound, ownerID, commentID)
	}
	return cloneComment(c), nil
}

// SaveAnalysis replaces the derived analysis fields of a comment.
func (s *CommentStore) SaveAnalysis(
	ctx context.Context,
	ownerID, commentID int64,
	analysis domain.CommentAnalysis,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentKey{ownerID, commentID}]
	if !ok {
		return fmt.Errorf("%w: %d_%d", store.ErrCommentNotFound, ownerID, commentID)
	}
	now := time.Now().UTC()
	c.MatchedKeywords = append([]string{}, analysis.MatchedKeywords...)
	c.Sentiment = analysis.Sentiment
	c.AnalyzedAt = &now
	return nil
}

func cloneComment(c *domain.Comment) *domain.Comment {
	cp := *c
	if c.MatchedKeywords != nil {
		cp.MatchedKeywords = append([]string{}, c.MatchedKeywords...)
	}
	if c.AnalyzedAt != nil {
		at := *c.AnalyzedAt
		cp.AnalyzedAt = &at
	}
	return &cp
}

var _ store.CommentStore = (*CommentStore)(nil)
