package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/store"
)

// KeywordCache is invalidated when the keyword set changes.
type KeywordCache interface {
	Invalidate()
}

// KeywordService exposes the keyword set the matcher uses.
type KeywordService interface {
	// ListActive returns the active keywords.
	ListActive(ctx context.Context) ([]domain.Keyword, error)

	// Create adds a keyword. It returns ErrValidation for a blank word and
	// store.ErrDuplicate when the word already exists.
	Create(ctx context.Context, kw *domain.Keyword) error
}

type keywordServiceImpl struct {
	store  store.KeywordStore
	cache  KeywordCache
	logger *slog.Logger
}

// NewKeywordService creates a KeywordService. cache may be nil.
func NewKeywordService(s store.KeywordStore, cache KeywordCache, logger *slog.Logger) (KeywordService, error) {
	if s == nil {
		return nil, errors.New("store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &keywordServiceImpl{
		store:  s,
		cache:  cache,
		logger: logger.With("component", "keyword_service"),
	}, nil
}

func (s *keywordServiceImpl) ListActive(ctx context.Context) ([]domain.Keyword, error) {
	keywords, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, NewServiceError("list_keywords", "failed to list keywords", err)
	}
	if keywords == nil {
		keywords = []domain.Keyword{}
	}
	return keywords, nil
}

func (s *keywordServiceImpl) Create(ctx context.Context, kw *domain.Keyword) error {
	kw.Word = strings.TrimSpace(kw.Word)
	if kw.Word == "" {
		return fmt.Errorf("%w: keyword word is required", domain.ErrValidation)
	}

	if err := s.store.Create(ctx, kw); err != nil {
		if errors.Is(err, store.ErrDuplicate) || errors.Is(err, store.ErrInvalidEntity) {
			return err
		}
		return NewServiceError("create_keyword", "failed to create keyword", err)
	}

	if s.cache != nil {
		s.cache.Invalidate()
	}
	s.logger.Info("keyword created", "keyword_id", kw.ID, "active", kw.Active)
	return nil
}
