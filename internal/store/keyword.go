package store

import (
	"context"

	"github.com/vkwatch/vkwatch-api/internal/domain"
)

// KeywordStore exposes the keyword set maintained by the CRUD surface.
type KeywordStore interface {
	// ListActive returns all active keywords ordered by ID.
	ListActive(ctx context.Context) ([]domain.Keyword, error)

	// Create adds a keyword and assigns its ID.
	Create(ctx context.Context, kw *domain.Keyword) error
}
