package store

import (
	"context"

	"github.com/vkwatch/vkwatch-api/internal/domain"
)

// CommentStore defines the interface for ingested comment persistence.
type CommentStore interface {
	// Upsert inserts the comments or refreshes existing ones (keyed by owner
	// and comment ID), so a retried page never duplicates rows.
	// Returns the number of comments written.
	Upsert(ctx context.Context, comments []*domain.Comment) (int, error)

	// Get retrieves a single comment.
	// Returns ErrCommentNotFound if the comment does not exist.
	Get(ctx context.Context, ownerID, commentID int64) (*domain.Comment, error)

	// SaveAnalysis replaces the derived analysis fields of a comment.
	// Returns ErrCommentNotFound if the comment does not exist.
	SaveAnalysis(ctx context.Context, ownerID, commentID int64, analysis domain.CommentAnalysis) error
}
