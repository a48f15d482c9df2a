package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/platform/logger"
	"github.com/vkwatch/vkwatch-api/internal/store"
)

// PostgresCommentStore implements store.CommentStore using PostgreSQL.
type PostgresCommentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCommentStore creates a new PostgresCommentStore.
// When db is a *sql.DB, every Upsert batch runs in its own transaction; when
// it is already a *sql.Tx, the caller owns the transaction.
func NewPostgresCommentStore(db store.DBTX, logger *slog.Logger) *PostgresCommentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCommentStore{
		db:     db,
		logger: logger.With(slog.String("component", "comment_store")),
	}
}

var _ store.CommentStore = (*PostgresCommentStore)(nil)

const upsertCommentQuery = `
	INSERT INTO comments (
		owner_id, id, post_id, author_id, text, created_at, like_count, reply_count
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (owner_id, id) DO UPDATE SET
		text = EXCLUDED.text,
		like_count = EXCLUDED.like_count,
		reply_count = EXCLUDED.reply_count
`

// Upsert inserts or refreshes a batch of comments atomically.
func (s *PostgresCommentStore) Upsert(ctx context.Context, comments []*domain.Comment) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for _, c := range comments {
		if err := c.Validate(); err != nil {
			log.Warn("comment validation failed during upsert",
				slog.Int64("owner_id", c.OwnerID),
				slog.Int64("comment_id", c.ID),
				slog.String("error", err.Error()))
			return 0, fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
		}
	}
	if len(comments) == 0 {
		return 0, nil
	}

	write := func(ctx context.Context, db store.DBTX) error {
		for _, c := range comments {
			if _, err := db.ExecContext(ctx, upsertCommentQuery,
				c.OwnerID,
				c.ID,
				c.PostID,
				c.AuthorID,
				c.Text,
				c.CreatedAt.UTC(),
				c.LikeCount,
				c.ReplyCount,
			); err != nil {
				log.Error("failed to upsert comment",
					slog.Int64("owner_id", c.OwnerID),
					slog.Int64("comment_id", c.ID),
					slog.String("error", err.Error()))
				return MapError(err, "comment", "upsert")
			}
		}
		return nil
	}

	var err error
	if db, ok := s.db.(*sql.DB); ok {
		err = store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			return write(ctx, tx)
		})
	} else {
		err = write(ctx, s.db)
	}
	if err != nil {
		return 0, err
	}

	log.Debug("comments upserted", slog.Int("count", len(comments)))
	return len(comments), nil
}

// Get retrieves a single comment.
func (s *PostgresCommentStore) Get(ctx context.Context, ownerID, commentID int64) (*domain.Comment, error) {
	query := `
		SELECT owner_id, id, post_id, author_id, text, created_at, like_count, reply_count,
			matched_keywords, sentiment, analyzed_at
		FROM comments
		WHERE owner_id = $1 AND id = $2
	`

	var (
		c          domain.Comment
		matched    []byte
		sentiment  sql.NullString
		analyzedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, ownerID, commentID).Scan(
		&c.OwnerID,
		&c.ID,
		&c.PostID,
		&c.AuthorID,
		&c.Text,
		&c.CreatedAt,
		&c.LikeCount,
		&c.ReplyCount,
		&matched,
		&sentiment,
		&analyzedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d_%d", store.ErrCommentNotFound, ownerID, commentID)
		}
		return nil, MapError(err, "comment", "get")
	}

	if len(matched) > 0 {
		if err := json.Unmarshal(matched, &c.MatchedKeywords); err != nil {
			return nil, store.NewStoreError("comment", "get", "invalid matched_keywords", err)
		}
	}
	c.Sentiment = sentiment.String
	if analyzedAt.Valid {
		at := analyzedAt.Time
		c.AnalyzedAt = &at
	}
	return &c, nil
}

// SaveAnalysis replaces the derived analysis fields of a comment.
func (s *PostgresCommentStore) SaveAnalysis(
	ctx context.Context,
	ownerID, commentID int64,
	analysis domain.CommentAnalysis,
) error {
	keywords := analysis.MatchedKeywords
	if keywords == nil {
		keywords = []string{}
	}
	matched, err := json.Marshal(keywords)
	if err != nil {
		return fmt.Errorf("failed to encode matched keywords: %w", err)
	}

	query := `
		UPDATE comments
		SET matched_keywords = $3, sentiment = $4, analyzed_at = $5
		WHERE owner_id = $1 AND id = $2
	`
	result, err := s.db.ExecContext(ctx, query,
		ownerID, commentID, matched, analysis.Sentiment, time.Now().UTC())
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to save comment analysis",
			slog.Int64("owner_id", ownerID),
			slog.Int64("comment_id", commentID),
			slog.String("error", err.Error()))
		return MapError(err, "comment", "save_analysis")
	}

	return CheckRowsAffected(result,
		fmt.Errorf("%w: %d_%d", store.ErrCommentNotFound, ownerID, commentID))
}
