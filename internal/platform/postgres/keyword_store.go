package postgres

import (
	"context"
	"log/slog"

	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/platform/logger"
	"github.com/vkwatch/vkwatch-api/internal/store"
)

// PostgresKeywordStore implements store.KeywordStore using PostgreSQL.
type PostgresKeywordStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresKeywordStore creates a new PostgresKeywordStore.
func NewPostgresKeywordStore(db store.DBTX, logger *slog.Logger) *PostgresKeywordStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresKeywordStore{
		db:     db,
		logger: logger.With(slog.String("component", "keyword_store")),
	}
}

var _ store.KeywordStore = (*PostgresKeywordStore)(nil)

// ListActive returns all active keywords ordered by ID.
func (s *PostgresKeywordStore) ListActive(ctx context.Context) ([]domain.Keyword, error) {
	query := `
		SELECT id, word, is_whole_word, is_case_sensitive, category, active
		FROM keywords
		WHERE active
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list keywords",
			slog.String("error", err.Error()))
		return nil, MapError(err, "keyword", "list")
	}
	defer func() { _ = rows.Close() }()

	keywords := []domain.Keyword{}
	for rows.Next() {
		var kw domain.Keyword
		if err := rows.Scan(
			&kw.ID,
			&kw.Word,
			&kw.IsWholeWord,
			&kw.IsCaseSensitive,
			&kw.Category,
			&kw.Active,
		); err != nil {
			return nil, MapError(err, "keyword", "list")
		}
		keywords = append(keywords, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err, "keyword", "list")
	}
	return keywords, nil
}

// Create adds a keyword and assigns its ID.
// Returns store.ErrDuplicate if the word already exists.
func (s *PostgresKeywordStore) Create(ctx context.Context, kw *domain.Keyword) error {
	query := `
		INSERT INTO keywords (word, is_whole_word, is_case_sensitive, category, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		kw.Word, kw.IsWholeWord, kw.IsCaseSensitive, kw.Category, kw.Active,
	).Scan(&kw.ID)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Warn("failed to create keyword",
			slog.String("word", kw.Word),
			slog.String("error", err.Error()))
		return MapError(err, "keyword", "create")
	}
	return nil
}
