package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vkwatch/vkwatch-api/internal/analysis"
	"github.com/vkwatch/vkwatch-api/internal/config"
	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/keyword"
	"github.com/vkwatch/vkwatch-api/internal/platform/vk"
	"github.com/vkwatch/vkwatch-api/internal/store"
	"github.com/vkwatch/vkwatch-api/internal/task"
)

// Source is the part of the VK API the handlers consume.
type Source interface {
	FetchCommentsPage(ctx context.Context, ownerID, postID int64, cursor string) (*vk.CommentsPage, error)
	FetchPosts(ctx context.Context, ownerID int64, count int) ([]vk.Post, error)
}

// Submitter schedules follow-up tasks.
type Submitter interface {
	Submit(ctx context.Context, taskType string, payload json.RawMessage) (*domain.Task, error)
}

// Deps bundles what the ingestion handlers need.
type Deps struct {
	Source    Source
	Comments  store.CommentStore
	Keywords  *keyword.Cache
	Analyzer  analysis.Analyzer
	Submitter Submitter
	Config    config.IngestConfig
	Logger    *slog.Logger
}

// Register binds every ingestion handler to its task type.
func Register(r *task.Registry, d Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Analyzer == nil {
		d.Analyzer = analysis.NewLexiconAnalyzer()
	}

	r.Register(domain.TaskTypeFetchComments, NewFetchCommentsHandler(d))
	r.Register(domain.TaskTypeAnalyzeComment, NewAnalyzeCommentHandler(d))
	r.Register(domain.TaskTypeBulkCollect, NewBulkCollectHandler(d))
}

var validate = validator.New()

// decodePayload unmarshals and validates a payload. Every failure wraps
// domain.ErrValidation.
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload is required", domain.ErrValidation)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", domain.ErrValidation, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

// analyze tags a comment with matched keywords and a sentiment.
func analyze(ctx context.Context, set *keyword.Set, a analysis.Analyzer, text string) (domain.CommentAnalysis, error) {
	sentiment, err := a.Analyze(ctx, text)
	if err != nil {
		return domain.CommentAnalysis{}, fmt.Errorf("analyze comment: %w", err)
	}
	return domain.CommentAnalysis{MatchedKeywords: set.Match(text), Sentiment: sentiment}, nil
}

func marshalResult(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return raw, nil
}

func nowUTC() time.Time { return time.Now().UTC() }
