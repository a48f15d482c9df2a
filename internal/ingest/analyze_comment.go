package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vkwatch/vkwatch-api/internal/analysis"
	"github.com/vkwatch/vkwatch-api/internal/keyword"
	"github.com/vkwatch/vkwatch-api/internal/store"
	"github.com/vkwatch/vkwatch-api/internal/task"
)

// AnalyzeCommentPayload identifies a stored comment.
type AnalyzeCommentPayload struct {
	OwnerID   int64 `json:"owner_id" validate:"required"`
	CommentID int64 `json:"comment_id" validate:"required,gt=0"`
}

// AnalyzeCommentResult is stored on the completed task.
type AnalyzeCommentResult struct {
	MatchedKeywords []string `json:"matched_keywords"`
	Sentiment       string   `json:"sentiment"`
}

// AnalyzeCommentHandler re-runs keyword matching and sentiment analysis over
// a stored comment, typically after the keyword set changed.
type AnalyzeCommentHandler struct {
	comments store.CommentStore
	keywords *keyword.Cache
	analyzer analysis.Analyzer
}

// NewAnalyzeCommentHandler creates the analyze_comment handler.
func NewAnalyzeCommentHandler(d Deps) *AnalyzeCommentHandler {
	return &AnalyzeCommentHandler{
		comments: d.Comments,
		keywords: d.Keywords,
		analyzer: d.Analyzer,
	}
}

var (
	_ task.Handler          = (*AnalyzeCommentHandler)(nil)
	_ task.PayloadValidator = (*AnalyzeCommentHandler)(nil)
)

// ValidatePayload rejects payloads without an owner or a comment ID.
func (h *AnalyzeCommentHandler) ValidatePayload(payload json.RawMessage) error {
	var p AnalyzeCommentPayload
	return decodePayload(payload, &p)
}

// Handle analyzes the comment and saves the outcome on it.
func (h *AnalyzeCommentHandler) Handle(ctx context.Context, job *task.Job) (json.RawMessage, error) {
	var p AnalyzeCommentPayload
	if err := decodePayload(job.Payload(), &p); err != nil {
		return nil, err
	}

	c, err := h.comments.Get(ctx, p.OwnerID, p.CommentID)
	if err != nil {
		return nil, fmt.Errorf("load comment %d_%d: %w", p.OwnerID, p.CommentID, err)
	}

	set, err := h.keywords.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}

	a, err := analyze(ctx, set, h.analyzer, c.Text)
	if err != nil {
		return nil, err
	}

	if err := h.comments.SaveAnalysis(ctx, p.OwnerID, p.CommentID, a); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}

	job.Logger().Info("comment analyzed",
		"owner_id", p.OwnerID,
		"comment_id", p.CommentID,
		"matched", len(a.MatchedKeywords),
		"sentiment", a.Sentiment)
	return marshalResult(AnalyzeCommentResult{
		MatchedKeywords: a.MatchedKeywords,
		Sentiment:       a.Sentiment,
	})
}
