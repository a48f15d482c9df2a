package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vkwatch/vkwatch-api/internal/analysis"
	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/keyword"
	"github.com/vkwatch/vkwatch-api/internal/platform/vk"
	"github.com/vkwatch/vkwatch-api/internal/store"
	"github.com/vkwatch/vkwatch-api/internal/task"
)

// FetchCommentsPayload identifies the post whose comments to collect.
type FetchCommentsPayload struct {
	OwnerID int64 `json:"owner_id" validate:"required"`
	PostID  int64 `json:"post_id" validate:"required,gt=0"`

	// Cursor continues an earlier collection, typically the next_cursor of
	// a budget-exhausted result. Empty starts at the first page.
	Cursor string `json:"cursor,omitempty"`

	// MaxPages overrides the configured page budget when positive.
	MaxPages int `json:"max_pages,omitempty" validate:"gte=0"`
}

// FetchCommentsProgress is the checkpoint saved after every page. A retried
// attempt resumes from Cursor.
type FetchCommentsProgress struct {
	Cursor    string `json:"cursor"`
	Pages     int    `json:"pages"`
	Processed int    `json:"processed"`
	Dropped   int    `json:"dropped"`
}

// FetchCommentsResult is stored on the completed task.
type FetchCommentsResult struct {
	OwnerID         int64  `json:"owner_id"`
	PostID          int64  `json:"post_id"`
	Pages           int    `json:"pages"`
	Processed       int    `json:"processed"`
	Dropped         int    `json:"dropped"`
	NextCursor      string `json:"next_cursor,omitempty"`
	BudgetExhausted bool   `json:"budget_exhausted"`
}

// FetchCommentsHandler collects the comments of one post page by page,
// tagging each with keyword matches and a sentiment before storing it.
type FetchCommentsHandler struct {
	source     Source
	comments   store.CommentStore
	keywords   *keyword.Cache
	analyzer   analysis.Analyzer
	maxPages   int
	timeBudget time.Duration
	now        func() time.Time
}

// NewFetchCommentsHandler creates the fetch_comments handler.
func NewFetchCommentsHandler(d Deps) *FetchCommentsHandler {
	return &FetchCommentsHandler{
		source:     d.Source,
		comments:   d.Comments,
		keywords:   d.Keywords,
		analyzer:   d.Analyzer,
		maxPages:   d.Config.MaxPages,
		timeBudget: d.Config.TimeBudget,
		now:        nowUTC,
	}
}

var (
	_ task.Handler          = (*FetchCommentsHandler)(nil)
	_ task.PayloadValidator = (*FetchCommentsHandler)(nil)
)

// ValidatePayload rejects payloads without an owner or a post, or with a
// malformed cursor.
func (h *FetchCommentsHandler) ValidatePayload(payload json.RawMessage) error {
	var p FetchCommentsPayload
	return decodeFetchPayload(payload, &p)
}

func decodeFetchPayload(payload json.RawMessage, p *FetchCommentsPayload) error {
	if err := decodePayload(payload, p); err != nil {
		return err
	}
	if _, err := vk.ParseCursor(p.Cursor); err != nil {
		return err
	}
	return nil
}

// Handle runs until the post has no more comments or the page or time budget
// is spent. Running out of budget is not a failure: the result carries the
// cursor to continue from.
func (h *FetchCommentsHandler) Handle(ctx context.Context, job *task.Job) (json.RawMessage, error) {
	var p FetchCommentsPayload
	if err := decodeFetchPayload(job.Payload(), &p); err != nil {
		return nil, err
	}

	maxPages := h.maxPages
	if p.MaxPages > 0 {
		maxPages = p.MaxPages
	}

	// A saved checkpoint wins over the payload cursor.
	progress := FetchCommentsProgress{Cursor: p.Cursor}
	resumed, err := job.DecodeProgress(&progress)
	if err != nil {
		return nil, err
	}

	log := job.Logger().With("owner_id", p.OwnerID, "post_id", p.PostID)
	if resumed {
		log.Info("resuming comment collection", "cursor", progress.Cursor, "pages", progress.Pages)
	}

	set, err := h.keywords.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}

	started := h.now()
	result := FetchCommentsResult{OwnerID: p.OwnerID, PostID: p.PostID}

	// An empty cursor after at least one page means an earlier attempt
	// already reached the end of the post.
	done := progress.Pages > 0 && progress.Cursor == ""

	for !done {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if progress.Pages >= maxPages || h.now().Sub(started) >= h.timeBudget {
			result.BudgetExhausted = true
			break
		}

		page, err := h.source.FetchCommentsPage(ctx, p.OwnerID, p.PostID, progress.Cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch comments page at cursor %q: %w", progress.Cursor, err)
		}

		comments, dropped := h.convert(ctx, log, p, page.Comments, set)
		if len(comments) > 0 {
			if _, err := h.comments.Upsert(ctx, comments); err != nil {
				return nil, fmt.Errorf("store comments: %w", err)
			}
		}

		progress.Cursor = page.NextCursor
		progress.Pages++
		progress.Processed += len(comments)
		progress.Dropped += dropped

		if err := job.Checkpoint(ctx, progress); err != nil {
			return nil, err
		}
		log.Debug("page collected",
			"page", progress.Pages,
			"stored", len(comments),
			"dropped", dropped,
			"next_cursor", page.NextCursor)

		done = page.NextCursor == ""
	}

	result.Pages = progress.Pages
	result.Processed = progress.Processed
	result.Dropped = progress.Dropped
	result.NextCursor = progress.Cursor
	if done {
		result.BudgetExhausted = false
	}

	log.Info("comment collection finished",
		"pages", result.Pages,
		"processed", result.Processed,
		"dropped", result.Dropped,
		"budget_exhausted", result.BudgetExhausted)
	return marshalResult(result)
}

// convert validates raw comments and analyzes the valid ones. Comments
// without an ID or text (deleted ones, stickers) are dropped.
func (h *FetchCommentsHandler) convert(
	ctx context.Context,
	log *slog.Logger,
	p FetchCommentsPayload,
	raw []vk.RawComment,
	set *keyword.Set,
) ([]*domain.Comment, int) {
	comments := make([]*domain.Comment, 0, len(raw))
	dropped := 0

	for _, rc := range raw {
		if rc.ID == 0 || strings.TrimSpace(rc.Text) == "" {
			dropped++
			continue
		}

		c := &domain.Comment{
			ID:         rc.ID,
			OwnerID:    p.OwnerID,
			PostID:     p.PostID,
			AuthorID:   rc.FromID,
			Text:       rc.Text,
			CreatedAt:  rc.CreatedAt(),
			LikeCount:  rc.Likes.Count,
			ReplyCount: rc.Thread.Count,
		}

		a, err := analyze(ctx, set, h.analyzer, c.Text)
		if err != nil {
			log.Warn("comment analysis failed, storing without sentiment",
				"comment_id", c.ID,
				"error", err)
			c.MatchedKeywords = set.Match(c.Text)
		} else {
			analyzedAt := h.now()
			c.MatchedKeywords = a.MatchedKeywords
			c.Sentiment = a.Sentiment
			c.AnalyzedAt = &analyzedAt
		}
		comments = append(comments, c)
	}
	return comments, dropped
}
