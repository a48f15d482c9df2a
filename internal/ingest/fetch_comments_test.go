package ingest_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/ingest"
)

func TestFetchComments_CollectsAllPages(t *testing.T) {
	t.Parallel()
	source := twoPageSource()
	f := newFixture(t, source)
	h := ingest.NewFetchCommentsHandler(f.deps)
	ctx := context.Background()

	job := f.claim(t, domain.TaskTypeFetchComments, ingest.FetchCommentsPayload{OwnerID: ownerID, PostID: postID})
	raw, err := h.Handle(ctx, job)
	require.NoError(t, err)

	var result ingest.FetchCommentsResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, ingest.FetchCommentsResult{
		OwnerID:   ownerID,
		PostID:    postID,
		Pages:     2,
		Processed: 3,
		Dropped:   2,
	}, result)

	c, err := f.comments.Get(ctx, ownerID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"плохая"}, c.MatchedKeywords)
	assert.Equal(t, int64(101), c.AuthorID)
	assert.Equal(t, postID, c.PostID)
	assert.NotNil(t, c.AnalyzedAt)

	c, err = f.comments.Get(ctx, ownerID, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"спасибо"}, c.MatchedKeywords)
	assert.Equal(t, domain.SentimentPositive, c.Sentiment)

	c, err = f.comments.Get(ctx, ownerID, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"bad"}, c.MatchedKeywords)
	assert.Equal(t, domain.SentimentNegative, c.Sentiment)

	_, err = f.comments.Get(ctx, ownerID, 4)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetchComments_ResumesFromCheckpoint(t *testing.T) {
	t.Parallel()
	source := twoPageSource()
	source.failAt["3"] = 1
	f := newFixture(t, source)
	h := ingest.NewFetchCommentsHandler(f.deps)
	ctx := context.Background()

	job := f.claim(t, domain.TaskTypeFetchComments, ingest.FetchCommentsPayload{OwnerID: ownerID, PostID: postID})
	_, err := h.Handle(ctx, job)
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err), "rate limiting is retried")

	stored, err := f.tasks.Get(ctx, job.ID())
	require.NoError(t, err)
	assert.JSONEq(t, `{"cursor":"3","pages":1,"processed":2,"dropped":1}`, string(stored.Progress))

	// The next attempt picks up at the saved cursor.
	retry := f.reclaim(t, job.ID().String())
	raw, err := h.Handle(ctx, retry)
	require.NoError(t, err)

	var result ingest.FetchCommentsResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, []string{"", "3", "3"}, source.cursors)
}

func TestFetchComments_PageBudget(t *testing.T) {
	t.Parallel()
	f := newFixture(t, twoPageSource())
	h := ingest.NewFetchCommentsHandler(f.deps)

	job := f.claim(t, domain.TaskTypeFetchComments,
		ingest.FetchCommentsPayload{OwnerID: ownerID, PostID: postID, MaxPages: 1})
	raw, err := h.Handle(context.Background(), job)
	require.NoError(t, err)

	var result ingest.FetchCommentsResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.True(t, result.BudgetExhausted)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, "3", result.NextCursor)
}

func TestFetchComments_ContinuesFromNextCursor(t *testing.T) {
	t.Parallel()
	source := twoPageSource()
	f := newFixture(t, source)
	h := ingest.NewFetchCommentsHandler(f.deps)
	ctx := context.Background()

	first := f.claim(t, domain.TaskTypeFetchComments,
		ingest.FetchCommentsPayload{OwnerID: ownerID, PostID: postID, MaxPages: 1})
	raw, err := h.Handle(ctx, first)
	require.NoError(t, err)

	var partial ingest.FetchCommentsResult
	require.NoError(t, json.Unmarshal(raw, &partial))
	require.True(t, partial.BudgetExhausted)
	require.Equal(t, "3", partial.NextCursor)

	next := json.RawMessage(`{"owner_id":-42,"post_id":7,"cursor":"` + partial.NextCursor + `"}`)
	require.NoError(t, h.ValidatePayload(next))

	second := f.claim(t, domain.TaskTypeFetchComments,
		ingest.FetchCommentsPayload{OwnerID: ownerID, PostID: postID, Cursor: partial.NextCursor})
	raw, err = h.Handle(ctx, second)
	require.NoError(t, err)

	var rest ingest.FetchCommentsResult
	require.NoError(t, json.Unmarshal(raw, &rest))
	assert.False(t, rest.BudgetExhausted)
	assert.Equal(t, 1, rest.Pages)
	assert.Equal(t, 1, rest.Processed)
	assert.Empty(t, rest.NextCursor)
	assert.Equal(t, []string{"", "3"}, source.cursors, "the second task starts at the payload cursor")

	_, err = f.comments.Get(ctx, ownerID, 5)
	assert.NoError(t, err)
}

func TestFetchComments_CheckpointWinsOverPayloadCursor(t *testing.T) {
	t.Parallel()
	source := twoPageSource()
	source.pages["0"] = source.pages[""]
	source.failAt["3"] = 1
	f := newFixture(t, source)
	h := ingest.NewFetchCommentsHandler(f.deps)
	ctx := context.Background()

	job := f.claim(t, domain.TaskTypeFetchComments,
		ingest.FetchCommentsPayload{OwnerID: ownerID, PostID: postID, Cursor: "0"})
	_, err := h.Handle(ctx, job)
	require.Error(t, err)

	_, err = h.Handle(ctx, f.reclaim(t, job.ID().String()))
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "3", "3"}, source.cursors)
}

func TestFetchComments_TimeBudget(t *testing.T) {
	t.Parallel()
	source := twoPageSource()
	source.delay = 20 * time.Millisecond
	f := newFixture(t, source)
	f.deps.Config.TimeBudget = 10 * time.Millisecond
	h := ingest.NewFetchCommentsHandler(f.deps)

	job := f.claim(t, domain.TaskTypeFetchComments, ingest.FetchCommentsPayload{OwnerID: ownerID, PostID: postID})
	raw, err := h.Handle(context.Background(), job)
	require.NoError(t, err)

	var result ingest.FetchCommentsResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.True(t, result.BudgetExhausted)
	assert.Equal(t, 1, result.Pages, "the page in flight when the budget ran out is kept")
	assert.Equal(t, "3", result.NextCursor)
}

func TestFetchComments_StopsWhenCanceledElsewhere(t *testing.T) {
	t.Parallel()
	f := newFixture(t, twoPageSource())
	h := ingest.NewFetchCommentsHandler(f.deps)
	ctx := context.Background()

	job := f.claim(t, domain.TaskTypeFetchComments, ingest.FetchCommentsPayload{OwnerID: ownerID, PostID: postID})
	_, err := f.tasks.UpdateStatus(ctx, job.ID(), domain.StatusUpdate{Status: domain.TaskStatusCanceled})
	require.NoError(t, err)

	_, err = h.Handle(ctx, job)
	assert.ErrorIs(t, err, domain.ErrCanceled)
}

func TestFetchComments_ContextCanceled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, twoPageSource())
	h := ingest.NewFetchCommentsHandler(f.deps)

	job := f.claim(t, domain.TaskTypeFetchComments, ingest.FetchCommentsPayload{OwnerID: ownerID, PostID: postID})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Handle(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchComments_ValidatePayload(t *testing.T) {
	t.Parallel()
	h := ingest.NewFetchCommentsHandler(newFixture(t, twoPageSource()).deps)

	assert.NoError(t, h.ValidatePayload(json.RawMessage(`{"owner_id":-42,"post_id":7}`)))
	assert.NoError(t, h.ValidatePayload(json.RawMessage(`{"owner_id":-42,"post_id":7,"cursor":"200"}`)))

	for _, payload := range []string{
		``,
		`{`,
		`{"post_id":7}`,
		`{"owner_id":-42}`,
		`{"owner_id":-42,"post_id":-7}`,
		`{"owner_id":-42,"post_id":7,"max_pages":-1}`,
		`{"owner_id":-42,"post_id":7,"cursor":"abc"}`,
		`{"owner_id":-42,"post_id":7,"cursor":"-5"}`,
	} {
		err := h.ValidatePayload(json.RawMessage(payload))
		assert.ErrorIs(t, err, domain.ErrValidation, "payload %q", payload)
	}
}
