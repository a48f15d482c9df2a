package ingest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vkwatch/vkwatch-api/internal/analysis"
	"github.com/vkwatch/vkwatch-api/internal/config"
	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/ingest"
	"github.com/vkwatch/vkwatch-api/internal/keyword"
	"github.com/vkwatch/vkwatch-api/internal/platform/memory"
	"github.com/vkwatch/vkwatch-api/internal/platform/vk"
	"github.com/vkwatch/vkwatch-api/internal/task"
)

const (
	ownerID = int64(-42)
	postID  = int64(7)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource serves comment pages keyed by cursor and posts keyed by owner.
type fakeSource struct {
	mu      sync.Mutex
	pages   map[string]*vk.CommentsPage
	posts   map[int64][]vk.Post
	failAt  map[string]int // cursor -> remaining failures
	delay   time.Duration
	cursors []string
}

func (f *fakeSource) FetchCommentsPage(ctx context.Context, owner, post int64, cursor string) (*vk.CommentsPage, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, cursor)
	if f.failAt[cursor] > 0 {
		f.failAt[cursor]--
		return nil, &vk.UpstreamError{Method: "wall.getComments", Code: 6, Message: "Too many requests per second", RateLimited: true}
	}
	page, ok := f.pages[cursor]
	if !ok {
		return &vk.CommentsPage{}, nil
	}
	return page, nil
}

func (f *fakeSource) FetchPosts(ctx context.Context, owner int64, count int) ([]vk.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	posts, ok := f.posts[owner]
	if !ok {
		return nil, fmt.Errorf("wall.get: %w", domain.ErrUpstream)
	}
	if len(posts) > count {
		posts = posts[:count]
	}
	return posts, nil
}

func rawComment(id int64, text string) vk.RawComment {
	rc := vk.RawComment{ID: id, FromID: 100 + id, PostID: postID, OwnerID: ownerID, Date: 1700000000, Text: text}
	rc.Likes.Count = int(id)
	return rc
}

func twoPageSource() *fakeSource {
	return &fakeSource{
		pages: map[string]*vk.CommentsPage{
			"": {
				Comments: []vk.RawComment{
					rawComment(1, "Плохая погода сегодня"),
					rawComment(2, "Отлично, спасибо!"),
					rawComment(0, "no id"),
				},
				NextCursor: "3",
				Total:      5,
			},
			"3": {
				Comments: []vk.RawComment{
					rawComment(4, "   "),
					rawComment(5, "bad weather, awful"),
				},
				Total: 5,
			},
		},
		failAt: map[string]int{},
	}
}

type fixture struct {
	tasks    *memory.TaskStore
	comments *memory.CommentStore
	deps     ingest.Deps
}

func newFixture(t *testing.T, source ingest.Source) *fixture {
	t.Helper()
	keywords := memory.NewKeywordStore(
		domain.Keyword{Word: "плохая", IsWholeWord: true, Active: true},
		domain.Keyword{Word: "bad", IsWholeWord: true, Active: true},
		domain.Keyword{Word: "спасибо", Active: true},
	)
	f := &fixture{
		tasks:    memory.NewTaskStore(),
		comments: memory.NewCommentStore(),
	}
	f.deps = ingest.Deps{
		Source:   source,
		Comments: f.comments,
		Keywords: keyword.NewCache(keywords, time.Minute, testLogger()),
		Analyzer: analysis.NewLexiconAnalyzer(),
		Config: config.IngestConfig{
			MaxPages:      10,
			TimeBudget:    time.Minute,
			PostsPerOwner: 5,
		},
		Logger: testLogger(),
	}
	return f
}

// claim stores a task and moves it to active, the way the runner hands it
// to a handler.
func (f *fixture) claim(t *testing.T, taskType string, payload any) *task.Job {
	t.Helper()
	ctx := context.Background()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	created, err := f.tasks.Create(ctx, taskType, raw)
	require.NoError(t, err)
	return f.reclaim(t, created.ID.String())
}

func (f *fixture) reclaim(t *testing.T, id string) *task.Job {
	t.Helper()
	ctx := context.Background()
	for _, tk := range f.all(t) {
		if tk.ID.String() != id {
			continue
		}
		if tk.Status == domain.TaskStatusActive {
			_, err := f.tasks.UpdateStatus(ctx, tk.ID, domain.StatusUpdate{Status: domain.TaskStatusPending})
			require.NoError(t, err)
		}
		claimed, err := f.tasks.UpdateStatus(ctx, tk.ID, domain.StatusUpdate{Status: domain.TaskStatusActive})
		require.NoError(t, err)
		return task.NewJob(claimed, f.tasks, testLogger())
	}
	t.Fatalf("task %s not found", id)
	return nil
}

func (f *fixture) all(t *testing.T) []*domain.Task {
	t.Helper()
	items, _, err := f.tasks.List(context.Background(), domain.TaskFilter{}, 1, 100)
	require.NoError(t, err)
	return items
}

func newRegistry(d ingest.Deps) *task.Registry {
	r := task.NewRegistry()
	ingest.Register(r, d)
	return r
}
