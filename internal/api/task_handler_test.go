package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkwatch/vkwatch-api/internal/api"
	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/platform/memory"
	"github.com/vkwatch/vkwatch-api/internal/service"
	"github.com/vkwatch/vkwatch-api/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type ownerPayloadHandler struct{}

func (ownerPayloadHandler) Handle(ctx context.Context, job *task.Job) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (ownerPayloadHandler) ValidatePayload(payload json.RawMessage) error {
	var p struct {
		OwnerID int64 `json:"owner_id"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.OwnerID == 0 {
		return domain.ErrValidation
	}
	return nil
}

type taskFixture struct {
	router http.Handler
	store  *memory.TaskStore
}

// newTaskFixture mounts the task routes over a runner that is never started,
// so accepted tasks stay pending.
func newTaskFixture(t *testing.T, capacity int) *taskFixture {
	t.Helper()

	s := memory.NewTaskStore()
	registry := task.NewRegistry()
	registry.Register(domain.TaskTypeFetchComments, ownerPayloadHandler{})
	runner := task.NewRunner(s, task.NewMemoryQueue(capacity, testLogger()), registry,
		task.DefaultRunnerConfig(), testLogger(), nil)
	svc, err := service.NewTaskService(s, runner, registry, testLogger())
	require.NoError(t, err)

	h := api.NewTaskHandler(svc)
	r := chi.NewRouter()
	r.Post("/api/tasks", h.CreateTask)
	r.Get("/api/tasks", h.ListTasks)
	r.Get("/api/tasks/stats", h.GetStats)
	r.Get("/api/tasks/{id}", h.GetTask)
	r.Post("/api/tasks/{id}/cancel", h.CancelTask)

	return &taskFixture{router: r, store: s}
}

func (f *taskFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&v))
	return v
}

func TestCreateTask(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t, 10)

	rec := f.do(t, http.MethodPost, "/api/tasks",
		`{"type":"fetch_comments","payload":{"owner_id":-1,"post_id":5}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decodeBody[api.CreateTaskResponse](t, rec)
	assert.NotEqual(t, uuid.Nil, resp.ID)
	assert.Equal(t, domain.TaskStatusPending, resp.Status)

	stored, err := f.store.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"owner_id":-1,"post_id":5}`, string(stored.Payload))
}

func TestCreateTask_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		body   string
		status int
		errMsg string
	}{
		{"malformed json", `{"type":`, http.StatusBadRequest, "Invalid request format"},
		{"trailing data", `{"type":"fetch_comments","payload":{"owner_id":1}} {}`, http.StatusBadRequest, "Invalid request format"},
		{"missing type", `{"payload":{"owner_id":1}}`, http.StatusBadRequest, "Type is required"},
		{"missing payload", `{"type":"fetch_comments"}`, http.StatusBadRequest, "Payload is required"},
		{"unknown type", `{"type":"mine_bitcoin","payload":{}}`, http.StatusBadRequest, "Unknown task type"},
		{"invalid payload", `{"type":"fetch_comments","payload":{"post_id":1}}`, http.StatusBadRequest, "Validation failed"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newTaskFixture(t, 10)

			rec := f.do(t, http.MethodPost, "/api/tasks", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			resp := decodeBody[map[string]string](t, rec)
			assert.Contains(t, resp["error"], tt.errMsg)

			stats, err := f.store.Stats(context.Background())
			require.NoError(t, err)
			assert.Zero(t, stats.Pending, "rejected submissions must not be stored")
		})
	}
}

func TestCreateTask_QueueFull(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t, 1)
	body := `{"type":"fetch_comments","payload":{"owner_id":-1,"post_id":5}}`

	require.Equal(t, http.StatusAccepted, f.do(t, http.MethodPost, "/api/tasks", body).Code)

	rec := f.do(t, http.MethodPost, "/api/tasks", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Task queue is full, retry later", decodeBody[map[string]string](t, rec)["error"])

	stats, err := f.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
}

func TestGetTask(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t, 10)

	created, err := f.store.Create(context.Background(), domain.TaskTypeFetchComments, json.RawMessage(`{"owner_id":1}`))
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/tasks/"+created.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[api.TaskResponse](t, rec)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, domain.TaskTypeFetchComments, got.Type)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
	assert.Empty(t, got.Result)
	assert.Empty(t, got.Error)

	t.Run("not found", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/tasks/"+uuid.NewString(), "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Task not found", decodeBody[map[string]string](t, rec)["error"])
	})

	t.Run("bad id", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/tasks/not-a-uuid", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid task ID", decodeBody[map[string]string](t, rec)["error"])
	})
}

func TestListTasks(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.store.Create(ctx, domain.TaskTypeFetchComments, json.RawMessage(`{}`))
		require.NoError(t, err)
	}
	failed, err := f.store.Create(ctx, domain.TaskTypeBulkCollect, json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = f.store.UpdateStatus(ctx, failed.ID, domain.StatusUpdate{Status: domain.TaskStatusActive})
	require.NoError(t, err)
	_, err = f.store.UpdateStatus(ctx, failed.ID, domain.StatusUpdate{Status: domain.TaskStatusFailed, Error: "boom"})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/tasks?type=fetch_comments&page=1&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[api.TaskListResponse](t, rec)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Limit)

	rec = f.do(t, http.MethodGet, "/api/tasks?status=failed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page = decodeBody[api.TaskListResponse](t, rec)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "boom", page.Items[0].Error)
	assert.Equal(t, service.DefaultPageLimit, page.Limit)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/tasks?status=running", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/tasks?page=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/tasks?limit=ten", "").Code)
}

func TestGetStats(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t, 10)

	_, err := f.store.Create(context.Background(), domain.TaskTypeFetchComments, json.RawMessage(`{}`))
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/tasks/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.TaskStats{Pending: 1}, decodeBody[domain.TaskStats](t, rec))
}

func TestCancelTask(t *testing.T) {
	t.Parallel()
	f := newTaskFixture(t, 10)

	rec := f.do(t, http.MethodPost, "/api/tasks",
		`{"type":"fetch_comments","payload":{"owner_id":-1,"post_id":5}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	id := decodeBody[api.CreateTaskResponse](t, rec).ID

	rec = f.do(t, http.MethodPost, "/api/tasks/"+id.String()+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.TaskStatusCanceled, decodeBody[api.TaskResponse](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/api/tasks/"+id.String()+"/cancel", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Task has already finished", decodeBody[map[string]string](t, rec)["error"])

	rec = f.do(t, http.MethodPost, "/api/tasks/"+uuid.NewString()+"/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
