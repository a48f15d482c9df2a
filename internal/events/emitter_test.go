package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// MockEventHandler records the events it receives.
type MockEventHandler struct {
	mu           sync.Mutex
	HandledCount int
	LastEvent    *TaskEvent
	HandlerError error
}

func (m *MockEventHandler) HandleEvent(ctx context.Context, event *TaskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HandledCount++
	m.LastEvent = event
	return m.HandlerError
}

func TestInMemoryEventEmitter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		event := NewTaskEvent(KindSubmitted, uuid.New(), "fetch_comments")

		assert.NoError(t, emitter.EmitEvent(context.Background(), event))
	})

	t.Run("emit event with successful handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		handler1 := &MockEventHandler{}
		handler2 := &MockEventHandler{}
		emitter.RegisterHandler(handler1)
		emitter.RegisterHandler(handler2)

		event := NewTaskEvent(KindClaimed, uuid.New(), "fetch_comments")
		assert.NoError(t, emitter.EmitEvent(context.Background(), event))

		assert.Equal(t, 1, handler1.HandledCount)
		assert.Equal(t, 1, handler2.HandledCount)
		assert.Same(t, event, handler1.LastEvent)
		assert.Same(t, event, handler2.LastEvent)
	})

	t.Run("failing handler does not stop delivery", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		failing := &MockEventHandler{HandlerError: errors.New("handler error")}
		success := &MockEventHandler{}
		emitter.RegisterHandler(failing)
		emitter.RegisterHandler(success)

		err := emitter.EmitEvent(context.Background(), NewTaskEvent(KindFailed, uuid.New(), "bulk_collect"))
		assert.EqualError(t, err, "handler error")
		assert.Equal(t, 1, success.HandledCount)
	})

	t.Run("errors from several handlers are joined", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		errA := errors.New("a")
		errB := errors.New("b")
		emitter.RegisterHandler(&MockEventHandler{HandlerError: errA})
		emitter.RegisterHandler(&MockEventHandler{HandlerError: errB})

		err := emitter.EmitEvent(context.Background(), NewTaskEvent(KindFailed, uuid.New(), "x"))
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errB)
	})

	t.Run("panicking handler is isolated", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		after := &MockEventHandler{}
		emitter.RegisterHandler(EventHandlerFunc(func(context.Context, *TaskEvent) error {
			panic("boom")
		}))
		emitter.RegisterHandler(after)

		err := emitter.EmitEvent(context.Background(), NewTaskEvent(KindCompleted, uuid.New(), "x"))
		assert.ErrorContains(t, err, "panicked: boom")
		assert.Equal(t, 1, after.HandledCount)
	})

	t.Run("handler func adapter", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		var kinds []Kind
		emitter.RegisterHandler(EventHandlerFunc(func(ctx context.Context, e *TaskEvent) error {
			kinds = append(kinds, e.Kind)
			return nil
		}))

		_ = emitter.EmitEvent(context.Background(), NewTaskEvent(KindRetrying, uuid.New(), "x"))
		_ = emitter.EmitEvent(context.Background(), NewTaskEvent(KindCompleted, uuid.New(), "x"))
		assert.Equal(t, []Kind{KindRetrying, KindCompleted}, kinds)
	})
}

func TestNewTaskEvent(t *testing.T) {
	id := uuid.New()
	e := NewTaskEvent(KindRequeued, id, "fetch_comments")

	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, id, e.TaskID)
	assert.Equal(t, KindRequeued, e.Kind)
	assert.False(t, e.OccurredAt.IsZero())
	assert.NoError(t, NopEmitter{}.EmitEvent(context.Background(), e))
}
