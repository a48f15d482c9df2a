package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskStatusPending, TaskStatusActive, true},
		{TaskStatusPending, TaskStatusCanceled, true},
		{TaskStatusPending, TaskStatusCompleted, false},
		{TaskStatusPending, TaskStatusFailed, false},
		{TaskStatusActive, TaskStatusCompleted, true},
		{TaskStatusActive, TaskStatusFailed, true},
		{TaskStatusActive, TaskStatusCanceled, true},
		{TaskStatusActive, TaskStatusPending, true},
		{TaskStatusActive, TaskStatusActive, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	t.Parallel()

	for _, from := range []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusCanceled} {
		assert.True(t, from.Terminal())
		for _, to := range AllTaskStatuses() {
			assert.False(t, CanTransition(from, to), "%s -> %s must be rejected", from, to)
		}
	}
}

func TestPredecessorsOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []TaskStatus{TaskStatusPending}, PredecessorsOf(TaskStatusActive))
	assert.Equal(t, []TaskStatus{TaskStatusActive}, PredecessorsOf(TaskStatusCompleted))
	assert.ElementsMatch(t,
		[]TaskStatus{TaskStatusPending, TaskStatusActive},
		PredecessorsOf(TaskStatusCanceled))
	assert.Empty(t, PredecessorsOf("bogus"))
}

func TestParseTaskStatus(t *testing.T) {
	t.Parallel()

	s, err := ParseTaskStatus("failed")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusFailed, s)

	_, err = ParseTaskStatus("running")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTaskApply(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Add(time.Minute)

	t.Run("claim increments attempts", func(t *testing.T) {
		t.Parallel()
		task := NewTask(TaskTypeFetchComments, json.RawMessage(`{}`))

		require.NoError(t, task.Apply(StatusUpdate{Status: TaskStatusActive}, now))
		assert.Equal(t, TaskStatusActive, task.Status)
		assert.Equal(t, 1, task.Attempts)
		assert.Equal(t, now, task.UpdatedAt)
		assert.Empty(t, task.Result)
		assert.Empty(t, task.Error)
	})

	t.Run("completed keeps only the result", func(t *testing.T) {
		t.Parallel()
		task := NewTask(TaskTypeFetchComments, json.RawMessage(`{}`))
		task.Status = TaskStatusActive

		err := task.Apply(StatusUpdate{
			Status: TaskStatusCompleted,
			Result: json.RawMessage(`{"processed":3}`),
			Error:  "ignored",
		}, now)
		require.NoError(t, err)
		assert.JSONEq(t, `{"processed":3}`, string(task.Result))
		assert.Empty(t, task.Error)
	})

	t.Run("failed keeps only the error", func(t *testing.T) {
		t.Parallel()
		task := NewTask(TaskTypeFetchComments, json.RawMessage(`{}`))
		task.Status = TaskStatusActive

		err := task.Apply(StatusUpdate{
			Status: TaskStatusFailed,
			Result: json.RawMessage(`{"x":1}`),
			Error:  "boom",
		}, now)
		require.NoError(t, err)
		assert.Empty(t, task.Result)
		assert.Equal(t, "boom", task.Error)
	})

	t.Run("terminal task rejects further updates", func(t *testing.T) {
		t.Parallel()
		task := NewTask(TaskTypeFetchComments, json.RawMessage(`{}`))
		task.Status = TaskStatusCompleted
		task.Result = json.RawMessage(`{}`)

		err := task.Apply(StatusUpdate{Status: TaskStatusPending}, now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, TaskStatusCompleted, task.Status)
	})
}

func TestTaskClone(t *testing.T) {
	t.Parallel()

	task := NewTask(TaskTypeBulkCollect, json.RawMessage(`{"owner_ids":[1]}`))
	c := task.Clone()
	c.Payload[0] = '['

	assert.Equal(t, byte('{'), task.Payload[0])
	assert.Nil(t, (*Task)(nil).Clone())
}

func TestTaskStatsAdd(t *testing.T) {
	t.Parallel()

	var s TaskStats
	s.Add(TaskStatusPending, 2)
	s.Add(TaskStatusCanceled, 1)
	s.Add("unknown", 5)

	assert.Equal(t, TaskStats{Pending: 2, Canceled: 1}, s)
}
