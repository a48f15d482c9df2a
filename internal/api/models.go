package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/vkwatch/vkwatch-api/internal/domain"
)

// CreateTaskRequest defines the payload for the task submission endpoint.
type CreateTaskRequest struct {
	Type    string          `json:"type"    validate:"required"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// CreateTaskResponse acknowledges an accepted submission.
type CreateTaskResponse struct {
	ID     uuid.UUID         `json:"id"`
	Status domain.TaskStatus `json:"status"`
}

// TaskResponse is the public view of a task.
type TaskResponse struct {
	ID        uuid.UUID         `json:"id"`
	Type      string            `json:"type"`
	Status    domain.TaskStatus `json:"status"`
	Payload   json.RawMessage   `json:"payload"`
	Result    json.RawMessage   `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	Progress  json.RawMessage   `json:"progress,omitempty"`
	Attempts  int               `json:"attempts"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// TaskListResponse is one page of tasks.
type TaskListResponse struct {
	Items []TaskResponse `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// CreateKeywordRequest defines the payload for adding a keyword.
type CreateKeywordRequest struct {
	Word            string `json:"word"              validate:"required,max=200"`
	IsWholeWord     bool   `json:"is_whole_word"`
	IsCaseSensitive bool   `json:"is_case_sensitive"`
	Category        string `json:"category"          validate:"max=100"`
}

// KeywordResponse is the public view of a keyword.
type KeywordResponse struct {
	ID              int64  `json:"id"`
	Word            string `json:"word"`
	IsWholeWord     bool   `json:"is_whole_word"`
	IsCaseSensitive bool   `json:"is_case_sensitive"`
	Category        string `json:"category,omitempty"`
	Active          bool   `json:"active"`
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		Type:      t.Type,
		Status:    t.Status,
		Payload:   t.Payload,
		Result:    t.Result,
		Error:     t.Error,
		Progress:  t.Progress,
		Attempts:  t.Attempts,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func keywordToResponse(k domain.Keyword) KeywordResponse {
	return KeywordResponse{
		ID:              k.ID,
		Word:            k.Word,
		IsWholeWord:     k.IsWholeWord,
		IsCaseSensitive: k.IsCaseSensitive,
		Category:        k.Category,
		Active:          k.Active,
	}
}
