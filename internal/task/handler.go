package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/vkwatch/vkwatch-api/internal/domain"
)

// Handler performs the work of one task type.
//
// Handle returns the task result on success. Returning an error wrapping
// domain.ErrUpstream, domain.ErrStorage or domain.ErrTimeout makes the attempt
// eligible for retry; any other error fails the task.
type Handler interface {
	Handle(ctx context.Context, job *Job) (json.RawMessage, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) (json.RawMessage, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job *Job) (json.RawMessage, error) {
	return f(ctx, job)
}

// PayloadValidator is implemented by handlers that can reject a payload at
// submission time, before a task is created.
type PayloadValidator interface {
	ValidatePayload(payload json.RawMessage) error
}

// Registry maps task types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a task type. Registering a type twice panics.
func (r *Registry) Register(taskType string, h Handler) {
	if taskType == "" || h == nil {
		panic("task type and handler are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[taskType]; exists {
		panic(fmt.Sprintf("handler for task type %q already registered", taskType))
	}
	r.handlers[taskType] = h
}

// Lookup returns the handler for taskType or an error wrapping
// domain.ErrUnknownTaskType.
func (r *Registry) Lookup(taskType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTaskType, taskType)
	}
	return h, nil
}

// Types returns the registered task types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Validate checks a submission: the type must be registered and, if its
// handler implements PayloadValidator, the payload must pass it. Every
// rejection wraps domain.ErrValidation.
func (r *Registry) Validate(taskType string, payload json.RawMessage) error {
	h, err := r.Lookup(taskType)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if v, ok := h.(PayloadValidator); ok {
		if err := v.ValidatePayload(payload); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
	}
	return nil
}
