package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"storage", fmt.Errorf("save: %w", ErrStorage), true},
		{"upstream", fmt.Errorf("vk: %w", ErrUpstream), true},
		{"timeout", ErrTimeout, true},
		{"deadline", context.DeadlineExceeded, true},
		{"validation", fmt.Errorf("payload: %w", ErrValidation), false},
		{"unknown type", ErrUnknownTaskType, false},
		{"canceled", fmt.Errorf("%w: %w", ErrCanceled, ErrUpstream), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestCommentValidate(t *testing.T) {
	t.Parallel()

	c := &Comment{ID: 1, OwnerID: -42, Text: "hello"}
	assert.NoError(t, c.Validate())

	assert.ErrorIs(t, (&Comment{OwnerID: -42, Text: "x"}).Validate(), ErrEmptyCommentID)
	assert.ErrorIs(t, (&Comment{ID: 1, Text: "x"}).Validate(), ErrEmptyOwnerID)
	assert.ErrorIs(t, (&Comment{ID: 1, OwnerID: -42, Text: "  \n"}).Validate(), ErrEmptyCommentText)
}
