package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vkwatch/vkwatch-api/internal/api/shared"
	"github.com/vkwatch/vkwatch-api/internal/domain"
	"github.com/vkwatch/vkwatch-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors
	switch {
	// Bad request errors
	case errors.As(err, &validationErrs),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnknownTaskType),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Not found errors
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// Backpressure
	case errors.Is(err, domain.ErrQueueFull),
		errors.Is(err, domain.ErrQueueClosed):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return SanitizeValidationError(validationErrs)
	case errors.Is(err, domain.ErrUnknownTaskType):
		return "Unknown task type"
	case errors.Is(err, domain.ErrValidation):
		return validationMessage(err)
	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case errors.Is(err, domain.ErrNotFound):
		return "Resource not found"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "Task has already finished"
	case errors.Is(err, store.ErrDuplicate):
		return "Resource already exists"
	case errors.Is(err, domain.ErrQueueFull):
		return "Task queue is full, retry later"
	case errors.Is(err, domain.ErrQueueClosed):
		return "Server is shutting down"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"
	default:
		return "An unexpected error occurred"
	}
}

// validationMessage keeps the detail a validation error carries after the
// sentinel, e.g. "validation failed: payload is required" becomes
// "Validation failed: payload is required". Details come from our own
// validators and never include internal state.
func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, domain.ErrValidation.Error()); i >= 0 {
		msg = msg[i:]
	}
	if msg == "" {
		return "Validation failed"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// SanitizeValidationError converts validator errors into a short message
// naming the offending fields.
func SanitizeValidationError(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "Validation failed"
	}
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return "Validation failed: " + strings.Join(parts, "; ")
}

// HandleAPIError maps err to a status code and a safe message and writes the
// error response. A non-empty userMessage replaces the derived message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, userMessage string) {
	status := MapErrorToStatusCode(err)
	if userMessage == "" {
		userMessage = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, userMessage, err)
}
