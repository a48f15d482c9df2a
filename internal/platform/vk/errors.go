package vk

import (
	"fmt"

	"github.com/vkwatch/vkwatch-api/internal/domain"
)

// VK API error codes that mean the caller is being throttled.
const (
	codeTooManyRequests = 6
	codeFloodControl    = 9
	codeRateLimit       = 29
)

// UpstreamError is a failed VK call. It always matches domain.ErrUpstream.
type UpstreamError struct {
	Method      string
	Code        int // VK error_code, 0 for transport and HTTP failures
	HTTPStatus  int // 0 when the response was a VK error envelope
	Message     string
	RateLimited bool
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("vk %s: error %d: %s", e.Method, e.Code, e.Message)
	case e.HTTPStatus != 0:
		return fmt.Sprintf("vk %s: http %d: %s", e.Method, e.HTTPStatus, e.Message)
	default:
		return fmt.Sprintf("vk %s: %s", e.Method, e.Message)
	}
}

// Unwrap makes errors.Is(err, domain.ErrUpstream) hold.
func (e *UpstreamError) Unwrap() error {
	return domain.ErrUpstream
}

func isRateLimitCode(code int) bool {
	return code == codeTooManyRequests || code == codeFloodControl || code == codeRateLimit
}
