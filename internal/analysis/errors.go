package analysis

import "errors"

// Common errors returned by the analysis package
var (
	// ErrEmptyText is returned when there is nothing to analyze
	ErrEmptyText = errors.New("text to analyze is empty")
)
