// Package keyword matches comment text against the configured keyword set.
// Matching is pure and safe for unbounded parallel use; Cache keeps a compiled
// set per worker and refreshes it at a bounded interval.
package keyword
