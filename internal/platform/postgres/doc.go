// Package postgres provides PostgreSQL implementations of the storage
// interfaces defined in the internal/store package, along with the embedded
// schema migrations they depend on.
//
// Task state transitions are conditional UPDATEs keyed on the set of statuses
// the target is reachable from, so concurrent workers racing for the same
// task are arbitrated by the database row lock.
package postgres
