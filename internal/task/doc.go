// Package task runs background work. Tasks are durable records in a
// store.TaskStore; a Queue hands their IDs to a fixed pool of workers, which
// claim each task with a conditional status update, dispatch it to the
// Handler registered for its type and record the outcome.
//
// Transient failures are retried by the same worker with exponential backoff.
// Tasks left active by a crashed process are moved back to pending by a
// periodic reconciliation pass and requeued.
package task
