// Package events carries task lifecycle notifications from the worker pool to
// interested observers such as metrics collectors.
//
// The primary components are:
// - TaskEvent: a single lifecycle transition of a task
// - EventHandler: interface for components that consume events
// - EventEmitter: interface for components that publish events
package events
