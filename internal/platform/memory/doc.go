// Package memory provides in-process implementations of the store
// interfaces. Task state transitions are guarded by a per-task mutex, so
// concurrent claims on different tasks never contend.
package memory
