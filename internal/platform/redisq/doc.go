// Package redisq implements the task queue on a Redis list so several
// processes can share one queue. Capacity accounting and enqueueing are done
// in Lua scripts so they are atomic across processes.
package redisq
