// Package api handles incoming HTTP requests, request validation and response
// formatting. It adapts the task and keyword services to HTTP: submissions,
// status lookups, listings, statistics, cancellation and the keyword set.
package api
