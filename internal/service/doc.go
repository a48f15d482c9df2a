// Package service contains the application use cases behind the HTTP API.
// It validates requests, delegates task work to the task runner and reads
// task and keyword state from the stores, translating their errors into the
// domain sentinels the API maps to status codes.
package service
