// Package domain contains the core entities of the comment collector: tasks
// and their state machine, ingested comments and the keywords they are
// matched against. It has no dependencies on storage or transport.
package domain
