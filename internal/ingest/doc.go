// Package ingest contains the task handlers that collect VK comments and
// analyze them: fetch_comments pages through one post's comments, bulk_collect
// fans out fetch_comments tasks for recent posts of several owners and
// analyze_comment re-runs analysis over a stored comment.
package ingest
