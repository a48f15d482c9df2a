// Package watch submits bulk_collect tasks on a cron schedule so a fixed set
// of VK communities is collected without an API call per run.
package watch
