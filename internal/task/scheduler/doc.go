// Package scheduler runs named background jobs: fixed intervals (robfig/cron)
// and one-shot timers. Re-registering a name replaces the previous job, and a
// replaced or removed timer never fires.
package scheduler
