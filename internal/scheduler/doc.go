// Package scheduler fires reconciliation runs on a cron cadence.
//
// At most one run executes at a time. Overlapping firings are skipped, both
// inside the process (cron.SkipIfStillRunning and an in-process guard shared
// with manual triggers) and across replicas when a lock.Locker is
// configured. Errors and panics raised by a run are logged and recorded in
// the run status; they never escape the scheduler.
package scheduler
