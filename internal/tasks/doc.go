// Package tasks runs long batch operations against the publishing platform as tracked,
// pausable and cancelable tasks.
//
// # Registry
//
// [Registry] owns the task list of the process. A task moves
//
//	pending -> running -> (paused <-> running) -> completed | failed | cancelled
//
// and the three terminal states are absorbing. Pause and cancel abort the request the
// task is currently waiting on. [Registry.Subscribe] streams task copies to the UI and
// the HTTP event stream.
//
// # Runner
//
// [Runner.Run] executes a [Job] one item at a time:
//
//  1. Wait for the pacing limiter (skipped before the first item)
//  2. Stop if cancelled, wait while paused
//  3. Run the item with a fresh request id tracked on the task
//  4. Record success or failure and continue
//
// When the run ends the task is cancelled if the flag was set, completed if no item
// failed, failed if no item succeeded, and otherwise completed with an unsuccessful
// [models.BatchResult].
//
// # Batches
//
// [Batcher] specializes the runner for the platform:
//   - [Batcher.RunDeleteBatch] : delete drafts from one account
//   - [Batcher.RunSyncBatch] : copy a draft to other accounts
//   - [Batcher.RunPublishSync], [Batcher.RunMasssendCheck], [Batcher.RunPublishBatch] : the
//     stages of a multi-account publish carried by [BatchPublishState]
//   - [Batcher.RunQRPoll] : wait for a mass-send QR confirmation
//
// # Progress Reporting
//
// Every job may carry a [ProgressUpdate] channel. Updates use select with default so a
// slow reader never blocks a run.
package tasks
