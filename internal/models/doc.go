// Package models defines domain entities and persistence interfaces for mpsync.
//
// The package contains three categories of types:
//
// 1. Session values: browser state captured from an isolated partition
//   - [Cookie] : one cookie, keyed by domain|path|name
//   - [AuthSnapshot] : cookies plus auth-relevant local storage
//   - [AuthDiff] : incremental change between two snapshots
//   - [PartitionBlob] / [AuthBlob] : the versioned serialized form stored with an account
//
// 2. Persistent Entities: database-backed models
//   - [Account] : a managed identity on the publishing platform
//   - [BatchRun] : a finished batch operation kept for history
//
// 3. Task values: snapshots of long-running batch operations
//   - [Task] : state-machine record (pending, running, paused, completed, failed, cancelled)
//   - [BatchResult] : aggregate outcome returned by every batch runner
//
// Persistent entities implement the Model interface providing ID, timestamps, and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
