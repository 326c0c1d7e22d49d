// Package session keeps each account's browser session isolated and its persisted credentials current.
//
// # Diffing
//
// [DiffAuthData] compares a freshly captured [models.AuthSnapshot] against the last synced baseline
// and returns a [models.AuthDiff]. Cookies are keyed by domain|path|name ([CookieKey]); a cookie is
// modified when its value or expiration changes. [HasChanges] reports whether a diff is a no-op.
//
// # Baselines
//
// [SnapshotStore] reads and writes the baseline stored inside an account's auth blob. A missing or
// malformed blob is treated as "no baseline" so the next sync sends everything.
//
// # Partitions
//
// [Manager] captures, serializes and restores cookies and auth-relevant local storage per partition
// through the [CookieStore] and [LocalStorageBridge] collaborators. Local storage restored from a blob
// is handed to the first page that asks for it exactly once ([Manager.ConsumeForInjection]).
//
// # Sync
//
// [AuthSyncer.SyncAuthDataToBackend] pushes a diff to the account store and commits the new baseline
// only after the push succeeds. [SyncScheduler] debounces repeated sync requests per key and
// [SnapshotWatcher] schedules syncs when a snapshot file changes on disk.
package session
