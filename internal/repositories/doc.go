// Package repositories implements SQLite persistence for accounts, session partitions and batch history.
//
// Account and batch run repositories handle CRUD operations with atomic sequence generation for
// human-readable ordering. Both use soft deletes via deleted_at timestamps and exclude deleted
// records from queries by default.
//
// Key Implementations:
//   - [AccountRepository] : Managed accounts and their auth blobs, keyed by platform id
//   - [CookieRepository] : Per-partition cookie jar behind session.CookieStore
//   - [LocalStorageRepository] : Per-partition local storage behind session.LocalStorageBridge
//   - [BatchRunRepository] : Finished batch tasks, written through [BatchRunRepository.RecordRun]
//
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
