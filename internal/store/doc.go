// Package store provides SQLite-backed storage for the activity catalog,
// participants and their selections.
//
// Tables:
//   - activity_types, activities, correlations: the catalog, replaced
//     wholesale by ImportCatalog and kept in declaration order (position)
//   - participants: id, role and display name
//   - selections: one row per (participant, activity), ordered by seq
//
// # Ordering
//
// Catalog reads are ORDER BY position, id. Selection reads are
// ORDER BY seq, so a participant's program lists activities in enrolment
// order regardless of wall-clock timestamps.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Selections cascade when an activity or participant goes away
//
// Both *Store and the transaction handle passed to InTx implement
// Repository, the interface the selection engine depends on.
package store
