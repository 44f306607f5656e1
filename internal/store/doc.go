// Package store is the typed record repository of govbot.
//
// Every record is kept in one flat kv.Store namespace, encoded with
// ir.Encode and addressed by its content-derived key:
//   - entry<hash>: Entries (upsert; stored timestamp is the latest seen)
//   - index<hash>: Indices (replaced wholesale by ReplaceIndices)
//   - subscription<hash>: Subscriptions (keyed by query part)
//   - registration<hash>: Registrations (one per user)
//   - notify<hash>: Notifies (write-once, drained by the delivery channel)
//   - <hash>: UserMetaData (no prefix)
//
// # Index staleness
//
// Indices reference other records by key and are never updated in place.
// Two mechanisms keep them bounded:
//   - ReplaceIndices writes a rebuilt set and deletes every other stored
//     index in the same atomic batch.
//   - Reads through EntriesByKeys skip dangling keys, and Compact removes
//     them from indices and subscription result caches.
//
// ReplaceIndices and Compact both hold the store mutex, so a compaction
// pass never writes back an index a concurrent rebuild has replaced.
//
// Decoded entries are cached in an LRU keyed by record key. Returned
// records are shared with the cache and must be treated as read-only.
package store
