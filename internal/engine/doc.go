// Package engine resolves user queries against the store and keeps
// standing subscriptions current.
//
// ARCHITECTURE:
//
// Request Path:
// Handle receives one UserQuery and returns the Notification the dispatcher
// renders. For entries queries it:
//  1. Rebuilds every index the plan names (index.Plan + store.ReplaceIndices)
//  2. Collects candidates from the named indices, or every entry
//  3. Filters, ranks and limits them (Execute)
//  4. Applies subscribe / unsubscribe to the query's Subscription
//
// Refresh Loop:
// Run drains an event queue in a single goroutine. Producers enqueue an
// event after upserting entries; the loop re-evaluates every standing
// subscription and hands broadcast Notifications to the Sink when results
// changed and a new entry asks for a push.
//
// CONCURRENCY:
//
// Handle, RefreshSubscriptions and Reindex are serialized by one mutex so
// subscription read-modify-write sequences never interleave. The store
// itself is safe for concurrent use; the mutex only orders engine logic.
//
// Rebuilding indices on every query keeps them transactionally in step
// with the entry partition: ReplaceIndices swaps the whole index set in
// one batch, and readers skip keys whose entry has since been deleted.
package engine
