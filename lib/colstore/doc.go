// Package colstore implements a thread-safe, atomic, sorted cell store: the
// in-memory row container of a column-oriented write path. Operations (in
// particular AddAll) are atomic and isolated in the ACID sense - a batch is
// guaranteed to become visible to other threads all at once or not at all.
//
// The design has exactly one mutable location: an atomic reference to an
// immutable holder pairing a sorted cell map with the row's deletion info.
// Writers follow an optimistic protocol: read the current holder, clone its
// map (a constant-time structurally shared copy, see lib/sortedmap), apply
// the mutation to the private clone, and install the new holder with a
// compare-and-swap, restarting from scratch if another writer got there
// first. Readers just dereference the current holder; they need no
// synchronization and can never block a writer or observe a torn state.
//
// Because the holder is replaced as a unit, the map contents and the
// deletion metadata a reader sees always stem from the same mutation.
// Successful swaps form a total order; every snapshot corresponds to a
// prefix of that order.
//
// Writes are lock-free, not wait-free: under contention an individual call
// may retry an unbounded number of times, but some contending writer always
// makes progress, and contention is never surfaced to the caller.
//
// Secondary-index maintenance is supported through the IndexUpdater hooks.
// Plain updaters are notified inside the retry loop and may therefore see
// calls from attempts that subsequently lost the race; wrap an updater in
// NewBufferedIndexUpdater when the index must observe exactly the changes
// that committed. See the IndexUpdater documentation for details.
package colstore
