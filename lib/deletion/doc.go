// Package deletion implements the row deletion metadata of the cell store:
// a row-level deletion time plus a set of range tombstones, bundled into the
// immutable Info value.
//
// Info values are merged monotonically: Merge never lowers a timestamp, its
// result is the same regardless of argument order, and repeated merging of
// the same infos is idempotent. This mirrors the reconciliation rules of the
// cell package and is what makes concurrent deletes safe to apply through
// the store's optimistic retry loops.
//
// Range tombstones carry two notions of time: the write timestamp they
// shadow (MarkedForDeleteAt) and the wall-clock second they were issued
// (LocalDeletionTime). Only the latter is consulted by Purge, which drops
// tombstones old enough to be garbage collected. The row-level deletion time
// is deliberately never purged here.
package deletion
