// Package memtable ties the per-row atomic cell stores into the write path's
// working set: a concurrent registry of rows with live-byte accounting fed
// by the size deltas the row stores report on every batch merge.
//
// The memtable adds no synchronization of its own around row contents - a
// batch handed to Put is exactly as atomic and isolated as colstore.AddAll
// makes it. What the memtable contributes is row lifecycle (create on first
// write, keep forever while in use) and the bookkeeping a flush policy
// needs to decide when the working set has grown large enough to drain.
// Flushing itself - walking Rows and writing snapshots out - is the caller's
// business.
package memtable
