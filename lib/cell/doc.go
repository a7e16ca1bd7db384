// Package cell defines the value types of the cell store: ordered composite
// cell names and immutable, timestamped cells with tombstone support.
//
// Names are kept in a length-prefixed encoded form so that comparing the raw
// bytes of two names yields the component-wise composite order. This makes a
// Name usable directly as the key of any byte-ordered container.
//
// Cells are never mutated after construction. Conflicting writes to the same
// name are resolved with Reconcile, a last-write-wins rule with deterministic
// tie-breaks: the outcome is independent of the order the two cells are
// presented in, and reconciling the same pair repeatedly always yields the
// same winner. This property is what allows the store to merge concurrent
// batches without coordination.
package cell
