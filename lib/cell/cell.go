package cell

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// --------------------------------------------------------------------------
// Cell Names
// --------------------------------------------------------------------------

// Name is the ordered composite name of a cell. It is stored in its encoded
// form: every component is written with a big-endian uint16 length prefix so
// that plain lexicographic byte comparison of two encoded names yields the
// same order as component-wise comparison.
type Name []byte

// NewName builds a composite name from its components.
func NewName(components ...[]byte) Name {
	var buf bytes.Buffer
	for _, c := range components {
		var lenPrefix [2]byte
		binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(c)))
		buf.Write(lenPrefix[:])
		buf.Write(c)
	}
	return buf.Bytes()
}

// SimpleName builds a single-component name from a string.
func SimpleName(s string) Name {
	return NewName([]byte(s))
}

// Compare orders two names. It returns -1, 0 or 1.
func (n Name) Compare(other Name) int {
	return bytes.Compare(n, other)
}

// Less reports whether n orders before other.
func (n Name) Less(other Name) bool {
	return bytes.Compare(n, other) < 0
}

// Equal reports whether two names are identical.
func (n Name) Equal(other Name) bool {
	return bytes.Equal(n, other)
}

// Components decodes the name back into its components.
func (n Name) Components() [][]byte {
	var out [][]byte
	rest := []byte(n)
	for len(rest) >= 2 {
		l := int(binary.BigEndian.Uint16(rest[:2]))
		rest = rest[2:]
		if l > len(rest) {
			break
		}
		out = append(out, rest[:l])
		rest = rest[l:]
	}
	return out
}

func (n Name) String() string {
	comps := n.Components()
	if len(comps) == 1 {
		return string(comps[0])
	}
	var buf bytes.Buffer
	for i, c := range comps {
		if i > 0 {
			buf.WriteByte(':')
		}
		buf.Write(c)
	}
	return buf.String()
}

// --------------------------------------------------------------------------
// Cell Type
// --------------------------------------------------------------------------

// cellOverhead approximates the fixed per-cell bookkeeping (timestamps,
// deletion flag, slice headers) counted by SerializedSize.
const cellOverhead = 24

// Cell is the smallest versioned unit of data for one column within one row.
//
// A Cell is immutable by contract: it is never modified after construction,
// only replaced. "Updating" a cell means reconciling it with another cell
// carrying the same name and installing the winner. This immutability is what
// lets snapshots of the store be shared across threads without any locking.
type Cell struct {
	Name      Name   // ordered composite name
	Value     []byte // payload (nil for tombstones)
	Timestamp int64  // write timestamp, microseconds

	// Tombstone state. Deleted cells shadow earlier live writes with a lower
	// timestamp; LocalDeletionTime (unix seconds) is the wall-clock time the
	// deletion was issued, used for purge decisions.
	Deleted           bool
	LocalDeletionTime int64
}

// New creates a live cell.
func New(name Name, value []byte, timestamp int64) *Cell {
	return &Cell{Name: name, Value: value, Timestamp: timestamp}
}

// NewTombstone creates a deleted cell shadowing the given name.
func NewTombstone(name Name, timestamp int64, localDeletionTime int64) *Cell {
	return &Cell{
		Name:              name,
		Timestamp:         timestamp,
		Deleted:           true,
		LocalDeletionTime: localDeletionTime,
	}
}

// IsLive reports whether the cell holds live data (i.e. is not a tombstone).
func (c *Cell) IsLive() bool {
	return !c.Deleted
}

// SerializedSize returns the number of bytes this cell accounts for. It is
// used by the store to report size deltas for memory accounting.
func (c *Cell) SerializedSize() int64 {
	return int64(len(c.Name)) + int64(len(c.Value)) + cellOverhead
}

func (c *Cell) String() string {
	if c.Deleted {
		return fmt.Sprintf("Cell{%s, tombstone, ts=%d}", c.Name, c.Timestamp)
	}
	return fmt.Sprintf("Cell{%s, %q, ts=%d}", c.Name, c.Value, c.Timestamp)
}

// --------------------------------------------------------------------------
// Reconciliation
// --------------------------------------------------------------------------

// Reconcile resolves two cells carrying the same name to a single winner.
//
// The resolution is deterministic, commutative and idempotent: the higher
// timestamp wins; on a timestamp tie a tombstone beats a live cell; between
// two live cells (or two tombstones) with equal timestamps the greater
// payload bytes win. Reconcile always returns one of its two arguments, so
// callers can compare the result against the inputs by identity.
func Reconcile(a, b *Cell) *Cell {
	if a.Timestamp != b.Timestamp {
		if a.Timestamp > b.Timestamp {
			return a
		}
		return b
	}

	// timestamp tie: deletion shadows data
	if a.Deleted != b.Deleted {
		if a.Deleted {
			return a
		}
		return b
	}

	// deterministic tie-break on the payload, then on the deletion clock
	if c := bytes.Compare(a.Value, b.Value); c != 0 {
		if c > 0 {
			return a
		}
		return b
	}
	if a.LocalDeletionTime >= b.LocalDeletionTime {
		return a
	}
	return b
}

// Reconcile resolves the receiver against another cell with the same name.
// See the package-level Reconcile for the resolution rules.
func (c *Cell) Reconcile(other *Cell) *Cell {
	return Reconcile(c, other)
}
