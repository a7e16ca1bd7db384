package deletion

import (
	"fmt"
	"math"
	"sort"

	"github.com/fkoehler/cellar/lib/cell"
)

// --------------------------------------------------------------------------
// Deletion Time
// --------------------------------------------------------------------------

// Time records when a deletion happened. MarkedForDeleteAt is the write
// timestamp (microseconds) the deletion shadows: every cell with a timestamp
// less than or equal to it is considered deleted. LocalDeletionTime is the
// wall-clock time (unix seconds) the deletion was issued, used only for
// purge/GC decisions.
type Time struct {
	MarkedForDeleteAt int64
	LocalDeletionTime int64
}

// LiveTime is the sentinel meaning "no deletion". It shadows nothing
// (MarkedForDeleteAt at the minimum) and is never purgeable.
var LiveTime = Time{MarkedForDeleteAt: math.MinInt64, LocalDeletionTime: math.MaxInt64}

// IsLive reports whether this time is the no-deletion sentinel.
func (t Time) IsLive() bool {
	return t == LiveTime
}

// Supersedes reports whether t shadows at least everything other shadows.
func (t Time) Supersedes(other Time) bool {
	return t.MarkedForDeleteAt > other.MarkedForDeleteAt
}

func (t Time) String() string {
	if t.IsLive() {
		return "deletedAt=-, localDeletion=-"
	}
	return fmt.Sprintf("deletedAt=%d, localDeletion=%d", t.MarkedForDeleteAt, t.LocalDeletionTime)
}

// maxTime returns the more recent (more shadowing) of two deletion times.
// Ties on MarkedForDeleteAt resolve to the higher LocalDeletionTime so the
// result is independent of argument order.
func maxTime(a, b Time) Time {
	if b.Supersedes(a) {
		return b
	}
	if a.Supersedes(b) {
		return a
	}
	if b.LocalDeletionTime > a.LocalDeletionTime {
		return b
	}
	return a
}

// --------------------------------------------------------------------------
// Range Tombstones
// --------------------------------------------------------------------------

// RangeTombstone marks every cell whose name falls in [Start, End]
// (inclusive bounds) as deleted at the given Time.
type RangeTombstone struct {
	Start cell.Name
	End   cell.Name
	Time  Time
}

// Contains reports whether the tombstone's range covers the given name.
func (rt RangeTombstone) Contains(name cell.Name) bool {
	return rt.Start.Compare(name) <= 0 && name.Compare(rt.End) <= 0
}

// Deletes reports whether the tombstone shadows the given cell.
func (rt RangeTombstone) Deletes(c *cell.Cell) bool {
	return c.Timestamp <= rt.Time.MarkedForDeleteAt && rt.Contains(c.Name)
}

func (rt RangeTombstone) String() string {
	return fmt.Sprintf("[%s, %s]@%d", rt.Start, rt.End, rt.Time.MarkedForDeleteAt)
}

// --------------------------------------------------------------------------
// Deletion Info
// --------------------------------------------------------------------------

// Info is the complete deletion metadata of one row: a row-level deletion
// time plus a set of range tombstones. Info is an immutable value; Merge and
// Purge return new values and never modify their receiver. An Info placed in
// a store snapshot is therefore safe to read from any number of threads.
type Info struct {
	partition Time
	ranges    []RangeTombstone // sorted by (Start, End, MarkedForDeleteAt)
}

// Live returns the empty deletion info (nothing deleted).
func Live() Info {
	return Info{partition: LiveTime}
}

// FromTime returns an info carrying only a row-level deletion.
func FromTime(t Time) Info {
	return Info{partition: t}
}

// FromRange returns an info carrying a single range tombstone.
func FromRange(rt RangeTombstone) Info {
	return Info{partition: LiveTime, ranges: []RangeTombstone{rt}}
}

// New builds an info from a row-level time and any number of range
// tombstones.
func New(t Time, ranges ...RangeTombstone) Info {
	in := Info{partition: t, ranges: append([]RangeTombstone(nil), ranges...)}
	in.normalize()
	return in
}

// PartitionTime returns the row-level deletion time.
func (in Info) PartitionTime() Time {
	return in.partition
}

// Ranges returns a copy of the range tombstones in sorted order.
func (in Info) Ranges() []RangeTombstone {
	return append([]RangeTombstone(nil), in.ranges...)
}

// RangeCount returns the number of range tombstones.
func (in Info) RangeCount() int {
	return len(in.ranges)
}

// HasRanges reports whether any range tombstones are present.
func (in Info) HasRanges() bool {
	return len(in.ranges) > 0
}

// IsLive reports whether the info carries no deletion at all.
func (in Info) IsLive() bool {
	return in.partition.IsLive() && len(in.ranges) == 0
}

// IsDeleted reports whether the given cell is shadowed by this info, either
// by the row-level deletion or by a covering range tombstone.
func (in Info) IsDeleted(c *cell.Cell) bool {
	if c.Timestamp <= in.partition.MarkedForDeleteAt {
		return true
	}
	for _, rt := range in.ranges {
		if rt.Deletes(c) {
			return true
		}
	}
	return false
}

// Merge combines two deletion infos into a new one. The result's row-level
// time is the maximum of the two, and the ranges are the union of both sides
// with ranges of identical bounds collapsed to the maximum deletion time.
// Merge is pure, commutative and monotonic: no timestamp ever decreases.
//
// Overlapping ranges with different bounds are kept side by side rather than
// split. A cell covered by several overlapping tombstones is shadowed by the
// maximum of their times either way, so the point-query semantics match the
// split representation.
func (in Info) Merge(other Info) Info {
	merged := Info{
		partition: maxTime(in.partition, other.partition),
		ranges:    make([]RangeTombstone, 0, len(in.ranges)+len(other.ranges)),
	}
	merged.ranges = append(merged.ranges, in.ranges...)
	merged.ranges = append(merged.ranges, other.ranges...)
	merged.normalize()
	return merged
}

// HasPurgeableTombstones reports whether any range tombstone was issued
// before the given GC threshold (unix seconds) and could be dropped.
func (in Info) HasPurgeableTombstones(gcBefore int64) bool {
	for _, rt := range in.ranges {
		if rt.Time.LocalDeletionTime < gcBefore {
			return true
		}
	}
	return false
}

// Purge returns a new info with every range tombstone issued before gcBefore
// removed. The row-level deletion time is never purged here; dropping it is
// the business of compaction, which can prove no shadowed data remains.
//
// Tombstones are purged whole. Where an old tombstone overlaps a newer one
// with different bounds, purging the old one leaves the overlap shadowed only
// up to the newer tombstone's MarkedForDeleteAt; the old tombstone's higher
// timestamp is not transferred onto the surviving range.
func (in Info) Purge(gcBefore int64) Info {
	kept := make([]RangeTombstone, 0, len(in.ranges))
	for _, rt := range in.ranges {
		if rt.Time.LocalDeletionTime >= gcBefore {
			kept = append(kept, rt)
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	return Info{partition: in.partition, ranges: kept}
}

func (in Info) String() string {
	return fmt.Sprintf("{%s, ranges=%d}", in.partition, len(in.ranges))
}

// normalize sorts the ranges and collapses entries with identical bounds,
// keeping the maximum deletion time. Called on every construction, so an
// Info is always in canonical form and value comparison is meaningful.
func (in *Info) normalize() {
	if len(in.ranges) == 0 {
		in.ranges = nil
		return
	}
	sort.Slice(in.ranges, func(i, j int) bool {
		a, b := in.ranges[i], in.ranges[j]
		if c := a.Start.Compare(b.Start); c != 0 {
			return c < 0
		}
		if c := a.End.Compare(b.End); c != 0 {
			return c < 0
		}
		return a.Time.MarkedForDeleteAt < b.Time.MarkedForDeleteAt
	})

	out := in.ranges[:1]
	for _, rt := range in.ranges[1:] {
		last := &out[len(out)-1]
		if rt.Start.Equal(last.Start) && rt.End.Equal(last.End) {
			last.Time = maxTime(last.Time, rt.Time)
			continue
		}
		out = append(out, rt)
	}
	in.ranges = out
}
