package colstore

import (
	"errors"
	"sync/atomic"

	"github.com/fkoehler/cellar/lib/cell"
	"github.com/fkoehler/cellar/lib/deletion"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("colstore")

// ErrNameMismatch is returned by Replace when the two cells carry different
// names.
var ErrNameMismatch = errors.New("colstore: replace requires cells with equal names")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// Options configures a Store.
type Options struct {
	// NoEarlyExit disables the bail-early check in AddAll that abandons an
	// attempt as soon as another writer has won the swap. The check is a
	// performance optimization only; with it disabled every attempt applies
	// the full batch before trying the swap.
	NoEarlyExit bool
}

// DefaultOptions returns the default store options.
func DefaultOptions() *Options {
	return &Options{}
}

// --------------------------------------------------------------------------
// Atomic Sorted Cell Store
// --------------------------------------------------------------------------

// Store is a thread-safe, atomic, sorted cell container. Mutations - in
// particular the batch AddAll - are atomic and isolated: no reader ever
// observes a state where some but not all cells of a batch have been
// applied, nor a map paired with deletion metadata from a different
// mutation.
//
// The store owns exactly one mutable cell: an atomic reference to the
// current holder (map snapshot + deletion info). Every mutation clones the
// current map (an O(1) structurally shared copy), applies its changes to
// the clone, and publishes with a single compare-and-swap, retrying from a
// fresh read on failure. There are no locks; progress is lock-free, and
// successful swaps form the linearization order of all writes.
//
// Readers dereference the current holder and operate on its immutable
// snapshot with no synchronization at all. They may be arbitrarily stale
// relative to concurrent writers, but always consistent.
type Store struct {
	ref  atomic.Pointer[holder]
	opts Options
}

// New creates an empty store with default options.
func New() *Store {
	return NewWithOptions(nil)
}

// NewWithOptions creates an empty store. A nil opts selects the defaults.
func NewWithOptions(opts *Options) *Store {
	if opts == nil {
		opts = DefaultOptions()
	}
	s := &Store{opts: *opts}
	s.ref.Store(newHolder())
	return s
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Add inserts the cell, reconciling with any resident cell of the same
// name. Index hooks are not invoked; use AddWithIndex to notify an updater.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) Add(c *cell.Cell) {
	s.AddWithIndex(c, nil)
}

// AddWithIndex inserts the cell like Add and notifies the given updater with
// an Insert or Update hook. A nil updater is treated as a no-op one. See
// IndexUpdater for the delivery guarantees of plain versus buffered
// updaters.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) AddWithIndex(c *cell.Cell, upd IndexUpdater) {
	upd, staged := normalizeUpdater(upd)
	for {
		current := s.ref.Load()
		if staged != nil {
			staged.BeginAttempt()
		}
		modified := current.cloned()
		modified.addCell(c, upd)
		if s.ref.CompareAndSwap(current, modified) {
			break
		}
		addRetries.Inc()
	}
	if staged != nil {
		staged.Commit()
	}
}

// AddAll applies the whole batch - cell insertions, reconciliations and the
// deletion info merge - as one atomic step and returns the size delta (the
// signed difference in serialized bytes, for memory accounting by the
// caller).
//
// If the batch carries range tombstones, Remove is invoked for every cell of
// the union of the current contents and the batch that the incoming
// tombstones shadow. FinishRow is invoked exactly once, after the winning
// swap.
//
// On contention an attempt bails out as soon as it detects it has lost the
// race (unless Options.NoEarlyExit is set) and everything - the deletion
// merge, the size delta, the hook calls of buffered updaters - is recomputed
// from a fresh read. Only the winning attempt's holder is ever visible to
// readers.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) AddAll(u *Update, upd IndexUpdater) int64 {
	upd, staged := normalizeUpdater(upd)
	incoming := u.Cells()
	incomingDel := u.DeletionInfo()

	var (
		current  *holder
		modified *holder
		delta    int64
	)

mainLoop:
	for {
		delta = 0
		current = s.ref.Load()
		if staged != nil {
			staged.BeginAttempt()
		}
		modified = &holder{
			m:   current.m.Clone(),
			del: current.del.Merge(incomingDel),
		}

		if incomingDel.HasRanges() {
			notifyRangeRemovals(current, incoming, incomingDel, upd)
		}

		for _, c := range incoming {
			delta += modified.addCell(c, upd)
			// bail early if another writer has already won
			if !s.opts.NoEarlyExit && s.ref.Load() != current {
				earlyExits.Inc()
				addAllRetries.Inc()
				continue mainLoop
			}
		}

		if s.ref.CompareAndSwap(current, modified) {
			break
		}
		addAllRetries.Inc()
	}

	if staged != nil {
		staged.Commit()
	}
	upd.FinishRow()

	addAllBatches.Inc()
	cellsMerged.Add(len(incoming))

	return delta
}

// notifyRangeRemovals invokes the Remove hook for every cell, resident or
// incoming, that the batch's range tombstones shadow.
func notifyRangeRemovals(current *holder, incoming []*cell.Cell, incomingDel deletion.Info, upd IndexUpdater) {
	current.m.Ascend(func(c *cell.Cell) bool {
		if incomingDel.IsDeleted(c) {
			upd.Remove(c)
		}
		return true
	})
	for _, c := range incoming {
		if incomingDel.IsDeleted(c) {
			upd.Remove(c)
		}
	}
}

// Replace swaps oldCell for newCell if and only if oldCell is still the
// resident cell under its name. The boolean reports the cell-level outcome:
// false means a concurrent mutation already replaced or removed the cell, in
// which case the store is left unchanged by this call (the holder swap still
// happens, carrying identical contents). Cells with different names are
// rejected with ErrNameMismatch before any state is touched.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) Replace(oldCell, newCell *cell.Cell) (bool, error) {
	if !oldCell.Name.Equal(newCell.Name) {
		Logger.Warningf("replace called with mismatched names: %s vs %s", oldCell.Name, newCell.Name)
		return false, ErrNameMismatch
	}

	var replaced bool
	for {
		current := s.ref.Load()
		modified := current.cloned()
		replaced = modified.m.Replace(oldCell.Name, oldCell, newCell)
		if s.ref.CompareAndSwap(current, modified) {
			return replaced, nil
		}
		replaceRetries.Inc()
	}
}

// DeleteInfo merges the given deletion info into the store. Calls carrying a
// live (empty) info are no-ops.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) DeleteInfo(info deletion.Info) {
	if info.IsLive() {
		return
	}
	for {
		current := s.ref.Load()
		if s.ref.CompareAndSwap(current, current.withInfo(current.del.Merge(info))) {
			return
		}
		deleteRetries.Inc()
	}
}

// DeleteAt records a row-level deletion at the given time.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) DeleteAt(t deletion.Time) {
	s.DeleteInfo(deletion.FromTime(t))
}

// DeleteRange records a range tombstone.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) DeleteRange(rt deletion.RangeTombstone) {
	s.DeleteInfo(deletion.FromRange(rt))
}

// PurgeTombstones drops every range tombstone issued before gcBefore (unix
// seconds) and reports whether anything was purged. When nothing is
// purgeable the call returns without attempting a swap; purgeability is
// re-checked on every retry since a concurrent purge may have already done
// the work.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) PurgeTombstones(gcBefore int64) bool {
	for {
		current := s.ref.Load()
		if !current.del.HasPurgeableTombstones(gcBefore) {
			return false
		}
		if s.ref.CompareAndSwap(current, current.withInfo(current.del.Purge(gcBefore))) {
			return true
		}
		purgeRetries.Inc()
	}
}

// Clone returns an independent store initialized with the receiver's current
// contents and deletion info. The copy is O(1): the underlying map is
// structurally shared until either store mutates.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) Clone() *Store {
	c := &Store{opts: s.opts}
	c.ref.Store(s.ref.Load().cloned())
	return c
}

// Clear atomically resets the store to an empty map and live deletion info.
// The old map is discarded, not mutated, so no cloning is needed; in-flight
// readers keep their snapshots.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) Clear() {
	for {
		current := s.ref.Load()
		if s.ref.CompareAndSwap(current, newHolder()) {
			return
		}
		clearRetries.Inc()
	}
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// All readers operate on the holder current at call time: a consistent
// snapshot that may be arbitrarily stale relative to concurrent writers.

// Get returns the cell stored under the given name.
func (s *Store) Get(name cell.Name) (*cell.Cell, bool) {
	return s.ref.Load().m.Get(name)
}

// Count returns the number of cells.
func (s *Store) Count() int {
	return s.ref.Load().m.Size()
}

// Names returns all cell names in ascending order.
func (s *Store) Names() []cell.Name {
	return s.ref.Load().m.Names()
}

// Cells returns all cells in ascending name order.
func (s *Store) Cells() []*cell.Cell {
	return s.ref.Load().m.Cells()
}

// CellsReversed returns all cells in descending name order.
func (s *Store) CellsReversed() []*cell.Cell {
	h := s.ref.Load()
	cells := make([]*cell.Cell, 0, h.m.Size())
	h.m.Descend(func(c *cell.Cell) bool {
		cells = append(cells, c)
		return true
	})
	return cells
}

// Ascend iterates the snapshot's cells in ascending name order until fn
// returns false.
func (s *Store) Ascend(fn func(*cell.Cell) bool) {
	s.ref.Load().m.Ascend(fn)
}

// Descend iterates the snapshot's cells in descending name order until fn
// returns false.
func (s *Store) Descend(fn func(*cell.Cell) bool) {
	s.ref.Load().m.Descend(fn)
}

// AscendRange iterates cells with start <= name < end in ascending order
// until fn returns false.
func (s *Store) AscendRange(start, end cell.Name, fn func(*cell.Cell) bool) {
	s.ref.Load().m.AscendRange(start, end, fn)
}

// DescendRange iterates cells with start <= name < end in descending order
// until fn returns false.
func (s *Store) DescendRange(start, end cell.Name, fn func(*cell.Cell) bool) {
	s.ref.Load().m.DescendRange(start, end, fn)
}

// DeletionInfo returns the current deletion metadata.
func (s *Store) DeletionInfo() deletion.Info {
	return s.ref.Load().del
}

// IsLive reports whether the store carries no deletion metadata.
func (s *Store) IsLive() bool {
	return s.ref.Load().del.IsLive()
}

// Snapshot is a stable view of the store at one instant: the cells and the
// deletion info are guaranteed to stem from the same holder.
type Snapshot struct {
	Cells    []*cell.Cell
	Deletion deletion.Info
}

// Snapshot captures a consistent {cells, deletion info} pair.
func (s *Store) Snapshot() Snapshot {
	h := s.ref.Load()
	return Snapshot{Cells: h.m.Cells(), Deletion: h.del}
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// normalizeUpdater substitutes a no-op updater for nil and extracts the
// optional attempt-staging interface.
func normalizeUpdater(upd IndexUpdater) (IndexUpdater, AttemptUpdater) {
	if upd == nil {
		return NopIndexUpdater{}, nil
	}
	staged, _ := upd.(AttemptUpdater)
	return upd, staged
}
