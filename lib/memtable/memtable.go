package memtable

import (
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/fkoehler/cellar/lib/colstore"
	"github.com/fkoehler/cellar/lib/deletion"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("memtable")

var bytesWritten = metrics.NewCounter("cellar_memtable_bytes_written_total")

// --------------------------------------------------------------------------
// Memtable
// --------------------------------------------------------------------------

// Memtable is the mutable in-memory working set of the write path: one
// atomic sorted cell store per row, plus the memory accounting the flush
// logic needs. Rows are created on first write and never removed while the
// memtable is in use - readers may hold a row store reference at any time,
// and a row whose cells have all been shadowed still carries deletion
// metadata.
//
// All methods are safe for concurrent use; per-row mutation atomicity comes
// from the row stores themselves, and the registry is a concurrent map.
type Memtable struct {
	rows      *xsync.MapOf[string, *colstore.Store]
	storeOpts *colstore.Options
	bytes     atomic.Int64
	ops       atomic.Uint64
}

// Options configures a Memtable.
type Options struct {
	// Store is applied to every row store created by this memtable.
	// nil selects the store defaults.
	Store *colstore.Options
}

// New creates an empty memtable with default options.
func New() *Memtable {
	return NewWithOptions(nil)
}

// NewWithOptions creates an empty memtable. A nil opts selects the defaults.
func NewWithOptions(opts *Options) *Memtable {
	var storeOpts *colstore.Options
	if opts != nil {
		storeOpts = opts.Store
	}
	return &Memtable{
		rows:      xsync.NewMapOf[string, *colstore.Store](),
		storeOpts: storeOpts,
	}
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Put merges the batch into the given row as one atomic step, creating the
// row store on first write, and returns the size delta the merge produced.
// The delta is also added to the memtable's live-bytes accounting.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Memtable) Put(rowKey string, u *colstore.Update, upd colstore.IndexUpdater) int64 {
	store, _ := m.rows.LoadOrCompute(rowKey, func() *colstore.Store {
		return colstore.NewWithOptions(m.storeOpts)
	})

	delta := store.AddAll(u, upd)
	m.bytes.Add(delta)
	m.ops.Add(1)
	if delta > 0 {
		bytesWritten.Add(int(delta))
	}
	return delta
}

// DeleteRow merges a row-level deletion into the given row, creating the
// row store if it does not exist yet (a deletion of a row never written
// locally must still shadow writes merged in later).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Memtable) DeleteRow(rowKey string, t deletion.Time) {
	store, _ := m.rows.LoadOrCompute(rowKey, func() *colstore.Store {
		return colstore.NewWithOptions(m.storeOpts)
	})
	store.DeleteAt(t)
	m.ops.Add(1)
}

// PurgeTombstones runs a tombstone purge over every row and returns the
// number of rows that dropped at least one tombstone.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Memtable) PurgeTombstones(gcBefore int64) int {
	purged := 0
	m.rows.Range(func(_ string, store *colstore.Store) bool {
		if store.PurgeTombstones(gcBefore) {
			purged++
		}
		return true
	})
	if purged > 0 {
		Logger.Debugf("purged tombstones in %d rows (gcBefore=%d)", purged, gcBefore)
	}
	return purged
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

// Row returns the store holding the given row, if it exists.
func (m *Memtable) Row(rowKey string) (*colstore.Store, bool) {
	return m.rows.Load(rowKey)
}

// Rows calls fn for every row until fn returns false. The iteration visits
// a weakly consistent view of the registry; each row store read through it
// is individually consistent as usual.
func (m *Memtable) Rows(fn func(rowKey string, store *colstore.Store) bool) {
	m.rows.Range(fn)
}

// RowCount returns the number of rows ever written to this memtable.
func (m *Memtable) RowCount() int {
	return m.rows.Size()
}

// LiveBytes returns the accumulated size deltas of all merges: an estimate
// of the serialized bytes currently held live.
func (m *Memtable) LiveBytes() int64 {
	return m.bytes.Load()
}

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// Info summarizes the state of the memtable.
type Info struct {
	RowCount   int    `json:"row_count"`
	CellCount  int    `json:"cell_count"`
	LiveBytes  int64  `json:"live_bytes"`
	Operations uint64 `json:"operations"`
}

// GetInfo collects statistics over all rows. The counts are a fuzzy snapshot:
// rows are sampled one by one while writers keep going.
func (m *Memtable) GetInfo() Info {
	info := Info{
		LiveBytes:  m.bytes.Load(),
		Operations: m.ops.Load(),
	}
	m.rows.Range(func(_ string, store *colstore.Store) bool {
		info.RowCount++
		info.CellCount += store.Count()
		return true
	})
	return info
}
