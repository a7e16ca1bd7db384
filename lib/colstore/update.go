package colstore

import (
	"github.com/fkoehler/cellar/lib/cell"
	"github.com/fkoehler/cellar/lib/deletion"
	"github.com/fkoehler/cellar/lib/sortedmap"
)

// --------------------------------------------------------------------------
// Update Batches
// --------------------------------------------------------------------------

// Update is an incoming batch of cells plus its own deletion info, applied
// to a store as one atomic unit by Store.AddAll. Cells added to the batch
// under the same name are reconciled immediately, so the batch itself is
// always in canonical single-cell-per-name form.
//
// An Update is a builder, not a concurrent structure: populate it from one
// goroutine, then hand it to AddAll. The store never retains it.
type Update struct {
	m   *sortedmap.Map
	del deletion.Info
}

// NewUpdate creates an empty batch.
func NewUpdate() *Update {
	return &Update{m: sortedmap.New(), del: deletion.Live()}
}

// Add inserts or reconciles a cell into the batch.
func (u *Update) Add(c *cell.Cell) *Update {
	u.m.PutIfAbsentOrReconcile(c)
	return u
}

// Delete merges the given deletion info into the batch.
func (u *Update) Delete(info deletion.Info) *Update {
	u.del = u.del.Merge(info)
	return u
}

// DeleteAt merges a row-level deletion into the batch.
func (u *Update) DeleteAt(t deletion.Time) *Update {
	return u.Delete(deletion.FromTime(t))
}

// DeleteRange merges a range tombstone into the batch.
func (u *Update) DeleteRange(rt deletion.RangeTombstone) *Update {
	return u.Delete(deletion.FromRange(rt))
}

// Cells returns the batch's cells in ascending name order.
func (u *Update) Cells() []*cell.Cell {
	return u.m.Cells()
}

// DeletionInfo returns the batch's deletion info.
func (u *Update) DeletionInfo() deletion.Info {
	return u.del
}

// Count returns the number of distinct cell names in the batch.
func (u *Update) Count() int {
	return u.m.Size()
}
