package colstore

import (
	"github.com/fkoehler/cellar/lib/cell"
	"github.com/fkoehler/cellar/lib/deletion"
	"github.com/fkoehler/cellar/lib/sortedmap"
)

// --------------------------------------------------------------------------
// Holder
// --------------------------------------------------------------------------

// holder is an immutable pairing of one map snapshot with one deletion info
// snapshot. The two are always replaced together through a single atomic
// swap of the store's reference, so any holder a reader dereferences is a
// consistent cut: never an old map with new deletion metadata or vice versa.
//
// A holder is never modified after it has been published. Mutation attempts
// work on a fresh holder built around a clone of the map; superseded holders
// stay valid for readers still pointing at them thanks to the structural
// sharing of the map.
type holder struct {
	m   *sortedmap.Map
	del deletion.Info
}

func newHolder() *holder {
	return &holder{m: sortedmap.New(), del: deletion.Live()}
}

// cloned returns a holder around an O(1) clone of the map, keeping the same
// deletion info.
func (h *holder) cloned() *holder {
	return &holder{m: h.m.Clone(), del: h.del}
}

// withInfo returns a holder sharing the map but carrying new deletion info.
func (h *holder) withInfo(info deletion.Info) *holder {
	return &holder{m: h.m, del: info}
}

// addCell inserts or reconciles a single cell into the holder's (private,
// pre-publication) map and reports the resulting size delta. The updater is
// notified with an Insert for a fresh name or an Update with (loser, winner)
// for a reconciled one.
func (h *holder) addCell(c *cell.Cell, upd IndexUpdater) int64 {
	for {
		old, present := h.m.PutIfAbsent(c)
		if !present {
			upd.Insert(c)
			return c.SerializedSize()
		}

		reconciled := c.Reconcile(old)
		if h.m.Replace(c.Name, old, reconciled) {
			if reconciled == c {
				upd.Update(old, reconciled)
			} else {
				upd.Update(c, reconciled)
			}
			return reconciled.SerializedSize() - old.SerializedSize()
		}
		// The resident cell changed between the lookup and the replace.
		// Cannot happen while the holder is private to one attempt, but the
		// loop keeps the operation total either way.
	}
}
