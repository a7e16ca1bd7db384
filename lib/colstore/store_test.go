package colstore_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fkoehler/cellar/lib/cell"
	"github.com/fkoehler/cellar/lib/colstore"
	storetesting "github.com/fkoehler/cellar/lib/colstore/testing"
	"github.com/fkoehler/cellar/lib/deletion"
)

func TestStore(t *testing.T) {
	storetesting.RunStoreTests(t, "Default", func() *colstore.Store {
		return colstore.New()
	})

	storetesting.RunStoreTests(t, "NoEarlyExit", func() *colstore.Store {
		return colstore.NewWithOptions(&colstore.Options{NoEarlyExit: true})
	})
}

func BenchmarkStore(b *testing.B) {
	storetesting.RunStoreBenchmarks(b, "Default", func() *colstore.Store {
		return colstore.New()
	})
}

// --------------------------------------------------------------------------
// Index hook semantics
// --------------------------------------------------------------------------

// recordingUpdater counts hook invocations. Safe for concurrent use so it
// can also observe hooks fired by losing attempts.
type recordingUpdater struct {
	mu        sync.Mutex
	inserts   []*cell.Cell
	updates   [][2]*cell.Cell
	removes   []*cell.Cell
	finishRow int
}

func (r *recordingUpdater) Insert(c *cell.Cell) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts = append(r.inserts, c)
}

func (r *recordingUpdater) Update(old, reconciled *cell.Cell) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, [2]*cell.Cell{old, reconciled})
}

func (r *recordingUpdater) Remove(c *cell.Cell) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes = append(r.removes, c)
}

func (r *recordingUpdater) FinishRow() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishRow++
}

func TestAddAllInvokesHooks(t *testing.T) {
	store := colstore.New()
	rec := &recordingUpdater{}

	u := colstore.NewUpdate()
	a := cell.New(cell.SimpleName("a"), []byte("1"), 1)
	b := cell.New(cell.SimpleName("b"), []byte("2"), 1)
	u.Add(a)
	u.Add(b)
	store.AddAll(u, rec)

	if len(rec.inserts) != 2 {
		t.Errorf("expected 2 insert hooks, got %d", len(rec.inserts))
	}
	if rec.finishRow != 1 {
		t.Errorf("expected exactly one FinishRow, got %d", rec.finishRow)
	}

	// reconcile path fires Update with (loser, winner)
	u2 := colstore.NewUpdate()
	a2 := cell.New(cell.SimpleName("a"), []byte("3"), 2)
	u2.Add(a2)
	store.AddAll(u2, rec)

	if len(rec.updates) != 1 {
		t.Fatalf("expected 1 update hook, got %d", len(rec.updates))
	}
	if rec.updates[0][0] != a || rec.updates[0][1] != a2 {
		t.Errorf("update hook got (%v, %v), want (old, winner)", rec.updates[0][0], rec.updates[0][1])
	}
	if rec.finishRow != 2 {
		t.Errorf("expected two FinishRow calls total, got %d", rec.finishRow)
	}
}

func TestRangeTombstoneRemoveHooks(t *testing.T) {
	store := colstore.New()
	inside := cell.New(cell.SimpleName("b"), []byte("1"), 1)
	outside := cell.New(cell.SimpleName("x"), []byte("2"), 1)
	store.Add(inside)
	store.Add(outside)

	rec := &recordingUpdater{}
	u := colstore.NewUpdate()
	incoming := cell.New(cell.SimpleName("c"), []byte("3"), 1)
	u.Add(incoming)
	u.DeleteRange(deletion.RangeTombstone{
		Start: cell.SimpleName("a"),
		End:   cell.SimpleName("d"),
		Time:  deletion.Time{MarkedForDeleteAt: 10, LocalDeletionTime: 100},
	})
	store.AddAll(u, rec)

	if len(rec.removes) != 2 {
		t.Fatalf("expected remove hooks for the resident and incoming covered cells, got %d", len(rec.removes))
	}
	seen := map[*cell.Cell]bool{rec.removes[0]: true, rec.removes[1]: true}
	if !seen[inside] || !seen[incoming] {
		t.Error("remove hooks fired for the wrong cells")
	}

	// the tombstone must land in the merged deletion info
	if store.DeletionInfo().RangeCount() != 1 {
		t.Errorf("expected 1 range tombstone, got %d", store.DeletionInfo().RangeCount())
	}
}

// TestBufferedUpdaterExactlyOnce drives heavy contention through buffered
// updaters and checks that replayed hook calls match the committed state
// exactly: one Insert per distinct name, regardless of how many attempts
// lost the race.
func TestBufferedUpdaterExactlyOnce(t *testing.T) {
	store := colstore.New()
	const writers = 8
	const cellsPerWriter = 40

	recs := make([]*recordingUpdater, writers)
	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		recs[w] = &recordingUpdater{}
		go func(id int) {
			defer wg.Done()
			u := colstore.NewUpdate()
			for i := 0; i < cellsPerWriter; i++ {
				u.Add(cell.New(cell.SimpleName(fmt.Sprintf("w%02d-%04d", id, i)), []byte("v"), int64(id+1)))
			}
			store.AddAll(u, colstore.NewBufferedIndexUpdater(recs[id]))
		}(w)
	}
	wg.Wait()

	total := 0
	for w, rec := range recs {
		if rec.finishRow != 1 {
			t.Errorf("writer %d: expected one FinishRow, got %d", w, rec.finishRow)
		}
		if len(rec.updates) != 0 {
			t.Errorf("writer %d: disjoint batches must not fire updates, got %d", w, len(rec.updates))
		}
		total += len(rec.inserts)
	}
	if total != store.Count() {
		t.Errorf("buffered inserts (%d) must equal committed cells (%d)", total, store.Count())
	}
}

func TestAddWithIndexBuffered(t *testing.T) {
	store := colstore.New()
	rec := &recordingUpdater{}

	c := cell.New(cell.SimpleName("one"), []byte("v"), 1)
	store.AddWithIndex(c, colstore.NewBufferedIndexUpdater(rec))

	if len(rec.inserts) != 1 || rec.inserts[0] != c {
		t.Errorf("expected one replayed insert for the committed cell, got %v", rec.inserts)
	}
	if rec.finishRow != 0 {
		t.Error("single-cell add must not fire FinishRow")
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	store := colstore.New()
	u := colstore.NewUpdate()
	u.Add(cell.New(cell.SimpleName("a"), []byte("1"), 1))
	store.AddAll(u, nil)

	snap := store.Snapshot()
	store.Add(cell.New(cell.SimpleName("b"), []byte("2"), 1))
	store.DeleteAt(deletion.Time{MarkedForDeleteAt: 5, LocalDeletionTime: 50})

	if len(snap.Cells) != 1 {
		t.Errorf("snapshot changed after later writes: %d cells", len(snap.Cells))
	}
	if !snap.Deletion.IsLive() {
		t.Error("snapshot deletion info changed after a later delete")
	}
}
