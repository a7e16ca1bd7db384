package testing

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fkoehler/cellar/lib/cell"
	"github.com/fkoehler/cellar/lib/colstore"
	"github.com/fkoehler/cellar/lib/deletion"
)

// StoreFactory is a function that creates a fresh store instance for a test.
type StoreFactory func() *colstore.Store

// RunStoreTests runs the full property suite against a store implementation
// variant. The same suite is run against both the default store and the
// NoEarlyExit variant, since the bail-early check is an optimization the
// guarantees must not depend on.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Add&Get", func(t *testing.T) {
			testAddGet(t, factory())
		})

		t.Run("ReconcileOnCollision", func(t *testing.T) {
			testReconcileOnCollision(t, factory())
		})

		t.Run("BatchVisibility", func(t *testing.T) {
			testBatchVisibility(t, factory())
		})

		t.Run("DeletionMerge", func(t *testing.T) {
			testDeletionMerge(t, factory())
		})

		t.Run("PurgeTombstones", func(t *testing.T) {
			testPurgeTombstones(t, factory())
		})

		t.Run("SizeDelta", func(t *testing.T) {
			testSizeDelta(t, factory())
		})

		t.Run("ConcurrentDisjointMerges", func(t *testing.T) {
			testConcurrentDisjointMerges(t, factory())
		})

		t.Run("ConcurrentSameName", func(t *testing.T) {
			testConcurrentSameName(t, factory())
		})

		t.Run("Replace", func(t *testing.T) {
			testReplace(t, factory())
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, factory())
		})

		t.Run("Clone", func(t *testing.T) {
			testClone(t, factory())
		})

		t.Run("Iteration", func(t *testing.T) {
			testIteration(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func makeCell(prefix string, i int, ts int64) *cell.Cell {
	name := cell.SimpleName(fmt.Sprintf("%s-%06d", prefix, i))
	return cell.New(name, []byte(fmt.Sprintf("value-%s-%d", prefix, i)), ts)
}

func makeBatch(prefix string, n int, ts int64) *colstore.Update {
	u := colstore.NewUpdate()
	for i := 0; i < n; i++ {
		u.Add(makeCell(prefix, i, ts))
	}
	return u
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testAddGet(t *testing.T, store *colstore.Store) {
	c := cell.New(cell.SimpleName("alpha"), []byte("one"), 10)
	store.Add(c)

	got, ok := store.Get(c.Name)
	if !ok {
		t.Fatalf("expected cell %s to exist after Add", c.Name)
	}
	if got != c {
		t.Errorf("expected the inserted cell back, got %v", got)
	}

	if _, ok := store.Get(cell.SimpleName("missing")); ok {
		t.Error("expected miss for a name that was never inserted")
	}

	if store.Count() != 1 {
		t.Errorf("expected count 1, got %d", store.Count())
	}
}

func testReconcileOnCollision(t *testing.T, store *colstore.Store) {
	name := cell.SimpleName("col")
	older := cell.New(name, []byte("old"), 5)
	newer := cell.New(name, []byte("new"), 9)

	// insertion order must not matter
	store.Add(newer)
	store.Add(older)

	got, ok := store.Get(name)
	if !ok {
		t.Fatal("cell disappeared after reconcile")
	}
	if got != newer {
		t.Errorf("expected the higher timestamp to win, got %v", got)
	}
	if store.Count() != 1 {
		t.Errorf("reconcile must not duplicate names, count = %d", store.Count())
	}

	// idempotence: re-adding the loser changes nothing
	store.Add(older)
	if got, _ := store.Get(name); got != newer {
		t.Errorf("re-adding a losing cell must not change the winner, got %v", got)
	}
}

// testBatchVisibility checks property 1 of the store contract: a reader
// never observes a partially applied batch. A writer applies batches of K
// cells while readers continuously snapshot the store and count the cells
// of each batch they can see.
func testBatchVisibility(t *testing.T, store *colstore.Store) {
	const (
		batches   = 50
		batchSize = 20
		readers   = 4
	)

	var (
		stop     atomic.Bool
		torn     atomic.Int64
		readerWg sync.WaitGroup
	)

	readerWg.Add(readers)
	for r := 0; r < readers; r++ {
		go func() {
			defer readerWg.Done()
			for !stop.Load() {
				snap := store.Snapshot()
				perBatch := make(map[string]int)
				for _, c := range snap.Cells {
					// name layout: batch-<id>-<seq>
					comps := c.Name.Components()
					prefix := string(comps[0][:len(comps[0])-7])
					perBatch[prefix]++
				}
				for prefix, n := range perBatch {
					if n != batchSize {
						t.Errorf("observed torn batch %s: %d of %d cells", prefix, n, batchSize)
						torn.Add(1)
						return
					}
				}
			}
		}()
	}

	for b := 0; b < batches; b++ {
		store.AddAll(makeBatch(fmt.Sprintf("batch-%03d", b), batchSize, int64(b+1)), nil)
	}
	stop.Store(true)
	readerWg.Wait()

	if torn.Load() != 0 {
		t.Fatalf("%d torn snapshots observed", torn.Load())
	}
	if store.Count() != batches*batchSize {
		t.Errorf("expected %d cells, got %d", batches*batchSize, store.Count())
	}
}

func testDeletionMerge(t *testing.T, store *colstore.Store) {
	if !store.IsLive() {
		t.Fatal("fresh store must be live")
	}

	store.DeleteAt(deletion.Time{MarkedForDeleteAt: 100, LocalDeletionTime: 1000})
	store.DeleteAt(deletion.Time{MarkedForDeleteAt: 50, LocalDeletionTime: 2000})

	got := store.DeletionInfo().PartitionTime()
	if got.MarkedForDeleteAt != 100 {
		t.Errorf("partition deletion time must be the max, got %d", got.MarkedForDeleteAt)
	}
	if store.IsLive() {
		t.Error("store with a row deletion must not be live")
	}

	// a live info is a no-op
	before := store.DeletionInfo()
	store.DeleteInfo(deletion.Live())
	after := store.DeletionInfo()
	if after.PartitionTime() != before.PartitionTime() || after.RangeCount() != before.RangeCount() {
		t.Error("merging a live deletion info must not change anything")
	}
}

func testPurgeTombstones(t *testing.T, store *colstore.Store) {
	oldRT := deletion.RangeTombstone{
		Start: cell.SimpleName("a"),
		End:   cell.SimpleName("f"),
		Time:  deletion.Time{MarkedForDeleteAt: 10, LocalDeletionTime: 100},
	}
	newRT := deletion.RangeTombstone{
		Start: cell.SimpleName("m"),
		End:   cell.SimpleName("p"),
		Time:  deletion.Time{MarkedForDeleteAt: 20, LocalDeletionTime: 900},
	}
	store.DeleteRange(oldRT)
	store.DeleteRange(newRT)
	store.DeleteAt(deletion.Time{MarkedForDeleteAt: 5, LocalDeletionTime: 50})

	if !store.PurgeTombstones(500) {
		t.Fatal("expected the old tombstone to be purgeable")
	}

	info := store.DeletionInfo()
	if info.RangeCount() != 1 {
		t.Fatalf("expected 1 surviving range tombstone, got %d", info.RangeCount())
	}
	for _, rt := range info.Ranges() {
		if rt.Time.LocalDeletionTime < 500 {
			t.Errorf("purgeable tombstone survived: %v", rt)
		}
	}
	if info.PartitionTime().MarkedForDeleteAt != 5 {
		t.Error("purge must never touch the row-level deletion time")
	}

	// second purge with the same threshold is a no-op fast path
	if store.PurgeTombstones(500) {
		t.Error("nothing left to purge, expected false")
	}
}

func testSizeDelta(t *testing.T, store *colstore.Store) {
	const n = 10

	first := makeBatch("sd", n, 1)
	var want int64
	for _, c := range first.Cells() {
		want += c.SerializedSize()
	}
	if got := store.AddAll(first, nil); got != want {
		t.Errorf("fresh batch: expected size delta %d, got %d", want, got)
	}

	// overwrite half the cells with bigger payloads and higher timestamps
	second := colstore.NewUpdate()
	want = 0
	for i := 0; i < n/2; i++ {
		old, _ := store.Get(cell.SimpleName(fmt.Sprintf("sd-%06d", i)))
		bigger := cell.New(old.Name, append([]byte("bigger-"), old.Value...), 2)
		second.Add(bigger)
		want += bigger.SerializedSize() - old.SerializedSize()
	}
	if got := store.AddAll(second, nil); got != want {
		t.Errorf("reconciling batch: expected size delta %d, got %d", want, got)
	}

	// losing cells must contribute a zero delta
	third := colstore.NewUpdate()
	third.Add(makeCell("sd", n-1, 0)) // older timestamp, same size payload
	if got := store.AddAll(third, nil); got != 0 {
		t.Errorf("losing cell: expected size delta 0, got %d", got)
	}
}

// testConcurrentDisjointMerges checks property 6: T goroutines each merge a
// disjoint batch of K cells; afterwards every cell must be present with its
// original value - no lost updates.
func testConcurrentDisjointMerges(t *testing.T, store *colstore.Store) {
	const (
		threads = 8
		k       = 100
	)

	var wg sync.WaitGroup
	wg.Add(threads)
	for th := 0; th < threads; th++ {
		go func(id int) {
			defer wg.Done()
			store.AddAll(makeBatch(fmt.Sprintf("t%02d", id), k, int64(id+1)), nil)
		}(th)
	}
	wg.Wait()

	if store.Count() != threads*k {
		t.Fatalf("expected %d cells after concurrent merges, got %d", threads*k, store.Count())
	}
	for th := 0; th < threads; th++ {
		for i := 0; i < k; i++ {
			want := makeCell(fmt.Sprintf("t%02d", th), i, int64(th+1))
			got, ok := store.Get(want.Name)
			if !ok {
				t.Fatalf("lost update: cell %s missing", want.Name)
			}
			if string(got.Value) != string(want.Value) {
				t.Errorf("cell %s has value %q, want %q", want.Name, got.Value, want.Value)
			}
		}
	}
}

// testConcurrentSameName hammers a single name from many goroutines; the
// deterministic reconcile contract requires the highest timestamp to survive
// regardless of interleaving.
func testConcurrentSameName(t *testing.T, store *colstore.Store) {
	const writers = 8
	const perWriter = 50

	name := cell.SimpleName("contended")
	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				ts := int64(id*perWriter + i + 1)
				store.Add(cell.New(name, []byte(fmt.Sprintf("v%d", ts)), ts))
			}
		}(w)
	}
	wg.Wait()

	got, ok := store.Get(name)
	if !ok {
		t.Fatal("contended cell missing")
	}
	wantTS := int64(writers * perWriter)
	if got.Timestamp != wantTS {
		t.Errorf("expected winning timestamp %d, got %d", wantTS, got.Timestamp)
	}
	if store.Count() != 1 {
		t.Errorf("expected a single cell, got %d", store.Count())
	}
}

func testReplace(t *testing.T, store *colstore.Store) {
	name := cell.SimpleName("rep")
	original := cell.New(name, []byte("v1"), 1)
	store.Add(original)

	// happy path
	next := cell.New(name, []byte("v2"), 2)
	ok, err := store.Replace(original, next)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected replace of the resident cell to succeed")
	}
	if got, _ := store.Get(name); got != next {
		t.Errorf("replace did not install the new cell, got %v", got)
	}

	// stale old cell: benign failure, store unchanged
	stale := cell.New(name, []byte("v3"), 3)
	ok, err = store.Replace(original, stale)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("replace with a stale expected cell must report false")
	}
	if got, _ := store.Get(name); got != next {
		t.Errorf("failed replace must leave the map unchanged, got %v", got)
	}

	// name mismatch is an input error, no state touched
	other := cell.New(cell.SimpleName("other"), []byte("x"), 1)
	if _, err := store.Replace(next, other); err == nil {
		t.Error("expected ErrNameMismatch for cells with different names")
	}
}

func testClear(t *testing.T, store *colstore.Store) {
	store.AddAll(makeBatch("clr", 10, 1), nil)
	store.DeleteAt(deletion.Time{MarkedForDeleteAt: 7, LocalDeletionTime: 70})

	store.Clear()
	store.Clear() // idempotent

	if store.Count() != 0 {
		t.Errorf("expected empty store after clear, got %d cells", store.Count())
	}
	if !store.IsLive() {
		t.Error("expected live deletion info after clear")
	}
}

func testClone(t *testing.T, store *colstore.Store) {
	const n = 10
	for i := 0; i < n; i++ {
		store.Add(makeCell("cl", i, 1))
	}
	store.DeleteAt(deletion.Time{MarkedForDeleteAt: 5, LocalDeletionTime: 50})

	clone := store.Clone()
	if clone.Count() != n {
		t.Fatalf("clone has %d cells, want %d", clone.Count(), n)
	}
	if clone.DeletionInfo().PartitionTime().MarkedForDeleteAt != 5 {
		t.Error("clone must carry the deletion info of the source")
	}

	// mutations after the clone do not leak in either direction
	store.Add(makeCell("cl", n, 1))
	if clone.Count() != n {
		t.Error("insert into the source leaked into the clone")
	}
	clone.Clear()
	if store.Count() != n+1 || clone.Count() != 0 {
		t.Error("clearing the clone touched the source")
	}
}

func testIteration(t *testing.T, store *colstore.Store) {
	const n = 25
	// insert in reverse to make sure iteration order comes from the map
	for i := n - 1; i >= 0; i-- {
		store.Add(makeCell("it", i, 1))
	}

	cells := store.Cells()
	if len(cells) != n {
		t.Fatalf("expected %d cells, got %d", n, len(cells))
	}
	for i := 1; i < len(cells); i++ {
		if !cells[i-1].Name.Less(cells[i].Name) {
			t.Fatalf("ascending order violated at %d: %s !< %s", i, cells[i-1].Name, cells[i].Name)
		}
	}

	reversed := store.CellsReversed()
	for i := range reversed {
		if reversed[i] != cells[len(cells)-1-i] {
			t.Fatal("descending iteration is not the reverse of ascending")
		}
	}

	// half-open range [it-000005, it-000010)
	var got []string
	store.AscendRange(cell.SimpleName("it-000005"), cell.SimpleName("it-000010"), func(c *cell.Cell) bool {
		got = append(got, c.Name.String())
		return true
	})
	if len(got) != 5 {
		t.Fatalf("expected 5 cells in range, got %d (%v)", len(got), got)
	}
	if got[0] != "it-000005" || got[4] != "it-000009" {
		t.Errorf("range bounds wrong: %v", got)
	}

	// the descending range yields the same cells in reverse
	var gotDesc []string
	store.DescendRange(cell.SimpleName("it-000005"), cell.SimpleName("it-000010"), func(c *cell.Cell) bool {
		gotDesc = append(gotDesc, c.Name.String())
		return true
	})
	if len(gotDesc) != len(got) {
		t.Fatalf("expected %d cells in descending range, got %d (%v)", len(got), len(gotDesc), gotDesc)
	}
	for i := range got {
		if gotDesc[i] != got[len(got)-1-i] {
			t.Fatalf("descending range is not the reverse of ascending: %v vs %v", gotDesc, got)
		}
	}
}
