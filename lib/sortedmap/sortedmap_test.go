package sortedmap

import (
	"fmt"
	"testing"

	"github.com/fkoehler/cellar/lib/cell"
)

func mk(name string, ts int64) *cell.Cell {
	return cell.New(cell.SimpleName(name), []byte("v-"+name), ts)
}

func TestPutGet(t *testing.T) {
	m := New()
	c := mk("a", 1)

	if _, ok := m.Get(c.Name); ok {
		t.Error("empty map must not contain anything")
	}

	prev, had := m.Put(c)
	if had || prev != nil {
		t.Error("first put must not report a previous cell")
	}
	got, ok := m.Get(c.Name)
	if !ok || got != c {
		t.Errorf("Get after Put returned %v, %v", got, ok)
	}
	if m.Size() != 1 {
		t.Errorf("Size() = %d, want 1", m.Size())
	}
}

func TestPutIfAbsent(t *testing.T) {
	m := New()
	first := mk("a", 1)
	second := mk("a", 2)

	if existing, present := m.PutIfAbsent(first); present || existing != nil {
		t.Error("PutIfAbsent on a fresh name must insert")
	}
	existing, present := m.PutIfAbsent(second)
	if !present || existing != first {
		t.Error("PutIfAbsent on an occupied name must return the resident cell and leave it in place")
	}
	if got, _ := m.Get(first.Name); got != first {
		t.Error("PutIfAbsent must not overwrite")
	}
}

func TestReplaceIdentity(t *testing.T) {
	m := New()
	old := mk("a", 1)
	m.Put(old)

	// same content, different pointer: must not satisfy the identity check
	impostor := mk("a", 1)
	next := mk("a", 2)
	if m.Replace(old.Name, impostor, next) {
		t.Error("Replace must compare the expected cell by identity")
	}

	if !m.Replace(old.Name, old, next) {
		t.Error("Replace with the resident cell must succeed")
	}
	if got, _ := m.Get(old.Name); got != next {
		t.Error("Replace did not install the new cell")
	}

	if m.Replace(cell.SimpleName("missing"), old, next) {
		t.Error("Replace on an absent name must fail")
	}
}

// TestCloneIsolation checks the copy-on-write contract: mutations of a clone
// are invisible to the original and vice versa, and the clone is O(1) (no
// up-front copying to diverge).
func TestCloneIsolation(t *testing.T) {
	orig := New()
	for i := 0; i < 100; i++ {
		orig.Put(mk(fmt.Sprintf("k%03d", i), 1))
	}

	clone := orig.Clone()
	clone.Put(mk("zzz", 1))
	clone.Delete(cell.SimpleName("k000"))

	if orig.Size() != 100 {
		t.Errorf("original changed size after clone mutation: %d", orig.Size())
	}
	if _, ok := orig.Get(cell.SimpleName("zzz")); ok {
		t.Error("clone insert leaked into the original")
	}
	if _, ok := orig.Get(cell.SimpleName("k000")); !ok {
		t.Error("clone delete leaked into the original")
	}

	if clone.Size() != 100 {
		t.Errorf("clone has wrong size: %d", clone.Size())
	}

	orig.Put(mk("original-only", 1))
	if _, ok := clone.Get(cell.SimpleName("original-only")); ok {
		t.Error("original insert leaked into the clone")
	}
}

func TestIterationOrder(t *testing.T) {
	m := New()
	names := []string{"delta", "alpha", "echo", "charlie", "bravo"}
	for i, n := range names {
		m.Put(mk(n, int64(i)))
	}

	var asc []string
	m.Ascend(func(c *cell.Cell) bool {
		asc = append(asc, c.Name.String())
		return true
	})
	want := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	for i := range want {
		if asc[i] != want[i] {
			t.Fatalf("ascending order = %v, want %v", asc, want)
		}
	}

	var desc []string
	m.Descend(func(c *cell.Cell) bool {
		desc = append(desc, c.Name.String())
		return true
	})
	for i := range want {
		if desc[i] != want[len(want)-1-i] {
			t.Fatalf("descending order = %v", desc)
		}
	}

	// early termination
	count := 0
	m.Ascend(func(*cell.Cell) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Errorf("iteration did not stop on false, visited %d", count)
	}
}

func TestAscendRange(t *testing.T) {
	m := New()
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		m.Put(mk(n, 1))
	}

	var got []string
	m.AscendRange(cell.SimpleName("b"), cell.SimpleName("d"), func(c *cell.Cell) bool {
		got = append(got, c.Name.String())
		return true
	})
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("half-open range [b, d) = %v", got)
	}
}

func TestDescendRange(t *testing.T) {
	m := New()
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		m.Put(mk(n, 1))
	}

	var got []string
	m.DescendRange(cell.SimpleName("b"), cell.SimpleName("d"), func(c *cell.Cell) bool {
		got = append(got, c.Name.String())
		return true
	})
	if len(got) != 2 || got[0] != "c" || got[1] != "b" {
		t.Errorf("descending half-open range [b, d) = %v", got)
	}

	// start past every name yields nothing
	got = got[:0]
	m.DescendRange(cell.SimpleName("x"), cell.SimpleName("z"), func(c *cell.Cell) bool {
		got = append(got, c.Name.String())
		return true
	})
	if len(got) != 0 {
		t.Errorf("empty range yielded %v", got)
	}

	// early termination
	count := 0
	m.DescendRange(cell.SimpleName("a"), cell.SimpleName("e"), func(*cell.Cell) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("iteration did not stop on false, visited %d", count)
	}
}

func TestNamesAndCells(t *testing.T) {
	m := New()
	m.Put(mk("b", 1))
	m.Put(mk("a", 1))

	names := m.Names()
	if len(names) != 2 || names[0].String() != "a" || names[1].String() != "b" {
		t.Errorf("Names() = %v", names)
	}
	cells := m.Cells()
	if len(cells) != 2 || !cells[0].Name.Equal(names[0]) {
		t.Errorf("Cells() out of step with Names()")
	}
}

func TestPutIfAbsentOrReconcile(t *testing.T) {
	m := New()
	older := mk("a", 1)
	newer := mk("a", 5)

	if got := m.PutIfAbsentOrReconcile(older); got != older {
		t.Error("fresh insert must install the cell itself")
	}
	if got := m.PutIfAbsentOrReconcile(newer); got != newer {
		t.Error("reconcile must install the winner")
	}
	if got := m.PutIfAbsentOrReconcile(older); got != newer {
		t.Error("a losing cell must leave the winner in place")
	}
	if m.Size() != 1 {
		t.Errorf("Size() = %d, want 1", m.Size())
	}
}
