package sortedmap

import (
	"github.com/fkoehler/cellar/lib/cell"
	"github.com/tidwall/btree"
)

// --------------------------------------------------------------------------
// Map Type
// --------------------------------------------------------------------------

// Map is an ordered map from cell names to cells with an O(1) Clone. It is
// backed by a structurally shared B-tree: Clone copies nothing up front, and
// the first write to either copy duplicates only the nodes on the touched
// path. A Map that has been published inside a store snapshot is never
// written again, so arbitrarily many threads may read and iterate it while
// writers mutate their own private clones.
//
// Writes to one Map value are expected to come from a single goroutine (the
// store clones per mutation attempt); the Map itself performs no locking
// beyond what the underlying tree needs for safe cloning.
type Map struct {
	tree *btree.BTreeG[*cell.Cell]
}

func lessCell(a, b *cell.Cell) bool {
	return a.Name.Less(b.Name)
}

// New creates an empty map.
func New() *Map {
	return &Map{tree: btree.NewBTreeG[*cell.Cell](lessCell)}
}

// Clone returns a copy of the map in O(1) via structural sharing. Mutations
// of the clone are invisible to the original and vice versa.
func (m *Map) Clone() *Map {
	return &Map{tree: m.tree.Copy()}
}

// Size returns the number of cells in the map.
func (m *Map) Size() int {
	return m.tree.Len()
}

// --------------------------------------------------------------------------
// Point Operations
// --------------------------------------------------------------------------

// Get returns the cell stored under the given name.
func (m *Map) Get(name cell.Name) (*cell.Cell, bool) {
	return m.tree.Get(&cell.Cell{Name: name})
}

// Put unconditionally stores the cell, returning the previous cell under the
// same name, if any.
func (m *Map) Put(c *cell.Cell) (*cell.Cell, bool) {
	return m.tree.Set(c)
}

// PutIfAbsent stores the cell only if no cell with the same name exists. It
// returns the resident cell and true if one was already present (in which
// case the map is unchanged), or nil and false if the cell was inserted.
func (m *Map) PutIfAbsent(c *cell.Cell) (*cell.Cell, bool) {
	if existing, ok := m.tree.Get(c); ok {
		return existing, true
	}
	m.tree.Set(c)
	return nil, false
}

// PutIfAbsentOrReconcile inserts the cell, resolving a collision with a
// resident cell of the same name through reconciliation. It returns the
// installed winner.
func (m *Map) PutIfAbsentOrReconcile(c *cell.Cell) *cell.Cell {
	if existing, ok := m.tree.Get(c); ok {
		winner := cell.Reconcile(existing, c)
		m.tree.Set(winner)
		return winner
	}
	m.tree.Set(c)
	return c
}

// Replace swaps the cell under name for newCell only if the resident cell is
// exactly expectedOld (pointer identity, matching the store's reconcile
// protocol where winners are always one of the two compared cells). Returns
// whether the swap happened.
func (m *Map) Replace(name cell.Name, expectedOld, newCell *cell.Cell) bool {
	resident, ok := m.tree.Get(&cell.Cell{Name: name})
	if !ok || resident != expectedOld {
		return false
	}
	m.tree.Set(newCell)
	return true
}

// Delete removes the cell under the given name, returning it if present.
func (m *Map) Delete(name cell.Name) (*cell.Cell, bool) {
	return m.tree.Delete(&cell.Cell{Name: name})
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

// Ascend iterates all cells in ascending name order until fn returns false.
func (m *Map) Ascend(fn func(*cell.Cell) bool) {
	m.tree.Scan(fn)
}

// Descend iterates all cells in descending name order until fn returns false.
func (m *Map) Descend(fn func(*cell.Cell) bool) {
	m.tree.Reverse(fn)
}

// AscendRange iterates cells with start <= name < end in ascending order
// until fn returns false.
func (m *Map) AscendRange(start, end cell.Name, fn func(*cell.Cell) bool) {
	m.tree.Ascend(&cell.Cell{Name: start}, func(c *cell.Cell) bool {
		if c.Name.Compare(end) >= 0 {
			return false
		}
		return fn(c)
	})
}

// DescendRange iterates cells with start <= name < end in descending order
// until fn returns false. The bounds follow the same half-open convention as
// AscendRange.
func (m *Map) DescendRange(start, end cell.Name, fn func(*cell.Cell) bool) {
	m.tree.Descend(&cell.Cell{Name: end}, func(c *cell.Cell) bool {
		if c.Name.Compare(end) >= 0 {
			// the pivot itself is excluded
			return true
		}
		if c.Name.Compare(start) < 0 {
			return false
		}
		return fn(c)
	})
}

// Names returns all cell names in ascending order.
func (m *Map) Names() []cell.Name {
	names := make([]cell.Name, 0, m.tree.Len())
	m.tree.Scan(func(c *cell.Cell) bool {
		names = append(names, c.Name)
		return true
	})
	return names
}

// Cells returns all cells in ascending name order.
func (m *Map) Cells() []*cell.Cell {
	cells := make([]*cell.Cell, 0, m.tree.Len())
	m.tree.Scan(func(c *cell.Cell) bool {
		cells = append(cells, c)
		return true
	})
	return cells
}
