package colstore

import "github.com/fkoehler/cellar/lib/cell"

// --------------------------------------------------------------------------
// Index Maintenance Hooks
// --------------------------------------------------------------------------

// IndexUpdater receives change notifications so an external secondary index
// can follow the store's contents. A no-op implementation is always safe to
// substitute.
//
// Unless the updater also implements AttemptUpdater, the store invokes
// Insert, Update and Remove from inside its optimistic retry loop, i.e.
// before the attempt has won the atomic swap. A losing attempt's calls are
// never rolled back, so a plain updater is non-transactional with respect
// to the store: it may see notifications for state that was discarded.
// Wrap any updater in NewBufferedIndexUpdater to get exactly-once delivery
// for the winning attempt only.
type IndexUpdater interface {
	// Insert is invoked when a cell is added under a previously absent name.
	Insert(c *cell.Cell)
	// Update is invoked when a resident cell is reconciled with an incoming
	// one; reconciled is the installed winner.
	Update(old, reconciled *cell.Cell)
	// Remove is invoked for cells shadowed by an incoming range tombstone.
	Remove(c *cell.Cell)
	// FinishRow is invoked exactly once per batch, after the winning swap.
	FinishRow()
}

// AttemptUpdater is an optional extension for updaters that stage their
// notifications per mutation attempt. The store calls BeginAttempt at the
// top of every retry and Commit exactly once after the winning swap, before
// FinishRow.
type AttemptUpdater interface {
	IndexUpdater
	BeginAttempt()
	Commit()
}

// NopIndexUpdater ignores all notifications.
type NopIndexUpdater struct{}

func (NopIndexUpdater) Insert(*cell.Cell)             {}
func (NopIndexUpdater) Update(*cell.Cell, *cell.Cell) {}
func (NopIndexUpdater) Remove(*cell.Cell)             {}
func (NopIndexUpdater) FinishRow()                    {}

// --------------------------------------------------------------------------
// Buffered Updater
// --------------------------------------------------------------------------

type hookKind int

const (
	hookInsert hookKind = iota
	hookUpdate
	hookRemove
)

type hookCall struct {
	kind hookKind
	a, b *cell.Cell
}

// BufferedIndexUpdater wraps another updater and defers all Insert, Update
// and Remove notifications until the mutation attempt that produced them has
// won the atomic swap. Notifications from losing attempts are discarded, so
// the wrapped updater observes exactly the changes readers can observe.
//
// A BufferedIndexUpdater is meant for a single store call at a time; it is
// not safe for concurrent use (the staging log is unsynchronized, matching
// the store's one-updater-per-call contract).
type BufferedIndexUpdater struct {
	inner  IndexUpdater
	staged []hookCall
}

// NewBufferedIndexUpdater wraps inner with attempt buffering.
func NewBufferedIndexUpdater(inner IndexUpdater) *BufferedIndexUpdater {
	return &BufferedIndexUpdater{inner: inner}
}

func (b *BufferedIndexUpdater) Insert(c *cell.Cell) {
	b.staged = append(b.staged, hookCall{kind: hookInsert, a: c})
}

func (b *BufferedIndexUpdater) Update(old, reconciled *cell.Cell) {
	b.staged = append(b.staged, hookCall{kind: hookUpdate, a: old, b: reconciled})
}

func (b *BufferedIndexUpdater) Remove(c *cell.Cell) {
	b.staged = append(b.staged, hookCall{kind: hookRemove, a: c})
}

// FinishRow forwards directly: the store only calls it after the winning
// swap, by which point Commit has already replayed the staged calls.
func (b *BufferedIndexUpdater) FinishRow() {
	b.inner.FinishRow()
}

// BeginAttempt discards notifications staged by a losing attempt.
func (b *BufferedIndexUpdater) BeginAttempt() {
	b.staged = b.staged[:0]
}

// Commit replays the staged notifications of the winning attempt into the
// wrapped updater, exactly once each.
func (b *BufferedIndexUpdater) Commit() {
	for _, h := range b.staged {
		switch h.kind {
		case hookInsert:
			b.inner.Insert(h.a)
		case hookUpdate:
			b.inner.Update(h.a, h.b)
		case hookRemove:
			b.inner.Remove(h.a)
		}
	}
	b.staged = b.staged[:0]
}
