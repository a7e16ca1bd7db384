package cell

import (
	"bytes"
	"testing"
)

// TestNameOrdering checks that comparing encoded names matches component-wise
// composite order.
func TestNameOrdering(t *testing.T) {
	cases := []struct {
		a, b Name
		want int
	}{
		{SimpleName("a"), SimpleName("b"), -1},
		{SimpleName("b"), SimpleName("a"), 1},
		{SimpleName("a"), SimpleName("a"), 0},
		{NewName([]byte("a")), NewName([]byte("a"), []byte("b")), -1},
		{NewName([]byte("a"), []byte("b")), NewName([]byte("ab")), -1}, // shorter first component orders first
		{NewName([]byte("a"), []byte("z")), NewName([]byte("b")), -1},
	}

	for _, tc := range cases {
		got := tc.a.Compare(tc.b)
		if got != tc.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
		if (got < 0) != tc.a.Less(tc.b) {
			t.Errorf("Less(%q, %q) disagrees with Compare", tc.a, tc.b)
		}
	}
}

func TestNameComponents(t *testing.T) {
	comps := [][]byte{[]byte("row"), []byte("col"), []byte("q")}
	n := NewName(comps...)

	decoded := n.Components()
	if len(decoded) != len(comps) {
		t.Fatalf("expected %d components, got %d", len(comps), len(decoded))
	}
	for i := range comps {
		if !bytes.Equal(decoded[i], comps[i]) {
			t.Errorf("component %d: got %q, want %q", i, decoded[i], comps[i])
		}
	}

	if n.String() != "row:col:q" {
		t.Errorf("String() = %q", n.String())
	}
}

// TestReconcileDeterminism checks commutativity and idempotence of the
// reconciliation contract.
func TestReconcileDeterminism(t *testing.T) {
	name := SimpleName("x")
	pairs := []struct{ a, b *Cell }{
		{New(name, []byte("v1"), 1), New(name, []byte("v2"), 2)},
		{New(name, []byte("v1"), 5), New(name, []byte("v2"), 5)},    // ts tie
		{New(name, []byte("v"), 5), NewTombstone(name, 5, 100)},     // tombstone vs live tie
		{NewTombstone(name, 3, 10), NewTombstone(name, 3, 20)}, // tombstone pair
	}

	for i, p := range pairs {
		ab := Reconcile(p.a, p.b)
		ba := Reconcile(p.b, p.a)
		if ab != ba {
			t.Errorf("case %d: reconcile is not commutative: %v vs %v", i, ab, ba)
		}
		if Reconcile(ab, p.a) != ab || Reconcile(ab, p.b) != ab {
			t.Errorf("case %d: reconcile is not idempotent", i)
		}
		if ab != p.a && ab != p.b {
			t.Errorf("case %d: reconcile must return one of its inputs", i)
		}
	}
}

func TestReconcileRules(t *testing.T) {
	name := SimpleName("x")

	newer := New(name, []byte("new"), 10)
	older := New(name, []byte("old"), 5)
	if Reconcile(older, newer) != newer {
		t.Error("higher timestamp must win")
	}

	tomb := NewTombstone(name, 10, 100)
	live := New(name, []byte("v"), 10)
	if Reconcile(tomb, live) != tomb {
		t.Error("tombstone must beat a live cell on a timestamp tie")
	}
	if Reconcile(live, NewTombstone(name, 9, 100)) != live {
		t.Error("a newer live cell must beat an older tombstone")
	}
}

func TestSerializedSize(t *testing.T) {
	c := New(SimpleName("name"), []byte("value"), 1)
	want := int64(len(c.Name)) + int64(len(c.Value)) + cellOverhead
	if c.SerializedSize() != want {
		t.Errorf("SerializedSize() = %d, want %d", c.SerializedSize(), want)
	}

	tomb := NewTombstone(SimpleName("name"), 1, 1)
	if tomb.SerializedSize() >= c.SerializedSize() {
		t.Error("a tombstone must not account more than the live cell it shadows")
	}
	if tomb.IsLive() {
		t.Error("tombstone must not be live")
	}
}
