package event

import "testing"

type widget struct{ name string }

func TestList_AddPreservesOrder(t *testing.T) {
	var l List[string]
	l.Add(nil, "a")
	l.Add(nil, "b")
	l.Add(nil, "c")

	got := l.Snapshot()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestList_AddDeduplicatesByKey(t *testing.T) {
	var l List[string]
	w := &widget{name: "status"}

	h1, added := l.Add(w, "first")
	if !added {
		t.Fatal("expected first add to succeed")
	}
	h2, added := l.Add(w, "second")
	if added {
		t.Fatal("expected duplicate key to be rejected")
	}
	if h1 != h2 {
		t.Errorf("expected existing handle %d, got %d", h1, h2)
	}
	if l.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", l.Len())
	}

	// a distinct pointer with equal contents is a different identity
	if _, added := l.Add(&widget{name: "status"}, "third"); !added {
		t.Error("expected distinct pointer to be added")
	}
}

func TestList_Remove(t *testing.T) {
	var l List[int]
	h1, _ := l.Add(nil, 1)
	h2, _ := l.Add(nil, 2)

	removed, empty := l.Remove(h1)
	if !removed || empty {
		t.Fatalf("Remove(h1) = (%v, %v), want (true, false)", removed, empty)
	}
	if got := l.Snapshot(); len(got) != 1 || got[0] != 2 {
		t.Errorf("Snapshot() = %v, want [2]", got)
	}

	removed, _ = l.Remove(h1)
	if removed {
		t.Error("expected second removal of h1 to be a no-op")
	}

	removed, empty = l.Remove(h2)
	if !removed || !empty {
		t.Fatalf("Remove(h2) = (%v, %v), want (true, true)", removed, empty)
	}
}

func TestList_RemoveThenReAddWithSameKey(t *testing.T) {
	var l List[string]
	w := &widget{}
	h1, _ := l.Add(w, "x")
	l.Remove(h1)

	h2, added := l.Add(w, "x")
	if !added {
		t.Fatal("expected re-add after removal to succeed")
	}
	if h2 == h1 {
		t.Error("expected a fresh handle after re-adding")
	}
}

func TestList_SnapshotIsCopy(t *testing.T) {
	var l List[string]
	l.Add(nil, "a")
	snap := l.Snapshot()
	l.Add(nil, "b")
	if len(snap) != 1 {
		t.Errorf("snapshot changed after Add: %v", snap)
	}
}

func TestIdentityKey(t *testing.T) {
	w := &widget{}
	ch := make(chan int)
	tests := []struct {
		name  string
		in    any
		isNil bool
	}{
		{"nil", nil, true},
		{"pointer", w, false},
		{"channel", ch, false},
		{"func", func() {}, true},
		{"struct value", widget{}, true},
		{"string", "status", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IdentityKey(tt.in)
			if (got == nil) != tt.isNil {
				t.Errorf("IdentityKey(%T) = %v, want nil=%v", tt.in, got, tt.isNil)
			}
		})
	}
}
