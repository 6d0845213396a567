package keva

import (
	"testing"

	"github.com/kevanet/kevachain/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemory())
}

// TestMergedIterator_MergesStoreAndCache verifies P4: the merged
// sequence equals iterating the store as if cache had already been
// applied to it.
func TestMergedIterator_MergesStoreAndCache(t *testing.T) {
	store := newTestStore(t)
	ns := testNamespace(0x10)

	if err := store.Set(ns, Key("a"), Entry{Value: Value("store-a")}); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ns, Key("c"), Entry{Value: Value("store-c")}); err != nil {
		t.Fatal(err)
	}

	cache := NewCache()
	cache.Set(ns, Key("b"), Entry{Value: Value("cache-b")})

	base, err := store.IterateEntries(ns)
	if err != nil {
		t.Fatal(err)
	}
	mi := NewMergedIterator(cache, base, ns, ModeEntries)
	defer mi.Close()

	var gotKeys []string
	var gotVals []string
	for mi.Valid() {
		gotKeys = append(gotKeys, string(mi.Key()))
		gotVals = append(gotVals, string(mi.Entry().Value))
		mi.Next()
	}
	if err := mi.Err(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}

	wantKeys := []string{"a", "b", "c"}
	wantVals := []string{"store-a", "cache-b", "store-c"}
	if len(gotKeys) != len(wantKeys) {
		t.Fatalf("got keys %v, want %v", gotKeys, wantKeys)
	}
	for i := range wantKeys {
		if gotKeys[i] != wantKeys[i] || gotVals[i] != wantVals[i] {
			t.Fatalf("entry %d = (%s,%s), want (%s,%s)", i, gotKeys[i], gotVals[i], wantKeys[i], wantVals[i])
		}
	}
}

func TestMergedIterator_CacheOverridesStoreOnTie(t *testing.T) {
	store := newTestStore(t)
	ns := testNamespace(0x11)

	if err := store.Set(ns, Key("k"), Entry{Value: Value("store-val")}); err != nil {
		t.Fatal(err)
	}
	cache := NewCache()
	cache.Set(ns, Key("k"), Entry{Value: Value("cache-val")})

	base, err := store.IterateEntries(ns)
	if err != nil {
		t.Fatal(err)
	}
	mi := NewMergedIterator(cache, base, ns, ModeEntries)
	defer mi.Close()

	if !mi.Valid() {
		t.Fatal("expected one entry")
	}
	if string(mi.Entry().Value) != "cache-val" {
		t.Fatalf("Entry().Value = %q, want cache-val (cache wins ties)", mi.Entry().Value)
	}
	mi.Next()
	if mi.Valid() {
		t.Fatal("expected exactly one merged entry for a tied key")
	}
}

func TestMergedIterator_CacheTombstoneHidesStoreEntry(t *testing.T) {
	store := newTestStore(t)
	ns := testNamespace(0x12)

	if err := store.Set(ns, Key("k"), Entry{Value: Value("store-val")}); err != nil {
		t.Fatal(err)
	}
	cache := NewCache()
	cache.Remove(ns, Key("k"))

	base, err := store.IterateEntries(ns)
	if err != nil {
		t.Fatal(err)
	}
	mi := NewMergedIterator(cache, base, ns, ModeEntries)
	defer mi.Close()

	if mi.Valid() {
		t.Fatalf("tombstoned key should not appear, got %q", mi.Key())
	}
}

func TestMergedIterator_EmptyBothSides(t *testing.T) {
	store := newTestStore(t)
	ns := testNamespace(0x13)
	cache := NewCache()

	base, err := store.IterateEntries(ns)
	if err != nil {
		t.Fatal(err)
	}
	mi := NewMergedIterator(cache, base, ns, ModeEntries)
	defer mi.Close()

	if mi.Valid() {
		t.Fatal("expected no entries")
	}
}

func TestMergedIterator_AssociationMode(t *testing.T) {
	store := newTestStore(t)
	from := testNamespace(0x14)
	to1 := testNamespace(0x15)
	to2 := testNamespace(0x16)

	if err := store.SetAssociation(from, to1, Entry{Value: Value("e1")}); err != nil {
		t.Fatal(err)
	}
	cache := NewCache()
	cache.Associate(from, to2, Entry{Value: Value("e2")})

	base, err := store.IterateAssociations(from)
	if err != nil {
		t.Fatal(err)
	}
	mi := NewMergedIterator(cache, base, from, ModeAssociations)
	defer mi.Close()

	var gotTos []string
	for mi.Valid() {
		gotTos = append(gotTos, string(mi.Key()))
		mi.Next()
	}
	if len(gotTos) != 2 {
		t.Fatalf("got %d associations, want 2", len(gotTos))
	}
}
