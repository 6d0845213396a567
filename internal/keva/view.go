package keva

import "fmt"

// View is the layered read/write interface the core operates against
// (§4.7, §9 DESIGN NOTES): CacheView -> [CacheView ...] -> StoreView.
// Reads walk the stack top-down, stopping at the first hit or
// tombstone; writes mutate only the topmost CacheView.
type View interface {
	Get(ns NamespaceId, key Key) (Entry, bool, error)
	Set(ns NamespaceId, key Key, e Entry)
	Delete(ns NamespaceId, key Key)
	GetAssociation(from, to NamespaceId) (Entry, bool, error)
	Associate(from, to NamespaceId, e Entry)
	Disassociate(from, to NamespaceId)
	IterateEntries(ns NamespaceId) (*MergedIterator, error)
	IterateAssociations(ns NamespaceId) (*MergedIterator, error)
}

// CacheView is a View backed by an in-memory Cache layered over a
// parent View (another CacheView or a StoreView).
type CacheView struct {
	cache  *Cache
	parent View
}

// NewCacheView creates a CacheView with a fresh overlay cache on top of parent.
func NewCacheView(parent View) *CacheView {
	return &CacheView{cache: NewCache(), parent: parent}
}

// Cache returns the view's overlay cache (for Flush/WriteBatch).
func (v *CacheView) Cache() *Cache { return v.cache }

func (v *CacheView) Get(ns NamespaceId, key Key) (Entry, bool, error) {
	if v.cache.IsDeleted(ns, key) {
		return Entry{}, false, nil
	}
	if e, ok := v.cache.Get(ns, key); ok {
		return e, true, nil
	}
	return v.parent.Get(ns, key)
}

func (v *CacheView) Set(ns NamespaceId, key Key, e Entry) { v.cache.Set(ns, key, e) }
func (v *CacheView) Delete(ns NamespaceId, key Key)       { v.cache.Remove(ns, key) }

func (v *CacheView) GetAssociation(from, to NamespaceId) (Entry, bool, error) {
	if v.cache.IsDisassociated(from, to) {
		return Entry{}, false, nil
	}
	if e, ok := v.cache.GetAssociation(from, to); ok {
		return e, true, nil
	}
	return v.parent.GetAssociation(from, to)
}

func (v *CacheView) Associate(from, to NamespaceId, e Entry) { v.cache.Associate(from, to, e) }
func (v *CacheView) Disassociate(from, to NamespaceId)       { v.cache.Disassociate(from, to) }

func (v *CacheView) IterateEntries(ns NamespaceId) (*MergedIterator, error) {
	base, err := v.parentBaseEntries(ns)
	if err != nil {
		return nil, err
	}
	return NewMergedIterator(v.cache, base, ns, ModeEntries), nil
}

func (v *CacheView) IterateAssociations(ns NamespaceId) (*MergedIterator, error) {
	base, err := v.parentBaseAssociations(ns)
	if err != nil {
		return nil, err
	}
	return NewMergedIterator(v.cache, base, ns, ModeAssociations), nil
}

// parentBaseEntries flattens the parent chain into a single base
// cursor by recursively merging parent views down to the StoreView.
func (v *CacheView) parentBaseEntries(ns NamespaceId) (baseCursor, error) {
	it, err := v.parent.IterateEntries(ns)
	if err != nil {
		return nil, err
	}
	return mergedIteratorCursor{it}, nil
}

func (v *CacheView) parentBaseAssociations(ns NamespaceId) (baseCursor, error) {
	it, err := v.parent.IterateAssociations(ns)
	if err != nil {
		return nil, err
	}
	return mergedIteratorCursor{it}, nil
}

// mergedIteratorCursor adapts a *MergedIterator (from a parent View) to
// the baseCursor interface, so CacheViews compose to arbitrary depth.
type mergedIteratorCursor struct {
	it *MergedIterator
}

func (m mergedIteratorCursor) Valid() bool       { return m.it.Valid() }
func (m mergedIteratorCursor) Key() []byte       { return m.it.Key() }
func (m mergedIteratorCursor) Entry() (Entry, error) {
	if err := m.it.Err(); err != nil {
		return Entry{}, err
	}
	return m.it.Entry(), nil
}
func (m mergedIteratorCursor) Next()       { m.it.Next() }
func (m mergedIteratorCursor) Close() error { return m.it.Close() }

// Flush merges this CacheView's cache onto its parent. If the parent is
// another CacheView, the merge happens in memory (Cache.Apply); if the
// parent is a StoreView, Flush commits the cache to the persistent
// Store in a single atomic batch.
func (v *CacheView) Flush() error {
	switch p := v.parent.(type) {
	case *CacheView:
		p.cache.Apply(v.cache)
		return nil
	case *StoreView:
		return p.commit(v.cache)
	default:
		return fmt.Errorf("keva: unknown parent view type %T", v.parent)
	}
}

// StoreView is the bottom of the View stack: a View backed directly by
// the persistent Store. It holds no cache of its own: Set, Delete,
// Associate and Disassociate write straight to the Store, while a child
// CacheView's Flush hands its cache to commit for one atomic batch.
type StoreView struct {
	store *Store
}

// NewStoreView wraps store as the bottom of a View stack.
func NewStoreView(store *Store) *StoreView {
	return &StoreView{store: store}
}

func (v *StoreView) Get(ns NamespaceId, key Key) (Entry, bool, error) {
	e, err := v.store.Get(ns, key)
	if IsNotFound(err) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (v *StoreView) Set(ns NamespaceId, key Key, e Entry) {
	// Direct writes to the StoreView bypass atomicity; production code
	// always writes through a CacheView and Flushes. Used only by tests
	// and fixtures seeding initial state.
	_ = v.store.Set(ns, key, e)
}

func (v *StoreView) Delete(ns NamespaceId, key Key) {
	_ = v.store.Delete(ns, key)
}

func (v *StoreView) GetAssociation(from, to NamespaceId) (Entry, bool, error) {
	e, err := v.store.GetAssociation(from, to)
	if IsNotFound(err) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (v *StoreView) Associate(from, to NamespaceId, e Entry) {
	// Direct write; see the note on Set above.
	_ = v.store.SetAssociation(from, to, e)
}

func (v *StoreView) Disassociate(from, to NamespaceId) {
	_ = v.store.DeleteAssociation(from, to)
}

func (v *StoreView) IterateEntries(ns NamespaceId) (*MergedIterator, error) {
	base, err := v.store.IterateEntries(ns)
	if err != nil {
		return nil, err
	}
	return NewMergedIterator(NewCache(), base, ns, ModeEntries), nil
}

func (v *StoreView) IterateAssociations(ns NamespaceId) (*MergedIterator, error) {
	base, err := v.store.IterateAssociations(ns)
	if err != nil {
		return nil, err
	}
	return NewMergedIterator(NewCache(), base, ns, ModeAssociations), nil
}

// commit writes cache into the Store atomically (P1): every
// entries/associations/deleted/disassociated record becomes one batch
// write or erase, committed together.
func (v *StoreView) commit(cache *Cache) error {
	batch, err := v.store.NewBatch()
	if err != nil {
		return err
	}
	if err := cache.WriteBatch(batch); err != nil {
		return err
	}
	return batch.Commit()
}
