package keva

import "bytes"

// IterMode selects which cache map and store prefix tag a MergedIterator
// consults (§4.3).
type IterMode int

const (
	ModeEntries IterMode = iota
	ModeAssociations
)

// baseCursor abstracts the wrapped Store iterator: ordered (Key,Entry)
// pairs for a fixed namespace, already positioned by the Store.
type baseCursor interface {
	Valid() bool
	Key() []byte // the namespaced key portion only (tag/namespace stripped)
	Entry() (Entry, error)
	Next()
	Close() error
}

// MergedIterator presents a single ordered stream over the union of a
// Cache's pending mutations and a Store's committed contents for a
// fixed namespace, honoring cache deletions/disassociations (§4.3).
// It exclusively owns its base cursor; the base is released when the
// MergedIterator is closed (§9 DESIGN NOTES: overlay iterator owns the
// base iterator).
type MergedIterator struct {
	cache *Cache
	ns    NamespaceId
	mode  IterMode

	cacheKeys []NamespaceId // unused; the cache cursor reads entKeys or assocKeys
	entKeys   []Key
	assocKeys []NamespaceId
	cacheIdx  int

	base baseCursor

	valid   bool
	curKey  []byte
	curEnt  Entry
	lastErr error
}

// NewMergedIterator constructs an iterator over ns, seeked to the start
// of the namespace. base may be nil if the Store has no entries for ns.
func NewMergedIterator(cache *Cache, base baseCursor, ns NamespaceId, mode IterMode) *MergedIterator {
	mi := &MergedIterator{cache: cache, ns: ns, mode: mode, base: base}
	mi.Seek(nil)
	return mi
}

// Seek repositions the cache cursor to the first key >= start (nil means
// the beginning of the namespace) and recomputes the current position.
// The base cursor is not moved: it continues from wherever it already
// stands, so a Seek after iteration has begun does not rewind or skip
// store entries.
func (mi *MergedIterator) Seek(start []byte) {
	if mi.mode == ModeEntries {
		mi.entKeys = mi.cache.entryKeysSorted(mi.ns)
	} else {
		mi.assocKeys = mi.cache.assocKeysSorted(mi.ns)
	}
	mi.cacheIdx = 0
	if start != nil {
		mi.cacheIdx = mi.seekCacheIndex(start)
	}
	mi.advance()
}

func (mi *MergedIterator) seekCacheIndex(start []byte) int {
	n := mi.cacheLen()
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(mi.cacheKeyAt(mid), start) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (mi *MergedIterator) cacheLen() int {
	if mi.mode == ModeEntries {
		return len(mi.entKeys)
	}
	return len(mi.assocKeys)
}

func (mi *MergedIterator) cacheKeyAt(i int) []byte {
	if mi.mode == ModeEntries {
		return mi.entKeys[i]
	}
	return mi.assocKeys[i]
}

func (mi *MergedIterator) cacheHasMore() bool {
	return mi.cacheIdx < mi.cacheLen()
}

func (mi *MergedIterator) cacheEntryAt(i int) (Entry, bool) {
	if mi.mode == ModeEntries {
		return mi.cache.Get(mi.ns, mi.entKeys[i])
	}
	return mi.cache.GetAssociation(mi.ns, mi.assocKeys[i])
}

// skipBaseTombstones advances the base cursor past any key tombstoned
// by the cache (deleted entries / disassociated links).
func (mi *MergedIterator) skipBaseTombstones() {
	for mi.base != nil && mi.base.Valid() {
		k := mi.base.Key()
		tombstoned := false
		if mi.mode == ModeEntries {
			tombstoned = mi.cache.IsDeleted(mi.ns, Key(k))
		} else {
			tombstoned = mi.cache.IsDisassociated(mi.ns, NamespaceId(k))
		}
		if !tombstoned {
			return
		}
		mi.base.Next()
	}
}

// advance computes the iterator's current position by comparing the
// cache cursor against the base cursor (after tombstone skipping) and
// selecting the smaller key; on a tie, the cache value wins and BOTH
// cursors advance.
func (mi *MergedIterator) advance() {
	mi.skipBaseTombstones()

	cacheLive := mi.cacheHasMore()
	baseLive := mi.base != nil && mi.base.Valid()

	if !cacheLive && !baseLive {
		mi.valid = false
		return
	}

	if cacheLive && !baseLive {
		mi.takeFromCache()
		return
	}
	if baseLive && !cacheLive {
		mi.takeFromBase()
		return
	}

	cacheKey := mi.cacheKeyAt(mi.cacheIdx)
	baseKey := mi.base.Key()

	switch bytes.Compare(cacheKey, baseKey) {
	case 0:
		mi.takeFromCache()
		mi.base.Next()
		mi.skipBaseTombstones()
	case -1:
		mi.takeFromCache()
	default:
		mi.takeFromBase()
	}
}

func (mi *MergedIterator) takeFromCache() {
	key := mi.cacheKeyAt(mi.cacheIdx)
	e, ok := mi.cacheEntryAt(mi.cacheIdx)
	mi.cacheIdx++
	if !ok {
		// Present in the sorted key set (it was in entries/associations
		// at Seek time) but since removed by a later mutation — skip.
		mi.advance()
		return
	}
	mi.valid = true
	mi.curKey = append([]byte(nil), key...)
	mi.curEnt = e
}

func (mi *MergedIterator) takeFromBase() {
	key := append([]byte(nil), mi.base.Key()...)
	e, err := mi.base.Entry()
	if err != nil {
		mi.lastErr = err
		mi.valid = false
		return
	}
	mi.valid = true
	mi.curKey = key
	mi.curEnt = e
	mi.base.Next()
}

// Valid reports whether the iterator is positioned at an entry.
func (mi *MergedIterator) Valid() bool { return mi.valid }

// Err returns the first error encountered while advancing the base cursor.
func (mi *MergedIterator) Err() error { return mi.lastErr }

// Key returns the current key portion (namespaced key, or association
// "to" namespace, depending on mode).
func (mi *MergedIterator) Key() []byte { return mi.curKey }

// Entry returns the current Entry.
func (mi *MergedIterator) Entry() Entry { return mi.curEnt }

// Next advances the iterator to its next position.
func (mi *MergedIterator) Next() {
	if !mi.valid {
		return
	}
	mi.advance()
}

// Close releases the wrapped base cursor.
func (mi *MergedIterator) Close() error {
	if mi.base != nil {
		return mi.base.Close()
	}
	return nil
}
