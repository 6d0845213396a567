package keva

import (
	"sort"

	"github.com/kevanet/kevachain/internal/storage"
)

// entryKey is the in-memory tuple key for the entries/deleted maps.
type entryKey struct {
	ns  string
	key string
}

// assocKey is the in-memory tuple key for the associations/disassociations maps.
type assocKey struct {
	from string
	to   string
}

// Cache is an in-memory diff over the persistent Store: pending sets,
// deletions, associations and disassociations (§4.2). A Cache is
// created per block (or per speculative evaluation), mutated only by
// its owner, and either discarded, applied onto a parent Cache, or
// flushed to the Store.
type Cache struct {
	entries         map[entryKey]Entry
	deleted         map[entryKey]struct{}
	associations    map[assocKey]Entry
	disassociations map[assocKey]struct{}
}

// NewCache returns an empty overlay.
func NewCache() *Cache {
	return &Cache{
		entries:         make(map[entryKey]Entry),
		deleted:         make(map[entryKey]struct{}),
		associations:    make(map[assocKey]Entry),
		disassociations: make(map[assocKey]struct{}),
	}
}

// Set inserts or overwrites (ns, key) in entries; clears any deleted tombstone.
func (c *Cache) Set(ns NamespaceId, key Key, e Entry) {
	k := entryKey{ns: string(ns), key: string(key)}
	c.entries[k] = e
	delete(c.deleted, k)
}

// Remove removes (ns, key) from entries and marks it deleted.
func (c *Cache) Remove(ns NamespaceId, key Key) {
	k := entryKey{ns: string(ns), key: string(key)}
	delete(c.entries, k)
	c.deleted[k] = struct{}{}
}

// Associate records a (from, to) association; clears any disassociation.
func (c *Cache) Associate(from, to NamespaceId, e Entry) {
	k := assocKey{from: string(from), to: string(to)}
	c.associations[k] = e
	delete(c.disassociations, k)
}

// Disassociate tears down a (from, to) association; clears any association.
func (c *Cache) Disassociate(from, to NamespaceId) {
	k := assocKey{from: string(from), to: string(to)}
	delete(c.associations, k)
	c.disassociations[k] = struct{}{}
}

// Get returns a cached entry if present. It does NOT consult the Store
// and does NOT report deleted tombstones as a distinguishable "absent"
// signal — callers wanting merged semantics use the MergedIterator or
// a View built on top of Cache+Store.
func (c *Cache) Get(ns NamespaceId, key Key) (Entry, bool) {
	e, ok := c.entries[entryKey{ns: string(ns), key: string(key)}]
	return e, ok
}

// IsDeleted reports whether (ns, key) is tombstoned in this cache.
func (c *Cache) IsDeleted(ns NamespaceId, key Key) bool {
	_, ok := c.deleted[entryKey{ns: string(ns), key: string(key)}]
	return ok
}

// IsDisassociated reports whether (from, to) is tombstoned in this cache.
func (c *Cache) IsDisassociated(from, to NamespaceId) bool {
	_, ok := c.disassociations[assocKey{from: string(from), to: string(to)}]
	return ok
}

// GetAssociation returns a cached association entry if present.
func (c *Cache) GetAssociation(from, to NamespaceId) (Entry, bool) {
	e, ok := c.associations[assocKey{from: string(from), to: string(to)}]
	return e, ok
}

// Apply merges other into c by deterministically replaying, in order:
// other's entries (as Set), other's associations (as Associate),
// other's deletions (as Remove), other's disassociations (as
// Disassociate). This order lets a later Remove inside other correctly
// tombstone a co-present Set (§4.2).
func (c *Cache) Apply(other *Cache) {
	for k, e := range other.entries {
		ns, key := splitEntryKeyString(k)
		c.Set(ns, key, e)
	}
	for k, e := range other.associations {
		from, to := splitAssocKeyString(k)
		c.Associate(from, to, e)
	}
	for k := range other.deleted {
		ns, key := splitEntryKeyString(k)
		c.Remove(ns, key)
	}
	for k := range other.disassociations {
		from, to := splitAssocKeyString(k)
		c.Disassociate(from, to)
	}
}

func splitEntryKeyString(k entryKey) (NamespaceId, Key) {
	return NamespaceId(k.ns), Key(k.key)
}

func splitAssocKeyString(k assocKey) (NamespaceId, NamespaceId) {
	return NamespaceId(k.from), NamespaceId(k.to)
}

// WriteBatch emits one write per entries/associations record and one
// erase per deleted/disassociated record into batch, with store keys
// built by KeyEntry and KeyAssociation.
func (c *Cache) WriteBatch(batch storage.Batch) error {
	for k, e := range c.entries {
		ns, key := splitEntryKeyString(k)
		if err := batch.Put(KeyEntry(ns, key), EncodeEntry(e)); err != nil {
			return err
		}
	}
	for k, e := range c.associations {
		from, to := splitAssocKeyString(k)
		if err := batch.Put(KeyAssociation(from, to), EncodeEntry(e)); err != nil {
			return err
		}
	}
	for k := range c.deleted {
		ns, key := splitEntryKeyString(k)
		if err := batch.Delete(KeyEntry(ns, key)); err != nil {
			return err
		}
	}
	for k := range c.disassociations {
		from, to := splitAssocKeyString(k)
		if err := batch.Delete(KeyAssociation(from, to)); err != nil {
			return err
		}
	}
	return nil
}

// entryKeysSorted returns this cache's entry keys for namespace ns in
// ascending key order, for use by the MergedIterator's cache cursor.
func (c *Cache) entryKeysSorted(ns NamespaceId) []Key {
	prefix := string(ns)
	var keys []string
	for k := range c.entries {
		if k.ns == prefix {
			keys = append(keys, k.key)
		}
	}
	for k := range c.deleted {
		if k.ns == prefix {
			keys = append(keys, k.key)
		}
	}
	sort.Strings(keys)
	out := make([]Key, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, Key(k))
	}
	return out
}

// assocKeysSorted returns the "to" keys of this cache's associations and
// disassociations for a fixed "from" namespace, ascending.
func (c *Cache) assocKeysSorted(from NamespaceId) []NamespaceId {
	prefix := string(from)
	seen := make(map[string]struct{})
	var out []NamespaceId
	for k := range c.associations {
		if k.from == prefix {
			if _, ok := seen[k.to]; !ok {
				seen[k.to] = struct{}{}
				out = append(out, NamespaceId(k.to))
			}
		}
	}
	for k := range c.disassociations {
		if k.from == prefix {
			if _, ok := seen[k.to]; !ok {
				seen[k.to] = struct{}{}
				out = append(out, NamespaceId(k.to))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i]) < string(out[j]) })
	return out
}
