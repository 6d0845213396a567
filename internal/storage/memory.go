package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemoryDB implements DB using an in-memory map.
type MemoryDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates a new in-memory database.
func NewMemory() *MemoryDB {
	return &MemoryDB{
		data: make(map[string][]byte),
	}
}

// Get retrieves a value by key.
func (m *MemoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Put stores a key-value pair.
func (m *MemoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key)] = value
	return nil
}

// Delete removes a key.
func (m *MemoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

// Has checks if a key exists.
func (m *MemoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

// ForEach iterates over all keys with the given prefix.
func (m *MemoryDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	m.mu.RLock()
	p := string(prefix)
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make(map[string][]byte, len(keys))
	for _, k := range keys {
		snapshot[k] = m.data[k]
	}
	m.mu.RUnlock()

	for _, k := range keys {
		if err := fn([]byte(k), append([]byte(nil), snapshot[k]...)); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (m *MemoryDB) Close() error {
	return nil
}

// NewIterator returns a sorted in-memory cursor over keys with the given
// prefix, seeked to the first key >= seek. The snapshot is taken at
// construction time, matching the Store's snapshot-read iterator policy.
func (m *MemoryDB) NewIterator(prefix, seek []byte) Iterator {
	m.mu.RLock()
	p := string(prefix)
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	vals := make(map[string][]byte, len(keys))
	for _, k := range keys {
		vals[k] = m.data[k]
	}
	m.mu.RUnlock()

	start := string(seek)
	if seek == nil {
		start = p
	}
	idx := sort.SearchStrings(keys, start)

	return &memoryIterator{keys: keys, vals: vals, idx: idx}
}

type memoryIterator struct {
	keys []string
	vals map[string][]byte
	idx  int
}

func (mi *memoryIterator) Valid() bool {
	return mi.idx < len(mi.keys)
}

func (mi *memoryIterator) Key() []byte {
	return []byte(mi.keys[mi.idx])
}

func (mi *memoryIterator) Value() []byte {
	return mi.vals[mi.keys[mi.idx]]
}

func (mi *memoryIterator) Next() {
	mi.idx++
}

func (mi *memoryIterator) Close() error {
	return nil
}

// NewBatch creates a batch of writes applied atomically under the
// MemoryDB's lock on Commit.
func (m *MemoryDB) NewBatch() Batch {
	return &memoryBatch{db: m}
}

type memoryBatch struct {
	db  *MemoryDB
	ops []memoryOp
}

type memoryOp struct {
	key    []byte
	value  []byte
	delete bool // true for a Delete; value is then unused
}

func (mb *memoryBatch) Put(key, value []byte) error {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	mb.ops = append(mb.ops, memoryOp{key: k, value: v})
	return nil
}

func (mb *memoryBatch) Delete(key []byte) error {
	k := append([]byte(nil), key...)
	mb.ops = append(mb.ops, memoryOp{key: k, delete: true})
	return nil
}

func (mb *memoryBatch) Commit() error {
	mb.db.mu.Lock()
	defer mb.db.mu.Unlock()
	for _, op := range mb.ops {
		if op.delete {
			delete(mb.db.data, string(op.key))
		} else {
			mb.db.data[string(op.key)] = op.value
		}
	}
	return nil
}
