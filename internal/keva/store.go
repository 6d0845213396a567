package keva

import (
	"errors"
	"fmt"

	"github.com/kevanet/kevachain/internal/storage"
	"github.com/kevanet/kevachain/pkg/types"
)

// Store is the persistent, authoritative keva database: ordered
// key/value storage keyed by (tag, namespace, key), backed by the
// chain's storage.DB (§4.1/§4.7 "StoreView"). It supports point lookup,
// prefix iteration per namespace, and atomic batch commit via the
// storage.Batcher extension.
type Store struct {
	db storage.DB
}

// NewStore wraps db (typically a *storage.BadgerDB, or a *storage.PrefixDB
// scoping a sub-chain's keyspace) as a keva persistent store.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// Get looks up an entry by (namespace, key). Returns ErrNotFound if
// absent, or an ErrStorageIntegrity-wrapped error if the backing store
// itself faulted (not a miss) — the caller should treat the latter as
// fatal rather than an ordinary negative lookup.
func (s *Store) Get(ns NamespaceId, key Key) (Entry, error) {
	raw, err := s.db.Get(KeyEntry(ns, key))
	if err != nil {
		return Entry{}, storeGetErr(err)
	}
	e, err := DecodeEntry(raw)
	if err != nil {
		return Entry{}, fmt.Errorf("keva store: %w: %w", ErrStorageIntegrity, err)
	}
	return e, nil
}

// GetAssociation looks up an association entry by (from, to).
func (s *Store) GetAssociation(from, to NamespaceId) (Entry, error) {
	raw, err := s.db.Get(KeyAssociation(from, to))
	if err != nil {
		return Entry{}, storeGetErr(err)
	}
	e, err := DecodeEntry(raw)
	if err != nil {
		return Entry{}, fmt.Errorf("keva store: %w: %w", ErrStorageIntegrity, err)
	}
	return e, nil
}

// storeGetErr classifies an underlying storage.DB.Get failure: an
// ordinary miss maps to ErrNotFound, anything else (I/O fault, corrupt
// backing store) is wrapped as ErrStorageIntegrity so callers don't
// silently treat a real fault as "entry doesn't exist".
func storeGetErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("keva store: %w: %w", ErrStorageIntegrity, err)
}

// GetNamespaceDisplayName looks up ns's reserved display-name entry.
func (s *Store) GetNamespaceDisplayName(ns NamespaceId) (Entry, error) {
	return s.Get(ns, Key(DisplayNameKey))
}

// Set writes an entry directly (used outside block-apply contexts,
// e.g. test fixtures and genesis). Production mutation flows through
// a Cache applied via WriteBatch for atomicity (P1).
func (s *Store) Set(ns NamespaceId, key Key, e Entry) error {
	return s.db.Put(KeyEntry(ns, key), EncodeEntry(e))
}

// Delete removes an entry directly.
func (s *Store) Delete(ns NamespaceId, key Key) error {
	return s.db.Delete(KeyEntry(ns, key))
}

// SetAssociation writes an association entry directly.
func (s *Store) SetAssociation(from, to NamespaceId, e Entry) error {
	return s.db.Put(KeyAssociation(from, to), EncodeEntry(e))
}

// DeleteAssociation removes an association entry directly.
func (s *Store) DeleteAssociation(from, to NamespaceId) error {
	return s.db.Delete(KeyAssociation(from, to))
}

// NewBatch returns an atomic write batch from the underlying DB, or a
// non-atomic best-effort batch if the DB doesn't support storage.Batcher.
func (s *Store) NewBatch() (storage.Batch, error) {
	batcher, ok := s.db.(storage.Batcher)
	if !ok {
		return nil, fmt.Errorf("keva store: underlying DB does not support atomic batches")
	}
	return batcher.NewBatch(), nil
}

// IterateEntries returns a MergedIterator-compatible base cursor over
// ns's committed entries, ascending by key.
func (s *Store) IterateEntries(ns NamespaceId) (baseCursor, error) {
	return s.iterate(ns, ModeEntries)
}

// IterateAssociations returns a base cursor over ns's committed
// associations (the "to" namespaces pointing at ns), ascending.
func (s *Store) IterateAssociations(ns NamespaceId) (baseCursor, error) {
	return s.iterate(ns, ModeAssociations)
}

func (s *Store) iterate(ns NamespaceId, mode IterMode) (baseCursor, error) {
	it, ok := s.db.(storage.Iterable)
	if !ok {
		return nil, fmt.Errorf("keva store: underlying DB does not support iteration")
	}
	var prefix []byte
	if mode == ModeEntries {
		prefix = append([]byte{TagEntry}, ns...)
	} else {
		prefix = append([]byte{TagAssociation}, ns...)
	}
	inner := it.NewIterator(prefix, nil)
	return &storeCursor{it: inner, nsLen: len(ns), mode: mode}, nil
}

// storeCursor adapts a storage.Iterator (raw tagged keys) to the
// baseCursor interface the MergedIterator consumes (namespaced-key-only,
// with Entry decoding).
type storeCursor struct {
	it    storage.Iterator
	nsLen int
	mode  IterMode
}

func (sc *storeCursor) Valid() bool { return sc.it.Valid() }

func (sc *storeCursor) Key() []byte {
	raw := sc.it.Key()
	if sc.mode == ModeEntries {
		_, key, ok := SplitEntryKey(raw, sc.nsLen)
		if !ok {
			return nil
		}
		return key
	}
	_, to, ok := SplitAssociationKey(raw, sc.nsLen)
	if !ok {
		return nil
	}
	return to
}

func (sc *storeCursor) Entry() (Entry, error) {
	e, err := DecodeEntry(sc.it.Value())
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrStorageIntegrity, err)
	}
	return e, nil
}

func (sc *storeCursor) Next() { sc.it.Next() }

func (sc *storeCursor) Close() error { return sc.it.Close() }

// PutBlockUndo persists a block's keva undo log, keyed by block hash,
// so it can later be replayed in reverse by a reorg (§4.6/§4.7).
func (s *Store) PutBlockUndo(blockHash types.Hash, undo *BlockUndo) error {
	return s.db.Put(KeyBlockUndo(blockHash), EncodeBlockUndo(undo))
}

// GetBlockUndo loads a previously persisted undo log for blockHash.
// Returns ErrNotFound if absent (e.g. genesis, or a block with no
// keva mutations that was never written).
func (s *Store) GetBlockUndo(blockHash types.Hash) (*BlockUndo, error) {
	raw, err := s.db.Get(KeyBlockUndo(blockHash))
	if err != nil {
		return nil, storeGetErr(err)
	}
	return DecodeBlockUndo(raw)
}

// DeleteBlockUndo removes a block's persisted undo log once it can no
// longer be reverted (mirrors BlockStore.DeleteUndo).
func (s *Store) DeleteBlockUndo(blockHash types.Hash) error {
	return s.db.Delete(KeyBlockUndo(blockHash))
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
