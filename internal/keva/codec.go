package keva

import (
	"fmt"

	"github.com/kevanet/kevachain/pkg/types"
)

// Store key tags (EXTERNAL INTERFACES / §4.1). This package writes
// 'n' (entries), 'a' (associations) and 'u' (block undo logs); the node
// scopes the keva Store under its own "kv/" prefix, apart from the rest
// of the chain's keys.
const (
	TagEntry       byte = 'n'
	TagAssociation byte = 'a'
	TagBlockUndo   byte = 'u'
)

// KeyBlockUndo builds the persistent-store key for a block's keva undo
// log: 'u' || block_hash.
func KeyBlockUndo(blockHash types.Hash) []byte {
	out := make([]byte, 0, 1+types.HashSize)
	out = append(out, TagBlockUndo)
	out = append(out, blockHash[:]...)
	return out
}

// putUvarint appends x to buf using a continuation-bit, little-endian,
// 7-bits-per-byte varint encoding. This is the exact on-disk encoding
// required for DB values (Entry, TxUndo); it is never used for store
// KEYS, whose byte-wise order must equal tuple-lexicographic order.
func putUvarint(buf []byte, x uint64) []byte {
	for x >= 0x80 {
		buf = append(buf, byte(x)|0x80)
		x >>= 7
	}
	return append(buf, byte(x))
}

// readUvarint decodes a varint from the front of buf, returning the
// value and the number of bytes consumed.
func readUvarint(buf []byte) (uint64, int, error) {
	var x uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		x |= uint64(b&0x7f) << shift
		if b < 0x80 {
			return x, i + 1, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, 0, fmt.Errorf("keva: varint overflow")
		}
	}
	return 0, 0, fmt.Errorf("keva: truncated varint")
}

// putBytesLP appends a length-prefixed byte string (varint length + bytes).
// Used only for DB VALUES, never for store keys.
func putBytesLP(buf, data []byte) []byte {
	buf = putUvarint(buf, uint64(len(data)))
	return append(buf, data...)
}

// readBytesLP reads a length-prefixed byte string from the front of buf.
func readBytesLP(buf []byte) ([]byte, int, error) {
	n, consumed, err := readUvarint(buf)
	if err != nil {
		return nil, 0, err
	}
	if uint64(len(buf)-consumed) < n {
		return nil, 0, fmt.Errorf("keva: truncated length-prefixed field")
	}
	data := make([]byte, n)
	copy(data, buf[consumed:consumed+int(n)])
	return data, consumed + int(n), nil
}

// KeyEntry builds the persistent-store key for a namespace's (key ->
// Entry) record: 'n' || namespace || key, raw concatenation. Namespace
// is fixed-length (21 bytes), so this preserves the (namespace, key)
// lexicographic ordering invariant without a length prefix.
func KeyEntry(ns NamespaceId, key Key) []byte {
	out := make([]byte, 0, 1+len(ns)+len(key))
	out = append(out, TagEntry)
	out = append(out, ns...)
	out = append(out, key...)
	return out
}

// KeyAssociation builds the persistent-store key for an association
// record: 'a' || from || to, raw concatenation (both fixed-length).
func KeyAssociation(from, to NamespaceId) []byte {
	out := make([]byte, 0, 1+len(from)+len(to))
	out = append(out, TagAssociation)
	out = append(out, from...)
	out = append(out, to...)
	return out
}

// SplitEntryKey parses a 'n'-tagged store key back into (namespace, key),
// given the fixed namespace length. Returns false if the key is not
// tagged as an entry record or too short to contain a namespace.
func SplitEntryKey(raw []byte, nsLen int) (NamespaceId, Key, bool) {
	if len(raw) < 1+nsLen || raw[0] != TagEntry {
		return nil, nil, false
	}
	ns := append(NamespaceId(nil), raw[1:1+nsLen]...)
	key := append(Key(nil), raw[1+nsLen:]...)
	return ns, key, true
}

// SplitAssociationKey parses an 'a'-tagged store key back into (from, to).
func SplitAssociationKey(raw []byte, nsLen int) (NamespaceId, NamespaceId, bool) {
	if len(raw) < 1+2*nsLen || raw[0] != TagAssociation {
		return nil, nil, false
	}
	from := append(NamespaceId(nil), raw[1:1+nsLen]...)
	to := append(NamespaceId(nil), raw[1+nsLen:1+2*nsLen]...)
	return from, to, true
}

// EncodeEntry serializes an Entry for storage as a DB value:
// value(LP) || height(varint) || tx_hash(32) || vout(varint).
func EncodeEntry(e Entry) []byte {
	buf := make([]byte, 0, len(e.Value)+48)
	buf = putBytesLP(buf, e.Value)
	buf = putUvarint(buf, uint64(e.Height))
	buf = append(buf, e.UpdateOutpoint.TxID[:]...)
	buf = putUvarint(buf, uint64(e.UpdateOutpoint.Index))
	return buf
}

// DecodeEntry deserializes an Entry from a DB value.
func DecodeEntry(buf []byte) (Entry, error) {
	var e Entry
	val, n, err := readBytesLP(buf)
	if err != nil {
		return e, fmt.Errorf("keva: decode entry value: %w", err)
	}
	buf = buf[n:]
	e.Value = val

	height, n, err := readUvarint(buf)
	if err != nil {
		return e, fmt.Errorf("keva: decode entry height: %w", err)
	}
	buf = buf[n:]
	e.Height = uint32(height)

	if len(buf) < 32 {
		return e, fmt.Errorf("keva: decode entry outpoint: %w", ErrCorruptUndoRecord)
	}
	copy(e.UpdateOutpoint.TxID[:], buf[:32])
	buf = buf[32:]

	vout, _, err := readUvarint(buf)
	if err != nil {
		return e, fmt.Errorf("keva: decode entry vout: %w", err)
	}
	e.UpdateOutpoint.Index = uint32(vout)

	return e, nil
}

// TxUndo is the undo record for a single keva mutation within a
// transaction, as specified in §4.6: ns || key || is_new: u8 ||
// (is_new ? empty : entry). A second, optional association undo is
// represented by IsAssociation plus the same is_new/old_entry shape,
// keyed by (From, To) instead of (Namespace, Key).
type TxUndo struct {
	IsAssociation bool
	Namespace     NamespaceId // entry mutations
	Key           Key
	From, To      NamespaceId // association mutations
	IsNew         bool
	OldEntry      Entry
}

// EncodeTxUndo serializes a TxUndo for the block undo log.
func EncodeTxUndo(u TxUndo) []byte {
	var buf []byte
	if u.IsAssociation {
		buf = append(buf, 1)
		buf = putBytesLP(buf, u.From)
		buf = putBytesLP(buf, u.To)
	} else {
		buf = append(buf, 0)
		buf = putBytesLP(buf, u.Namespace)
		buf = putBytesLP(buf, u.Key)
	}
	if u.IsNew {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
		buf = append(buf, EncodeEntry(u.OldEntry)...)
	}
	return buf
}

// DecodeTxUndo deserializes a TxUndo from the block undo log.
func DecodeTxUndo(buf []byte) (TxUndo, error) {
	var u TxUndo
	if len(buf) < 1 {
		return u, fmt.Errorf("keva: empty tx undo record: %w", ErrCorruptUndoRecord)
	}
	u.IsAssociation = buf[0] == 1
	buf = buf[1:]

	if u.IsAssociation {
		from, n, err := readBytesLP(buf)
		if err != nil {
			return u, fmt.Errorf("keva: decode undo from: %w", err)
		}
		buf = buf[n:]
		to, n, err := readBytesLP(buf)
		if err != nil {
			return u, fmt.Errorf("keva: decode undo to: %w", err)
		}
		buf = buf[n:]
		u.From, u.To = from, to
	} else {
		ns, n, err := readBytesLP(buf)
		if err != nil {
			return u, fmt.Errorf("keva: decode undo namespace: %w", err)
		}
		buf = buf[n:]
		key, n, err := readBytesLP(buf)
		if err != nil {
			return u, fmt.Errorf("keva: decode undo key: %w", err)
		}
		buf = buf[n:]
		u.Namespace, u.Key = ns, key
	}

	if len(buf) < 1 {
		return u, fmt.Errorf("keva: truncated tx undo is_new flag: %w", ErrCorruptUndoRecord)
	}
	u.IsNew = buf[0] == 1
	buf = buf[1:]
	if !u.IsNew {
		entry, err := DecodeEntry(buf)
		if err != nil {
			return u, fmt.Errorf("keva: decode undo old entry: %w", err)
		}
		u.OldEntry = entry
	}
	return u, nil
}

// BlockUndo aggregates the TxUndo records for every keva mutation in a
// block, in application order. Undo replays in reverse.
type BlockUndo struct {
	Records []TxUndo
}

// EncodeBlockUndo serializes a BlockUndo as count(varint) || records.
func EncodeBlockUndo(b *BlockUndo) []byte {
	buf := putUvarint(nil, uint64(len(b.Records)))
	for _, r := range b.Records {
		rec := EncodeTxUndo(r)
		buf = putBytesLP(buf, rec)
	}
	return buf
}

// DecodeBlockUndo deserializes a BlockUndo produced by EncodeBlockUndo.
func DecodeBlockUndo(buf []byte) (*BlockUndo, error) {
	count, n, err := readUvarint(buf)
	if err != nil {
		return nil, fmt.Errorf("keva: decode block undo count: %w", err)
	}
	buf = buf[n:]
	b := &BlockUndo{Records: make([]TxUndo, 0, count)}
	for i := uint64(0); i < count; i++ {
		rec, n, err := readBytesLP(buf)
		if err != nil {
			return nil, fmt.Errorf("keva: decode block undo record %d: %w", i, err)
		}
		buf = buf[n:]
		u, err := DecodeTxUndo(rec)
		if err != nil {
			return nil, fmt.Errorf("keva: decode block undo record %d: %w", i, err)
		}
		b.Records = append(b.Records, u)
	}
	return b, nil
}

// asciiDecimal renders a non-negative integer as its ASCII decimal
// string bytes, matching std::to_string(n) in the original derivation.
func asciiDecimal(n uint32) []byte {
	return []byte(fmt.Sprintf("%d", n))
}
