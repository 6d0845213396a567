// Package keva implements the namespaced key/value overlay ("keva")
// layered on top of the UTXO chain: namespace derivation, a persistent
// store plus block-scoped cache overlay, a merged iterator over the
// two, consensus validation and application of keva transaction
// operations, reorg undo, a mempool projection, and change
// notifications.
package keva

import (
	"encoding/hex"

	"github.com/kevanet/kevachain/pkg/types"
)

// Limits, consensus-critical (EXTERNAL INTERFACES).
const (
	MaxNamespaceLength = 255
	MaxKeyLength       = 255
	MaxValueLength     = 520
)

// NamespaceLen is the fixed length of a derived NamespaceId: one
// chain-specific prefix byte plus the 20-byte RIPEMD160(SHA256(...))
// hash. Namespace IDs are always this length, which is what makes raw
// concatenation safe for store keys (§4.1).
const NamespaceLen = 21

// DisplayNameKey is the reserved key under which a namespace's display
// name is stored by NamespaceRegister.
const DisplayNameKey = "_KEVA_NS_"

// AssociatePrefix marks a Put key as an association pointer: a value
// written under "_g:<base58check(ns)>" links the posting namespace to ns.
const AssociatePrefix = "_g:"

// NamespaceId identifies a namespace: one chain-specific prefix byte
// followed by the 20-byte RIPEMD160(SHA256(...)) derivation hash, 21
// bytes total, fixed-length so that raw concatenation in store keys
// preserves lexicographic (namespace, key) ordering.
type NamespaceId []byte

// String renders the namespace as lowercase hex for logs and debugging.
func (n NamespaceId) String() string {
	return hex.EncodeToString(n)
}

// Equal reports whether two namespace IDs are byte-identical.
func (n NamespaceId) Equal(other NamespaceId) bool {
	if len(n) != len(other) {
		return false
	}
	for i := range n {
		if n[i] != other[i] {
			return false
		}
	}
	return true
}

// Key is a namespaced key, length <= MaxKeyLength.
type Key []byte

// Value is a namespaced value, length <= MaxValueLength.
type Value []byte

// Entry is the authoritative record for a (NamespaceId, Key) pair.
type Entry struct {
	Value          Value
	Height         uint32
	UpdateOutpoint types.Outpoint
}

// Op identifies which keva operation a script encodes.
type Op uint8

const (
	OpNamespaceRegister Op = iota + 1
	OpPut
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpNamespaceRegister:
		return "NamespaceRegister"
	case OpPut:
		return "Put"
	case OpDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// Operation is the parsed payload of a keva output script.
type Operation struct {
	Op          Op
	Namespace   NamespaceId
	Key         Key         // unset for NamespaceRegister
	Value       Value       // unset for Delete
	DisplayName Value       // only for NamespaceRegister
}
