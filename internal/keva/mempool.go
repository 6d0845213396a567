package keva

import (
	"github.com/kevanet/kevachain/internal/log"
	"github.com/kevanet/kevachain/pkg/tx"
	"github.com/kevanet/kevachain/pkg/types"
)

// nsRecord is an unconfirmed namespace registration.
type nsRecord struct {
	txHash      types.Hash
	ns          NamespaceId
	displayName Value
}

// kvRecord is an unconfirmed key/value mutation (empty Value means delete).
type kvRecord struct {
	txHash types.Hash
	ns     NamespaceId
	key    Key
	value  Value
}

// Mempool tracks unconfirmed namespace registrations and key/value
// mutations as two append-only lists keyed by tx hash (§4.4), separate
// from and lighter-weight than the full UTXO-validating mempool.Pool —
// this projection exists only so query paths can prefer unconfirmed
// results before falling back to the confirmed View.
type Mempool struct {
	namespaces []nsRecord
	kvs        []kvRecord
	params     ChainParams
}

// NewMempool returns an empty projection bound to params (needed for
// check_tx's namespace-derivation re-check).
func NewMempool(params ChainParams) *Mempool {
	return &Mempool{params: params}
}

// Add appends the tx's keva operation(s) to the projection.
func (m *Mempool) Add(t *tx.Transaction, coins CoinSource) error {
	ex, err := Extract(t, coins)
	if err != nil {
		return err
	}
	if !ex.HasOut {
		return nil
	}
	txHash := t.Hash()

	switch ex.Out.Op {
	case OpNamespaceRegister:
		m.namespaces = append(m.namespaces, nsRecord{txHash: txHash, ns: ex.Out.Namespace, displayName: ex.Out.DisplayName})
		log.Keva.Debug().Str("ns", ex.Out.Namespace.String()).Msg("keva: mempool namespace registration added")
	case OpPut:
		m.kvs = append(m.kvs, kvRecord{txHash: txHash, ns: ex.Out.Namespace, key: ex.Out.Key, value: ex.Out.Value})
	case OpDelete:
		m.kvs = append(m.kvs, kvRecord{txHash: txHash, ns: ex.Out.Namespace, key: ex.Out.Key, value: nil})
	}
	return nil
}

// Remove removes the single entry with txHash from each list, if
// present, preserving the insertion order of survivors (§4.4).
func (m *Mempool) Remove(txHash types.Hash) {
	for i, r := range m.namespaces {
		if r.txHash == txHash {
			m.namespaces = append(m.namespaces[:i], m.namespaces[i+1:]...)
			break
		}
	}
	for i, r := range m.kvs {
		if r.txHash == txHash {
			m.kvs = append(m.kvs[:i], m.kvs[i+1:]...)
			break
		}
	}
}

// GetUnconfirmedKV scans for the last unconfirmed write to (ns, key),
// returning its value and true if found (§4.4, P8 last-writer-wins).
func (m *Mempool) GetUnconfirmedKV(ns NamespaceId, key Key) (Value, bool) {
	for i := len(m.kvs) - 1; i >= 0; i-- {
		r := m.kvs[i]
		if r.ns.Equal(ns) && string(r.key) == string(key) {
			return r.value, true
		}
	}
	return nil, false
}

// UnconfirmedKV is a query-facing view of an unconfirmed mutation.
type UnconfirmedKV struct {
	Namespace NamespaceId
	Key       Key
	Value     Value
	TxHash    types.Hash
}

// ListUnconfirmedKVs returns unconfirmed kv mutations, filtered to ns
// when ns is non-nil, in insertion order.
func (m *Mempool) ListUnconfirmedKVs(ns NamespaceId) []UnconfirmedKV {
	var out []UnconfirmedKV
	for _, r := range m.kvs {
		if ns != nil && !r.ns.Equal(ns) {
			continue
		}
		out = append(out, UnconfirmedKV{Namespace: r.ns, Key: r.key, Value: r.value, TxHash: r.txHash})
	}
	return out
}

// UnconfirmedNamespace is a query-facing view of an unconfirmed registration.
type UnconfirmedNamespace struct {
	Namespace   NamespaceId
	DisplayName Value
	TxHash      types.Hash
}

// ListUnconfirmedNamespaces returns unconfirmed namespace registrations
// in insertion order.
func (m *Mempool) ListUnconfirmedNamespaces() []UnconfirmedNamespace {
	out := make([]UnconfirmedNamespace, 0, len(m.namespaces))
	for _, r := range m.namespaces {
		out = append(out, UnconfirmedNamespace{Namespace: r.ns, DisplayName: r.displayName, TxHash: r.txHash})
	}
	return out
}

// CheckTx performs the mempool's intentionally lax structural check
// (§9 DESIGN NOTES, §4.4): only namespace-derivation is re-validated for
// NamespaceRegister ops; Put/Delete are accepted without checking that
// their namespace exists in the mempool-projected state. Full
// consensus checks happen at block-apply time against the confirmed
// View. chainTip is the height used for ns-fix activation.
func (m *Mempool) CheckTx(t *tx.Transaction, chainTip uint64, coins CoinSource) error {
	ex, err := Extract(t, coins)
	if err != nil {
		return err
	}
	if !ex.HasOut || ex.Out.Op != OpNamespaceRegister {
		return nil
	}
	nsFix := m.params.NSFixActive(chainTip)
	prevOut := t.Inputs[0].PrevOut
	expected := DeriveNamespace(prevOut.TxID, prevOut.Index, nsFix, m.params)
	if !expected.Equal(ex.Out.Namespace) {
		log.Keva.Debug().Str("want", expected.String()).Str("got", ex.Out.Namespace.String()).
			Str("op", kevaOpString(t.Outputs[ex.OutIndex].Script)).
			Msg("keva: mempool namespace derivation mismatch")
		return ErrNamespaceMismatch
	}
	return nil
}
