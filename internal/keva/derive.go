package keva

import (
	"github.com/kevanet/kevachain/pkg/crypto"
	"github.com/kevanet/kevachain/pkg/types"
)

// DeriveNamespace computes the namespace identifier for a registering
// transaction's input outpoint (§4.5):
//
//	derive_namespace = prefix_byte || RIPEMD160(SHA256(tx_hash || (ns_fix ? ascii_decimal(vout) : ∅)))
//
// This is a pure function of (txHash, vout, nsFix, params) — two peers
// computing it over the same inputs always agree (P5).
func DeriveNamespace(txHash types.Hash, vout uint32, nsFix bool, params ChainParams) NamespaceId {
	vin := make([]byte, 0, 32+10)
	vin = append(vin, txHash[:]...)
	if nsFix {
		vin = append(vin, asciiDecimal(vout)...)
	}

	h := crypto.Hash160(vin)

	ns := make(NamespaceId, 0, 1+len(h))
	ns = append(ns, params.NamespacePrefix)
	ns = append(ns, h...)
	return ns
}
