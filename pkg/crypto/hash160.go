package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for Bitcoin-lineage Hash160
)

// Hash160 computes RIPEMD160(SHA256(data)), the derivation primitive
// inherited from the Bitcoin lineage of the protocol. This is distinct
// from the chain's native BLAKE3 Hash function and is used only where
// on-chain compatibility with that lineage is required (namespace
// derivation).
func Hash160(data []byte) []byte {
	sum := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(sum[:])
	return r.Sum(nil)
}
