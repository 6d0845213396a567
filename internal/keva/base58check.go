package keva

import (
	"fmt"

	"github.com/kevanet/kevachain/pkg/crypto"
	"github.com/mr-tron/base58"
)

// checksumLen is the number of checksum bytes appended before encoding,
// matching the Base58Check convention used to encode namespace IDs for
// display and for the "_g:<base58check(ns)>" association marker.
const checksumLen = 4

// EncodeNamespace renders a NamespaceId as a Base58Check string: the
// namespace's raw bytes (already prefix-tagged by derive_namespace)
// followed by the first 4 bytes of DoubleHash(payload), base58-encoded.
// The chain's native BLAKE3 DoubleHash is reused as the checksum
// function rather than introducing a second hash primitive solely for
// display encoding.
func EncodeNamespace(ns NamespaceId) string {
	sum := crypto.DoubleHash(ns)
	payload := make([]byte, 0, len(ns)+checksumLen)
	payload = append(payload, ns...)
	payload = append(payload, sum[:checksumLen]...)
	return base58.Encode(payload)
}

// DecodeNamespace parses a Base58Check-encoded namespace string,
// verifying the checksum, and returns the namespace's raw bytes.
func DecodeNamespace(s string) (NamespaceId, error) {
	payload, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("keva: base58check decode: %w", err)
	}
	if len(payload) <= checksumLen {
		return nil, fmt.Errorf("keva: base58check payload too short")
	}
	ns := payload[:len(payload)-checksumLen]
	checksum := payload[len(payload)-checksumLen:]

	sum := crypto.DoubleHash(ns)
	for i := 0; i < checksumLen; i++ {
		if sum[i] != checksum[i] {
			return nil, fmt.Errorf("keva: base58check checksum mismatch")
		}
	}
	return NamespaceId(ns), nil
}

// ParseAssociationTarget checks whether key is of the form
// "_g:<base58check(ns)>" and, if so, decodes and returns ns.
func ParseAssociationTarget(key Key) (NamespaceId, bool) {
	s := string(key)
	if len(s) <= len(AssociatePrefix) || s[:len(AssociatePrefix)] != AssociatePrefix {
		return nil, false
	}
	ns, err := DecodeNamespace(s[len(AssociatePrefix):])
	if err != nil {
		return nil, false
	}
	return ns, true
}

// FormatAssociationKey builds the "_g:<base58check(ns)>" key that, when
// written with a non-empty value, creates an association to ns.
func FormatAssociationKey(ns NamespaceId) Key {
	return Key(AssociatePrefix + EncodeNamespace(ns))
}
