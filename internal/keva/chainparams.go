package keva

// ChainType distinguishes consensus activation behavior by network.
// Threaded explicitly rather than resolved from a process-wide
// singleton (§9 DESIGN NOTES).
type ChainType int

const (
	ChainMain ChainType = iota
	ChainTest
	ChainSignet
	ChainRegtest
)

// ChainParams carries the chain-specific values derive_namespace and the
// validator need: the Base58Check version byte for namespace IDs, the
// chain type (for ns-fix activation), and the height at which ns-fix
// activates on MAIN.
type ChainParams struct {
	Type ChainType

	// NamespacePrefix is the one-byte chain-specific prefix prepended to
	// a derived namespace hash (the "KEVA_NAMESPACE" Base58Check version).
	NamespacePrefix byte

	// NSFixHeight is the MAIN-only activation height; ns-fix is active
	// for height > NSFixHeight. Ignored for non-MAIN chains, where
	// ns-fix is always active.
	NSFixHeight uint64

	// LockedAmount is KEVA_LOCKED_AMOUNT, the minimum registration
	// output value, in base units.
	LockedAmount uint64
}

// NSFixActive reports whether the ns-fix consensus rule (include the
// ascii-decimal vout index in namespace derivation) is active at height.
// MAIN activates strictly above NSFixHeight; every other chain type is
// always active, matching the worked example's use of REGTEST.
func (p ChainParams) NSFixActive(height uint64) bool {
	if p.Type != ChainMain {
		return true
	}
	return height > p.NSFixHeight
}

// RegtestParams returns the parameters used by the spec's worked
// end-to-end scenarios: ns-fix always active, prefix byte 0x35 (53).
func RegtestParams() ChainParams {
	return ChainParams{
		Type:            ChainRegtest,
		NamespacePrefix: 0x35,
		LockedAmount:    1_000_000,
	}
}

// MainParams returns mainnet parameters: ns-fix activates above height
// 130112, matching the original implementation's fork height.
func MainParams(prefix byte, lockedAmount uint64) ChainParams {
	return ChainParams{
		Type:            ChainMain,
		NamespacePrefix: prefix,
		NSFixHeight:     130112,
		LockedAmount:    lockedAmount,
	}
}

// TestParams returns testnet/signet parameters: ns-fix always active.
func TestParams(chainType ChainType, prefix byte, lockedAmount uint64) ChainParams {
	return ChainParams{
		Type:            chainType,
		NamespacePrefix: prefix,
		LockedAmount:    lockedAmount,
	}
}
