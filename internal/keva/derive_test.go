package keva

import (
	"bytes"

	"github.com/kevanet/kevachain/pkg/crypto"
	"github.com/kevanet/kevachain/pkg/types"
	"testing"
)

// TestDeriveNamespace_WorkedExample anchors on the spec's scenario 1:
// tx T1 spends outpoint (0xaa...aa, 0); N = 0x35 || ripemd160(sha256(0xaa..aa || "0")).
func TestDeriveNamespace_WorkedExample(t *testing.T) {
	var txHash types.Hash
	for i := range txHash {
		txHash[i] = 0xaa
	}
	params := RegtestParams()

	got := DeriveNamespace(txHash, 0, true, params)

	want := make([]byte, 0, 32+1)
	want = append(want, txHash[:]...)
	want = append(want, '0')
	wantHash := crypto.Hash160(want)

	if got[0] != params.NamespacePrefix {
		t.Fatalf("prefix byte = %#x, want %#x", got[0], params.NamespacePrefix)
	}
	if !bytes.Equal(got[1:], wantHash) {
		t.Fatalf("derivation hash = %x, want %x", got[1:], wantHash)
	}
	if len(got) != NamespaceLen {
		t.Fatalf("NamespaceId length = %d, want %d", len(got), NamespaceLen)
	}
}

func TestDeriveNamespace_NSFixChangesResult(t *testing.T) {
	txHash := types.Hash{0x01, 0x02, 0x03}
	params := RegtestParams()

	withFix := DeriveNamespace(txHash, 5, true, params)
	withoutFix := DeriveNamespace(txHash, 5, false, params)

	if withFix.Equal(withoutFix) {
		t.Fatal("ns-fix on/off should change the derived namespace when vout is nonzero")
	}
}

func TestDeriveNamespace_Deterministic(t *testing.T) {
	txHash := types.Hash{0xff, 0xee, 0xdd}
	params := RegtestParams()

	a := DeriveNamespace(txHash, 2, true, params)
	b := DeriveNamespace(txHash, 2, true, params)
	if !a.Equal(b) {
		t.Fatal("DeriveNamespace must be a pure function of its inputs (P5)")
	}
}

func TestNSFixActive_Mainnet(t *testing.T) {
	params := MainParams(0x35, 1_000_000)
	if params.NSFixActive(130112) {
		t.Fatal("ns-fix should not be active exactly at the fork height")
	}
	if !params.NSFixActive(130113) {
		t.Fatal("ns-fix should be active strictly above the fork height")
	}
}

func TestNSFixActive_NonMainAlwaysActive(t *testing.T) {
	params := TestParams(ChainTest, 0x6f, 0)
	if !params.NSFixActive(0) {
		t.Fatal("ns-fix should always be active on non-MAIN chains")
	}
}
