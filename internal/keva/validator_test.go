package keva

import (
	"errors"
	"testing"

	"github.com/kevanet/kevachain/pkg/tx"
	"github.com/kevanet/kevachain/pkg/types"
)

// fakeCoinSource is an in-memory CoinSource for validator/applier/mempool tests.
type fakeCoinSource map[types.Outpoint]tx.Output

func (f fakeCoinSource) GetOutput(op types.Outpoint) (types.Script, uint64, bool, error) {
	out, ok := f[op]
	if !ok {
		return types.Script{}, 0, false, nil
	}
	return out.Script, out.Value, true, nil
}

func namespaceRegisterTx(prevOut types.Outpoint, ns NamespaceId, displayName string, value uint64) *tx.Transaction {
	return &tx.Transaction{
		Inputs: []tx.Input{{PrevOut: prevOut}},
		Outputs: []tx.Output{
			{Value: value, Script: BuildNamespaceScript(ns, Value(displayName))},
		},
	}
}

func TestValidator_NamespaceRegister_Valid(t *testing.T) {
	params := RegtestParams()
	v := NewValidator(params)

	prevOut := types.Outpoint{TxID: types.Hash{0xaa}, Index: 0}
	ns := DeriveNamespace(prevOut.TxID, prevOut.Index, true, params)
	tr := namespaceRegisterTx(prevOut, ns, "hello", params.LockedAmount)

	coins := fakeCoinSource{}
	ex, err := v.CheckTx(tr, 100, coins)
	if err != nil {
		t.Fatalf("CheckTx: %v", err)
	}
	if !ex.HasOut || ex.Out.Op != OpNamespaceRegister {
		t.Fatalf("Extraction = %+v, want NamespaceRegister output", ex)
	}
}

// TestValidator_GreedyNameRejected anchors on scenario 6: identical to
// scenario 1 but with output value one unit below the locked amount.
func TestValidator_GreedyNameRejected(t *testing.T) {
	params := RegtestParams()
	v := NewValidator(params)

	prevOut := types.Outpoint{TxID: types.Hash{0xaa}, Index: 0}
	ns := DeriveNamespace(prevOut.TxID, prevOut.Index, true, params)
	tr := namespaceRegisterTx(prevOut, ns, "hello", params.LockedAmount-1)

	_, err := v.CheckTx(tr, 100, fakeCoinSource{})
	if !errors.Is(err, ErrGreedyName) {
		t.Fatalf("CheckTx error = %v, want ErrGreedyName", err)
	}
}

func TestValidator_NamespaceMismatchRejected(t *testing.T) {
	params := RegtestParams()
	v := NewValidator(params)

	prevOut := types.Outpoint{TxID: types.Hash{0xaa}, Index: 0}
	wrongNs := testNamespace(0x99)
	tr := namespaceRegisterTx(prevOut, wrongNs, "hello", params.LockedAmount)

	_, err := v.CheckTx(tr, 100, fakeCoinSource{})
	if !errors.Is(err, ErrNamespaceMismatch) {
		t.Fatalf("CheckTx error = %v, want ErrNamespaceMismatch", err)
	}
}

func TestValidator_DisplayNameTooLong(t *testing.T) {
	params := RegtestParams()
	v := NewValidator(params)

	prevOut := types.Outpoint{TxID: types.Hash{0xaa}, Index: 0}
	ns := DeriveNamespace(prevOut.TxID, prevOut.Index, true, params)
	longName := make([]byte, MaxValueLength+1)
	tr := namespaceRegisterTx(prevOut, ns, string(longName), params.LockedAmount)

	_, err := v.CheckTx(tr, 100, fakeCoinSource{})
	if !errors.Is(err, ErrDisplayNameTooLong) {
		t.Fatalf("CheckTx error = %v, want ErrDisplayNameTooLong", err)
	}
}

func TestValidator_PutWithoutKevaInputRejected(t *testing.T) {
	params := RegtestParams()
	v := NewValidator(params)
	ns := testNamespace(0x20)

	tr := &tx.Transaction{
		Inputs:  []tx.Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x01}, Index: 0}}},
		Outputs: []tx.Output{{Value: params.LockedAmount, Script: BuildPutScript(ns, Key("k"), Value("v"))}},
	}

	_, err := v.CheckTx(tr, 100, fakeCoinSource{})
	if !errors.Is(err, ErrNoKevaInput) {
		t.Fatalf("CheckTx error = %v, want ErrNoKevaInput", err)
	}
}

func TestValidator_PutNamespaceMustMatchInput(t *testing.T) {
	params := RegtestParams()
	v := NewValidator(params)

	registerNs := testNamespace(0x21)
	putNs := testNamespace(0x22)
	inPrev := types.Outpoint{TxID: types.Hash{0x02}, Index: 0}

	coins := fakeCoinSource{
		inPrev: {Value: params.LockedAmount, Script: BuildNamespaceScript(registerNs, Value("name"))},
	}
	tr := &tx.Transaction{
		Inputs:  []tx.Input{{PrevOut: inPrev}},
		Outputs: []tx.Output{{Value: params.LockedAmount, Script: BuildPutScript(putNs, Key("k"), Value("v"))}},
	}

	_, err := v.CheckTx(tr, 100, coins)
	if !errors.Is(err, ErrNamespaceIOMismatch) {
		t.Fatalf("CheckTx error = %v, want ErrNamespaceIOMismatch", err)
	}
}

func TestValidator_PutValid(t *testing.T) {
	params := RegtestParams()
	v := NewValidator(params)

	ns := testNamespace(0x23)
	inPrev := types.Outpoint{TxID: types.Hash{0x03}, Index: 0}

	coins := fakeCoinSource{
		inPrev: {Value: params.LockedAmount, Script: BuildNamespaceScript(ns, Value("name"))},
	}
	tr := &tx.Transaction{
		Inputs:  []tx.Input{{PrevOut: inPrev}},
		Outputs: []tx.Output{{Value: params.LockedAmount, Script: BuildPutScript(ns, Key("k"), Value("v"))}},
	}

	ex, err := v.CheckTx(tr, 100, coins)
	if err != nil {
		t.Fatalf("CheckTx: %v", err)
	}
	if ex.Out.Op != OpPut {
		t.Fatalf("Extraction.Out.Op = %v, want Put", ex.Out.Op)
	}
}

func TestValidator_KeyTooLong(t *testing.T) {
	params := RegtestParams()
	v := NewValidator(params)

	ns := testNamespace(0x24)
	inPrev := types.Outpoint{TxID: types.Hash{0x04}, Index: 0}
	coins := fakeCoinSource{
		inPrev: {Value: params.LockedAmount, Script: BuildNamespaceScript(ns, Value("name"))},
	}
	longKey := make([]byte, MaxKeyLength+1)
	tr := &tx.Transaction{
		Inputs:  []tx.Input{{PrevOut: inPrev}},
		Outputs: []tx.Output{{Value: params.LockedAmount, Script: BuildPutScript(ns, Key(longKey), Value("v"))}},
	}

	_, err := v.CheckTx(tr, 100, coins)
	if !errors.Is(err, ErrKeyTooLong) {
		t.Fatalf("CheckTx error = %v, want ErrKeyTooLong", err)
	}
}

func TestValidator_NonKevaTxPassesThrough(t *testing.T) {
	params := RegtestParams()
	v := NewValidator(params)

	tr := &tx.Transaction{
		Inputs:  []tx.Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x05}, Index: 0}}},
		Outputs: []tx.Output{{Value: 1000, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}
	ex, err := v.CheckTx(tr, 100, fakeCoinSource{})
	if err != nil {
		t.Fatalf("CheckTx: %v", err)
	}
	if ex.HasIn || ex.HasOut {
		t.Fatalf("Extraction = %+v, want no keva I/O", ex)
	}
}

func TestExtract_MultipleKevaOutputsRejected(t *testing.T) {
	ns := testNamespace(0x25)
	tr := &tx.Transaction{
		Inputs: []tx.Input{{PrevOut: types.Outpoint{TxID: types.Hash{0x06}, Index: 0}}},
		Outputs: []tx.Output{
			{Value: 1_000_000, Script: BuildPutScript(ns, Key("a"), Value("1"))},
			{Value: 1_000_000, Script: BuildPutScript(ns, Key("b"), Value("2"))},
		},
	}
	_, err := Extract(tr, fakeCoinSource{})
	if !errors.Is(err, ErrMultipleKevaOutputs) {
		t.Fatalf("Extract error = %v, want ErrMultipleKevaOutputs", err)
	}
}

func TestExtract_MultipleKevaInputsRejected(t *testing.T) {
	ns := testNamespace(0x26)
	in1 := types.Outpoint{TxID: types.Hash{0x07}, Index: 0}
	in2 := types.Outpoint{TxID: types.Hash{0x08}, Index: 0}
	coins := fakeCoinSource{
		in1: {Value: 1_000_000, Script: BuildNamespaceScript(ns, Value("a"))},
		in2: {Value: 1_000_000, Script: BuildNamespaceScript(ns, Value("b"))},
	}
	tr := &tx.Transaction{
		Inputs:  []tx.Input{{PrevOut: in1}, {PrevOut: in2}},
		Outputs: []tx.Output{{Value: 1_000_000, Script: BuildPutScript(ns, Key("k"), Value("v"))}},
	}
	_, err := Extract(tr, coins)
	if !errors.Is(err, ErrMultipleKevaInputs) {
		t.Fatalf("Extract error = %v, want ErrMultipleKevaInputs", err)
	}
}
