package keva

import (
	"fmt"

	"github.com/kevanet/kevachain/pkg/tx"
	"github.com/kevanet/kevachain/pkg/types"
)

// CoinSource resolves a transaction input's previous output, giving the
// Validator and Applier access to the spent output's script and value
// without depending on the concrete UTXO set implementation (the core
// treats coin inputs/outputs as an abstract CoinView, per spec §1).
type CoinSource interface {
	GetOutput(op types.Outpoint) (types.Script, uint64, bool, error)
}

// Extraction is the structural result of scanning a transaction for
// keva inputs/outputs (§4.5).
type Extraction struct {
	HasIn    bool
	In       *Operation
	InIndex  int
	HasOut   bool
	Out      *Operation
	OutIndex int
	OutValue uint64
}

// Extract scans t's inputs and outputs for keva ops, enforcing the
// single-keva-input/single-keva-output rule (§4.5, P7).
func Extract(t *tx.Transaction, coins CoinSource) (Extraction, error) {
	var ex Extraction

	for i, in := range t.Inputs {
		script, _, found, err := coins.GetOutput(in.PrevOut)
		if err != nil {
			return ex, fmt.Errorf("keva: resolve input %d: %w", i, err)
		}
		if !found || !IsKevaScriptType(script.Type) {
			continue
		}
		op, ok := ParseScript(script)
		if !ok {
			continue
		}
		if ex.HasIn {
			return ex, ErrMultipleKevaInputs
		}
		ex.HasIn = true
		ex.In = op
		ex.InIndex = i
	}

	for i, out := range t.Outputs {
		if !IsKevaScriptType(out.Script.Type) {
			continue
		}
		op, ok := ParseScript(out.Script)
		if !ok {
			continue
		}
		if ex.HasOut {
			return ex, ErrMultipleKevaOutputs
		}
		ex.HasOut = true
		ex.Out = op
		ex.OutIndex = i
		ex.OutValue = out.Value
	}

	return ex, nil
}

// Validator checks whether a transaction's keva operation is
// well-formed with respect to a CoinSource (§4.5). It holds no mutable
// state; all checks are pure functions of (tx, height, coins, params).
type Validator struct {
	params ChainParams
}

// NewValidator returns a Validator bound to params.
func NewValidator(params ChainParams) *Validator {
	return &Validator{params: params}
}

// CheckTx validates t's keva operation, if any, at height. t counts as a
// kevacoin transaction when it has a keva input or output (§9 DESIGN
// NOTES: self-describing rather than a dedicated version-flag
// convention); no caller-supplied marker is consulted.
func (v *Validator) CheckTx(t *tx.Transaction, height uint64, coins CoinSource) (*Extraction, error) {
	ex, err := Extract(t, coins)
	if err != nil {
		return nil, err
	}

	isKevacoin := ex.HasIn || ex.HasOut
	if !isKevacoin {
		return &ex, nil
	}
	if !ex.HasOut {
		return &ex, ErrMissingKevaOutput
	}

	if ex.OutValue < v.params.LockedAmount {
		return &ex, ErrGreedyName
	}

	switch ex.Out.Op {
	case OpNamespaceRegister:
		if len(ex.Out.DisplayName) > MaxValueLength {
			return &ex, ErrDisplayNameTooLong
		}
		nsFix := v.params.NSFixActive(height)
		prevOut := t.Inputs[0].PrevOut
		expected := DeriveNamespace(prevOut.TxID, prevOut.Index, nsFix, v.params)
		if !expected.Equal(ex.Out.Namespace) {
			return &ex, ErrNamespaceMismatch
		}

	case OpPut, OpDelete:
		if !ex.HasIn {
			return &ex, ErrNoKevaInput
		}
		if len(ex.Out.Key) > MaxKeyLength {
			return &ex, ErrKeyTooLong
		}
		if ex.Out.Op == OpPut && len(ex.Out.Value) > MaxValueLength {
			return &ex, ErrValueTooLong
		}
		if !ex.In.Namespace.Equal(ex.Out.Namespace) {
			return &ex, ErrNamespaceIOMismatch
		}
		if ex.In.Op != OpNamespaceRegister && ex.In.Op != OpPut && ex.In.Op != OpDelete {
			return &ex, ErrInvalidPriorOp
		}

	default:
		return &ex, fmt.Errorf("keva: unknown op %v", ex.Out.Op)
	}

	return &ex, nil
}
