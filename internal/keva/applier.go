package keva

import (
	"github.com/kevanet/kevachain/pkg/tx"
	"github.com/kevanet/kevachain/pkg/types"
)

// Applier mutates a View given a validated transaction and records
// per-op undo data into a block-level undo log (§4.6).
type Applier struct {
	notifier *Notifier
}

// NewApplier returns an Applier that fires events through notifier
// (may be nil, in which case events are simply not delivered).
func NewApplier(notifier *Notifier) *Applier {
	if notifier == nil {
		notifier = NewNotifier()
	}
	return &Applier{notifier: notifier}
}

// ApplyTx applies t's keva output (already validated by Validator) to
// view, appending undo records to undo so the mutation can later be
// reversed by UndoTx.
func (a *Applier) ApplyTx(t *tx.Transaction, height uint64, ex *Extraction, view View, undo *BlockUndo) error {
	if !ex.HasOut {
		return nil
	}
	out := ex.Out

	key := out.Key
	if out.Op == OpNamespaceRegister {
		key = Key(DisplayNameKey)
	}

	old, hadOld, err := view.Get(out.Namespace, key)
	if err != nil {
		return err
	}
	txUndo := TxUndo{Namespace: out.Namespace, Key: key, IsNew: !hadOld}
	if hadOld {
		txUndo.OldEntry = old
	}

	if out.Op == OpDelete {
		if hadOld {
			view.Delete(out.Namespace, key)
			undo.Records = append(undo.Records, txUndo)
			a.notifier.keyDeleted(t, height, out.Namespace, key)
		}
		a.applyAssociationTeardown(t, height, out, view, undo)
		return nil
	}

	value := out.Value
	if out.Op == OpNamespaceRegister {
		value = out.DisplayName
	}

	entry := Entry{
		Value:          value,
		Height:         uint32(height),
		UpdateOutpoint: types.Outpoint{TxID: t.Hash(), Index: uint32(ex.OutIndex)},
	}
	view.Set(out.Namespace, key, entry)
	undo.Records = append(undo.Records, txUndo)

	switch out.Op {
	case OpNamespaceRegister:
		a.notifier.namespaceCreated(t, height, out.Namespace)
	case OpPut:
		a.notifier.keyUpdated(t, height, out.Namespace, key, value)
		a.applyAssociationUpdate(t, height, out, entry, view, undo)
	}

	return nil
}

// applyAssociationUpdate checks whether a Put's key is of the form
// "_g:<base58check(target)>" and, if so, materializes or tears down the
// association depending on whether the value is non-empty (§4.6).
func (a *Applier) applyAssociationUpdate(t *tx.Transaction, height uint64, out *Operation, entry Entry, view View, undo *BlockUndo) {
	target, ok := ParseAssociationTarget(out.Key)
	if !ok {
		return
	}
	from, to := target, out.Namespace

	oldAssoc, hadOld, err := view.GetAssociation(from, to)
	if err != nil {
		return
	}
	assocUndo := TxUndo{IsAssociation: true, From: from, To: to, IsNew: !hadOld}
	if hadOld {
		assocUndo.OldEntry = oldAssoc
	}

	if len(out.Value) == 0 {
		if hadOld {
			view.Disassociate(from, to)
			undo.Records = append(undo.Records, assocUndo)
		}
		return
	}

	view.Associate(from, to, entry)
	undo.Records = append(undo.Records, assocUndo)
}

// applyAssociationTeardown mirrors applyAssociationUpdate for a Delete
// on a "_g:<...>" key: always tears down the association if present.
func (a *Applier) applyAssociationTeardown(t *tx.Transaction, height uint64, out *Operation, view View, undo *BlockUndo) {
	target, ok := ParseAssociationTarget(out.Key)
	if !ok {
		return
	}
	from, to := target, out.Namespace

	oldAssoc, hadOld, err := view.GetAssociation(from, to)
	if err != nil || !hadOld {
		return
	}
	undo.Records = append(undo.Records, TxUndo{IsAssociation: true, From: from, To: to, IsNew: false, OldEntry: oldAssoc})
	view.Disassociate(from, to)
}

// UndoTx reverses a single TxUndo record against view (§4.6): if the
// record marks a fresh write (IsNew), the (now-stale) entry is deleted
// (tolerating absence); otherwise the prior entry is restored.
func UndoTx(u TxUndo, view View) {
	if u.IsAssociation {
		if u.IsNew {
			view.Disassociate(u.From, u.To)
		} else {
			view.Associate(u.From, u.To, u.OldEntry)
		}
		return
	}
	if u.IsNew {
		view.Delete(u.Namespace, u.Key)
	} else {
		view.Set(u.Namespace, u.Key, u.OldEntry)
	}
}

// UndoBlock reverses every record in undo against view, in reverse
// insertion order (§4.6, P2 round-trip).
func UndoBlock(undo *BlockUndo, view View) {
	for i := len(undo.Records) - 1; i >= 0; i-- {
		UndoTx(undo.Records[i], view)
	}
}
