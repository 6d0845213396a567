package keva

import (
	"github.com/kevanet/kevachain/pkg/tx"
)

// Notifier fans out namespace-created / key-updated / key-deleted
// events after a successful apply (§4.8). Delivery is synchronous and
// failures never affect consensus-critical state — callbacks that
// panic or are slow are the caller's problem, not the Applier's.
type Notifier struct {
	onNamespaceCreated func(t *tx.Transaction, height uint64, nsEncoded string)
	onKeyUpdated       func(t *tx.Transaction, height uint64, nsEncoded, key, value string)
	onKeyDeleted       func(t *tx.Transaction, height uint64, nsEncoded, key string)
}

// NewNotifier returns a Notifier with no subscribers; callers attach
// handlers with the SetXxx setters below, mirroring the Chain handler-
// callback wiring pattern used elsewhere in this repo.
func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) SetNamespaceCreatedHandler(fn func(t *tx.Transaction, height uint64, nsEncoded string)) {
	n.onNamespaceCreated = fn
}

func (n *Notifier) SetKeyUpdatedHandler(fn func(t *tx.Transaction, height uint64, nsEncoded, key, value string)) {
	n.onKeyUpdated = fn
}

func (n *Notifier) SetKeyDeletedHandler(fn func(t *tx.Transaction, height uint64, nsEncoded, key string)) {
	n.onKeyDeleted = fn
}

func (n *Notifier) namespaceCreated(t *tx.Transaction, height uint64, ns NamespaceId) {
	if n.onNamespaceCreated != nil {
		n.onNamespaceCreated(t, height, EncodeNamespace(ns))
	}
}

func (n *Notifier) keyUpdated(t *tx.Transaction, height uint64, ns NamespaceId, key Key, value Value) {
	if n.onKeyUpdated != nil {
		n.onKeyUpdated(t, height, EncodeNamespace(ns), string(key), string(value))
	}
}

func (n *Notifier) keyDeleted(t *tx.Transaction, height uint64, ns NamespaceId, key Key) {
	if n.onKeyDeleted != nil {
		n.onKeyDeleted(t, height, EncodeNamespace(ns), string(key))
	}
}
