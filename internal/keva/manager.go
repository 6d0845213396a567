package keva

import (
	"fmt"

	"github.com/kevanet/kevachain/internal/log"
	"github.com/kevanet/kevachain/internal/utxo"
	"github.com/kevanet/kevachain/pkg/block"
	"github.com/kevanet/kevachain/pkg/types"
)

// Manager wires the keva Store, View, Validator, Applier, Mempool and
// Notifier together and is the entry point block processing and reorg
// code call into, analogous to internal/subchain's manager and to the
// Chain handler-callback pattern it's attached through.
type Manager struct {
	store     *Store
	view      *StoreView
	params    ChainParams
	validator *Validator
	applier   *Applier
	mempool   *Mempool
	notifier  *Notifier
	utxos     utxo.Set
}

// NewManager returns a Manager persisting through store and resolving
// spent keva outputs through utxos, enforcing params' consensus rules.
func NewManager(store *Store, utxos utxo.Set, params ChainParams) *Manager {
	notifier := NewNotifier()
	return &Manager{
		store:     store,
		view:      NewStoreView(store),
		params:    params,
		validator: NewValidator(params),
		applier:   NewApplier(notifier),
		mempool:   NewMempool(params),
		notifier:  notifier,
		utxos:     utxos,
	}
}

// Notifier returns the Manager's event fan-out, for attaching
// subscribers (e.g. websocket/log forwarding in the node layer).
func (m *Manager) Notifier() *Notifier { return m.notifier }

// Mempool returns the Manager's unconfirmed-mutation projection.
func (m *Manager) Mempool() *Mempool { return m.mempool }

// View returns the Manager's confirmed-state StoreView, for read-only
// query paths (RPC handlers) that need to compose a CacheView over it
// for mempool-aware reads.
func (m *Manager) View() *StoreView { return m.view }

// blockCoinSource resolves a transaction input's previous output
// against the outputs of transactions earlier in the same block
// before falling back to the confirmed UTXO set, so keva inputs that
// spend same-block outputs resolve correctly regardless of whether
// the UTXO set has already recorded the spend.
type blockCoinSource struct {
	script map[types.Outpoint]types.Script
	value  map[types.Outpoint]uint64
	utxos  utxo.Set
}

func newBlockCoinSource(blk *block.Block, utxos utxo.Set) *blockCoinSource {
	bc := &blockCoinSource{
		script: make(map[types.Outpoint]types.Script),
		value:  make(map[types.Outpoint]uint64),
		utxos:  utxos,
	}
	for _, t := range blk.Transactions {
		h := t.Hash()
		for i, out := range t.Outputs {
			op := types.Outpoint{TxID: h, Index: uint32(i)}
			bc.script[op] = out.Script
			bc.value[op] = out.Value
		}
	}
	return bc
}

func (bc *blockCoinSource) GetOutput(op types.Outpoint) (types.Script, uint64, bool, error) {
	if s, ok := bc.script[op]; ok {
		return s, bc.value[op], true, nil
	}
	u, err := bc.utxos.Get(op)
	if err != nil || u == nil {
		return types.Script{}, 0, false, nil
	}
	return u.Script, u.Value, true, nil
}

// ValidateBlock runs CheckTx over every transaction in blk at height
// without mutating any state, so it can gate block acceptance the same
// way token.ValidateTokens gates validateBlockState: called before the
// block is committed as the new tip, so a keva-invalid transaction
// (bad namespace derivation, a greedy-name violation, a malformed
// input/output pairing) rejects the whole block instead of surfacing
// only after ApplyBlock runs post-commit.
func (m *Manager) ValidateBlock(blk *block.Block, height uint64) error {
	coins := newBlockCoinSource(blk, m.utxos)
	for _, t := range blk.Transactions {
		if _, err := m.validator.CheckTx(t, height, coins); err != nil {
			return fmt.Errorf("keva: validate tx %s: %w", t.Hash(), err)
		}
	}
	return nil
}

// ApplyBlock validates and applies every transaction's keva operation
// in blk at height against a fresh CacheView over the confirmed
// StoreView, flushing the result atomically on success. The returned
// BlockUndo is also persisted under blk's hash so a later reorg can
// call RevertBlock. A block with no keva activity still gets an
// (empty) undo record, matching the rest of the chain's per-block
// undo bookkeeping.
func (m *Manager) ApplyBlock(blk *block.Block, height uint64) (*BlockUndo, error) {
	coins := newBlockCoinSource(blk, m.utxos)
	view := NewCacheView(m.view)
	undo := &BlockUndo{}

	applied := make([]types.Hash, 0, len(blk.Transactions))
	for _, t := range blk.Transactions {
		ex, err := m.validator.CheckTx(t, height, coins)
		if err != nil {
			return nil, fmt.Errorf("keva: validate tx %s: %w", t.Hash(), err)
		}
		if err := m.applier.ApplyTx(t, height, ex, view, undo); err != nil {
			return nil, fmt.Errorf("keva: apply tx %s: %w", t.Hash(), err)
		}
		applied = append(applied, t.Hash())
	}

	if err := view.Flush(); err != nil {
		return nil, fmt.Errorf("keva: flush block %d: %w", height, err)
	}
	blockHash := blk.Hash()
	if err := m.store.PutBlockUndo(blockHash, undo); err != nil {
		return nil, fmt.Errorf("keva: persist undo for block %d: %w", height, err)
	}

	// Only now that the block's keva mutations are durably flushed do we
	// drop these transactions' unconfirmed projections — if any earlier
	// step above had failed, the mempool must still consider them pending.
	for _, h := range applied {
		m.mempool.Remove(h)
	}

	log.Keva.Debug().Uint64("height", height).Int("records", len(undo.Records)).Msg("keva: block applied")
	return undo, nil
}

// RevertBlock reverses blk's persisted keva undo log directly against
// the Store (outside a CacheView, matching StoreView's direct-write
// fixtures path), and deletes the undo log once consumed. It is a
// no-op if blk never had any keva activity.
func (m *Manager) RevertBlock(blk *block.Block) error {
	blockHash := blk.Hash()
	undo, err := m.store.GetBlockUndo(blockHash)
	if IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("keva: load undo for block %s: %w", blockHash, err)
	}
	UndoBlock(undo, m.view)
	if err := m.store.DeleteBlockUndo(blockHash); err != nil {
		return fmt.Errorf("keva: delete undo for block %s: %w", blockHash, err)
	}
	log.Keva.Debug().Str("block", blockHash.String()).Int("records", len(undo.Records)).Msg("keva: block reverted")
	return nil
}
