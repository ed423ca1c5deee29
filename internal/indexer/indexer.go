// Package indexer implements the single-writer claim/support/channel
// indexing state machine (spec §4.4): it ingests one block at a time,
// derives all claim-trie state, and stages the result through a
// revertable op-stack before committing it to the store.
package indexer

import (
	"fmt"
	"sync"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
	"github.com/Klingon-tech/klingnet-hub/internal/log"
	"github.com/Klingon-tech/klingnet-hub/internal/revertable"
	"github.com/Klingon-tech/klingnet-hub/internal/store"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// CHash is the claim-hash type used throughout the indexer.
type CHash = codec.ClaimHash

// Config enumerates the explicit, statically-typed settings spec §9
// calls for in place of a dynamically-typed configuration object.
type Config struct {
	ReorgLimit          uint32
	MaxUndoDepth         uint32
	BlockFilterChannels  []CHash
	ResolveFilterChannels []CHash
	FirstSyncShutdown    bool
}

// Indexer is the single-writer block processor. Exactly one AdvanceBlock
// or RollbackBlock call may be in flight at a time (spec §5); Mu is held
// for the whole block.
type Indexer struct {
	mu  sync.Mutex
	st  *store.Store
	cfg Config

	height  uint32
	tip     types.Hash
	genesis types.Hash
	txCount uint32

	subsMu sync.Mutex
	subs   []chan ChangeNotification
}

// New constructs an Indexer over an opened store, recovering its cursor
// from the persisted DB-state singleton row if present.
func New(st *store.Store, cfg Config) (*Indexer, error) {
	idx := &Indexer{st: st, cfg: cfg}
	if raw, ok := st.Get(codec.PackDBStateKey()); ok {
		state, err := codec.UnpackDBStateValue(raw)
		if err != nil {
			return nil, fmt.Errorf("indexer: corrupt db state: %w", err)
		}
		idx.height = state.Height
		idx.txCount = state.TxCount
		idx.tip = types.Hash(state.Tip)
		idx.genesis = types.Hash(state.Genesis)
	}
	return idx, nil
}

// Height returns the last committed height.
func (idx *Indexer) Height() uint32 { return idx.height }

// Tip returns the last committed block hash.
func (idx *Indexer) Tip() types.Hash { return idx.tip }

// Subscribe registers a channel that receives every committed block's
// change notification (spec §6). The channel is never closed by the
// indexer; callers drop it by discarding their reference.
func (idx *Indexer) Subscribe() <-chan ChangeNotification {
	ch := make(chan ChangeNotification, 64)
	idx.subsMu.Lock()
	idx.subs = append(idx.subs, ch)
	idx.subsMu.Unlock()
	return ch
}

func (idx *Indexer) broadcast(n ChangeNotification) {
	idx.subsMu.Lock()
	defer idx.subsMu.Unlock()
	for _, ch := range idx.subs {
		select {
		case ch <- n:
		default:
			log.Indexer.Warn().Msg("change-stream subscriber dropped a notification: channel full")
		}
	}
}

// AdvanceBlock ingests one block at the next expected height, following
// the seven-step procedure in spec §4.4. It aborts the entire block
// (discarding all staged ops, committing nothing) on any error.
func (idx *Indexer) AdvanceBlock(blk RawBlock, blockHash types.Hash) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.advanceBlockLocked(blk, blockHash)
}

// advanceBlockLocked is AdvanceBlock's body, callable by Reorg while
// already holding idx.mu across an entire unwind-then-replay sequence.
func (idx *Indexer) advanceBlockLocked(blk RawBlock, blockHash types.Hash) error {
	if idx.height != 0 || !idx.tip.IsZero() {
		if blk.Height != idx.height+1 {
			return fmt.Errorf("%w: expected height %d, got %d", ErrOutOfOrder, idx.height+1, blk.Height)
		}
	}

	b := newBlockBuilder(idx.st, blk.Height, idx.txCount)

	// Step 1: record header + block hash.
	if err := b.putHeader(blk.Header, blockHash); err != nil {
		b.stack.Clear()
		return err
	}

	// Step 2: per-transaction processing.
	for _, t := range blk.Transactions {
		if err := b.processTransaction(t); err != nil {
			b.stack.Clear()
			return fmt.Errorf("indexer: block %d: %w", blk.Height, err)
		}
	}

	if err := b.finalizeTxCount(); err != nil {
		b.stack.Clear()
		return err
	}

	// Step 3: expire claims scheduled for this height.
	if err := b.expireClaims(); err != nil {
		b.stack.Clear()
		return err
	}

	// Step 4: takeover/activation pass.
	if err := b.runTakeovers(); err != nil {
		b.stack.Clear()
		return err
	}

	// Step 5: effective-amount index maintenance.
	if err := b.reconcileEffectiveAmounts(); err != nil {
		b.stack.Clear()
		return err
	}

	// Step 6: touched-or-deleted diff.
	if err := b.writeTouchedOrDeleted(); err != nil {
		b.stack.Clear()
		return err
	}

	// Step 7: append undo + commit.
	newState := codec.DBStateValue{
		Genesis:       idx.genesisOrSelf(blk.Height, blockHash),
		Height:        blk.Height,
		TxCount:       b.txNum,
		Tip:           blockHash,
		FirstSync:     false,
		SchemaVersion: schemaVersion,
	}
	stateKey := codec.PackDBStateKey()
	if oldRaw, ok := idx.st.Get(stateKey); ok {
		if err := b.stack.AppendOp(revertable.Delete(stateKey, oldRaw)); err != nil {
			b.stack.Clear()
			return err
		}
	}
	if err := b.stack.AppendOp(revertable.Put(stateKey, codec.PackDBStateValue(newState))); err != nil {
		b.stack.Clear()
		return err
	}

	if err := idx.st.Commit(blk.Height, blockHash, b.stack); err != nil {
		return err
	}

	idx.height = blk.Height
	idx.tip = blockHash
	idx.txCount = b.txNum
	if idx.genesis.IsZero() {
		idx.genesis = newState.Genesis
	}

	idx.broadcast(ChangeNotification{
		Height:  blk.Height,
		Hash:    blockHash,
		Touched: setToSlice(b.touched),
		Deleted: setToSlice(b.removed),
	})
	return nil
}

func (idx *Indexer) genesisOrSelf(height uint32, hash types.Hash) [32]byte {
	if height == 0 {
		return [32]byte(hash)
	}
	return [32]byte(idx.genesis)
}

const schemaVersion = 1

func setToSlice(m map[CHash]bool) []CHash {
	out := make([]CHash, 0, len(m))
	for h := range m {
		out = append(out, h)
	}
	return out
}
