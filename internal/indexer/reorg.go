package indexer

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
	"github.com/Klingon-tech/klingnet-hub/internal/log"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// BlockHashAt returns the hash recorded for a committed height, for
// callers (e.g. the prefetcher) locating a reorg's fork point.
func (idx *Indexer) BlockHashAt(height uint32) (types.Hash, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.blockHashAt(height)
}

// blockHashAt returns the hash recorded for a committed height.
func (idx *Indexer) blockHashAt(height uint32) (types.Hash, bool) {
	raw, ok := idx.st.Get(codec.PackBlockHashKey(codec.BlockHashKey{Height: height}))
	if !ok {
		return types.Hash{}, false
	}
	h, err := codec.UnpackBlockHashValue(raw)
	if err != nil {
		return types.Hash{}, false
	}
	return h, true
}

// Reorg handles a prefetcher-reported divergence from the upstream node
// (spec §4.4.3). newBranch holds the replacement blocks for heights
// forkHeight+1 onward, and newBranchHashes[i] is the block hash of
// newBranch[i]. The caller (the prefetcher) finds forkHeight by walking
// the upstream node's chain backward until a height/hash pair matches
// what this indexer has recorded, i.e. the fork point.
//
// Reorg never touches in-memory indexer state directly except by
// rolling blocks all the way back to the fork point and then calling
// AdvanceBlock to replay the new branch — after a rollback completes,
// Height/Tip are reinitialized purely from what the store now holds,
// exactly as the spec requires ("rollback never touches the indexer's
// in-memory state except to reinitialize from the store once done").
func (idx *Indexer) Reorg(forkHeight uint32, newBranch []RawBlock, newBranchHashes []types.Hash) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(newBranch) != len(newBranchHashes) {
		return fmt.Errorf("indexer: reorg: block/hash count mismatch")
	}

	// Unwind in strict reverse height order down to (but not including)
	// forkHeight.
	for h := idx.height; h > forkHeight; h-- {
		hash, ok := idx.blockHashAt(h)
		if !ok {
			return fmt.Errorf("indexer: reorg: no recorded hash at height %d", h)
		}
		log.Indexer.Info().Uint32("height", h).Str("hash", hash.String()).Msg("rolling back block")
		if err := idx.st.Rollback(h, hash); err != nil {
			return fmt.Errorf("indexer: reorg: rollback height %d: %w", h, err)
		}
	}

	// Reinitialize purely from store state now that the rollback chain
	// above is done — never carry forward any pre-reorg in-memory value.
	if err := idx.reinitFromStore(); err != nil {
		return fmt.Errorf("indexer: reorg: reinit: %w", err)
	}
	if idx.height != forkHeight {
		return fmt.Errorf("indexer: reorg: post-rollback height %d != fork height %d", idx.height, forkHeight)
	}

	for i, blk := range newBranch {
		if err := idx.advanceBlockLocked(blk, newBranchHashes[i]); err != nil {
			return fmt.Errorf("indexer: reorg: replay height %d: %w", blk.Height, err)
		}
	}
	return nil
}

// reinitFromStore reloads height/tip/genesis/txCount from the DB-state
// singleton row, the same way New does at startup.
func (idx *Indexer) reinitFromStore() error {
	idx.height = 0
	idx.tip = types.Hash{}
	idx.genesis = types.Hash{}
	idx.txCount = 0
	raw, ok := idx.st.Get(codec.PackDBStateKey())
	if !ok {
		return nil
	}
	state, err := codec.UnpackDBStateValue(raw)
	if err != nil {
		return fmt.Errorf("corrupt db state: %w", err)
	}
	idx.height = state.Height
	idx.txCount = state.TxCount
	idx.tip = types.Hash(state.Tip)
	idx.genesis = types.Hash(state.Genesis)
	return nil
}
