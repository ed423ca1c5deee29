package hub

import (
	"fmt"
	"time"

	"github.com/Klingon-tech/klingnet-hub/internal/indexer"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// headerPrevHash extracts the prev-hash field from a 112-byte wire
// header (spec §6: version(4) | prev_hash(32) | ...).
func headerPrevHash(header []byte) types.Hash {
	var h types.Hash
	copy(h[:], header[4:36])
	return h
}

// runPrefetchLoop polls the upstream node for new blocks and feeds them
// to the indexer, detecting and resolving reorgs along the way (spec
// §4.4.3, §6). It never returns except via context cancellation.
func (h *Hub) runPrefetchLoop() {
	ticker := time.NewTicker(prefetchPollInterval)
	defer ticker.Stop()

	if err := h.syncOnce(); err != nil {
		h.logger.Error().Err(err).Msg("initial sync failed")
	}
	if h.cfg.ShutdownOnSync {
		h.cancel()
		return
	}

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			if err := h.syncOnce(); err != nil {
				h.logger.Error().Err(err).Msg("sync pass failed")
			}
		}
	}
}

// syncOnce advances the indexer as close to the upstream tip as possible
// in one pass, resolving a reorg whenever the upstream branch has
// diverged from ours, including an upstream tip replaced at our height.
func (h *Hub) syncOnce() error {
	for {
		if h.ctx.Err() != nil {
			return nil
		}
		best, err := h.node.GetBestHeight()
		if err != nil {
			return fmt.Errorf("hub: get_best_height: %w", err)
		}

		synced := !h.idx.Tip().IsZero()
		next := h.idx.Height()
		if synced {
			next++
		}
		if next > best {
			if synced && best > 0 && best == h.idx.Height() {
				upstream, err := h.node.GetBlockHexHashes(best, 1)
				if err != nil {
					return fmt.Errorf("hub: get_block_hex_hashes(%d): %w", best, err)
				}
				if len(upstream) == 1 && upstream[0] != h.idx.Tip() {
					if err := h.resolveReorg(best); err != nil {
						return fmt.Errorf("hub: reorg at height %d: %w", best, err)
					}
					continue
				}
			}
			return nil
		}

		hashes, err := h.node.GetBlockHexHashes(next, 1)
		if err != nil {
			return fmt.Errorf("hub: get_block_hex_hashes(%d): %w", next, err)
		}
		if len(hashes) != 1 {
			return fmt.Errorf("hub: expected 1 hash at height %d, got %d", next, len(hashes))
		}

		blocks, err := h.node.GetRawBlocks(hashes)
		if err != nil {
			return fmt.Errorf("hub: get_raw_blocks(%d): %w", next, err)
		}
		raw := blocks[0]

		if next > 0 {
			if prev := headerPrevHash(raw.Header); prev != h.idx.Tip() {
				if err := h.resolveReorg(next); err != nil {
					return fmt.Errorf("hub: reorg at height %d: %w", next, err)
				}
				continue
			}
		}

		if err := h.idx.AdvanceBlock(indexer.RawBlock{
			Height:       next,
			Header:       raw.Header,
			Transactions: raw.Transactions,
		}, hashes[0]); err != nil {
			return fmt.Errorf("hub: advance block %d: %w", next, err)
		}
		h.logger.Info().Uint32("height", next).Msg("indexed block")
	}
}

// resolveReorg walks the upstream chain backward from divergeHeight-1 to
// find the last height both chains agree on, then replays the upstream's
// branch from there (spec §4.4.3).
func (h *Hub) resolveReorg(divergeHeight uint32) error {
	forkHeight := divergeHeight - 1
	for forkHeight > 0 {
		upstream, err := h.node.GetBlockHexHashes(forkHeight, 1)
		if err != nil {
			return fmt.Errorf("get_block_hex_hashes(%d): %w", forkHeight, err)
		}
		if len(upstream) == 1 {
			ours, ok := h.idx.BlockHashAt(forkHeight)
			if ok && ours == upstream[0] {
				break
			}
		}
		forkHeight--
	}

	best, err := h.node.GetBestHeight()
	if err != nil {
		return fmt.Errorf("get_best_height: %w", err)
	}
	count := best - forkHeight
	if count == 0 {
		return nil
	}
	newHashes, err := h.node.GetBlockHexHashes(forkHeight+1, count)
	if err != nil {
		return fmt.Errorf("get_block_hex_hashes(%d,%d): %w", forkHeight+1, count, err)
	}
	newRaw, err := h.node.GetRawBlocks(newHashes)
	if err != nil {
		return fmt.Errorf("get_raw_blocks: %w", err)
	}

	branch := make([]indexer.RawBlock, len(newRaw))
	for i, r := range newRaw {
		branch[i] = indexer.RawBlock{
			Height:       forkHeight + 1 + uint32(i),
			Header:       r.Header,
			Transactions: r.Transactions,
		}
	}

	h.logger.Warn().
		Uint32("fork_height", forkHeight).
		Uint32("old_tip", h.idx.Height()).
		Int("replay_count", len(branch)).
		Msg("reorg detected, rolling back and replaying upstream branch")

	return h.idx.Reorg(forkHeight, branch, newHashes)
}
