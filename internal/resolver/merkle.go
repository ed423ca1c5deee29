package resolver

import (
	"context"
	"sort"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
	blk "github.com/Klingon-tech/klingnet-hub/pkg/block"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// MerkleProof describes a transaction's block-local merkle inclusion
// proof, or a negative Height if the transaction is unknown (spec §4.5).
type MerkleProof struct {
	RawTx  []byte
	Height int64
	Branch []types.Hash
	Pos    int
}

func (r *Resolver) txCountAt(height uint32) (uint32, bool) {
	raw, ok := r.st.Get(codec.PackTxCountKey(codec.TxCountKey{Height: height}))
	if !ok {
		return 0, false
	}
	count, err := codec.UnpackTxCountValue(raw)
	if err != nil {
		return 0, false
	}
	return count, true
}

// findHeightForTxNum locates the block height whose tx_num range contains
// txNum, by binary search over the TxCount-at-height index (spec §4.5:
// "compute block-local Merkle branch on demand by reading the block's
// tx-hash range and folding" — this is the range lookup that supports it).
func (r *Resolver) findHeightForTxNum(txNum uint32) (start, height uint32, ok bool) {
	topHeight := r.currentHeight()
	h := sort.Search(int(topHeight)+1, func(h int) bool {
		count, exists := r.txCountAt(uint32(h))
		if !exists {
			return false
		}
		return count > txNum
	})
	if h > int(topHeight) {
		return 0, 0, false
	}
	height = uint32(h)
	if height == 0 {
		start = 0
	} else {
		count, exists := r.txCountAt(height - 1)
		if !exists {
			return 0, 0, false
		}
		start = count
	}
	end, exists := r.txCountAt(height)
	if !exists || txNum < start || txNum >= end {
		return 0, 0, false
	}
	return start, height, true
}

// TransactionsWithMerkle resolves each tx id to its raw bytes plus a
// block-local merkle inclusion proof (spec §4.5). An unknown tx id yields
// a MerkleProof with Height -1, never an error — matching the spec's "no
// store mutation ever depends on a reader" read-path contract.
func (r *Resolver) TransactionsWithMerkle(ctx context.Context, txIDs []types.Hash) (map[types.Hash]MerkleProof, error) {
	out := make(map[types.Hash]MerkleProof, len(txIDs))
	for _, id := range txIDs {
		if ctx.Err() != nil {
			return nil, ErrQueryTimeout
		}
		proof, ok := r.merkleFor(id)
		if !ok {
			out[id] = MerkleProof{Height: -1}
			continue
		}
		out[id] = proof
	}
	return out, nil
}

func (r *Resolver) merkleFor(id types.Hash) (MerkleProof, bool) {
	rawTx, ok := r.st.Get(codec.PackTxKey(codec.TxKey{TxHash: id}))
	if !ok {
		return MerkleProof{}, false
	}
	rawNum, ok := r.st.Get(codec.PackTxNumKey(codec.TxNumKey{TxHash: id}))
	if !ok {
		return MerkleProof{}, false
	}
	txNum, err := codec.UnpackTxNumValue(rawNum)
	if err != nil {
		return MerkleProof{}, false
	}
	start, height, ok := r.findHeightForTxNum(txNum)
	if !ok {
		return MerkleProof{}, false
	}
	end, ok := r.txCountAt(height)
	if !ok {
		return MerkleProof{}, false
	}
	hashes := make([]types.Hash, 0, end-start)
	for n := start; n < end; n++ {
		raw, ok := r.st.Get(codec.PackTxHashKey(codec.TxHashKey{TxNum: n}))
		if !ok {
			return MerkleProof{}, false
		}
		h, err := codec.UnpackTxHashValue(raw)
		if err != nil {
			return MerkleProof{}, false
		}
		hashes = append(hashes, h)
	}
	branch, pos, err := blk.ComputeMerkleBranch(hashes, int(txNum-start))
	if err != nil {
		return MerkleProof{}, false
	}
	return MerkleProof{RawTx: rawTx, Height: int64(height), Branch: branch, Pos: pos}, true
}
