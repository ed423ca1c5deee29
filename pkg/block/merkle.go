package block

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-hub/pkg/crypto"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// ComputeMerkleRoot calculates the merkle root of transaction hashes.
//
// Algorithm:
//   - 0 hashes: returns zero hash
//   - 1 hash: returns that hash
//   - Otherwise: pairwise hash, duplicating the last element if odd count,
//     then recurse on the resulting layer until one hash remains.
func ComputeMerkleRoot(txHashes []types.Hash) types.Hash {
	if len(txHashes) == 0 {
		return types.Hash{}
	}
	if len(txHashes) == 1 {
		return txHashes[0]
	}

	// Work on a copy so we don't mutate the caller's slice.
	level := make([]types.Hash, len(txHashes))
	copy(level, txHashes)

	for len(level) > 1 {
		// If odd, duplicate the last element.
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = crypto.HashConcat(level[i], level[i+1])
		}
		level = next
	}

	return level[0]
}

// ComputeMerkleBranch returns the authentication path proving txHashes[index]
// is included under ComputeMerkleRoot(txHashes), plus the leaf's position,
// which is always index itself. The branch
// is the sibling hash at each level, root-ward; folding leaf with branch[0],
// then that result with branch[1], and so on (using position's bit at each
// level to pick left/right concatenation order) reproduces the root.
func ComputeMerkleBranch(txHashes []types.Hash, index int) (branch []types.Hash, position int, err error) {
	if index < 0 || index >= len(txHashes) {
		return nil, 0, fmt.Errorf("block: merkle branch index %d out of range (%d hashes)", index, len(txHashes))
	}
	level := make([]types.Hash, len(txHashes))
	copy(level, txHashes)
	pos := index

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		siblingIdx := pos ^ 1
		branch = append(branch, level[siblingIdx])

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = crypto.HashConcat(level[i], level[i+1])
		}
		level = next
		pos /= 2
	}

	return branch, index, nil
}
