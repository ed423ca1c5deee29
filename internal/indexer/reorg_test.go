package indexer

import (
	"testing"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
	"github.com/Klingon-tech/klingnet-hub/pkg/tx"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// TestReorg_ReplacesDivergentBranch covers spec §4.4.3: rolling back to a
// fork height must fully undo the old branch's claim state before the new
// branch's block is replayed, with no residue from the abandoned branch.
func TestReorg_ReplacesDivergentBranch(t *testing.T) {
	idx := newTestIndexer(t)

	genesis := claimTx("foo", 10)
	if err := idx.AdvanceBlock(RawBlock{
		Height:       0,
		Header:       make([]byte, codec.HeaderWireSize),
		Transactions: []*tx.Transaction{genesis},
	}, types.Hash{1}); err != nil {
		t.Fatalf("AdvanceBlock height 0: %v", err)
	}

	oldBranchTx := claimTx("bar", 5)
	if err := idx.AdvanceBlock(RawBlock{
		Height:       1,
		Header:       make([]byte, codec.HeaderWireSize),
		Transactions: []*tx.Transaction{oldBranchTx},
	}, types.Hash{2}); err != nil {
		t.Fatalf("AdvanceBlock height 1 (old branch): %v", err)
	}

	if _, ok := controllingClaim(t, idx, "bar"); !ok {
		t.Fatalf("old branch's claim on %q should be controlling before reorg", "bar")
	}

	newBranchTx := claimTx("baz", 7)
	newHash := types.Hash{9}
	if err := idx.Reorg(0, []RawBlock{{
		Height:       1,
		Header:       make([]byte, codec.HeaderWireSize),
		Transactions: []*tx.Transaction{newBranchTx},
	}}, []types.Hash{newHash}); err != nil {
		t.Fatalf("Reorg: %v", err)
	}

	if idx.Height() != 1 {
		t.Fatalf("Height() = %d, want 1", idx.Height())
	}
	if idx.Tip() != newHash {
		t.Fatalf("Tip() = %x, want %x", idx.Tip(), newHash)
	}

	if _, ok := controllingClaim(t, idx, "bar"); ok {
		t.Fatalf("old branch's claim on %q survived the reorg", "bar")
	}
	wantHash := codec.ClaimHash160([32]byte(newBranchTx.Hash()), 0)
	gotHash, ok := controllingClaim(t, idx, "baz")
	if !ok {
		t.Fatalf("new branch's claim on %q is missing after reorg", "baz")
	}
	if gotHash != wantHash {
		t.Fatalf("controlling claim for %q = %x, want %x", "baz", gotHash[:], wantHash[:])
	}

	// foo was common to both branches and must still be controlling.
	if _, ok := controllingClaim(t, idx, "foo"); !ok {
		t.Fatalf("claim on %q common to both branches should survive the reorg", "foo")
	}
}
