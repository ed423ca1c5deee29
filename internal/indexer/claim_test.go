package indexer

import (
	"testing"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
	"github.com/Klingon-tech/klingnet-hub/internal/storage"
	"github.com/Klingon-tech/klingnet-hub/internal/store"
	"github.com/Klingon-tech/klingnet-hub/pkg/claim"
	"github.com/Klingon-tech/klingnet-hub/pkg/tx"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	st, err := store.Open(storage.NewMemory(), 100, nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	idx, err := New(st, Config{ReorgLimit: 100, MaxUndoDepth: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return idx
}

func claimTx(name string, value uint64) *tx.Transaction {
	data := claim.OutputData{Name: name, Meta: claim.Metadata{Title: "t"}}
	return &tx.Transaction{
		Version: 1,
		Outputs: []tx.Output{
			{Value: value, Script: types.Script{Type: types.ScriptTypeClaim, Data: data.Encode()}},
		},
	}
}

func controllingClaim(t *testing.T, idx *Indexer, name string) (codec.ClaimHash, bool) {
	t.Helper()
	raw, ok := idx.st.Get(codec.PackClaimTakeoverKey(codec.ClaimTakeoverKey{Name: name}))
	if !ok {
		return codec.ClaimHash{}, false
	}
	v, err := codec.UnpackClaimTakeoverValue(raw)
	if err != nil {
		t.Fatalf("UnpackClaimTakeoverValue: %v", err)
	}
	return v.ClaimHash, true
}

// TestAdvanceBlock_FreshClaimWins covers the base takeover scenario: a
// single claim on a brand new name activates with zero delay and becomes
// the name's controlling claim in the same block it is mined.
func TestAdvanceBlock_FreshClaimWins(t *testing.T) {
	idx := newTestIndexer(t)
	t1 := claimTx("foo", 10)

	blk := RawBlock{
		Height:       0,
		Header:       make([]byte, codec.HeaderWireSize),
		Transactions: []*tx.Transaction{t1},
	}
	blockHash := types.Hash{1}
	if err := idx.AdvanceBlock(blk, blockHash); err != nil {
		t.Fatalf("AdvanceBlock: %v", err)
	}

	wantHash := codec.ClaimHash160([32]byte(t1.Hash()), 0)
	gotHash, ok := controllingClaim(t, idx, "foo")
	if !ok {
		t.Fatalf("name %q has no controlling claim after block", "foo")
	}
	if gotHash != wantHash {
		t.Fatalf("controlling claim = %x, want %x", gotHash[:], wantHash[:])
	}

	val, exists := idx.st.Get(codec.PackClaimToTXOKey(codec.ClaimToTXOKey{ClaimHash: wantHash}))
	if !exists {
		t.Fatalf("claim row missing for %x", wantHash[:])
	}
	row, err := codec.UnpackClaimToTXOValue(val)
	if err != nil {
		t.Fatalf("UnpackClaimToTXOValue: %v", err)
	}
	if row.Amount != 10 || row.Name != "foo" {
		t.Fatalf("claim row = %+v, want amount 10 name foo", row)
	}

	if idx.Height() != 0 {
		t.Fatalf("Height() = %d, want 0", idx.Height())
	}
	if idx.Tip() != blockHash {
		t.Fatalf("Tip() = %x, want %x", idx.Tip(), blockHash)
	}
}

// TestAdvanceBlock_HigherBidTakesOverWithDelay covers the contested
// takeover scenario: a second, richer claim on an already-controlled name
// does not take over immediately. It must wait out the takeover delay
// even though its effective amount already exceeds the incumbent's. The
// incumbent's tenure (32 blocks) is chosen to be the smallest that yields
// a nonzero delay under the divisor-32 rule, so the contested claim's
// own activation height (33) still lies one block beyond the block it
// was made in (32).
func TestAdvanceBlock_HigherBidTakesOverWithDelay(t *testing.T) {
	idx := newTestIndexer(t)

	first := claimTx("foo", 10)
	if err := idx.AdvanceBlock(RawBlock{
		Height:       0,
		Header:       make([]byte, codec.HeaderWireSize),
		Transactions: []*tx.Transaction{first},
	}, types.Hash{1}); err != nil {
		t.Fatalf("AdvanceBlock height 0: %v", err)
	}

	firstHash := codec.ClaimHash160([32]byte(first.Hash()), 0)

	for h := uint32(1); h < 32; h++ {
		if err := idx.AdvanceBlock(RawBlock{
			Height: h,
			Header: make([]byte, codec.HeaderWireSize),
		}, types.Hash{byte(h + 1)}); err != nil {
			t.Fatalf("AdvanceBlock height %d: %v", h, err)
		}
	}

	second := claimTx("foo", 1000)
	if err := idx.AdvanceBlock(RawBlock{
		Height:       32,
		Header:       make([]byte, codec.HeaderWireSize),
		Transactions: []*tx.Transaction{second},
	}, types.Hash{33}); err != nil {
		t.Fatalf("AdvanceBlock height 32: %v", err)
	}

	gotHash, ok := controllingClaim(t, idx, "foo")
	if !ok {
		t.Fatalf("name %q lost its controlling claim", "foo")
	}
	if gotHash != firstHash {
		t.Fatalf("controlling claim changed immediately to the higher bid; takeover delay was not honored: got %x, want incumbent %x", gotHash[:], firstHash[:])
	}
}
