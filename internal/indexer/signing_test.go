package indexer

import (
	"testing"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
	"github.com/Klingon-tech/klingnet-hub/pkg/claim"
	"github.com/Klingon-tech/klingnet-hub/pkg/crypto"
	"github.com/Klingon-tech/klingnet-hub/pkg/tx"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// channelTx builds a claim output establishing a new channel, identified
// by its signing public key.
func channelTx(name string, pub []byte) *tx.Transaction {
	data := claim.OutputData{
		Name:      name,
		Meta:      claim.Metadata{Title: "channel", IsChannel: true},
		PublicKey: pub,
	}
	return &tx.Transaction{
		Version: 1,
		Outputs: []tx.Output{
			{Value: 1, Script: types.Script{Type: types.ScriptTypeClaim, Data: data.Encode()}},
		},
	}
}

// signedClaimTx builds a claim output signed by a channel.
func signedClaimTx(name string, channelHash [20]byte, priv *crypto.PrivateKey) *tx.Transaction {
	digest := crypto.Hash([]byte(name))
	sig, err := priv.Sign(digest[:])
	if err != nil {
		panic(err)
	}
	data := claim.OutputData{
		Name: name,
		Meta: claim.Metadata{Title: "video"},
		Sig: claim.Signature{
			Present:            true,
			SigningChannelHash: channelHash,
			SignatureDigest:    digest[:],
			Bytes:              sig,
		},
	}
	return &tx.Transaction{
		Version: 1,
		Outputs: []tx.Output{
			{Value: 1, Script: types.Script{Type: types.ScriptTypeClaim, Data: data.Encode()}},
		},
	}
}

// abandonTx spends a prior output with no replacing claim/update output,
// abandoning whatever claim or support owned it. It may also create a new
// signed claim output in the very same transaction, covering the case
// where a channel is abandoned and a still-to-be-created claim references
// it as its signer in that same block.
func abandonTx(prev types.Outpoint, extra *tx.Transaction) *tx.Transaction {
	t := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: prev}},
	}
	if extra != nil {
		t.Outputs = extra.Outputs
	}
	return t
}

func claimHashOf(t *tx.Transaction, nout int) codec.ClaimHash {
	return codec.ClaimHash160([32]byte(t.Hash()), uint32(nout))
}

func channelRowExists(t *testing.T, idx *Indexer, channelHash, claimHash codec.ClaimHash, name string, txNum uint32, nout uint16) bool {
	t.Helper()
	_, ok := idx.st.Get(codec.PackChannelToClaimKey(codec.ChannelToClaimKey{SigningChannelHash: channelHash, Name: name, TxNum: txNum, Nout: nout}))
	return ok
}

// TestAdvanceBlock_AbandonChannelInvalidatesSignedClaims covers spec §8
// scenario S5: abandoning a channel in the same block a claim it signed
// was created (even the same transaction) leaves that claim unsigned,
// with no Channel->Claim index row surviving for it.
func TestAdvanceBlock_AbandonChannelInvalidatesSignedClaims(t *testing.T) {
	idx := newTestIndexer(t)

	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	x := channelTx("@chan", priv.PublicKey())
	if err := idx.AdvanceBlock(RawBlock{
		Height:       0,
		Header:       make([]byte, codec.HeaderWireSize),
		Transactions: []*tx.Transaction{x},
	}, types.Hash{1}); err != nil {
		t.Fatalf("AdvanceBlock channel: %v", err)
	}
	channelHash := claimHashOf(x, 0)

	y := signedClaimTx("video-y", [20]byte(channelHash), priv)
	if err := idx.AdvanceBlock(RawBlock{
		Height:       1,
		Header:       make([]byte, codec.HeaderWireSize),
		Transactions: []*tx.Transaction{y},
	}, types.Hash{2}); err != nil {
		t.Fatalf("AdvanceBlock signed claim: %v", err)
	}
	claimY := claimHashOf(y, 0)

	valY, ok := idx.st.Get(codec.PackClaimToTXOKey(codec.ClaimToTXOKey{ClaimHash: claimY}))
	if !ok {
		t.Fatalf("claim Y row missing before abandon")
	}
	rowY, err := codec.UnpackClaimToTXOValue(valY)
	if err != nil {
		t.Fatalf("UnpackClaimToTXOValue: %v", err)
	}
	if !rowY.SigValid {
		t.Fatalf("claim Y should be validly signed before the channel is abandoned")
	}
	if !channelRowExists(t, idx, channelHash, claimY, "video-y", rowY.TxNum, rowY.Nout) {
		t.Fatalf("Channel->Claim row missing for Y before abandon")
	}

	z := signedClaimTx("video-z", [20]byte(channelHash), priv)
	abandonAndSignZ := abandonTx(types.Outpoint{TxID: x.Hash(), Index: 0}, z)
	if err := idx.AdvanceBlock(RawBlock{
		Height:       2,
		Header:       make([]byte, codec.HeaderWireSize),
		Transactions: []*tx.Transaction{abandonAndSignZ},
	}, types.Hash{3}); err != nil {
		t.Fatalf("AdvanceBlock abandon+Z: %v", err)
	}
	claimZ := claimHashOf(abandonAndSignZ, 0)

	if _, ok := idx.st.Get(codec.PackClaimToTXOKey(codec.ClaimToTXOKey{ClaimHash: channelHash})); ok {
		t.Fatalf("channel claim row still present after abandon")
	}

	valY, ok = idx.st.Get(codec.PackClaimToTXOKey(codec.ClaimToTXOKey{ClaimHash: claimY}))
	if !ok {
		t.Fatalf("claim Y row missing after channel abandon")
	}
	rowY, err = codec.UnpackClaimToTXOValue(valY)
	if err != nil {
		t.Fatalf("UnpackClaimToTXOValue: %v", err)
	}
	if rowY.SigValid {
		t.Fatalf("claim Y must be invalidated once its signing channel is abandoned")
	}
	if channelRowExists(t, idx, channelHash, claimY, "video-y", rowY.TxNum, rowY.Nout) {
		t.Fatalf("Channel->Claim row for Y must be removed once the channel is abandoned")
	}

	valZ, ok := idx.st.Get(codec.PackClaimToTXOKey(codec.ClaimToTXOKey{ClaimHash: claimZ}))
	if !ok {
		t.Fatalf("claim Z row missing")
	}
	rowZ, err := codec.UnpackClaimToTXOValue(valZ)
	if err != nil {
		t.Fatalf("UnpackClaimToTXOValue: %v", err)
	}
	if rowZ.SigValid {
		t.Fatalf("claim Z, signed by the very channel abandoned in its own transaction, must never be recorded as validly signed")
	}
	if channelRowExists(t, idx, channelHash, claimZ, "video-z", rowZ.TxNum, rowZ.Nout) {
		t.Fatalf("Channel->Claim row for Z must not survive")
	}
}
