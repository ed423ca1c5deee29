package indexer

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
	"github.com/Klingon-tech/klingnet-hub/internal/log"
	"github.com/Klingon-tech/klingnet-hub/internal/revertable"
	"github.com/Klingon-tech/klingnet-hub/internal/store"
	"github.com/Klingon-tech/klingnet-hub/pkg/claim"
	"github.com/Klingon-tech/klingnet-hub/pkg/crypto"
	"github.com/Klingon-tech/klingnet-hub/pkg/tx"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// claimRow caches a claim's logical current ClaimToTXO value for the
// duration of one block, so repeated reads within the block (spend
// lookups, update, takeover evaluation) don't need to re-derive what
// was just staged.
type claimRow struct {
	value  codec.ClaimToTXOValue
	exists bool
	// data is set when the row was added or updated earlier this same
	// block, letting later lookups (signing channel, repost target) skip
	// a raw-transaction re-decode.
	data *claim.OutputData
}

// spentClaim records a claim or support spent earlier in the current
// transaction, pending reconciliation against any update output in the
// same transaction (spec §4.4.1: updates replace rows atomically with
// the spend that references them).
type spentClaim struct {
	hash      CHash
	isSupport bool
	txNum     uint32
	nout      uint16
}

// activationEntry is one claim or support that activates (or becomes
// eligible for early activation) at a given block, used by the takeover
// evaluator (spec §4.4.2).
type activationEntry struct {
	claimHash CHash
	txoType   codec.TxoType
	txNum     uint32
	nout      uint16
}

// blockBuilder accumulates one block's staged ops and in-memory
// bookkeeping. It is discarded (never reused) after AdvanceBlock
// returns, whether committed or aborted.
type blockBuilder struct {
	st     *store.Store
	stack  *revertable.Stack
	height uint32
	txNum  uint32

	touched map[CHash]bool
	removed map[CHash]bool

	claimCache  map[CHash]*claimRow
	channelKeys map[CHash][]byte // channels created/seen so far this block
	spentThisTx map[CHash]spentClaim
	updatedThisTx map[CHash]bool

	activationsThisHeight map[string][]activationEntry
	namesToEvaluate       map[string]bool
	abandonedControlling  map[string]bool

	historyByHashX map[codec.HashX][]uint32

	// Same-block overlay: the op-stack's Get only sees committed state, so
	// a transaction spending an output created earlier in this same block
	// (txNum/claim/support row not yet committed) is resolved here first.
	txNumByHash    map[types.Hash]uint32
	txHashByNum    map[uint32]types.Hash
	txRawByNum     map[uint32][]byte
	claimOutputs   map[txoCoord]CHash
	supportOutputs map[txoCoord]CHash
	supportAmounts map[txoCoord]uint64
	signedThisBlock map[CHash]CHash // signed claim hash -> signing channel hash, staged this block

	// activation bookkeeping, scoped to this block.
	pendingOverlay map[activationCoord]pendingInfo
	activeDelta    map[CHash]int64 // change to already-active (height<=this block) contribution
	totalDelta     map[CHash]int64 // change to total (any height) contribution

	nameCandidates map[string]map[CHash]bool
	preSnapshot    map[CHash]claimSnapshot
	touchedName    map[CHash]string
}

type activationCoord struct {
	txoType codec.TxoType
	txNum   uint32
	nout    uint16
}

type pendingInfo struct {
	height uint32
	name   string
	amount uint64
}

type claimSnapshot struct {
	name  string
	txNum uint32
	nout  uint16
	eff   uint64
}

type txoCoord struct {
	txNum uint32
	nout  uint16
}

func newBlockBuilder(st *store.Store, height uint32, startTxNum uint32) *blockBuilder {
	return &blockBuilder{
		st:                    st,
		stack:                 st.NewOpStack(),
		height:                height,
		txNum:                 startTxNum,
		touched:               make(map[CHash]bool),
		removed:               make(map[CHash]bool),
		claimCache:            make(map[CHash]*claimRow),
		channelKeys:           make(map[CHash][]byte),
		activationsThisHeight: make(map[string][]activationEntry),
		namesToEvaluate:       make(map[string]bool),
		abandonedControlling:  make(map[string]bool),
		historyByHashX:        make(map[codec.HashX][]uint32),
		txNumByHash:           make(map[types.Hash]uint32),
		txHashByNum:           make(map[uint32]types.Hash),
		txRawByNum:            make(map[uint32][]byte),
		claimOutputs:          make(map[txoCoord]CHash),
		supportOutputs:        make(map[txoCoord]CHash),
		supportAmounts:        make(map[txoCoord]uint64),
		signedThisBlock:       make(map[CHash]CHash),
		pendingOverlay:        make(map[activationCoord]pendingInfo),
		activeDelta:           make(map[CHash]int64),
		totalDelta:            make(map[CHash]int64),
		nameCandidates:        make(map[string]map[CHash]bool),
		preSnapshot:           make(map[CHash]claimSnapshot),
		touchedName:           make(map[CHash]string),
	}
}

func (b *blockBuilder) put(key, value []byte) error {
	return b.stack.AppendOp(revertable.Put(key, value))
}

func (b *blockBuilder) deleteKnown(key, value []byte) error {
	return b.stack.AppendOp(revertable.Delete(key, value))
}

func (b *blockBuilder) putHeader(header []byte, blockHash types.Hash) error {
	hv, err := codec.PackBlockHeaderValue(header)
	if err != nil {
		return fmt.Errorf("indexer: %w", err)
	}
	if err := b.put(codec.PackBlockHeaderKey(codec.BlockHeaderKey{Height: b.height}), hv); err != nil {
		return err
	}
	return b.put(codec.PackBlockHashKey(codec.BlockHashKey{Height: b.height}), codec.PackBlockHashValue(blockHash))
}

func (b *blockBuilder) finalizeTxCount() error {
	return b.put(codec.PackTxCountKey(codec.TxCountKey{Height: b.height}), codec.PackTxCountValue(b.txNum))
}

func (b *blockBuilder) processTransaction(t *tx.Transaction) error {
	txHash := t.Hash()
	txNum := b.txNum
	b.txNum++

	raw := t.SigningBytes()
	if err := b.put(codec.PackTxKey(codec.TxKey{TxHash: txHash}), raw); err != nil {
		return err
	}
	if err := b.put(codec.PackTxNumKey(codec.TxNumKey{TxHash: txHash}), codec.PackTxNumValue(txNum)); err != nil {
		return err
	}
	if err := b.put(codec.PackTxHashKey(codec.TxHashKey{TxNum: txNum}), codec.PackTxHashValue(txHash)); err != nil {
		return err
	}
	b.txNumByHash[txHash] = txNum
	b.txHashByNum[txNum] = txHash
	b.txRawByNum[txNum] = raw

	b.spentThisTx = make(map[CHash]spentClaim)
	b.updatedThisTx = make(map[CHash]bool)

	for _, in := range t.Inputs {
		if in.PrevOut.IsZero() {
			continue // coinbase
		}
		if err := b.spendInput(in.PrevOut); err != nil {
			return err
		}
	}

	for i, out := range t.Outputs {
		if err := b.handleOutput(txHash, txNum, uint16(i), out); err != nil {
			return err
		}
	}

	return b.reconcileSpends()
}

// reconcileSpends abandons every claim/support spent in this transaction
// that was not re-asserted by an update output in the same transaction.
func (b *blockBuilder) reconcileSpends() error {
	for hash, sp := range b.spentThisTx {
		if b.updatedThisTx[hash] {
			continue
		}
		if sp.isSupport {
			if err := b.removeSupportRows(sp); err != nil {
				return err
			}
			continue
		}
		isChannel, err := b.abandonClaim(hash)
		if err != nil {
			return err
		}
		if isChannel {
			if err := b.invalidateSignaturesFor(hash); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *blockBuilder) spendInput(prevOut types.Outpoint) error {
	prevTxNum, ok := b.txNumByHash[prevOut.TxID]
	if !ok {
		prevTxNumRaw, ok2 := b.st.Get(codec.PackTxNumKey(codec.TxNumKey{TxHash: prevOut.TxID}))
		if !ok2 {
			return nil // not an output we track
		}
		n, err := codec.UnpackTxNumValue(prevTxNumRaw)
		if err != nil {
			return fmt.Errorf("indexer: %w", err)
		}
		prevTxNum = n
	}
	nout := uint16(prevOut.Index)
	coord := txoCoord{txNum: prevTxNum, nout: nout}

	if hash, ok := b.claimOutputs[coord]; ok {
		b.spentThisTx[hash] = spentClaim{hash: hash, txNum: prevTxNum, nout: nout}
		return nil
	}
	if hash, ok := b.supportOutputs[coord]; ok {
		b.spentThisTx[hash] = spentClaim{hash: hash, isSupport: true, txNum: prevTxNum, nout: nout}
		return nil
	}

	var shortTxID [4]byte
	copy(shortTxID[:], prevOut.TxID[:4])
	hxKey := codec.PackHashXUTXOKey(codec.HashXUTXOKey{ShortTxID: shortTxID, TxNum: prevTxNum, Nout: nout})
	if hxRaw, ok := b.st.Get(hxKey); ok {
		hashX, err := codec.UnpackHashXUTXOValue(hxRaw)
		if err != nil {
			return fmt.Errorf("indexer: %w", err)
		}
		utxoKey := codec.PackUTXOKey(codec.UTXOKey{HashX: hashX, TxNum: prevTxNum, Nout: nout})
		if utxoRaw, ok := b.st.Get(utxoKey); ok {
			if err := b.deleteKnown(utxoKey, utxoRaw); err != nil {
				return err
			}
			if err := b.deleteKnown(hxKey, hxRaw); err != nil {
				return err
			}
		}
	}

	txoKey := codec.PackTXOToClaimKey(codec.TXOToClaimKey{TxNum: prevTxNum, Nout: nout})
	if txoRaw, ok := b.st.Get(txoKey); ok {
		txoVal, err := codec.UnpackTXOToClaimValue(txoRaw)
		if err != nil {
			return fmt.Errorf("indexer: %w", err)
		}
		b.spentThisTx[txoVal.ClaimHash] = spentClaim{hash: txoVal.ClaimHash, txNum: prevTxNum, nout: nout}
		return nil
	}

	supKey := codec.PackSupportToClaimKey(codec.SupportToClaimKey{TxNum: prevTxNum, Nout: nout})
	if supRaw, ok := b.st.Get(supKey); ok {
		claimHash, err := codec.UnpackSupportToClaimValue(supRaw)
		if err != nil {
			return fmt.Errorf("indexer: %w", err)
		}
		b.spentThisTx[claimHash] = spentClaim{hash: claimHash, isSupport: true, txNum: prevTxNum, nout: nout}
	}
	return nil
}

func (b *blockBuilder) handleOutput(txHash types.Hash, txNum uint32, nout uint16, out tx.Output) error {
	switch out.Script.Type {
	case types.ScriptTypeClaim:
		data, err := claim.Decode(out.Script.Data)
		if err != nil {
			log.Indexer.Warn().Err(err).Msg("dropping malformed claim output")
			return nil
		}
		return b.addClaim(txHash, txNum, nout, data, out.Value)

	case types.ScriptTypeUpdate:
		if len(out.Script.Data) < codec.ClaimHashSize {
			return nil
		}
		var prior CHash
		copy(prior[:], out.Script.Data[:codec.ClaimHashSize])
		data, err := claim.Decode(out.Script.Data[codec.ClaimHashSize:])
		if err != nil {
			log.Indexer.Warn().Err(err).Msg("dropping malformed update output")
			return nil
		}
		return b.updateClaim(prior, txHash, txNum, nout, data, out.Value)

	case types.ScriptTypeSupport:
		if len(out.Script.Data) < codec.ClaimHashSize {
			return nil
		}
		var target CHash
		copy(target[:], out.Script.Data[:codec.ClaimHashSize])
		return b.addSupport(target, txNum, nout, out.Value)

	case types.ScriptTypeP2PKH, types.ScriptTypeP2SH:
		hashX := addressHashX(out.Script.Data)
		if err := b.put(codec.PackUTXOKey(codec.UTXOKey{HashX: hashX, TxNum: txNum, Nout: nout}), codec.PackUTXOValue(out.Value)); err != nil {
			return err
		}
		var shortTxID [4]byte
		copy(shortTxID[:], txHash[:4])
		if err := b.put(codec.PackHashXUTXOKey(codec.HashXUTXOKey{ShortTxID: shortTxID, TxNum: txNum, Nout: nout}), codec.PackHashXUTXOValue(hashX)); err != nil {
			return err
		}
		b.historyByHashX[hashX] = append(b.historyByHashX[hashX], txNum)
		return nil
	}
	return nil
}

// addressHashX hashes a script's addressing data and truncates the digest
// to the 11-byte key used for address-keyed rows (spec glossary: hashX).
func addressHashX(scriptData []byte) codec.HashX {
	h := crypto.Hash(scriptData)
	var hx codec.HashX
	copy(hx[:], h[:codec.HashXSize])
	return hx
}
