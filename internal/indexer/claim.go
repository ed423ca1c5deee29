package indexer

import (
	"encoding/hex"
	"fmt"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
	"github.com/Klingon-tech/klingnet-hub/internal/log"
	"github.com/Klingon-tech/klingnet-hub/pkg/claim"
	"github.com/Klingon-tech/klingnet-hub/pkg/crypto"
	"github.com/Klingon-tech/klingnet-hub/pkg/tx"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// claimExpirationBlocks mirrors the upstream default (non-extended-on)
// claim expiration window.
const claimExpirationBlocks = 2102400

// getClaim returns a claim's current row, checking the in-block cache
// before falling back to committed state.
func (b *blockBuilder) getClaim(hash CHash) (codec.ClaimToTXOValue, bool) {
	if row, ok := b.claimCache[hash]; ok {
		return row.value, row.exists
	}
	raw, ok := b.st.Get(codec.PackClaimToTXOKey(codec.ClaimToTXOKey{ClaimHash: hash}))
	if !ok {
		b.claimCache[hash] = &claimRow{exists: false}
		return codec.ClaimToTXOValue{}, false
	}
	val, err := codec.UnpackClaimToTXOValue(raw)
	if err != nil {
		b.claimCache[hash] = &claimRow{exists: false}
		return codec.ClaimToTXOValue{}, false
	}
	b.claimCache[hash] = &claimRow{value: val, exists: true}
	return val, true
}

// ensureSnapshot records a claim's pre-block (name, location, effective
// amount) the first time it is touched this block, so reconcileEffectiveAmounts
// can later delete the exact old leaderboard row without having retained
// it anywhere else.
func (b *blockBuilder) ensureSnapshot(hash CHash) {
	if _, ok := b.preSnapshot[hash]; ok {
		return
	}
	val, exists := b.getClaim(hash)
	if !exists {
		return
	}
	b.preSnapshot[hash] = claimSnapshot{
		name:  val.Name,
		txNum: val.TxNum,
		nout:  val.Nout,
		eff:   b.sumActiveAmount(hash, &b.height),
	}
}

func (b *blockBuilder) addNameCandidate(name string, hash CHash) {
	set, ok := b.nameCandidates[name]
	if !ok {
		set = make(map[CHash]bool)
		b.nameCandidates[name] = set
	}
	set[hash] = true
}

// rawOutputData decodes a claim/update output's payload straight from the
// raw transaction bytes. Per the data model, reified metadata (including a
// channel's public key) is never duplicated into its own row; the raw
// output is the only source of truth.
func (b *blockBuilder) rawOutputData(txNum uint32, nout uint16) (claim.OutputData, error) {
	txHash, ok := b.txHashByNum[txNum]
	if !ok {
		raw, ok2 := b.st.Get(codec.PackTxHashKey(codec.TxHashKey{TxNum: txNum}))
		if !ok2 {
			return claim.OutputData{}, fmt.Errorf("indexer: tx_num %d not found", txNum)
		}
		h, err := codec.UnpackTxHashValue(raw)
		if err != nil {
			return claim.OutputData{}, err
		}
		txHash = h
	}
	raw, ok := b.txRawByNum[txNum]
	if !ok {
		r, ok2 := b.st.Get(codec.PackTxKey(codec.TxKey{TxHash: txHash}))
		if !ok2 {
			return claim.OutputData{}, fmt.Errorf("indexer: tx %s not found", txHash)
		}
		raw = r
	}
	t, err := tx.Deserialize(raw)
	if err != nil {
		return claim.OutputData{}, err
	}
	if int(nout) >= len(t.Outputs) {
		return claim.OutputData{}, fmt.Errorf("indexer: nout %d out of range", nout)
	}
	out := t.Outputs[nout]
	switch out.Script.Type {
	case types.ScriptTypeClaim:
		return claim.Decode(out.Script.Data)
	case types.ScriptTypeUpdate:
		if len(out.Script.Data) < codec.ClaimHashSize {
			return claim.OutputData{}, fmt.Errorf("indexer: truncated update output")
		}
		return claim.Decode(out.Script.Data[codec.ClaimHashSize:])
	default:
		return claim.OutputData{}, fmt.Errorf("indexer: output is not a claim")
	}
}

// outputDataFor returns a claim's full decoded payload, preferring the
// in-block cache (avoids re-decoding what we just parsed this block).
func (b *blockBuilder) outputDataFor(hash CHash, val codec.ClaimToTXOValue) (claim.OutputData, error) {
	if row, ok := b.claimCache[hash]; ok && row.data != nil {
		return *row.data, nil
	}
	return b.rawOutputData(val.TxNum, val.Nout)
}

// lookupChannelPubKey returns a channel claim's signing public key.
func (b *blockBuilder) lookupChannelPubKey(channelHash CHash) ([]byte, bool) {
	if pk, ok := b.channelKeys[channelHash]; ok {
		return pk, true
	}
	val, exists := b.getClaim(channelHash)
	if !exists {
		return nil, false
	}
	od, err := b.outputDataFor(channelHash, val)
	if err != nil || !od.Meta.IsChannel {
		return nil, false
	}
	b.channelKeys[channelHash] = od.PublicKey
	return od.PublicKey, true
}

// validateSignature checks a claim's channel signature, if present.
func (b *blockBuilder) validateSignature(data claim.OutputData) bool {
	if !data.Sig.Present {
		return false
	}
	pk, ok := b.lookupChannelPubKey(CHash(data.Sig.SigningChannelHash))
	if !ok {
		return false
	}
	return crypto.VerifySignature(data.Sig.SignatureDigest, data.Sig.Bytes, pk)
}

func (b *blockBuilder) currentRepost(hash CHash) (CHash, bool) {
	if row, ok := b.claimCache[hash]; ok && row.data != nil {
		if row.data.Meta.IsRepost {
			return CHash(row.data.RepostedClaimHash), true
		}
		return CHash{}, false
	}
	raw, ok := b.st.Get(codec.PackRepostKey(codec.RepostKey{ClaimHash: hash}))
	if !ok {
		return CHash{}, false
	}
	h, err := codec.UnpackRepostValue(raw)
	if err != nil {
		return CHash{}, false
	}
	return h, true
}

// oldSigningChannel returns the channel hash a claim's CURRENT row was
// signed by, if its signature is valid. Prefers the in-block cache (for a
// claim added or updated earlier this same block, the committed
// ClaimToChannel row does not exist yet).
func (b *blockBuilder) oldSigningChannel(hash CHash, val codec.ClaimToTXOValue) (CHash, bool) {
	if !val.SigValid {
		return CHash{}, false
	}
	if row, ok := b.claimCache[hash]; ok && row.data != nil {
		return CHash(row.data.Sig.SigningChannelHash), true
	}
	raw, ok := b.st.Get(codec.PackClaimToChannelKey(codec.ClaimToChannelKey{ClaimHash: hash, TxNum: val.TxNum, Nout: val.Nout}))
	if !ok {
		return CHash{}, false
	}
	ch, err := codec.UnpackClaimToChannelValue(raw)
	if err != nil {
		return CHash{}, false
	}
	return ch, true
}

func (b *blockBuilder) addClaim(txHash types.Hash, txNum uint32, nout uint16, data claim.OutputData, amount uint64) error {
	claimHash := codec.ClaimHash160([32]byte(txHash), uint32(nout))
	sigValid := b.validateSignature(data)

	val := codec.ClaimToTXOValue{
		TxNum: txNum, Nout: nout,
		RootTxNum: txNum, RootPosition: nout,
		Amount: amount, SigValid: sigValid, Name: data.Name,
	}
	if err := b.put(codec.PackClaimToTXOKey(codec.ClaimToTXOKey{ClaimHash: claimHash}), codec.PackClaimToTXOValue(val)); err != nil {
		return err
	}
	if err := b.put(codec.PackTXOToClaimKey(codec.TXOToClaimKey{TxNum: txNum, Nout: nout}), codec.PackTXOToClaimValue(codec.TXOToClaimValue{ClaimHash: claimHash, Name: data.Name})); err != nil {
		return err
	}
	partialID := hex.EncodeToString(claimHash[:])
	if err := b.put(codec.PackClaimShortIDKey(codec.ClaimShortIDKey{Name: data.Name, PartialID: partialID, RootTxNum: txNum, RootPosition: nout}), codec.PackClaimShortIDValue(codec.ClaimShortIDValue{TxNum: txNum, Nout: nout})); err != nil {
		return err
	}

	if sigValid {
		channelHash := CHash(data.Sig.SigningChannelHash)
		if err := b.put(codec.PackClaimToChannelKey(codec.ClaimToChannelKey{ClaimHash: claimHash, TxNum: txNum, Nout: nout}), codec.PackClaimToChannelValue(channelHash)); err != nil {
			return err
		}
		if err := b.put(codec.PackChannelToClaimKey(codec.ChannelToClaimKey{SigningChannelHash: channelHash, Name: data.Name, TxNum: txNum, Nout: nout}), codec.PackChannelToClaimValue(claimHash)); err != nil {
			return err
		}
		b.signedThisBlock[claimHash] = channelHash
	}

	if data.Meta.IsRepost {
		target := CHash(data.RepostedClaimHash)
		if err := b.put(codec.PackRepostKey(codec.RepostKey{ClaimHash: claimHash}), codec.PackRepostValue(target)); err != nil {
			return err
		}
		if err := b.put(codec.PackRepostedKey(codec.RepostedKey{RepostedClaimHash: target, TxNum: txNum, Nout: nout}), codec.PackRepostedValue(claimHash)); err != nil {
			return err
		}
	}

	if data.Meta.IsChannel {
		b.channelKeys[claimHash] = data.PublicKey
	}

	b.claimCache[claimHash] = &claimRow{value: val, exists: true, data: &data}
	b.claimOutputs[txoCoord{txNum, nout}] = claimHash
	b.touched[claimHash] = true
	b.touchedName[claimHash] = data.Name
	b.addNameCandidate(data.Name, claimHash)

	expireAt := b.height + uint32(claimExpirationBlocks)
	if err := b.put(codec.PackClaimExpirationKey(codec.ClaimExpirationKey{ExpirationHeight: expireAt, TxNum: txNum, Nout: nout}), codec.PackClaimExpirationValue(codec.ClaimExpirationValue{ClaimHash: claimHash, Name: data.Name})); err != nil {
		return err
	}

	return b.scheduleActivation(claimHash, data.Name, codec.TxoTypeClaim, txNum, nout, amount)
}

func (b *blockBuilder) updateClaim(prior CHash, txHash types.Hash, txNum uint32, nout uint16, data claim.OutputData, amount uint64) error {
	old, exists := b.getClaim(prior)
	if !exists {
		log.Indexer.Warn().Str("prior", hex.EncodeToString(prior[:])).Msg("update output references an unknown claim; dropping")
		return nil
	}
	b.ensureSnapshot(prior)
	b.updatedThisTx[prior] = true

	if err := b.deleteKnown(codec.PackClaimToTXOKey(codec.ClaimToTXOKey{ClaimHash: prior}), codec.PackClaimToTXOValue(old)); err != nil {
		return err
	}
	if err := b.deleteKnown(codec.PackTXOToClaimKey(codec.TXOToClaimKey{TxNum: old.TxNum, Nout: old.Nout}), codec.PackTXOToClaimValue(codec.TXOToClaimValue{ClaimHash: prior, Name: old.Name})); err != nil {
		return err
	}
	oldPartialID := hex.EncodeToString(prior[:])
	if err := b.deleteKnown(codec.PackClaimShortIDKey(codec.ClaimShortIDKey{Name: old.Name, PartialID: oldPartialID, RootTxNum: old.RootTxNum, RootPosition: old.RootPosition}), codec.PackClaimShortIDValue(codec.ClaimShortIDValue{TxNum: old.TxNum, Nout: old.Nout})); err != nil {
		return err
	}
	if ch, ok := b.oldSigningChannel(prior, old); ok {
		if err := b.deleteKnown(codec.PackClaimToChannelKey(codec.ClaimToChannelKey{ClaimHash: prior, TxNum: old.TxNum, Nout: old.Nout}), codec.PackClaimToChannelValue(ch)); err != nil {
			return err
		}
		if err := b.deleteKnown(codec.PackChannelToClaimKey(codec.ChannelToClaimKey{SigningChannelHash: ch, Name: old.Name, TxNum: old.TxNum, Nout: old.Nout}), codec.PackChannelToClaimValue(prior)); err != nil {
			return err
		}
	}
	if target, ok := b.currentRepost(prior); ok {
		if err := b.deleteKnown(codec.PackRepostKey(codec.RepostKey{ClaimHash: prior}), codec.PackRepostValue(target)); err != nil {
			return err
		}
		if err := b.deleteKnown(codec.PackRepostedKey(codec.RepostedKey{RepostedClaimHash: target, TxNum: old.TxNum, Nout: old.Nout}), codec.PackRepostedValue(prior)); err != nil {
			return err
		}
	}

	sigValid := b.validateSignature(data)
	newVal := codec.ClaimToTXOValue{
		TxNum: txNum, Nout: nout,
		RootTxNum: old.RootTxNum, RootPosition: old.RootPosition,
		Amount: amount, SigValid: sigValid, Name: data.Name,
	}
	if err := b.put(codec.PackClaimToTXOKey(codec.ClaimToTXOKey{ClaimHash: prior}), codec.PackClaimToTXOValue(newVal)); err != nil {
		return err
	}
	if err := b.put(codec.PackTXOToClaimKey(codec.TXOToClaimKey{TxNum: txNum, Nout: nout}), codec.PackTXOToClaimValue(codec.TXOToClaimValue{ClaimHash: prior, Name: data.Name})); err != nil {
		return err
	}
	newPartialID := hex.EncodeToString(prior[:])
	if err := b.put(codec.PackClaimShortIDKey(codec.ClaimShortIDKey{Name: data.Name, PartialID: newPartialID, RootTxNum: old.RootTxNum, RootPosition: old.RootPosition}), codec.PackClaimShortIDValue(codec.ClaimShortIDValue{TxNum: txNum, Nout: nout})); err != nil {
		return err
	}
	if sigValid {
		channelHash := CHash(data.Sig.SigningChannelHash)
		if err := b.put(codec.PackClaimToChannelKey(codec.ClaimToChannelKey{ClaimHash: prior, TxNum: txNum, Nout: nout}), codec.PackClaimToChannelValue(channelHash)); err != nil {
			return err
		}
		if err := b.put(codec.PackChannelToClaimKey(codec.ChannelToClaimKey{SigningChannelHash: channelHash, Name: data.Name, TxNum: txNum, Nout: nout}), codec.PackChannelToClaimValue(prior)); err != nil {
			return err
		}
		b.signedThisBlock[prior] = channelHash
	}
	if data.Meta.IsRepost {
		target := CHash(data.RepostedClaimHash)
		if err := b.put(codec.PackRepostKey(codec.RepostKey{ClaimHash: prior}), codec.PackRepostValue(target)); err != nil {
			return err
		}
		if err := b.put(codec.PackRepostedKey(codec.RepostedKey{RepostedClaimHash: target, TxNum: txNum, Nout: nout}), codec.PackRepostedValue(prior)); err != nil {
			return err
		}
	}
	if data.Meta.IsChannel {
		b.channelKeys[prior] = data.PublicKey
	} else {
		delete(b.channelKeys, prior)
	}

	b.claimCache[prior] = &claimRow{value: newVal, exists: true, data: &data}
	b.claimOutputs[txoCoord{txNum, nout}] = prior
	b.touched[prior] = true
	b.touchedName[prior] = data.Name
	b.addNameCandidate(data.Name, prior)
	if old.Name != data.Name {
		b.namesToEvaluate[old.Name] = true
	}

	// The claim's own active-amount contribution is re-derived at its new
	// amount; any unactivated remainder of the old bid is withdrawn first.
	if err := b.withdrawActivation(prior, codec.TxoTypeClaim, old.TxNum, old.Nout, old.Amount); err != nil {
		return err
	}
	return b.scheduleActivation(prior, data.Name, codec.TxoTypeClaim, txNum, nout, amount)
}

func (b *blockBuilder) addSupport(target CHash, txNum uint32, nout uint16, amount uint64) error {
	val, exists := b.getClaim(target)
	if !exists {
		log.Indexer.Warn().Str("target", hex.EncodeToString(target[:])).Msg("support targets an unknown claim; dropping")
		return nil
	}
	if err := b.put(codec.PackClaimToSupportKey(codec.ClaimToSupportKey{ClaimHash: target, TxNum: txNum, Nout: nout}), codec.PackClaimToSupportValue(amount)); err != nil {
		return err
	}
	if err := b.put(codec.PackSupportToClaimKey(codec.SupportToClaimKey{TxNum: txNum, Nout: nout}), codec.PackSupportToClaimValue(target)); err != nil {
		return err
	}
	b.supportOutputs[txoCoord{txNum, nout}] = target
	b.supportAmounts[txoCoord{txNum, nout}] = amount
	b.ensureSnapshot(target)
	b.touched[target] = true
	b.touchedName[target] = val.Name
	b.addNameCandidate(val.Name, target)
	return b.scheduleActivation(target, val.Name, codec.TxoTypeSupport, txNum, nout, amount)
}

// removeSupportRows undoes a single support (spend or claim-abandon
// cascade), withdrawing its activation and active-amount contribution.
func (b *blockBuilder) removeSupportRows(sp spentClaim) error {
	key := codec.PackClaimToSupportKey(codec.ClaimToSupportKey{ClaimHash: sp.hash, TxNum: sp.txNum, Nout: sp.nout})
	var amount uint64
	if raw, ok := b.st.Get(key); ok {
		amount, _ = codec.UnpackClaimToSupportValue(raw)
		if err := b.deleteKnown(key, raw); err != nil {
			return err
		}
	} else if amt, ok := b.supportAmounts[txoCoord{sp.txNum, sp.nout}]; ok {
		amount = amt
		if err := b.deleteKnown(key, codec.PackClaimToSupportValue(amount)); err != nil {
			return err
		}
	} else {
		return nil
	}
	if err := b.deleteKnown(codec.PackSupportToClaimKey(codec.SupportToClaimKey{TxNum: sp.txNum, Nout: sp.nout}), codec.PackSupportToClaimValue(sp.hash)); err != nil {
		return err
	}
	delete(b.supportOutputs, txoCoord{sp.txNum, sp.nout})
	delete(b.supportAmounts, txoCoord{sp.txNum, sp.nout})

	if err := b.withdrawActivation(sp.hash, codec.TxoTypeSupport, sp.txNum, sp.nout, amount); err != nil {
		return err
	}
	if val, exists := b.getClaim(sp.hash); exists {
		b.ensureSnapshot(sp.hash)
		b.touched[sp.hash] = true
		b.touchedName[sp.hash] = val.Name
		b.namesToEvaluate[val.Name] = true
	}
	return nil
}

// claimSupportCoords enumerates every live support attached to a claim,
// combining committed rows with this block's own additions.
func (b *blockBuilder) claimSupportCoords(hash CHash) []txoCoord {
	var out []txoCoord
	seen := map[txoCoord]bool{}
	_ = b.st.Iterate(codec.ClaimToSupportPrefix(hash), false, func(k, _ []byte) bool {
		key, err := codec.UnpackClaimToSupportKey(k)
		if err != nil {
			return true
		}
		c := txoCoord{key.TxNum, key.Nout}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
		return true
	})
	for c, h := range b.supportOutputs {
		if h == hash && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// removeAllSupportsForClaim tears down every support for a claim that is
// itself being abandoned.
func (b *blockBuilder) removeAllSupportsForClaim(hash CHash) error {
	for _, c := range b.claimSupportCoords(hash) {
		if err := b.removeSupportRows(spentClaim{hash: hash, txNum: c.txNum, nout: c.nout}); err != nil {
			return err
		}
	}
	return nil
}

// abandonClaim removes every row owned by a claim. It returns whether the
// claim was a channel, so the caller can invalidate dependent signatures.
func (b *blockBuilder) abandonClaim(hash CHash) (bool, error) {
	val, exists := b.getClaim(hash)
	if !exists {
		return false, nil
	}
	b.ensureSnapshot(hash)

	od, odErr := b.outputDataFor(hash, val)
	isChannel := odErr == nil && od.Meta.IsChannel

	if err := b.deleteKnown(codec.PackClaimToTXOKey(codec.ClaimToTXOKey{ClaimHash: hash}), codec.PackClaimToTXOValue(val)); err != nil {
		return false, err
	}
	if err := b.deleteKnown(codec.PackTXOToClaimKey(codec.TXOToClaimKey{TxNum: val.TxNum, Nout: val.Nout}), codec.PackTXOToClaimValue(codec.TXOToClaimValue{ClaimHash: hash, Name: val.Name})); err != nil {
		return false, err
	}
	partialID := hex.EncodeToString(hash[:])
	if err := b.deleteKnown(codec.PackClaimShortIDKey(codec.ClaimShortIDKey{Name: val.Name, PartialID: partialID, RootTxNum: val.RootTxNum, RootPosition: val.RootPosition}), codec.PackClaimShortIDValue(codec.ClaimShortIDValue{TxNum: val.TxNum, Nout: val.Nout})); err != nil {
		return false, err
	}
	if ch, ok := b.oldSigningChannel(hash, val); ok {
		if err := b.deleteKnown(codec.PackClaimToChannelKey(codec.ClaimToChannelKey{ClaimHash: hash, TxNum: val.TxNum, Nout: val.Nout}), codec.PackClaimToChannelValue(ch)); err != nil {
			return false, err
		}
		if err := b.deleteKnown(codec.PackChannelToClaimKey(codec.ChannelToClaimKey{SigningChannelHash: ch, Name: val.Name, TxNum: val.TxNum, Nout: val.Nout}), codec.PackChannelToClaimValue(hash)); err != nil {
			return false, err
		}
	}
	if odErr == nil && od.Meta.IsRepost {
		if target, ok := b.currentRepost(hash); ok {
			if err := b.deleteKnown(codec.PackRepostKey(codec.RepostKey{ClaimHash: hash}), codec.PackRepostValue(target)); err != nil {
				return false, err
			}
			if err := b.deleteKnown(codec.PackRepostedKey(codec.RepostedKey{RepostedClaimHash: target, TxNum: val.TxNum, Nout: val.Nout}), codec.PackRepostedValue(hash)); err != nil {
				return false, err
			}
		}
	}

	if err := b.withdrawActivation(hash, codec.TxoTypeClaim, val.TxNum, val.Nout, val.Amount); err != nil {
		return false, err
	}
	if err := b.removeAllSupportsForClaim(hash); err != nil {
		return false, err
	}

	if ctrlRaw, ok := b.st.Get(codec.PackClaimTakeoverKey(codec.ClaimTakeoverKey{Name: val.Name})); ok {
		ctrl, err := codec.UnpackClaimTakeoverValue(ctrlRaw)
		if err == nil && ctrl.ClaimHash == hash {
			b.abandonedControlling[val.Name] = true
		}
	}

	delete(b.channelKeys, hash)
	delete(b.signedThisBlock, hash)
	delete(b.claimOutputs, txoCoord{val.TxNum, val.Nout})
	b.claimCache[hash] = &claimRow{exists: false}
	b.removed[hash] = true
	b.touchedName[hash] = val.Name
	b.namesToEvaluate[val.Name] = true

	return isChannel, nil
}

// invalidateSignaturesFor marks every claim currently signed by an
// abandoned channel as unsigned. It runs as soon as the channel is
// abandoned: from reconcileSpends at the end of the abandoning
// transaction, or from expireClaims. Claims signed earlier in the same
// block are found through signedThisBlock; claims already removed this
// block are skipped.
func (b *blockBuilder) invalidateSignaturesFor(channelHash CHash) error {
	type signed struct {
		claimHash CHash
		name      string
		txNum     uint32
		nout      uint16
	}
	var rows []signed
	channelPrefix := append([]byte{byte(codec.PrefixChannelToClaim)}, channelHash[:]...)
	_ = b.st.Iterate(channelPrefix, false, func(k, v []byte) bool {
		key, err := codec.UnpackChannelToClaimKey(k)
		if err != nil {
			return true
		}
		claimHash, err := codec.UnpackChannelToClaimValue(v)
		if err != nil {
			return true
		}
		rows = append(rows, signed{claimHash, key.Name, key.TxNum, key.Nout})
		return true
	})
	for claimHash, ch := range b.signedThisBlock {
		if ch != channelHash {
			continue
		}
		val, exists := b.getClaim(claimHash)
		if !exists {
			continue
		}
		rows = append(rows, signed{claimHash, val.Name, val.TxNum, val.Nout})
	}

	seen := map[CHash]bool{}
	for _, row := range rows {
		if seen[row.claimHash] {
			continue
		}
		seen[row.claimHash] = true
		if row.claimHash == channelHash {
			continue
		}
		if b.removed[row.claimHash] {
			continue
		}
		val, exists := b.getClaim(row.claimHash)
		if !exists || !val.SigValid {
			continue
		}
		b.ensureSnapshot(row.claimHash)
		oldKey := codec.PackClaimToTXOKey(codec.ClaimToTXOKey{ClaimHash: row.claimHash})
		if err := b.deleteKnown(oldKey, codec.PackClaimToTXOValue(val)); err != nil {
			return err
		}
		newVal := val
		newVal.SigValid = false
		if err := b.put(oldKey, codec.PackClaimToTXOValue(newVal)); err != nil {
			return err
		}
		if err := b.deleteKnown(codec.PackClaimToChannelKey(codec.ClaimToChannelKey{ClaimHash: row.claimHash, TxNum: val.TxNum, Nout: val.Nout}), codec.PackClaimToChannelValue(channelHash)); err != nil {
			return err
		}
		if err := b.deleteKnown(codec.PackChannelToClaimKey(codec.ChannelToClaimKey{SigningChannelHash: channelHash, Name: val.Name, TxNum: val.TxNum, Nout: val.Nout}), codec.PackChannelToClaimValue(row.claimHash)); err != nil {
			return err
		}
		if cached, ok := b.claimCache[row.claimHash]; ok {
			cached.value = newVal
		} else {
			b.claimCache[row.claimHash] = &claimRow{value: newVal, exists: true}
		}
		delete(b.signedThisBlock, row.claimHash)
		b.touched[row.claimHash] = true
		b.touchedName[row.claimHash] = val.Name
	}
	return nil
}
