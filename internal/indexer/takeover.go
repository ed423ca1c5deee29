package indexer

import (
	"bytes"
	"encoding/hex"
	"sort"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
	"github.com/Klingon-tech/klingnet-hub/internal/log"
)

// maxTakeoverDelay caps how long a challenger must wait to take over a
// name, regardless of how long the incumbent has controlled it.
const maxTakeoverDelay = 4032

// takeoverDelayDivisor converts the incumbent's tenure into a delay.
const takeoverDelayDivisor = 32

// scheduleActivation stages the Pending-activation, Activated, and
// Active-amount rows for a new claim or support contribution (spec
// §4.4.2). Active-amount rows always carry their eventual activation
// height, even if it lies in the future; effective-amount computation
// filters by that height rather than by row presence.
func (b *blockBuilder) scheduleActivation(claimHash CHash, name string, txoType codec.TxoType, txNum uint32, nout uint16, amount uint64) error {
	delay := b.computeDelay(claimHash, name, amount)
	activationHeight := b.height + delay

	if err := b.put(codec.PackPendingActivationKey(codec.PendingActivationKey{Height: activationHeight, TxoType: txoType, TxNum: txNum, Nout: nout}), codec.PackPendingActivationValue(codec.PendingActivationValue{ClaimHash: claimHash, Name: name})); err != nil {
		return err
	}
	if err := b.put(codec.PackActivatedKey(codec.ActivatedKey{TxoType: txoType, TxNum: txNum, Nout: nout}), codec.PackActivatedValue(codec.ActivatedValue{Height: activationHeight, ClaimHash: claimHash, Name: name})); err != nil {
		return err
	}
	if err := b.put(codec.PackActiveAmountKey(codec.ActiveAmountKey{ClaimHash: claimHash, TxoType: txoType, ActivateHeight: activationHeight, TxNum: txNum, Nout: nout}), codec.PackActiveAmountValue(amount)); err != nil {
		return err
	}

	b.totalDelta[claimHash] += int64(amount)
	if activationHeight <= b.height {
		// Only contributions that activate in this very block feed a
		// takeover re-evaluation now; a delayed contribution is merely
		// scheduled and is picked up later by runTakeovers when its
		// Pending-activation row lands at its own height.
		b.activeDelta[claimHash] += int64(amount)
		b.activationsThisHeight[name] = append(b.activationsThisHeight[name], activationEntry{claimHash, txoType, txNum, nout})
		b.namesToEvaluate[name] = true
	}
	b.pendingOverlay[activationCoord{txoType, txNum, nout}] = pendingInfo{height: activationHeight, name: name, amount: amount}
	return nil
}

// computeDelay implements the takeover-delay rule (spec §4.4.2): zero if
// there is no controlling claim, the candidate already controls the name,
// the controlling claim is being abandoned this block, or the candidate's
// own prospective effective amount does not exceed the controlling
// claim's; otherwise min(maxTakeoverDelay, tenure/takeoverDelayDivisor).
func (b *blockBuilder) computeDelay(claimHash CHash, name string, incomingAmount uint64) uint32 {
	raw, ok := b.st.Get(codec.PackClaimTakeoverKey(codec.ClaimTakeoverKey{Name: name}))
	if !ok {
		return 0
	}
	ctrl, err := codec.UnpackClaimTakeoverValue(raw)
	if err != nil {
		return 0
	}
	if ctrl.ClaimHash == claimHash {
		return 0
	}
	if b.abandonedControlling[name] {
		return 0
	}
	if _, spentThisTx := b.spentThisTx[ctrl.ClaimHash]; spentThisTx {
		return 0
	}
	candidateEff := b.effectiveAmount(claimHash) + incomingAmount
	controllingEff := b.effectiveAmount(ctrl.ClaimHash)
	if candidateEff <= controllingEff {
		return 0
	}
	tenure := b.height - ctrl.TakeoverHeight
	delay := tenure / takeoverDelayDivisor
	if delay > maxTakeoverDelay {
		delay = maxTakeoverDelay
	}
	return delay
}

// withdrawActivation cancels a claim or support's pending/active
// contribution, wherever its scheduling rows currently live (this
// block's overlay, or a prior block's committed rows).
func (b *blockBuilder) withdrawActivation(claimHash CHash, txoType codec.TxoType, txNum uint32, nout uint16, amount uint64) error {
	coord := activationCoord{txoType, txNum, nout}
	if info, ok := b.pendingOverlay[coord]; ok {
		if err := b.deleteKnown(codec.PackPendingActivationKey(codec.PendingActivationKey{Height: info.height, TxoType: txoType, TxNum: txNum, Nout: nout}), codec.PackPendingActivationValue(codec.PendingActivationValue{ClaimHash: claimHash, Name: info.name})); err != nil {
			return err
		}
		if err := b.deleteKnown(codec.PackActivatedKey(codec.ActivatedKey{TxoType: txoType, TxNum: txNum, Nout: nout}), codec.PackActivatedValue(codec.ActivatedValue{Height: info.height, ClaimHash: claimHash, Name: info.name})); err != nil {
			return err
		}
		if err := b.deleteKnown(codec.PackActiveAmountKey(codec.ActiveAmountKey{ClaimHash: claimHash, TxoType: txoType, ActivateHeight: info.height, TxNum: txNum, Nout: nout}), codec.PackActiveAmountValue(info.amount)); err != nil {
			return err
		}
		delete(b.pendingOverlay, coord)
		b.totalDelta[claimHash] -= int64(info.amount)
		if info.height <= b.height {
			b.activeDelta[claimHash] -= int64(info.amount)
		}
		return nil
	}

	avRaw, ok := b.st.Get(codec.PackActivatedKey(codec.ActivatedKey{TxoType: txoType, TxNum: txNum, Nout: nout}))
	if !ok {
		return nil
	}
	av, err := codec.UnpackActivatedValue(avRaw)
	if err != nil {
		return nil
	}
	if err := b.deleteKnown(codec.PackActivatedKey(codec.ActivatedKey{TxoType: txoType, TxNum: txNum, Nout: nout}), avRaw); err != nil {
		return err
	}
	if err := b.deleteKnown(codec.PackPendingActivationKey(codec.PendingActivationKey{Height: av.Height, TxoType: txoType, TxNum: txNum, Nout: nout}), codec.PackPendingActivationValue(codec.PendingActivationValue{ClaimHash: claimHash, Name: av.Name})); err != nil {
		return err
	}
	aaKey := codec.PackActiveAmountKey(codec.ActiveAmountKey{ClaimHash: claimHash, TxoType: txoType, ActivateHeight: av.Height, TxNum: txNum, Nout: nout})
	if aaRaw, ok2 := b.st.Get(aaKey); ok2 {
		if err := b.deleteKnown(aaKey, aaRaw); err != nil {
			return err
		}
		actual, _ := codec.UnpackActiveAmountValue(aaRaw)
		b.totalDelta[claimHash] -= int64(actual)
		if av.Height <= b.height {
			b.activeDelta[claimHash] -= int64(actual)
		}
	}
	return nil
}

// promoteToNow rewrites a still-future activation (claim or support) to
// activate at the current height, per the early-activation-on-overtake
// rule (spec §4.4.2).
func (b *blockBuilder) promoteToNow(claimHash CHash, txoType codec.TxoType, txNum uint32, nout uint16, name string) error {
	coord := activationCoord{txoType, txNum, nout}
	var height uint32
	var amount uint64

	if info, ok := b.pendingOverlay[coord]; ok {
		if info.height <= b.height {
			return nil
		}
		height, amount = info.height, info.amount
		if err := b.deleteKnown(codec.PackPendingActivationKey(codec.PendingActivationKey{Height: height, TxoType: txoType, TxNum: txNum, Nout: nout}), codec.PackPendingActivationValue(codec.PendingActivationValue{ClaimHash: claimHash, Name: info.name})); err != nil {
			return err
		}
		if err := b.deleteKnown(codec.PackActivatedKey(codec.ActivatedKey{TxoType: txoType, TxNum: txNum, Nout: nout}), codec.PackActivatedValue(codec.ActivatedValue{Height: height, ClaimHash: claimHash, Name: info.name})); err != nil {
			return err
		}
		if err := b.deleteKnown(codec.PackActiveAmountKey(codec.ActiveAmountKey{ClaimHash: claimHash, TxoType: txoType, ActivateHeight: height, TxNum: txNum, Nout: nout}), codec.PackActiveAmountValue(amount)); err != nil {
			return err
		}
	} else {
		avRaw, ok := b.st.Get(codec.PackActivatedKey(codec.ActivatedKey{TxoType: txoType, TxNum: txNum, Nout: nout}))
		if !ok {
			return nil
		}
		av, err := codec.UnpackActivatedValue(avRaw)
		if err != nil || av.Height <= b.height {
			return nil
		}
		height = av.Height
		aaKey := codec.PackActiveAmountKey(codec.ActiveAmountKey{ClaimHash: claimHash, TxoType: txoType, ActivateHeight: height, TxNum: txNum, Nout: nout})
		aaRaw, ok2 := b.st.Get(aaKey)
		if !ok2 {
			return nil
		}
		amount, _ = codec.UnpackActiveAmountValue(aaRaw)
		if err := b.deleteKnown(codec.PackActivatedKey(codec.ActivatedKey{TxoType: txoType, TxNum: txNum, Nout: nout}), avRaw); err != nil {
			return err
		}
		if err := b.deleteKnown(codec.PackPendingActivationKey(codec.PendingActivationKey{Height: height, TxoType: txoType, TxNum: txNum, Nout: nout}), codec.PackPendingActivationValue(codec.PendingActivationValue{ClaimHash: claimHash, Name: av.Name})); err != nil {
			return err
		}
		if err := b.deleteKnown(aaKey, aaRaw); err != nil {
			return err
		}
	}

	if err := b.put(codec.PackPendingActivationKey(codec.PendingActivationKey{Height: b.height, TxoType: txoType, TxNum: txNum, Nout: nout}), codec.PackPendingActivationValue(codec.PendingActivationValue{ClaimHash: claimHash, Name: name})); err != nil {
		return err
	}
	if err := b.put(codec.PackActivatedKey(codec.ActivatedKey{TxoType: txoType, TxNum: txNum, Nout: nout}), codec.PackActivatedValue(codec.ActivatedValue{Height: b.height, ClaimHash: claimHash, Name: name})); err != nil {
		return err
	}
	if err := b.put(codec.PackActiveAmountKey(codec.ActiveAmountKey{ClaimHash: claimHash, TxoType: txoType, ActivateHeight: b.height, TxNum: txNum, Nout: nout}), codec.PackActiveAmountValue(amount)); err != nil {
		return err
	}
	delete(b.pendingOverlay, coord)
	b.activeDelta[claimHash] += int64(amount)
	return nil
}

// sumActiveAmount sums every committed Active-amount row for a claim,
// optionally bounded to contributions activated at or before maxHeight.
func (b *blockBuilder) sumActiveAmount(claimHash CHash, maxHeight *uint32) uint64 {
	var sum uint64
	_ = b.st.Iterate(codec.ActiveAmountClaimPrefix(claimHash), false, func(k, v []byte) bool {
		key, err := codec.UnpackActiveAmountKey(k)
		if err != nil {
			return true
		}
		if maxHeight != nil && key.ActivateHeight > *maxHeight {
			return true
		}
		amt, err := codec.UnpackActiveAmountValue(v)
		if err != nil {
			return true
		}
		sum += amt
		return true
	})
	return sum
}

func applyDelta(sum uint64, delta int64) uint64 {
	if delta < 0 {
		d := uint64(-delta)
		if d > sum {
			return 0
		}
		return sum - d
	}
	return sum + uint64(delta)
}

// effectiveAmount is the claim's currently-active total: own amount plus
// every active support, as of this block.
func (b *blockBuilder) effectiveAmount(claimHash CHash) uint64 {
	h := b.height
	return applyDelta(b.sumActiveAmount(claimHash, &h), b.activeDelta[claimHash])
}

// fullPendingAmount is the claim's total prospective amount, including
// contributions not yet activated. Used only to evaluate early activation.
func (b *blockBuilder) fullPendingAmount(claimHash CHash) uint64 {
	return applyDelta(b.sumActiveAmount(claimHash, nil), b.totalDelta[claimHash])
}

// collectCandidates enumerates every currently-existing claim ever
// registered under a name, via the Claim-short-id index (populated at
// claim-creation time regardless of activation status) unioned with this
// block's own new candidates.
func (b *blockBuilder) collectCandidates(name string) []CHash {
	seen := map[CHash]bool{}
	var out []CHash
	_ = b.st.Iterate(codec.PackClaimShortIDPartialKey(name, ""), false, func(k, _ []byte) bool {
		key, err := codec.UnpackClaimShortIDKey(k)
		if err != nil || key.Name != name {
			return true
		}
		raw, err := hex.DecodeString(key.PartialID)
		if err != nil || len(raw) != codec.ClaimHashSize {
			return true
		}
		var ch CHash
		copy(ch[:], raw)
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
		return true
	})
	var fresh []CHash
	for ch := range b.nameCandidates[name] {
		if !seen[ch] {
			seen[ch] = true
			fresh = append(fresh, ch)
		}
	}
	// b.nameCandidates is a map: iteration order is randomized by the Go
	// runtime. Every node processing this block must converge on the same
	// controlling claim, so candidates pulled from here are sorted before
	// being appended, the same fix internal/revertable/stack.go applies
	// to its own map-backed op order.
	sort.Slice(fresh, func(i, j int) bool { return bytes.Compare(fresh[i][:], fresh[j][:]) < 0 })
	out = append(out, fresh...)

	filtered := out[:0]
	for _, ch := range out {
		if _, exists := b.getClaim(ch); exists {
			filtered = append(filtered, ch)
		}
	}
	return filtered
}

func (b *blockBuilder) setTakeover(name string, winner CHash, hadCtrl bool, oldRaw []byte) error {
	if hadCtrl {
		if err := b.deleteKnown(codec.PackClaimTakeoverKey(codec.ClaimTakeoverKey{Name: name}), oldRaw); err != nil {
			return err
		}
	}
	return b.put(codec.PackClaimTakeoverKey(codec.ClaimTakeoverKey{Name: name}), codec.PackClaimTakeoverValue(codec.ClaimTakeoverValue{ClaimHash: winner, TakeoverHeight: b.height}))
}

// evaluateTakeover recomputes (and if necessary rewrites) the controlling
// claim for one name (spec §4.4.2).
func (b *blockBuilder) evaluateTakeover(name string) error {
	ctrlRaw, hasCtrl := b.st.Get(codec.PackClaimTakeoverKey(codec.ClaimTakeoverKey{Name: name}))
	var ctrl codec.ClaimTakeoverValue
	if hasCtrl {
		var err error
		ctrl, err = codec.UnpackClaimTakeoverValue(ctrlRaw)
		if err != nil {
			hasCtrl = false
		}
	}

	candidates := b.collectCandidates(name)
	if len(candidates) == 0 {
		if hasCtrl {
			if err := b.deleteKnown(codec.PackClaimTakeoverKey(codec.ClaimTakeoverKey{Name: name}), ctrlRaw); err != nil {
				return err
			}
		}
		return nil
	}

	type scored struct {
		hash CHash
		eff  uint64
	}
	var winner scored
	for i, c := range candidates {
		e := b.effectiveAmount(c)
		if i == 0 || e > winner.eff || (e == winner.eff && bytes.Compare(c[:], winner.hash[:]) < 0) {
			winner = scored{c, e}
		}
	}

	// Early-activation-on-overtake considers every other candidate with
	// pending contributions not yet reflected in its effective amount, but
	// promotes at most one per evaluation: the single candidate with the
	// globally largest full pending amount, if and only if that amount
	// beats the immediate winner. Re-scoring the winner after each
	// promotion (rather than picking the one global max up front) lets a
	// second, third, etc. candidate each beat the newly-promoted winner in
	// turn and get promoted too, which the original algorithm never does.
	var futureHash CHash
	var futureFull uint64
	haveFuture := false
	for _, c := range candidates {
		if c == winner.hash {
			continue
		}
		if _, exists := b.getClaim(c); !exists {
			continue
		}
		full := b.fullPendingAmount(c)
		active := b.effectiveAmount(c)
		if full <= active {
			continue // nothing left pending for this claim
		}
		if !haveFuture || full > futureFull || (full == futureFull && bytes.Compare(c[:], futureHash[:]) < 0) {
			futureHash, futureFull = c, full
			haveFuture = true
		}
	}

	if haveFuture && futureFull > winner.eff {
		val, exists := b.getClaim(futureHash)
		if exists {
			if err := b.promoteToNow(futureHash, codec.TxoTypeClaim, val.TxNum, val.Nout, name); err != nil {
				return err
			}
			for _, sc := range b.claimSupportCoords(futureHash) {
				if err := b.promoteToNow(futureHash, codec.TxoTypeSupport, sc.txNum, sc.nout, name); err != nil {
					return err
				}
			}
			winner = scored{futureHash, b.effectiveAmount(futureHash)}
		}
	}

	if !hasCtrl || ctrl.ClaimHash != winner.hash {
		if err := b.setTakeover(name, winner.hash, hasCtrl, ctrlRaw); err != nil {
			return err
		}
		if !b.removed[winner.hash] {
			b.touched[winner.hash] = true
		}
		if hasCtrl && !b.removed[ctrl.ClaimHash] {
			b.touched[ctrl.ClaimHash] = true
		}
	}
	return nil
}

// runTakeovers is step 4 of block processing: pull in activations
// scheduled by past blocks that land on this height, then re-evaluate
// every name touched this block.
func (b *blockBuilder) runTakeovers() error {
	if err := b.st.Iterate(codec.PendingActivationHeightPrefix(b.height), false, func(k, v []byte) bool {
		pk, err := codec.UnpackPendingActivationKey(k)
		if err != nil {
			return true
		}
		pv, err := codec.UnpackPendingActivationValue(v)
		if err != nil {
			return true
		}
		b.activationsThisHeight[pv.Name] = append(b.activationsThisHeight[pv.Name], activationEntry{pv.ClaimHash, pk.TxoType, pk.TxNum, pk.Nout})
		b.addNameCandidate(pv.Name, pv.ClaimHash)
		b.namesToEvaluate[pv.Name] = true
		return true
	}); err != nil {
		return err
	}

	names := make([]string, 0, len(b.namesToEvaluate))
	for n := range b.namesToEvaluate {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := b.evaluateTakeover(name); err != nil {
			return err
		}
	}
	return nil
}

// expireClaims is step 3: abandon every claim whose deterministic
// expiration height is this block's height.
func (b *blockBuilder) expireClaims() error {
	var keys, vals [][]byte
	if err := b.st.Iterate(codec.ClaimExpirationHeightPrefix(b.height), false, func(k, v []byte) bool {
		keys = append(keys, append([]byte(nil), k...))
		vals = append(vals, append([]byte(nil), v...))
		return true
	}); err != nil {
		return err
	}
	for i, k := range keys {
		ev, err := codec.UnpackClaimExpirationValue(vals[i])
		if err != nil {
			continue
		}
		if err := b.deleteKnown(k, vals[i]); err != nil {
			return err
		}
		if _, exists := b.getClaim(ev.ClaimHash); !exists {
			// Already gone (spent or abandoned earlier this block). The
			// upstream indexer's own expiration logic double-fires in
			// this situation; we treat the first call as authoritative
			// and do not emulate the duplicate.
			log.Indexer.Warn().Str("claim_hash", hex.EncodeToString(ev.ClaimHash[:])).Msg("expiration fired for an already-abandoned claim, skipping")
			continue
		}
		isChannel, err := b.abandonClaim(ev.ClaimHash)
		if err != nil {
			return err
		}
		if isChannel {
			if err := b.invalidateSignaturesFor(ev.ClaimHash); err != nil {
				return err
			}
		}
	}
	return nil
}

// reconcileEffectiveAmounts is step 5: every claim touched or removed
// this block gets its leaderboard row (spec §4.1 Effective-amount index)
// deleted and, if it still exists, re-inserted at its new amount.
func (b *blockBuilder) reconcileEffectiveAmounts() error {
	seen := map[CHash]bool{}
	var hashes []CHash
	for h := range b.touched {
		if !seen[h] {
			seen[h] = true
			hashes = append(hashes, h)
		}
	}
	for h := range b.removed {
		if !seen[h] {
			seen[h] = true
			hashes = append(hashes, h)
		}
	}
	sort.Slice(hashes, func(i, j int) bool { return bytes.Compare(hashes[i][:], hashes[j][:]) < 0 })

	for _, hash := range hashes {
		if snap, ok := b.preSnapshot[hash]; ok {
			oldKey := codec.PackEffectiveAmountKey(codec.EffectiveAmountKey{Name: snap.name, EffectiveAmount: snap.eff, TxNum: snap.txNum, Nout: snap.nout})
			if oldVal, ok2 := b.st.Get(oldKey); ok2 {
				if err := b.deleteKnown(oldKey, oldVal); err != nil {
					return err
				}
			}
		}
		val, exists := b.getClaim(hash)
		if !exists {
			continue
		}
		newEff := b.effectiveAmount(hash)
		newKey := codec.PackEffectiveAmountKey(codec.EffectiveAmountKey{Name: val.Name, EffectiveAmount: newEff, TxNum: val.TxNum, Nout: val.Nout})
		if err := b.put(newKey, codec.PackEffectiveAmountValue(hash)); err != nil {
			return err
		}
	}
	return nil
}

// writeTouchedOrDeleted is step 6: publish this block's touched/deleted
// diff (spec §4.1 Touched-or-deleted, §4.4 invariant: the two sets are
// disjoint).
func (b *blockBuilder) writeTouchedOrDeleted() error {
	var touched, deleted []CHash
	for h := range b.touched {
		if !b.removed[h] {
			touched = append(touched, h)
		}
	}
	for h := range b.removed {
		deleted = append(deleted, h)
	}
	sort.Slice(touched, func(i, j int) bool { return bytes.Compare(touched[i][:], touched[j][:]) < 0 })
	sort.Slice(deleted, func(i, j int) bool { return bytes.Compare(deleted[i][:], deleted[j][:]) < 0 })

	key := codec.PackTouchedOrDeletedKey(codec.TouchedOrDeletedKey{Height: b.height})
	return b.put(key, codec.PackTouchedOrDeletedValue(codec.TouchedOrDeletedValue{Touched: touched, Deleted: deleted}))
}
