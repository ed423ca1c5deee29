package resolver

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
	"github.com/Klingon-tech/klingnet-hub/internal/store"
	"github.com/Klingon-tech/klingnet-hub/pkg/claim"
	"github.com/Klingon-tech/klingnet-hub/pkg/tx"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// CHash is the claim-hash type used throughout the resolver.
type CHash = codec.ClaimHash

// Resolver is the pure read path over a committed store (spec §4.5). It
// never stages ops and is safe for concurrent use by many readers.
type Resolver struct {
	st            *store.Store
	blockFilter   map[CHash]bool
	resolveFilter map[CHash]bool
}

// New constructs a Resolver. blockFilterChannels and resolveFilterChannels
// are the two configured censorship lists (spec §9's Config); either may
// be nil.
func New(st *store.Store, blockFilterChannels, resolveFilterChannels []CHash) *Resolver {
	r := &Resolver{
		st:            st,
		blockFilter:   make(map[CHash]bool, len(blockFilterChannels)),
		resolveFilter: make(map[CHash]bool, len(resolveFilterChannels)),
	}
	for _, h := range blockFilterChannels {
		r.blockFilter[h] = true
	}
	for _, h := range resolveFilterChannels {
		r.resolveFilter[h] = true
	}
	return r
}

// ResolvedClaim is a fully resolved URL's result.
type ResolvedClaim struct {
	ClaimHash CHash
	Value     codec.ClaimToTXOValue
	Data      claim.OutputData
}

func (r *Resolver) currentHeight() uint32 {
	raw, ok := r.st.Get(codec.PackDBStateKey())
	if !ok {
		return 0
	}
	state, err := codec.UnpackDBStateValue(raw)
	if err != nil {
		return 0
	}
	return state.Height
}

func (r *Resolver) getClaim(hash CHash) (codec.ClaimToTXOValue, bool) {
	raw, ok := r.st.Get(codec.PackClaimToTXOKey(codec.ClaimToTXOKey{ClaimHash: hash}))
	if !ok {
		return codec.ClaimToTXOValue{}, false
	}
	val, err := codec.UnpackClaimToTXOValue(raw)
	if err != nil {
		return codec.ClaimToTXOValue{}, false
	}
	return val, true
}

// outputData decodes a claim/update output's payload straight from the
// raw transaction, mirroring the indexer's rawOutputData but against
// committed-only state (the resolver has no in-block overlay to consult).
func (r *Resolver) outputData(txNum uint32, nout uint16) (claim.OutputData, error) {
	rawHash, ok := r.st.Get(codec.PackTxHashKey(codec.TxHashKey{TxNum: txNum}))
	if !ok {
		return claim.OutputData{}, fmt.Errorf("resolver: tx_num %d not found", txNum)
	}
	txHash, err := codec.UnpackTxHashValue(rawHash)
	if err != nil {
		return claim.OutputData{}, err
	}
	raw, ok := r.st.Get(codec.PackTxKey(codec.TxKey{TxHash: txHash}))
	if !ok {
		return claim.OutputData{}, fmt.Errorf("resolver: tx %s not found", txHash)
	}
	t, err := tx.Deserialize(raw)
	if err != nil {
		return claim.OutputData{}, err
	}
	if int(nout) >= len(t.Outputs) {
		return claim.OutputData{}, fmt.Errorf("resolver: nout %d out of range", nout)
	}
	out := t.Outputs[nout]
	switch out.Script.Type {
	case types.ScriptTypeClaim:
		return claim.Decode(out.Script.Data)
	case types.ScriptTypeUpdate:
		if len(out.Script.Data) < codec.ClaimHashSize {
			return claim.OutputData{}, fmt.Errorf("resolver: truncated update output")
		}
		return claim.Decode(out.Script.Data[codec.ClaimHashSize:])
	default:
		return claim.OutputData{}, fmt.Errorf("resolver: output is not a claim")
	}
}

func (r *Resolver) effectiveAmount(hash CHash, maxHeight uint32) uint64 {
	var sum uint64
	_ = r.st.Iterate(codec.ActiveAmountClaimPrefix(hash), false, func(key, value []byte) bool {
		k, err := codec.UnpackActiveAmountKey(key)
		if err != nil || k.ActivateHeight > maxHeight {
			return true
		}
		amt, err := codec.UnpackActiveAmountValue(value)
		if err == nil {
			sum += amt
		}
		return true
	})
	return sum
}

// signingChannel returns the channel hash currently backing a claim's
// valid signature, if any.
func (r *Resolver) signingChannel(hash CHash, val codec.ClaimToTXOValue) (CHash, bool) {
	if !val.SigValid {
		return CHash{}, false
	}
	raw, ok := r.st.Get(codec.PackClaimToChannelKey(codec.ClaimToChannelKey{ClaimHash: hash, TxNum: val.TxNum, Nout: val.Nout}))
	if !ok {
		return CHash{}, false
	}
	ch, err := codec.UnpackClaimToChannelValue(raw)
	if err != nil {
		return CHash{}, false
	}
	return ch, true
}

// censorBlocker returns the blocking channel hash if hash itself or its
// signing channel matches either configured filter list.
func (r *Resolver) censorBlocker(hash CHash, val codec.ClaimToTXOValue) (CHash, bool) {
	if r.blockFilter[hash] || r.resolveFilter[hash] {
		return hash, true
	}
	if ch, ok := r.signingChannel(hash, val); ok {
		if r.blockFilter[ch] || r.resolveFilter[ch] {
			return ch, true
		}
	}
	return CHash{}, false
}

func decodeHexHash(s string) (CHash, error) {
	var h CHash
	if len(s) != len(h)*2 {
		return CHash{}, fmt.Errorf("resolver: short claim id %q is not a full hash", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return CHash{}, err
	}
	copy(h[:], b)
	return h, nil
}

// resolveByName looks up a name's controlling claim.
func (r *Resolver) resolveByName(name string) (CHash, bool) {
	raw, ok := r.st.Get(codec.PackClaimTakeoverKey(codec.ClaimTakeoverKey{Name: name}))
	if !ok {
		return CHash{}, false
	}
	v, err := codec.UnpackClaimTakeoverValue(raw)
	if err != nil {
		return CHash{}, false
	}
	return v.ClaimHash, true
}

// resolveByPartialID implements the scan-and-filter lookup the
// ClaimShortID index requires (see DESIGN.md): the stored partial-ID
// field is length-prefixed, so a short query string is not a byte prefix
// of the full 40-hex-char stored keys. Every row under the name is
// decoded and tested with strings.HasPrefix; since all full-length
// entries sort contiguously by their hex value, the first match in
// ascending order is returned.
func (r *Resolver) resolveByPartialID(name, partialID string) (CHash, bool) {
	var found CHash
	var ok bool
	_ = r.st.Iterate(codec.PackClaimShortIDPartialKey(name, ""), false, func(key, _ []byte) bool {
		k, err := codec.UnpackClaimShortIDKey(key)
		if err != nil || k.Name != name {
			return true
		}
		if !strings.HasPrefix(k.PartialID, partialID) {
			return true
		}
		hash, err := decodeHexHash(k.PartialID)
		if err != nil {
			return true
		}
		if _, exists := r.getClaim(hash); exists {
			found, ok = hash, true
			return false
		}
		return true
	})
	return found, ok
}

// resolveByAmountOrder returns the k-th (1-indexed) richest claim under a
// name via the Effective-amount leaderboard (ascending ones-complement
// order already yields richest-first, spec §4.1).
func (r *Resolver) resolveByAmountOrder(name string, k int) (CHash, bool) {
	if k < 1 {
		return CHash{}, false
	}
	var found CHash
	var ok bool
	i := 0
	_ = r.st.Iterate(codec.EffectiveAmountNamePrefix(name), false, func(key, value []byte) bool {
		i++
		if i != k {
			return true
		}
		h, err := codec.UnpackEffectiveAmountValue(value)
		if err == nil {
			found, ok = h, true
		}
		return false
	})
	return found, ok
}

// resolveSegment resolves one URL segment to a claim hash, respecting its
// qualifier (bare name / partial id / amount order).
func (r *Resolver) resolveSegment(seg Segment) (CHash, error) {
	switch {
	case seg.ClaimIDPrefix != "":
		hash, ok := r.resolveByPartialID(seg.Name, seg.ClaimIDPrefix)
		if !ok {
			return CHash{}, newNotFound(seg.Name + "#" + seg.ClaimIDPrefix)
		}
		return hash, nil
	case seg.AmountOrder > 0:
		hash, ok := r.resolveByAmountOrder(seg.Name, seg.AmountOrder)
		if !ok {
			return CHash{}, newNotFound(fmt.Sprintf("%s$%d", seg.Name, seg.AmountOrder))
		}
		return hash, nil
	default:
		hash, ok := r.resolveByName(seg.Name)
		if !ok {
			return CHash{}, newNotFound(seg.Name)
		}
		return hash, nil
	}
}

// resolveStreamUnderChannel picks the highest-effective-amount candidate
// claim signed by channelHash under the stream segment's name, breaking
// ties by lowest tx_num then lowest nout (spec §4.5).
func (r *Resolver) resolveStreamUnderChannel(channelHash CHash, seg Segment) (CHash, error) {
	if seg.ClaimIDPrefix != "" || seg.AmountOrder > 0 {
		return r.resolveSegment(seg)
	}
	height := r.currentHeight()
	type candidate struct {
		hash  CHash
		txNum uint32
		nout  uint16
		eff   uint64
	}
	var best *candidate
	err := r.st.Iterate(codec.ChannelToClaimPrefix(channelHash, seg.Name), false, func(key, value []byte) bool {
		k, uerr := codec.UnpackChannelToClaimKey(key)
		if uerr != nil || k.Name != seg.Name {
			return true
		}
		claimHash, uerr := codec.UnpackChannelToClaimValue(value)
		if uerr != nil {
			return true
		}
		if _, exists := r.getClaim(claimHash); !exists {
			return true
		}
		c := candidate{hash: claimHash, txNum: k.TxNum, nout: k.Nout, eff: r.effectiveAmount(claimHash, height)}
		if best == nil || c.eff > best.eff ||
			(c.eff == best.eff && (c.txNum < best.txNum || (c.txNum == best.txNum && c.nout < best.nout))) {
			best = &c
		}
		return true
	})
	if err != nil {
		return CHash{}, err
	}
	if best == nil {
		return CHash{}, newNotFound(seg.Name + " under channel")
	}
	return best.hash, nil
}

func (r *Resolver) load(hash CHash) (ResolvedClaim, error) {
	val, ok := r.getClaim(hash)
	if !ok {
		return ResolvedClaim{}, newNotFound(fmt.Sprintf("%x", hash))
	}
	if blocker, censored := r.censorBlocker(hash, val); censored {
		return ResolvedClaim{}, &CensoredError{BlockingChannel: blocker}
	}
	data, err := r.outputData(val.TxNum, val.Nout)
	if err != nil {
		return ResolvedClaim{}, err
	}
	return ResolvedClaim{ClaimHash: hash, Value: val, Data: data}, nil
}

// ResolveURL resolves `[lbry://]<channel>[/<stream>]` (spec §4.5).
func (r *Resolver) ResolveURL(ctx context.Context, url string) (channel, stream *ResolvedClaim, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, ErrQueryTimeout
	}
	parsed, err := ParseURL(url)
	if err != nil {
		return nil, nil, err
	}
	channelHash, err := r.resolveSegment(parsed.Channel)
	if err != nil {
		return nil, nil, err
	}
	resolvedChannel, err := r.load(channelHash)
	if err != nil {
		return nil, nil, err
	}
	if parsed.Stream == nil {
		return &resolvedChannel, nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, ErrQueryTimeout
	}
	streamHash, err := r.resolveStreamUnderChannel(channelHash, *parsed.Stream)
	if err != nil {
		return nil, nil, err
	}
	resolvedStream, err := r.load(streamHash)
	if err != nil {
		return nil, nil, err
	}
	return &resolvedChannel, &resolvedStream, nil
}
