package resolver

import (
	"context"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// HistoryEntry is one (tx_hash, height) pair in an address's history.
type HistoryEntry struct {
	TxHash types.Hash
	Height uint32
}

// AddressHistory iterates Address-history rows for hashX in ascending
// height, emitting (tx_hash, height) pairs (spec §4.5), stopping once
// limit entries have been collected (limit <= 0 means unbounded).
func (r *Resolver) AddressHistory(ctx context.Context, hashX codec.HashX, limit int) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := r.st.Iterate(codec.HashXPrefix(hashX), false, func(key, value []byte) bool {
		if ctx.Err() != nil {
			return false
		}
		txNums, uerr := codec.UnpackHashXHistoryValue(value)
		if uerr != nil {
			return true
		}
		k, uerr := codec.UnpackHashXHistoryKey(key)
		if uerr != nil {
			return true
		}
		for _, txNum := range txNums {
			raw, ok := r.st.Get(codec.PackTxHashKey(codec.TxHashKey{TxNum: txNum}))
			if !ok {
				continue
			}
			txHash, uerr := codec.UnpackTxHashValue(raw)
			if uerr != nil {
				continue
			}
			out = append(out, HistoryEntry{TxHash: txHash, Height: k.Height})
			if limit > 0 && len(out) >= limit {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ErrQueryTimeout
	}
	return out, nil
}
