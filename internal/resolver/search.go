package resolver

import (
	"context"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
)

// SearchFilters narrows a search query (spec §4.5). Name, when set, takes
// the fast leaderboard path; any other combination scans Claim→TXO with
// in-memory filtering.
type SearchFilters struct {
	Name           *string
	IsChannel      *bool
	SigningChannel *CHash
	Limit          int
	Offset         int
	WithTotal      bool
}

// SearchRow is one matching claim.
type SearchRow struct {
	ClaimHash CHash
	Value     codec.ClaimToTXOValue
}

// Search resolves filters against the store. total is only populated
// (non-nil) when filters.WithTotal is set, since counting the full
// filtered prefix is O(n).
func (r *Resolver) Search(ctx context.Context, filters SearchFilters) (rows []SearchRow, total *int, err error) {
	if filters.Name != nil {
		return r.searchByName(ctx, *filters.Name, filters)
	}
	return r.searchScan(ctx, filters)
}

func (r *Resolver) matches(hash CHash, val codec.ClaimToTXOValue, filters SearchFilters) bool {
	if filters.SigningChannel != nil {
		ch, ok := r.signingChannel(hash, val)
		if !ok || ch != *filters.SigningChannel {
			return false
		}
	}
	if filters.IsChannel != nil {
		data, err := r.outputData(val.TxNum, val.Nout)
		if err != nil || data.Meta.IsChannel != *filters.IsChannel {
			return false
		}
	}
	return true
}

func (r *Resolver) searchByName(ctx context.Context, name string, filters SearchFilters) ([]SearchRow, *int, error) {
	var rows []SearchRow
	count := 0
	skipped := 0
	err := r.st.Iterate(codec.EffectiveAmountNamePrefix(name), false, func(key, value []byte) bool {
		if ctx.Err() != nil {
			return false
		}
		hash, uerr := codec.UnpackEffectiveAmountValue(value)
		if uerr != nil {
			return true
		}
		val, exists := r.getClaim(hash)
		if !exists || !r.matches(hash, val, filters) {
			return true
		}
		if _, censored := r.censorBlocker(hash, val); censored {
			return true
		}
		count++
		if filters.Offset > 0 && skipped < filters.Offset {
			skipped++
			return true
		}
		if filters.Limit > 0 && len(rows) >= filters.Limit {
			return filters.WithTotal // keep counting only if a total was requested
		}
		rows = append(rows, SearchRow{ClaimHash: hash, Value: val})
		return true
	})
	if err != nil {
		return nil, nil, err
	}
	if ctx.Err() != nil {
		return nil, nil, ErrQueryTimeout
	}
	var total *int
	if filters.WithTotal {
		total = &count
	}
	return rows, total, nil
}

func (r *Resolver) searchScan(ctx context.Context, filters SearchFilters) ([]SearchRow, *int, error) {
	var rows []SearchRow
	count := 0
	skipped := 0
	err := r.st.Iterate([]byte{byte(codec.PrefixClaimToTXO)}, false, func(key, value []byte) bool {
		if ctx.Err() != nil {
			return false
		}
		k, uerr := codec.UnpackClaimToTXOKey(key)
		if uerr != nil {
			return true
		}
		val, uerr := codec.UnpackClaimToTXOValue(value)
		if uerr != nil {
			return true
		}
		if !r.matches(k.ClaimHash, val, filters) {
			return true
		}
		if _, censored := r.censorBlocker(k.ClaimHash, val); censored {
			return true
		}
		count++
		if filters.Offset > 0 && skipped < filters.Offset {
			skipped++
			return true
		}
		if filters.Limit > 0 && len(rows) >= filters.Limit {
			return filters.WithTotal
		}
		rows = append(rows, SearchRow{ClaimHash: k.ClaimHash, Value: val})
		return true
	})
	if err != nil {
		return nil, nil, err
	}
	if ctx.Err() != nil {
		return nil, nil, ErrQueryTimeout
	}
	var total *int
	if filters.WithTotal {
		total = &count
	}
	return rows, total, nil
}
