// Package resolver implements the pure read path over the committed
// store (spec §4.5): URL resolution, search, address history, and
// transaction-with-merkle lookups. It never stages ops.
package resolver

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
)

// ErrNotFound is returned when a URL segment, search query, or
// transaction id has no corresponding row.
var ErrNotFound = errors.New("resolver: not found")

// ErrQueryTimeout is returned when a query's deadline elapses mid-iteration.
var ErrQueryTimeout = errors.New("resolver: query timeout")

// CensoredError is returned in place of a resolved claim whose content or
// signing channel matches a configured block/filter channel list. It
// carries the blocking channel hash so callers can report why, rather
// than surfacing a generic not-found.
type CensoredError struct {
	BlockingChannel codec.ClaimHash
}

func (e *CensoredError) Error() string {
	return fmt.Sprintf("resolver: censored by channel %x", e.BlockingChannel)
}

func newNotFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}
