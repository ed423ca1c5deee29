package indexer

import "errors"

// ErrOutOfOrder is returned when AdvanceBlock is called with a height
// other than the next expected one. The indexer never reorders blocks
// (spec §5); the caller (prefetcher/reorg detector) is responsible for
// sequencing.
var ErrOutOfOrder = errors.New("indexer: block height out of sequence")

// ErrChain signals the upstream node returned a block inconsistent with
// prior state (spec §7: ChainError). Fatal; triggers shutdown.
var ErrChain = errors.New("indexer: chain inconsistency")
