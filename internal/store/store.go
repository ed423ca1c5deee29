// Package store wraps an embedded ordered key-value database with the
// prefix-partitioned, undo-tracked layout the indexer and resolver share
// (spec §4.3). It generalizes the teacher's internal/storage.PrefixDB
// wrapper from a single namespace to a registry of ~30 typed prefixes,
// each its own logical column family.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-hub/internal/codec"
	"github.com/Klingon-tech/klingnet-hub/internal/log"
	"github.com/Klingon-tech/klingnet-hub/internal/revertable"
	"github.com/Klingon-tech/klingnet-hub/internal/storage"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// ErrUnknownPrefix is returned by Open when the on-disk store contains a
// row tagged with a prefix byte this build does not know about — a
// schema mismatch (spec §6).
var ErrUnknownPrefix = errors.New("store: unknown prefix in existing database")

// ErrNoUndo is returned by Rollback when no undo blob is recorded for the
// requested (height, block_hash) pair.
var ErrNoUndo = errors.New("store: no undo data for requested block")

const defaultMaxUndoDepth = 200

// Store is the prefix-partitioned, undo-tracked database. One Store
// backs exactly one writer at a time (spec §5).
type Store struct {
	db            storage.DB
	maxUndoDepth  uint32
	unsafePrefix  map[byte]bool
}

// Open validates the prefix set of an existing database (or initializes
// an empty one) and returns a ready Store. maxUndoDepth bounds how many
// past blocks' undo blobs are retained (default 200, spec §9).
func Open(db storage.DB, maxUndoDepth uint32, unsafePrefixes map[byte]bool) (*Store, error) {
	if maxUndoDepth == 0 {
		maxUndoDepth = defaultMaxUndoDepth
	}
	known := make(map[byte]bool, len(codec.AllPrefixes))
	for _, p := range codec.AllPrefixes {
		known[byte(p)] = true
	}
	err := db.ForEach(nil, func(key, _ []byte) error {
		if len(key) == 0 {
			return fmt.Errorf("%w: empty key", ErrUnknownPrefix)
		}
		if !known[key[0]] {
			return fmt.Errorf("%w: tag 0x%x", ErrUnknownPrefix, key[0])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, maxUndoDepth: maxUndoDepth, unsafePrefix: unsafePrefixes}, nil
}

// Get reads the raw value for a fully-packed key.
func (s *Store) Get(key []byte) ([]byte, bool) {
	v, err := s.db.Get(key)
	if err != nil {
		return nil, false
	}
	return v, true
}

// NewOpStack returns a fresh op-stack whose integrity checks read
// against this store's currently committed state.
func (s *Store) NewOpStack() *revertable.Stack {
	return revertable.NewStack(s.Get, s.unsafePrefix, func(prefix byte, err error) {
		log.Store.Warn().Err(err).Uint8("prefix", prefix).Msg("integrity error downgraded on unsafe prefix")
	})
}

// Commit applies every op staged in stack and the undo blob for
// (height, blockHash) as a single atomic batch, prunes undo entries
// older than height-maxUndoDepth, and clears stack (spec §4.3). Staging
// the undo write in the same batch as the block's own ops means a crash
// mid-commit can never leave a block's data applied without the undo
// record needed to roll it back.
func (s *Store) Commit(height uint32, blockHash types.Hash, stack *revertable.Stack) error {
	undo := stack.UndoOps()
	batch := s.db.NewBatch()
	if err := stageOps(batch, stack.All()); err != nil {
		return err
	}
	if err := batch.Put(codec.PackUndoKey(codec.UndoKey{Height: height, BlockHash: blockHash}), undo); err != nil {
		return fmt.Errorf("store: stage undo: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	s.pruneUndo(height)
	stack.Clear()
	return nil
}

// UnsafeCommit applies every staged op as a single atomic batch without
// recording undo data. Used only for bulk initial load (spec §4.3).
func (s *Store) UnsafeCommit(stack *revertable.Stack) error {
	batch := s.db.NewBatch()
	if err := stageOps(batch, stack.All()); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	stack.Clear()
	return nil
}

// Rollback reads the undo blob for (height, blockHash), replays its ops
// through a fresh op-stack (re-validating integrity), and applies the
// result together with the undo entry's removal as a single atomic
// batch.
func (s *Store) Rollback(height uint32, blockHash types.Hash) error {
	key := codec.PackUndoKey(codec.UndoKey{Height: height, BlockHash: blockHash})
	blob, ok := s.Get(key)
	if !ok {
		return fmt.Errorf("%w: height=%d hash=%s", ErrNoUndo, height, blockHash)
	}
	stack := s.NewOpStack()
	if err := stack.ApplyPackedUndoOps(blob); err != nil {
		return fmt.Errorf("store: replay undo ops: %w", err)
	}
	batch := s.db.NewBatch()
	if err := stageOps(batch, stack.All()); err != nil {
		return err
	}
	if err := batch.Delete(key); err != nil {
		return fmt.Errorf("store: stage undo deletion: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	return nil
}

// stageOps appends every op in ops to batch, without committing it.
func stageOps(batch storage.Batch, ops []revertable.Op) error {
	for _, op := range ops {
		if op.IsPut {
			if err := batch.Put(op.Key, op.Value); err != nil {
				return fmt.Errorf("store: stage put: %w", err)
			}
		} else {
			if err := batch.Delete(op.Key); err != nil {
				return fmt.Errorf("store: stage delete: %w", err)
			}
		}
	}
	return nil
}

// pruneUndo deletes undo entries whose height is older than
// height-maxUndoDepth. Never fatal: pruning failures are logged, not
// propagated, since they don't affect the just-committed block.
func (s *Store) pruneUndo(height uint32) {
	if height < s.maxUndoDepth {
		return
	}
	cutoff := height - s.maxUndoDepth
	var stale [][]byte
	err := s.db.ForEach([]byte{byte(codec.PrefixUndo)}, func(key, _ []byte) error {
		k, err := codec.UnpackUndoKey(key)
		if err != nil {
			return nil // tolerate legacy rows; pruning is best-effort
		}
		if k.Height < cutoff {
			stale = append(stale, append([]byte(nil), key...))
		}
		return nil
	})
	if err != nil {
		log.Store.Warn().Err(err).Msg("undo prune scan failed")
		return
	}
	for _, key := range stale {
		if err := s.db.Delete(key); err != nil {
			log.Store.Warn().Err(err).Msg("undo prune delete failed")
		}
	}
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Iterate walks every key under prefix in lexicographic key order
// (reverse=true for descending), yielding a copy of each key/value pair
// to fn until fn returns false or the prefix is exhausted.
//
// The underlying DB interface (grounded on storage.DB) exposes only an
// unordered ForEach; both backing implementations (Badger, and the
// in-memory map used in tests) are collected and sorted here so every
// caller — in particular the effective-amount leaderboard and short-ID
// lookups that depend on byte order — sees a stable, order-preserving
// view regardless of backend.
func (s *Store) Iterate(prefix []byte, reverse bool, fn func(key, value []byte) bool) error {
	type kv struct{ k, v []byte }
	var rows []kv
	err := s.db.ForEach(prefix, func(key, value []byte) error {
		rows = append(rows, kv{append([]byte(nil), key...), append([]byte(nil), value...)})
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(rows, func(i, j int) bool { return bytes.Compare(rows[i].k, rows[j].k) < 0 })
	if reverse {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	for _, r := range rows {
		if !fn(r.k, r.v) {
			break
		}
	}
	return nil
}
