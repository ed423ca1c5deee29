package revertable

import (
	"errors"
	"fmt"
)

// ErrTruncatedOp signals a packed undo blob that ends mid-op.
var ErrTruncatedOp = errors.New("revertable: truncated op")

// IntegrityError is raised when an appended op would violate the
// no-blind-overwrite / no-delete-without-value rules. Ported from
// OpStackIntegrity.
type IntegrityError struct {
	msg string
}

func (e *IntegrityError) Error() string { return e.msg }

func newIntegrityError(format string, args ...any) *IntegrityError {
	return &IntegrityError{msg: fmt.Sprintf(format, args...)}
}

// GetFunc looks up the currently committed value for a key, returning
// (nil, false) if the key does not exist.
type GetFunc func(key []byte) ([]byte, bool)

// Stack buffers all mutations for one block: puts and deletes staged
// against a GetFunc view of committed state, checked for integrity as
// they are appended.
type Stack struct {
	get            GetFunc
	items          map[string][]Op
	order          []string // insertion order of keys, for deterministic iteration
	unsafePrefixes map[byte]bool
	onUnsafe       func(prefix byte, err error)
}

// NewStack creates an op-stack reading committed state via get.
// unsafePrefixes downgrades integrity errors on those prefixes to a
// logged warning instead of a hard failure (spec §4.2); onUnsafe, if
// non-nil, receives the downgraded error for logging.
func NewStack(get GetFunc, unsafePrefixes map[byte]bool, onUnsafe func(prefix byte, err error)) *Stack {
	return &Stack{
		get:            get,
		items:          make(map[string][]Op),
		unsafePrefixes: unsafePrefixes,
		onUnsafe:       onUnsafe,
	}
}

// AppendOp stages op, enforcing integrity rules 1-5 from spec §4.2.
func (s *Stack) AppendOp(op Op) error {
	key := string(op.Key)
	ops := s.items[key]

	if len(ops) > 0 {
		last := ops[len(ops)-1]
		inverted := op.Invert()
		if inverted.Equal(last) {
			// Rule 1: exact inverse of the previous op cancels both.
			s.items[key] = ops[:len(ops)-1]
			return nil
		}
		if op.Equal(last) {
			// Rule 2: duplicate of the previous op is dropped.
			return nil
		}
	}

	storedVal, hasStored := s.get(op.Key)
	var deleteStoredOp Op
	willDeleteExisting := false
	if hasStored {
		deleteStoredOp = Delete(op.Key, storedVal)
		for _, staged := range ops {
			if staged.Equal(deleteStoredOp) {
				willDeleteExisting = true
				break
			}
		}
	}

	var integrityErr error
	switch {
	case op.IsPut && hasStored && !willDeleteExisting:
		integrityErr = newIntegrityError("op tries to add on top of existing key without deleting first: %x", op.Key)
	case op.IsDelete() && hasStored && string(storedVal) != string(op.Value) && !willDeleteExisting:
		integrityErr = newIntegrityError("op tries to delete with incorrect existing value: %x", op.Key)
	case op.IsDelete() && !hasStored:
		integrityErr = newIntegrityError("op tries to delete nonexistent key: %x", op.Key)
	case op.IsDelete() && hasStored && string(storedVal) != string(op.Value):
		integrityErr = newIntegrityError("op tries to delete with incorrect value: %x", op.Key)
	}

	if integrityErr != nil {
		if len(op.Key) > 0 && s.unsafePrefixes[op.Key[0]] {
			if s.onUnsafe != nil {
				s.onUnsafe(op.Key[0], integrityErr)
			}
		} else {
			return integrityErr
		}
	}

	if _, seen := s.items[key]; !seen {
		s.order = append(s.order, key)
	}
	s.items[key] = append(s.items[key], op)
	return nil
}

// ExtendOps stages a sequence of ops, stopping at the first integrity
// error.
func (s *Stack) ExtendOps(ops []Op) error {
	for _, op := range ops {
		if err := s.AppendOp(op); err != nil {
			return err
		}
	}
	return nil
}

// Clear discards all staged ops without applying them.
func (s *Stack) Clear() {
	s.items = make(map[string][]Op)
	s.order = nil
}

// Len returns the total number of staged ops across all keys.
func (s *Stack) Len() int {
	n := 0
	for _, ops := range s.items {
		n += len(ops)
	}
	return n
}

// All returns every staged op in key insertion order.
func (s *Stack) All() []Op {
	out := make([]Op, 0, s.Len())
	for _, key := range s.order {
		out = append(out, s.items[key]...)
	}
	return out
}

// Reversed returns every staged op in reverse of All's order, each key's
// own ops also reversed — matching Python's __reversed__.
func (s *Stack) Reversed() []Op {
	all := s.All()
	out := make([]Op, len(all))
	for i, op := range all {
		out[len(all)-1-i] = op
	}
	return out
}

// UndoOps serializes the inverse of every staged op, in reverse
// application order, as a single blob (spec §4.2).
func (s *Stack) UndoOps() []byte {
	var out []byte
	for _, op := range s.Reversed() {
		out = append(out, op.Invert().Pack()...)
	}
	return out
}

// ApplyPackedUndoOps unpacks and re-appends every op in a packed undo
// blob, re-validating integrity as it goes (spec §4.2: rollback re-runs
// the same checks as forward application).
func (s *Stack) ApplyPackedUndoOps(packed []byte) error {
	for len(packed) > 0 {
		op, rest, err := Unpack(packed)
		if err != nil {
			return err
		}
		if err := s.AppendOp(op); err != nil {
			return err
		}
		packed = rest
	}
	return nil
}

// LastOpForKey returns the most recently staged op for key, if any.
func (s *Stack) LastOpForKey(key []byte) (Op, bool) {
	ops := s.items[string(key)]
	if len(ops) == 0 {
		return Op{}, false
	}
	return ops[len(ops)-1], true
}
