// Package revertable implements the op-stack that mediates every write to
// the store: staged puts and deletes are checked for integrity against
// current committed state and invertible into an undo blob on commit.
package revertable

import (
	"encoding/binary"
)

// Op is a single staged mutation: a Put or a Delete. The value is required
// even on Delete so the op can be inverted to restore prior state.
type Op struct {
	IsPut bool
	Key   []byte
	Value []byte
}

// Put constructs a put op.
func Put(key, value []byte) Op {
	return Op{IsPut: true, Key: key, Value: value}
}

// Delete constructs a delete op. value must equal the currently stored
// value for the key; the op-stack enforces this.
func Delete(key, value []byte) Op {
	return Op{IsPut: false, Key: key, Value: value}
}

// IsDelete reports whether the op is a delete.
func (o Op) IsDelete() bool { return !o.IsPut }

// Invert returns the op that undoes this one: a Put inverts to a Delete of
// the same key/value and vice versa.
func (o Op) Invert() Op {
	return Op{IsPut: !o.IsPut, Key: o.Key, Value: o.Value}
}

// Equal reports whether two ops are identical in kind, key, and value.
func (o Op) Equal(other Op) bool {
	return o.IsPut == other.IsPut && string(o.Key) == string(other.Key) && string(o.Value) == string(other.Value)
}

// Pack serializes the op as u8 kind || u32 key_len || u32 val_len || key || val.
func (o Op) Pack() []byte {
	kind := byte(0)
	if o.IsPut {
		kind = 1
	}
	out := make([]byte, 1+4+4+len(o.Key)+len(o.Value))
	out[0] = kind
	binary.BigEndian.PutUint32(out[1:5], uint32(len(o.Key)))
	binary.BigEndian.PutUint32(out[5:9], uint32(len(o.Value)))
	copy(out[9:9+len(o.Key)], o.Key)
	copy(out[9+len(o.Key):], o.Value)
	return out
}

// Unpack decodes one op from the front of packed and returns it along
// with the remaining bytes.
func Unpack(packed []byte) (Op, []byte, error) {
	if len(packed) < 9 {
		return Op{}, nil, ErrTruncatedOp
	}
	isPut := packed[0] == 1
	keyLen := binary.BigEndian.Uint32(packed[1:5])
	valLen := binary.BigEndian.Uint32(packed[5:9])
	end := 9 + int(keyLen) + int(valLen)
	if len(packed) < end {
		return Op{}, nil, ErrTruncatedOp
	}
	key := packed[9 : 9+keyLen]
	val := packed[9+keyLen : end]
	return Op{IsPut: isPut, Key: key, Value: val}, packed[end:], nil
}
