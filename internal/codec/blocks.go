package codec

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// BlockHeaderKey addresses the 112-byte wire header stored at a height.
type BlockHeaderKey struct {
	Height uint32
}

func PackBlockHeaderKey(k BlockHeaderKey) []byte {
	b := make([]byte, 1+4)
	b[0] = byte(PrefixBlockHeader)
	binary.BigEndian.PutUint32(b[1:], k.Height)
	return b
}

func UnpackBlockHeaderKey(key []byte) (BlockHeaderKey, error) {
	if len(key) != 5 || Prefix(key[0]) != PrefixBlockHeader {
		return BlockHeaderKey{}, ErrCorruptRow
	}
	return BlockHeaderKey{Height: binary.BigEndian.Uint32(key[1:])}, nil
}

// HeaderWireSize is the fixed wire-format header length (spec §6):
// version(4) | prev_hash(32) | merkle_root(32) | claim_trie_root(32) | timestamp(4) | bits(4) | nonce(4).
const HeaderWireSize = 4 + 32 + 32 + 32 + 4 + 4 + 4

func PackBlockHeaderValue(raw []byte) ([]byte, error) {
	if len(raw) != HeaderWireSize {
		return nil, ErrCorruptRow
	}
	return raw, nil
}

func UnpackBlockHeaderValue(data []byte) ([]byte, error) {
	if len(data) != HeaderWireSize {
		return nil, ErrCorruptRow
	}
	return data, nil
}

// BlockHashKey addresses the block hash recorded for a height.
type BlockHashKey struct {
	Height uint32
}

func PackBlockHashKey(k BlockHashKey) []byte {
	b := make([]byte, 1+4)
	b[0] = byte(PrefixBlockHash)
	binary.BigEndian.PutUint32(b[1:], k.Height)
	return b
}

func UnpackBlockHashKey(key []byte) (BlockHashKey, error) {
	if len(key) != 5 || Prefix(key[0]) != PrefixBlockHash {
		return BlockHashKey{}, ErrCorruptRow
	}
	return BlockHashKey{Height: binary.BigEndian.Uint32(key[1:])}, nil
}

func PackBlockHashValue(h types.Hash) []byte {
	out := make([]byte, 32)
	copy(out, h[:])
	return out
}

func UnpackBlockHashValue(data []byte) (types.Hash, error) {
	if len(data) != 32 {
		return types.Hash{}, ErrCorruptRow
	}
	var h types.Hash
	copy(h[:], data)
	return h, nil
}

// TxKey addresses the raw transaction bytes stored under a tx hash.
type TxKey struct {
	TxHash types.Hash
}

func PackTxKey(k TxKey) []byte {
	b := make([]byte, 1+32)
	b[0] = byte(PrefixTx)
	copy(b[1:], k.TxHash[:])
	return b
}

func UnpackTxKey(key []byte) (TxKey, error) {
	if len(key) != 33 || Prefix(key[0]) != PrefixTx {
		return TxKey{}, ErrCorruptRow
	}
	var k TxKey
	copy(k.TxHash[:], key[1:])
	return k, nil
}

// TxNumKey maps a tx hash to its monotonic per-chain tx_num.
type TxNumKey struct {
	TxHash types.Hash
}

func PackTxNumKey(k TxNumKey) []byte {
	b := make([]byte, 1+32)
	b[0] = byte(PrefixTxNum)
	copy(b[1:], k.TxHash[:])
	return b
}

func UnpackTxNumKey(key []byte) (TxNumKey, error) {
	if len(key) != 33 || Prefix(key[0]) != PrefixTxNum {
		return TxNumKey{}, ErrCorruptRow
	}
	var k TxNumKey
	copy(k.TxHash[:], key[1:])
	return k, nil
}

func PackTxNumValue(txNum uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, txNum)
	return b
}

func UnpackTxNumValue(data []byte) (uint32, error) {
	if len(data) != 4 {
		return 0, ErrCorruptRow
	}
	return binary.BigEndian.Uint32(data), nil
}

// TxHashKey maps a tx_num back to its tx hash.
type TxHashKey struct {
	TxNum uint32
}

func PackTxHashKey(k TxHashKey) []byte {
	b := make([]byte, 1+4)
	b[0] = byte(PrefixTxHash)
	binary.BigEndian.PutUint32(b[1:], k.TxNum)
	return b
}

func UnpackTxHashKey(key []byte) (TxHashKey, error) {
	if len(key) != 5 || Prefix(key[0]) != PrefixTxHash {
		return TxHashKey{}, ErrCorruptRow
	}
	return TxHashKey{TxNum: binary.BigEndian.Uint32(key[1:])}, nil
}

func PackTxHashValue(h types.Hash) []byte {
	out := make([]byte, 32)
	copy(out, h[:])
	return out
}

func UnpackTxHashValue(data []byte) (types.Hash, error) {
	if len(data) != 32 {
		return types.Hash{}, ErrCorruptRow
	}
	var h types.Hash
	copy(h[:], data)
	return h, nil
}

// TxCountKey addresses the cumulative tx_num count as of a height.
type TxCountKey struct {
	Height uint32
}

func PackTxCountKey(k TxCountKey) []byte {
	b := make([]byte, 1+4)
	b[0] = byte(PrefixTxCount)
	binary.BigEndian.PutUint32(b[1:], k.Height)
	return b
}

func UnpackTxCountKey(key []byte) (TxCountKey, error) {
	if len(key) != 5 || Prefix(key[0]) != PrefixTxCount {
		return TxCountKey{}, ErrCorruptRow
	}
	return TxCountKey{Height: binary.BigEndian.Uint32(key[1:])}, nil
}

func PackTxCountValue(count uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, count)
	return b
}

func UnpackTxCountValue(data []byte) (uint32, error) {
	if len(data) != 4 {
		return 0, ErrCorruptRow
	}
	return binary.BigEndian.Uint32(data), nil
}

// UndoKey addresses the packed undo-op sequence for a committed block.
// Fixed at (height, block_hash) per spec §9 (the legacy (height) alone
// layout is explicitly out of scope).
type UndoKey struct {
	Height    uint32
	BlockHash types.Hash
}

func PackUndoKey(k UndoKey) []byte {
	b := make([]byte, 1+4+32)
	b[0] = byte(PrefixUndo)
	binary.BigEndian.PutUint32(b[1:5], k.Height)
	copy(b[5:], k.BlockHash[:])
	return b
}

func UnpackUndoKey(key []byte) (UndoKey, error) {
	if len(key) != 1+4+32 || Prefix(key[0]) != PrefixUndo {
		return UndoKey{}, ErrCorruptRow
	}
	var k UndoKey
	k.Height = binary.BigEndian.Uint32(key[1:5])
	copy(k.BlockHash[:], key[5:])
	return k, nil
}

// UndoHeightPrefix returns the partial key for iterating all undo rows at
// a given height (block_hash unspecified) — used to locate an undo entry
// when the caller knows the height but must confirm against a candidate
// block hash during reorg.
func UndoHeightPrefix(height uint32) []byte {
	b := make([]byte, 1+4)
	b[0] = byte(PrefixUndo)
	binary.BigEndian.PutUint32(b[1:], height)
	return b
}
