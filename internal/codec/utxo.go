package codec

import "encoding/binary"

// HashX is an 11-byte truncated script hash used as an address key.
type HashX [HashXSize]byte

// UTXOKey addresses a live unspent output by its owning address.
type UTXOKey struct {
	HashX HashX
	TxNum uint32
	Nout  uint16
}

func PackUTXOKey(k UTXOKey) []byte {
	b := make([]byte, 1+HashXSize+4+2)
	b[0] = byte(PrefixUTXO)
	copy(b[1:1+HashXSize], k.HashX[:])
	binary.BigEndian.PutUint32(b[1+HashXSize:], k.TxNum)
	binary.BigEndian.PutUint16(b[1+HashXSize+4:], k.Nout)
	return b
}

func UnpackUTXOKey(key []byte) (UTXOKey, error) {
	if len(key) != 1+HashXSize+4+2 || Prefix(key[0]) != PrefixUTXO {
		return UTXOKey{}, ErrCorruptRow
	}
	var k UTXOKey
	copy(k.HashX[:], key[1:1+HashXSize])
	k.TxNum = binary.BigEndian.Uint32(key[1+HashXSize:])
	k.Nout = binary.BigEndian.Uint16(key[1+HashXSize+4:])
	return k, nil
}

func PackUTXOValue(amount uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, amount)
	return b
}

func UnpackUTXOValue(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, ErrCorruptRow
	}
	return binary.BigEndian.Uint64(data), nil
}

// HashXUTXOKey is a parallel index keyed by the short (4-byte) tx id,
// letting a spend be located without the full 32-byte hash.
type HashXUTXOKey struct {
	ShortTxID [4]byte
	TxNum     uint32
	Nout      uint16
}

func PackHashXUTXOKey(k HashXUTXOKey) []byte {
	b := make([]byte, 1+4+4+2)
	b[0] = byte(PrefixHashXUTXO)
	copy(b[1:5], k.ShortTxID[:])
	binary.BigEndian.PutUint32(b[5:9], k.TxNum)
	binary.BigEndian.PutUint16(b[9:11], k.Nout)
	return b
}

func UnpackHashXUTXOKey(key []byte) (HashXUTXOKey, error) {
	if len(key) != 1+4+4+2 || Prefix(key[0]) != PrefixHashXUTXO {
		return HashXUTXOKey{}, ErrCorruptRow
	}
	var k HashXUTXOKey
	copy(k.ShortTxID[:], key[1:5])
	k.TxNum = binary.BigEndian.Uint32(key[5:9])
	k.Nout = binary.BigEndian.Uint16(key[9:11])
	return k, nil
}

func PackHashXUTXOValue(hashX HashX) []byte {
	out := make([]byte, HashXSize)
	copy(out, hashX[:])
	return out
}

func UnpackHashXUTXOValue(data []byte) (HashX, error) {
	if len(data) != HashXSize {
		return HashX{}, ErrCorruptRow
	}
	var h HashX
	copy(h[:], data)
	return h, nil
}

// HashXHistoryKey addresses the list of tx_nums touching an address at a
// given height.
type HashXHistoryKey struct {
	HashX  HashX
	Height uint32
}

func PackHashXHistoryKey(k HashXHistoryKey) []byte {
	b := make([]byte, 1+HashXSize+4)
	b[0] = byte(PrefixHashXHistory)
	copy(b[1:1+HashXSize], k.HashX[:])
	binary.BigEndian.PutUint32(b[1+HashXSize:], k.Height)
	return b
}

func UnpackHashXHistoryKey(key []byte) (HashXHistoryKey, error) {
	if len(key) != 1+HashXSize+4 || Prefix(key[0]) != PrefixHashXHistory {
		return HashXHistoryKey{}, ErrCorruptRow
	}
	var k HashXHistoryKey
	copy(k.HashX[:], key[1:1+HashXSize])
	k.Height = binary.BigEndian.Uint32(key[1+HashXSize:])
	return k, nil
}

// PackHashXHistoryValue packs a sequence of tx_nums touching the address.
func PackHashXHistoryValue(txNums []uint32) []byte {
	b := make([]byte, 4*len(txNums))
	for i, n := range txNums {
		binary.BigEndian.PutUint32(b[i*4:], n)
	}
	return b
}

func UnpackHashXHistoryValue(data []byte) ([]uint32, error) {
	if len(data)%4 != 0 {
		return nil, ErrCorruptRow
	}
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(data[i*4:])
	}
	return out, nil
}

// HashXPrefix returns the partial key for iterating every history row for
// an address, across all heights.
func HashXPrefix(hashX HashX) []byte {
	b := make([]byte, 1+HashXSize)
	b[0] = byte(PrefixHashXHistory)
	copy(b[1:], hashX[:])
	return b
}
