// Package codec packs and unpacks the fixed-width, order-preserving rows
// that make up the hub's key-value store. Every row type is tagged with a
// one-byte prefix so that a single ordered store can host ~30 logically
// distinct column families.
package codec

import (
	"encoding/binary"
	"errors"
)

// Prefix tags one row type. It is also the column family a row lives in.
type Prefix byte

const (
	PrefixBlockHeader Prefix = 'h'
	PrefixBlockHash   Prefix = 'c'
	PrefixTx          Prefix = 'b'
	PrefixTxNum       Prefix = 'n'
	PrefixTxHash      Prefix = 'x'
	PrefixTxCount     Prefix = 't'
	PrefixUndo        Prefix = 'u'

	PrefixUTXO         Prefix = 'U'
	PrefixHashXUTXO    Prefix = 'X'
	PrefixHashXHistory Prefix = 'H'

	PrefixClaimToTXO       Prefix = 'E'
	PrefixTXOToClaim       Prefix = 'G'
	PrefixClaimShortID     Prefix = 'F'
	PrefixClaimToChannel   Prefix = 'I'
	PrefixChannelToClaim   Prefix = 'J'
	PrefixClaimToSupport   Prefix = 'K'
	PrefixSupportToClaim   Prefix = 'L'
	PrefixClaimExpiration  Prefix = 'O'
	PrefixClaimTakeover    Prefix = 'P'
	PrefixPendingActivate  Prefix = 'Q'
	PrefixActivated        Prefix = 'R'
	PrefixActiveAmount     Prefix = 'V'
	PrefixEffectiveAmount  Prefix = 'D'
	PrefixRepost           Prefix = 'S'
	PrefixReposted         Prefix = 'T'
	PrefixTouchedOrDeleted Prefix = 'Z'

	PrefixDBState Prefix = 's'
)

// AllPrefixes enumerates every column family the store must open. Opening a
// store whose on-disk state contains a prefix absent from this list is a
// schema mismatch (see store.Open).
var AllPrefixes = []Prefix{
	PrefixBlockHeader, PrefixBlockHash, PrefixTx, PrefixTxNum, PrefixTxHash,
	PrefixTxCount, PrefixUndo,
	PrefixUTXO, PrefixHashXUTXO, PrefixHashXHistory,
	PrefixClaimToTXO, PrefixTXOToClaim, PrefixClaimShortID,
	PrefixClaimToChannel, PrefixChannelToClaim,
	PrefixClaimToSupport, PrefixSupportToClaim,
	PrefixClaimExpiration, PrefixClaimTakeover,
	PrefixPendingActivate, PrefixActivated, PrefixActiveAmount,
	PrefixEffectiveAmount, PrefixRepost, PrefixReposted,
	PrefixTouchedOrDeleted, PrefixDBState,
}

// ErrCorruptRow is returned when an unpack call receives bytes whose length
// does not match the row's fixed shape. It signals schema mismatch or disk
// corruption and is always fatal to the caller.
var ErrCorruptRow = errors.New("codec: corrupt row")

// HashXSize is the truncated script-hash length used for address keys.
const HashXSize = 11

// ClaimHashSize is the length of a claim hash (hash160 output).
const ClaimHashSize = 20

// OnesComplement returns 0xffffffffffffffff - x, used to make ascending
// byte-order iteration over a key yield descending amount order.
func OnesComplement(x uint64) uint64 {
	return ^x
}

// LengthEncodedName packs name as u16-big-endian-length || utf-8 bytes.
// Invalid UTF-8 is retained verbatim: names originate on an adversarial
// chain and must round-trip byte for byte.
func LengthEncodedName(name string) []byte {
	b := make([]byte, 2+len(name))
	binary.BigEndian.PutUint16(b, uint16(len(name)))
	copy(b[2:], name)
	return b
}

// UnpackLengthEncodedName reads a length-encoded name from the front of data
// and returns the name plus the remaining bytes.
func UnpackLengthEncodedName(data []byte) (string, []byte, error) {
	if len(data) < 2 {
		return "", nil, ErrCorruptRow
	}
	n := int(binary.BigEndian.Uint16(data))
	if len(data) < 2+n {
		return "", nil, ErrCorruptRow
	}
	return string(data[2 : 2+n]), data[2+n:], nil
}

// LengthPrefix packs b as u8-length || raw bytes. Used to frame the partial
// claim-id prefix in short-ID keys so shorter prefixes sort ahead of longer
// ones sharing the same head.
func LengthPrefix(b []byte) []byte {
	out := make([]byte, 1+len(b))
	out[0] = byte(len(b))
	copy(out[1:], b)
	return out
}

// UnpackLengthPrefix reads a length-prefixed byte string from the front of
// data and returns it plus the remaining bytes.
func UnpackLengthPrefix(data []byte) ([]byte, []byte, error) {
	if len(data) < 1 {
		return nil, nil, ErrCorruptRow
	}
	n := int(data[0])
	if len(data) < 1+n {
		return nil, nil, ErrCorruptRow
	}
	return data[1 : 1+n], data[1+n:], nil
}
