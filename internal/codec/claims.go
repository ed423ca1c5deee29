package codec

import "encoding/binary"

// ClaimHash identifies a claim: hash160(prev_tx_hash || u32be(nout)) of its
// originating output (see ClaimHash160 in claimhash.go).
type ClaimHash [ClaimHashSize]byte

// ClaimToTXOKey addresses the live location of a claim.
type ClaimToTXOKey struct {
	ClaimHash ClaimHash
}

func PackClaimToTXOKey(k ClaimToTXOKey) []byte {
	b := make([]byte, 1+ClaimHashSize)
	b[0] = byte(PrefixClaimToTXO)
	copy(b[1:], k.ClaimHash[:])
	return b
}

func UnpackClaimToTXOKey(key []byte) (ClaimToTXOKey, error) {
	if len(key) != 1+ClaimHashSize || Prefix(key[0]) != PrefixClaimToTXO {
		return ClaimToTXOKey{}, ErrCorruptRow
	}
	var k ClaimToTXOKey
	copy(k.ClaimHash[:], key[1:])
	return k, nil
}

// ClaimToTXOValue is the full descriptor of a live claim's current output.
type ClaimToTXOValue struct {
	TxNum        uint32
	Nout         uint16
	RootTxNum    uint32
	RootPosition uint16
	Amount       uint64
	SigValid     bool
	Name         string
}

func PackClaimToTXOValue(v ClaimToTXOValue) []byte {
	fixed := make([]byte, 4+2+4+2+8+1)
	binary.BigEndian.PutUint32(fixed[0:4], v.TxNum)
	binary.BigEndian.PutUint16(fixed[4:6], v.Nout)
	binary.BigEndian.PutUint32(fixed[6:10], v.RootTxNum)
	binary.BigEndian.PutUint16(fixed[10:12], v.RootPosition)
	binary.BigEndian.PutUint64(fixed[12:20], v.Amount)
	if v.SigValid {
		fixed[20] = 1
	}
	return append(fixed, LengthEncodedName(v.Name)...)
}

func UnpackClaimToTXOValue(data []byte) (ClaimToTXOValue, error) {
	if len(data) < 21 {
		return ClaimToTXOValue{}, ErrCorruptRow
	}
	name, rest, err := UnpackLengthEncodedName(data[21:])
	if err != nil {
		return ClaimToTXOValue{}, err
	}
	if len(rest) != 0 {
		return ClaimToTXOValue{}, ErrCorruptRow
	}
	return ClaimToTXOValue{
		TxNum:        binary.BigEndian.Uint32(data[0:4]),
		Nout:         binary.BigEndian.Uint16(data[4:6]),
		RootTxNum:    binary.BigEndian.Uint32(data[6:10]),
		RootPosition: binary.BigEndian.Uint16(data[10:12]),
		Amount:       binary.BigEndian.Uint64(data[12:20]),
		SigValid:     data[20] != 0,
		Name:         name,
	}, nil
}

// TXOToClaimKey mirrors ClaimToTXOKey from the output side.
type TXOToClaimKey struct {
	TxNum uint32
	Nout  uint16
}

func PackTXOToClaimKey(k TXOToClaimKey) []byte {
	b := make([]byte, 1+4+2)
	b[0] = byte(PrefixTXOToClaim)
	binary.BigEndian.PutUint32(b[1:5], k.TxNum)
	binary.BigEndian.PutUint16(b[5:7], k.Nout)
	return b
}

func UnpackTXOToClaimKey(key []byte) (TXOToClaimKey, error) {
	if len(key) != 1+4+2 || Prefix(key[0]) != PrefixTXOToClaim {
		return TXOToClaimKey{}, ErrCorruptRow
	}
	var k TXOToClaimKey
	k.TxNum = binary.BigEndian.Uint32(key[1:5])
	k.Nout = binary.BigEndian.Uint16(key[5:7])
	return k, nil
}

type TXOToClaimValue struct {
	ClaimHash ClaimHash
	Name      string
}

func PackTXOToClaimValue(v TXOToClaimValue) []byte {
	out := make([]byte, ClaimHashSize)
	copy(out, v.ClaimHash[:])
	return append(out, LengthEncodedName(v.Name)...)
}

func UnpackTXOToClaimValue(data []byte) (TXOToClaimValue, error) {
	if len(data) < ClaimHashSize {
		return TXOToClaimValue{}, ErrCorruptRow
	}
	name, rest, err := UnpackLengthEncodedName(data[ClaimHashSize:])
	if err != nil {
		return TXOToClaimValue{}, err
	}
	if len(rest) != 0 {
		return TXOToClaimValue{}, ErrCorruptRow
	}
	var v TXOToClaimValue
	copy(v.ClaimHash[:], data[:ClaimHashSize])
	v.Name = name
	return v, nil
}

// ClaimShortIDKey supports `name#partial-claim-id` resolution: the key
// embeds the name, a length-prefixed ASCII-hex claim-id prefix (so
// shorter prefixes sort before longer ones sharing a head), and the
// claim's root location.
type ClaimShortIDKey struct {
	Name         string
	PartialID    string // ascii hex prefix of the claim id
	RootTxNum    uint32
	RootPosition uint16
}

func PackClaimShortIDKey(k ClaimShortIDKey) []byte {
	out := []byte{byte(PrefixClaimShortID)}
	out = append(out, LengthEncodedName(k.Name)...)
	out = append(out, LengthPrefix([]byte(k.PartialID))...)
	tail := make([]byte, 6)
	binary.BigEndian.PutUint32(tail[0:4], k.RootTxNum)
	binary.BigEndian.PutUint16(tail[4:6], k.RootPosition)
	return append(out, tail...)
}

// PackClaimShortIDPartialKey builds a prefix suitable for iterating every
// short-ID row for a name. A non-empty partialID is length-framed, so the
// prefix then matches only rows whose stored partial ID equals partialID
// exactly, not rows whose ID merely starts with it.
func PackClaimShortIDPartialKey(name string, partialID string) []byte {
	out := []byte{byte(PrefixClaimShortID)}
	out = append(out, LengthEncodedName(name)...)
	if partialID == "" {
		return out
	}
	return append(out, LengthPrefix([]byte(partialID))...)
}

func UnpackClaimShortIDKey(key []byte) (ClaimShortIDKey, error) {
	if len(key) < 1 || Prefix(key[0]) != PrefixClaimShortID {
		return ClaimShortIDKey{}, ErrCorruptRow
	}
	name, rest, err := UnpackLengthEncodedName(key[1:])
	if err != nil {
		return ClaimShortIDKey{}, err
	}
	partial, rest, err := UnpackLengthPrefix(rest)
	if err != nil {
		return ClaimShortIDKey{}, err
	}
	if len(rest) != 6 {
		return ClaimShortIDKey{}, ErrCorruptRow
	}
	return ClaimShortIDKey{
		Name:         name,
		PartialID:    string(partial),
		RootTxNum:    binary.BigEndian.Uint32(rest[0:4]),
		RootPosition: binary.BigEndian.Uint16(rest[4:6]),
	}, nil
}

type ClaimShortIDValue struct {
	TxNum uint32
	Nout  uint16
}

func PackClaimShortIDValue(v ClaimShortIDValue) []byte {
	b := make([]byte, 6)
	binary.BigEndian.PutUint32(b[0:4], v.TxNum)
	binary.BigEndian.PutUint16(b[4:6], v.Nout)
	return b
}

func UnpackClaimShortIDValue(data []byte) (ClaimShortIDValue, error) {
	if len(data) != 6 {
		return ClaimShortIDValue{}, ErrCorruptRow
	}
	return ClaimShortIDValue{
		TxNum: binary.BigEndian.Uint32(data[0:4]),
		Nout:  binary.BigEndian.Uint16(data[4:6]),
	}, nil
}

// ClaimToChannelKey records the channel signing a claim's current output.
type ClaimToChannelKey struct {
	ClaimHash ClaimHash
	TxNum     uint32
	Nout      uint16
}

func PackClaimToChannelKey(k ClaimToChannelKey) []byte {
	b := make([]byte, 1+ClaimHashSize+4+2)
	b[0] = byte(PrefixClaimToChannel)
	copy(b[1:1+ClaimHashSize], k.ClaimHash[:])
	binary.BigEndian.PutUint32(b[1+ClaimHashSize:], k.TxNum)
	binary.BigEndian.PutUint16(b[1+ClaimHashSize+4:], k.Nout)
	return b
}

func UnpackClaimToChannelKey(key []byte) (ClaimToChannelKey, error) {
	if len(key) != 1+ClaimHashSize+4+2 || Prefix(key[0]) != PrefixClaimToChannel {
		return ClaimToChannelKey{}, ErrCorruptRow
	}
	var k ClaimToChannelKey
	copy(k.ClaimHash[:], key[1:1+ClaimHashSize])
	k.TxNum = binary.BigEndian.Uint32(key[1+ClaimHashSize:])
	k.Nout = binary.BigEndian.Uint16(key[1+ClaimHashSize+4:])
	return k, nil
}

func PackClaimToChannelValue(signingChannelHash ClaimHash) []byte {
	out := make([]byte, ClaimHashSize)
	copy(out, signingChannelHash[:])
	return out
}

func UnpackClaimToChannelValue(data []byte) (ClaimHash, error) {
	if len(data) != ClaimHashSize {
		return ClaimHash{}, ErrCorruptRow
	}
	var h ClaimHash
	copy(h[:], data)
	return h, nil
}

// ChannelToClaimKey is the inverse of ClaimToChannelKey; it exists only
// while the referenced claim's signature is currently valid.
type ChannelToClaimKey struct {
	SigningChannelHash ClaimHash
	Name               string
	TxNum              uint32
	Nout               uint16
}

func PackChannelToClaimKey(k ChannelToClaimKey) []byte {
	out := []byte{byte(PrefixChannelToClaim)}
	out = append(out, k.SigningChannelHash[:]...)
	out = append(out, LengthEncodedName(k.Name)...)
	tail := make([]byte, 6)
	binary.BigEndian.PutUint32(tail[0:4], k.TxNum)
	binary.BigEndian.PutUint16(tail[4:6], k.Nout)
	return append(out, tail...)
}

// ChannelToClaimPrefix returns the partial key for iterating every claim
// signed by a channel under a given name.
func ChannelToClaimPrefix(signingChannelHash ClaimHash, name string) []byte {
	out := []byte{byte(PrefixChannelToClaim)}
	out = append(out, signingChannelHash[:]...)
	out = append(out, LengthEncodedName(name)...)
	return out
}

func UnpackChannelToClaimKey(key []byte) (ChannelToClaimKey, error) {
	if len(key) < 1+ClaimHashSize || Prefix(key[0]) != PrefixChannelToClaim {
		return ChannelToClaimKey{}, ErrCorruptRow
	}
	var sigHash ClaimHash
	copy(sigHash[:], key[1:1+ClaimHashSize])
	name, rest, err := UnpackLengthEncodedName(key[1+ClaimHashSize:])
	if err != nil {
		return ChannelToClaimKey{}, err
	}
	if len(rest) != 6 {
		return ChannelToClaimKey{}, ErrCorruptRow
	}
	return ChannelToClaimKey{
		SigningChannelHash: sigHash,
		Name:               name,
		TxNum:              binary.BigEndian.Uint32(rest[0:4]),
		Nout:               binary.BigEndian.Uint16(rest[4:6]),
	}, nil
}

func PackChannelToClaimValue(claimHash ClaimHash) []byte {
	out := make([]byte, ClaimHashSize)
	copy(out, claimHash[:])
	return out
}

func UnpackChannelToClaimValue(data []byte) (ClaimHash, error) {
	if len(data) != ClaimHashSize {
		return ClaimHash{}, ErrCorruptRow
	}
	var h ClaimHash
	copy(h[:], data)
	return h, nil
}

// ClaimToSupportKey addresses one live support attached to a claim.
type ClaimToSupportKey struct {
	ClaimHash ClaimHash
	TxNum     uint32
	Nout      uint16
}

func PackClaimToSupportKey(k ClaimToSupportKey) []byte {
	b := make([]byte, 1+ClaimHashSize+4+2)
	b[0] = byte(PrefixClaimToSupport)
	copy(b[1:1+ClaimHashSize], k.ClaimHash[:])
	binary.BigEndian.PutUint32(b[1+ClaimHashSize:], k.TxNum)
	binary.BigEndian.PutUint16(b[1+ClaimHashSize+4:], k.Nout)
	return b
}

// ClaimToSupportPrefix iterates every live support for a claim.
func ClaimToSupportPrefix(claimHash ClaimHash) []byte {
	b := make([]byte, 1+ClaimHashSize)
	b[0] = byte(PrefixClaimToSupport)
	copy(b[1:], claimHash[:])
	return b
}

func UnpackClaimToSupportKey(key []byte) (ClaimToSupportKey, error) {
	if len(key) != 1+ClaimHashSize+4+2 || Prefix(key[0]) != PrefixClaimToSupport {
		return ClaimToSupportKey{}, ErrCorruptRow
	}
	var k ClaimToSupportKey
	copy(k.ClaimHash[:], key[1:1+ClaimHashSize])
	k.TxNum = binary.BigEndian.Uint32(key[1+ClaimHashSize:])
	k.Nout = binary.BigEndian.Uint16(key[1+ClaimHashSize+4:])
	return k, nil
}

func PackClaimToSupportValue(amount uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, amount)
	return b
}

func UnpackClaimToSupportValue(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, ErrCorruptRow
	}
	return binary.BigEndian.Uint64(data), nil
}

// SupportToClaimKey mirrors ClaimToSupportKey from the output side.
type SupportToClaimKey struct {
	TxNum uint32
	Nout  uint16
}

func PackSupportToClaimKey(k SupportToClaimKey) []byte {
	b := make([]byte, 1+4+2)
	b[0] = byte(PrefixSupportToClaim)
	binary.BigEndian.PutUint32(b[1:5], k.TxNum)
	binary.BigEndian.PutUint16(b[5:7], k.Nout)
	return b
}

func UnpackSupportToClaimKey(key []byte) (SupportToClaimKey, error) {
	if len(key) != 1+4+2 || Prefix(key[0]) != PrefixSupportToClaim {
		return SupportToClaimKey{}, ErrCorruptRow
	}
	var k SupportToClaimKey
	k.TxNum = binary.BigEndian.Uint32(key[1:5])
	k.Nout = binary.BigEndian.Uint16(key[5:7])
	return k, nil
}

func PackSupportToClaimValue(claimHash ClaimHash) []byte {
	out := make([]byte, ClaimHashSize)
	copy(out, claimHash[:])
	return out
}

func UnpackSupportToClaimValue(data []byte) (ClaimHash, error) {
	if len(data) != ClaimHashSize {
		return ClaimHash{}, ErrCorruptRow
	}
	var h ClaimHash
	copy(h[:], data)
	return h, nil
}

// ClaimExpirationKey schedules a deterministic expiry for a claim.
type ClaimExpirationKey struct {
	ExpirationHeight uint32
	TxNum            uint32
	Nout             uint16
}

func PackClaimExpirationKey(k ClaimExpirationKey) []byte {
	b := make([]byte, 1+4+4+2)
	b[0] = byte(PrefixClaimExpiration)
	binary.BigEndian.PutUint32(b[1:5], k.ExpirationHeight)
	binary.BigEndian.PutUint32(b[5:9], k.TxNum)
	binary.BigEndian.PutUint16(b[9:11], k.Nout)
	return b
}

// ClaimExpirationHeightPrefix iterates every claim expiring at a height.
func ClaimExpirationHeightPrefix(height uint32) []byte {
	b := make([]byte, 1+4)
	b[0] = byte(PrefixClaimExpiration)
	binary.BigEndian.PutUint32(b[1:], height)
	return b
}

func UnpackClaimExpirationKey(key []byte) (ClaimExpirationKey, error) {
	if len(key) != 1+4+4+2 || Prefix(key[0]) != PrefixClaimExpiration {
		return ClaimExpirationKey{}, ErrCorruptRow
	}
	var k ClaimExpirationKey
	k.ExpirationHeight = binary.BigEndian.Uint32(key[1:5])
	k.TxNum = binary.BigEndian.Uint32(key[5:9])
	k.Nout = binary.BigEndian.Uint16(key[9:11])
	return k, nil
}

type ClaimExpirationValue struct {
	ClaimHash ClaimHash
	Name      string
}

func PackClaimExpirationValue(v ClaimExpirationValue) []byte {
	out := make([]byte, ClaimHashSize)
	copy(out, v.ClaimHash[:])
	return append(out, LengthEncodedName(v.Name)...)
}

func UnpackClaimExpirationValue(data []byte) (ClaimExpirationValue, error) {
	if len(data) < ClaimHashSize {
		return ClaimExpirationValue{}, ErrCorruptRow
	}
	name, rest, err := UnpackLengthEncodedName(data[ClaimHashSize:])
	if err != nil {
		return ClaimExpirationValue{}, err
	}
	if len(rest) != 0 {
		return ClaimExpirationValue{}, ErrCorruptRow
	}
	var v ClaimExpirationValue
	copy(v.ClaimHash[:], data[:ClaimHashSize])
	v.Name = name
	return v, nil
}

// ClaimTakeoverKey identifies the at-most-one controlling-claim row for a
// name.
type ClaimTakeoverKey struct {
	Name string
}

func PackClaimTakeoverKey(k ClaimTakeoverKey) []byte {
	return append([]byte{byte(PrefixClaimTakeover)}, LengthEncodedName(k.Name)...)
}

func UnpackClaimTakeoverKey(key []byte) (ClaimTakeoverKey, error) {
	if len(key) < 1 || Prefix(key[0]) != PrefixClaimTakeover {
		return ClaimTakeoverKey{}, ErrCorruptRow
	}
	name, rest, err := UnpackLengthEncodedName(key[1:])
	if err != nil {
		return ClaimTakeoverKey{}, err
	}
	if len(rest) != 0 {
		return ClaimTakeoverKey{}, ErrCorruptRow
	}
	return ClaimTakeoverKey{Name: name}, nil
}

type ClaimTakeoverValue struct {
	ClaimHash      ClaimHash
	TakeoverHeight uint32
}

func PackClaimTakeoverValue(v ClaimTakeoverValue) []byte {
	b := make([]byte, ClaimHashSize+4)
	copy(b[:ClaimHashSize], v.ClaimHash[:])
	binary.BigEndian.PutUint32(b[ClaimHashSize:], v.TakeoverHeight)
	return b
}

func UnpackClaimTakeoverValue(data []byte) (ClaimTakeoverValue, error) {
	if len(data) != ClaimHashSize+4 {
		return ClaimTakeoverValue{}, ErrCorruptRow
	}
	var v ClaimTakeoverValue
	copy(v.ClaimHash[:], data[:ClaimHashSize])
	v.TakeoverHeight = binary.BigEndian.Uint32(data[ClaimHashSize:])
	return v, nil
}

// TxoType distinguishes a claim contribution from a support contribution
// in the pending-activation / activated / active-amount rows.
type TxoType uint8

const (
	TxoTypeClaim   TxoType = 0
	TxoTypeSupport TxoType = 1
)

// PendingActivationKey schedules a future activation.
type PendingActivationKey struct {
	Height  uint32
	TxoType TxoType
	TxNum   uint32
	Nout    uint16
}

func PackPendingActivationKey(k PendingActivationKey) []byte {
	b := make([]byte, 1+4+1+4+2)
	b[0] = byte(PrefixPendingActivate)
	binary.BigEndian.PutUint32(b[1:5], k.Height)
	b[5] = byte(k.TxoType)
	binary.BigEndian.PutUint32(b[6:10], k.TxNum)
	binary.BigEndian.PutUint16(b[10:12], k.Nout)
	return b
}

// PendingActivationHeightPrefix iterates every activation scheduled for a
// height.
func PendingActivationHeightPrefix(height uint32) []byte {
	b := make([]byte, 1+4)
	b[0] = byte(PrefixPendingActivate)
	binary.BigEndian.PutUint32(b[1:], height)
	return b
}

func UnpackPendingActivationKey(key []byte) (PendingActivationKey, error) {
	if len(key) != 1+4+1+4+2 || Prefix(key[0]) != PrefixPendingActivate {
		return PendingActivationKey{}, ErrCorruptRow
	}
	var k PendingActivationKey
	k.Height = binary.BigEndian.Uint32(key[1:5])
	k.TxoType = TxoType(key[5])
	k.TxNum = binary.BigEndian.Uint32(key[6:10])
	k.Nout = binary.BigEndian.Uint16(key[10:12])
	return k, nil
}

type PendingActivationValue struct {
	ClaimHash ClaimHash
	Name      string
}

func PackPendingActivationValue(v PendingActivationValue) []byte {
	out := make([]byte, ClaimHashSize)
	copy(out, v.ClaimHash[:])
	return append(out, LengthEncodedName(v.Name)...)
}

func UnpackPendingActivationValue(data []byte) (PendingActivationValue, error) {
	if len(data) < ClaimHashSize {
		return PendingActivationValue{}, ErrCorruptRow
	}
	name, rest, err := UnpackLengthEncodedName(data[ClaimHashSize:])
	if err != nil {
		return PendingActivationValue{}, err
	}
	if len(rest) != 0 {
		return PendingActivationValue{}, ErrCorruptRow
	}
	var v PendingActivationValue
	copy(v.ClaimHash[:], data[:ClaimHashSize])
	v.Name = name
	return v, nil
}

// ActivatedKey is the inverse view of PendingActivationKey, keyed by the
// contributing output so a spend can find (and cancel) its own activation.
type ActivatedKey struct {
	TxoType TxoType
	TxNum   uint32
	Nout    uint16
}

func PackActivatedKey(k ActivatedKey) []byte {
	b := make([]byte, 1+1+4+2)
	b[0] = byte(PrefixActivated)
	b[1] = byte(k.TxoType)
	binary.BigEndian.PutUint32(b[2:6], k.TxNum)
	binary.BigEndian.PutUint16(b[6:8], k.Nout)
	return b
}

func UnpackActivatedKey(key []byte) (ActivatedKey, error) {
	if len(key) != 1+1+4+2 || Prefix(key[0]) != PrefixActivated {
		return ActivatedKey{}, ErrCorruptRow
	}
	var k ActivatedKey
	k.TxoType = TxoType(key[1])
	k.TxNum = binary.BigEndian.Uint32(key[2:6])
	k.Nout = binary.BigEndian.Uint16(key[6:8])
	return k, nil
}

type ActivatedValue struct {
	Height    uint32
	ClaimHash ClaimHash
	Name      string
}

func PackActivatedValue(v ActivatedValue) []byte {
	fixed := make([]byte, 4+ClaimHashSize)
	binary.BigEndian.PutUint32(fixed[0:4], v.Height)
	copy(fixed[4:], v.ClaimHash[:])
	return append(fixed, LengthEncodedName(v.Name)...)
}

func UnpackActivatedValue(data []byte) (ActivatedValue, error) {
	if len(data) < 4+ClaimHashSize {
		return ActivatedValue{}, ErrCorruptRow
	}
	name, rest, err := UnpackLengthEncodedName(data[4+ClaimHashSize:])
	if err != nil {
		return ActivatedValue{}, err
	}
	if len(rest) != 0 {
		return ActivatedValue{}, ErrCorruptRow
	}
	var v ActivatedValue
	v.Height = binary.BigEndian.Uint32(data[0:4])
	copy(v.ClaimHash[:], data[4:4+ClaimHashSize])
	v.Name = name
	return v, nil
}

// ActiveAmountKey is the time-ordered contribution stream backing
// effective-amount computation.
type ActiveAmountKey struct {
	ClaimHash      ClaimHash
	TxoType        TxoType
	ActivateHeight uint32
	TxNum          uint32
	Nout           uint16
}

func PackActiveAmountKey(k ActiveAmountKey) []byte {
	b := make([]byte, 1+ClaimHashSize+1+4+4+2)
	b[0] = byte(PrefixActiveAmount)
	copy(b[1:1+ClaimHashSize], k.ClaimHash[:])
	off := 1 + ClaimHashSize
	b[off] = byte(k.TxoType)
	binary.BigEndian.PutUint32(b[off+1:off+5], k.ActivateHeight)
	binary.BigEndian.PutUint32(b[off+5:off+9], k.TxNum)
	binary.BigEndian.PutUint16(b[off+9:off+11], k.Nout)
	return b
}

// ActiveAmountClaimPrefix iterates every contribution (claim + supports)
// for a claim hash.
func ActiveAmountClaimPrefix(claimHash ClaimHash) []byte {
	b := make([]byte, 1+ClaimHashSize)
	b[0] = byte(PrefixActiveAmount)
	copy(b[1:], claimHash[:])
	return b
}

func UnpackActiveAmountKey(key []byte) (ActiveAmountKey, error) {
	if len(key) != 1+ClaimHashSize+1+4+4+2 || Prefix(key[0]) != PrefixActiveAmount {
		return ActiveAmountKey{}, ErrCorruptRow
	}
	var k ActiveAmountKey
	copy(k.ClaimHash[:], key[1:1+ClaimHashSize])
	off := 1 + ClaimHashSize
	k.TxoType = TxoType(key[off])
	k.ActivateHeight = binary.BigEndian.Uint32(key[off+1 : off+5])
	k.TxNum = binary.BigEndian.Uint32(key[off+5 : off+9])
	k.Nout = binary.BigEndian.Uint16(key[off+9 : off+11])
	return k, nil
}

func PackActiveAmountValue(amount uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, amount)
	return b
}

func UnpackActiveAmountValue(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, ErrCorruptRow
	}
	return binary.BigEndian.Uint64(data), nil
}

// EffectiveAmountKey sorts claims for a name by descending effective
// amount via ones-complement encoding (spec §4.1): ascending byte-order
// iteration yields the richest claim first.
type EffectiveAmountKey struct {
	Name            string
	EffectiveAmount uint64
	TxNum           uint32
	Nout            uint16
}

func PackEffectiveAmountKey(k EffectiveAmountKey) []byte {
	out := []byte{byte(PrefixEffectiveAmount)}
	out = append(out, LengthEncodedName(k.Name)...)
	tail := make([]byte, 8+4+2)
	binary.BigEndian.PutUint64(tail[0:8], OnesComplement(k.EffectiveAmount))
	binary.BigEndian.PutUint32(tail[8:12], k.TxNum)
	binary.BigEndian.PutUint16(tail[12:14], k.Nout)
	return append(out, tail...)
}

// EffectiveAmountNamePrefix iterates the leaderboard for a name, richest
// first.
func EffectiveAmountNamePrefix(name string) []byte {
	return append([]byte{byte(PrefixEffectiveAmount)}, LengthEncodedName(name)...)
}

func UnpackEffectiveAmountKey(key []byte) (EffectiveAmountKey, error) {
	if len(key) < 1 || Prefix(key[0]) != PrefixEffectiveAmount {
		return EffectiveAmountKey{}, ErrCorruptRow
	}
	name, rest, err := UnpackLengthEncodedName(key[1:])
	if err != nil {
		return EffectiveAmountKey{}, err
	}
	if len(rest) != 14 {
		return EffectiveAmountKey{}, ErrCorruptRow
	}
	return EffectiveAmountKey{
		Name:            name,
		EffectiveAmount: OnesComplement(binary.BigEndian.Uint64(rest[0:8])),
		TxNum:           binary.BigEndian.Uint32(rest[8:12]),
		Nout:            binary.BigEndian.Uint16(rest[12:14]),
	}, nil
}

func PackEffectiveAmountValue(claimHash ClaimHash) []byte {
	out := make([]byte, ClaimHashSize)
	copy(out, claimHash[:])
	return out
}

func UnpackEffectiveAmountValue(data []byte) (ClaimHash, error) {
	if len(data) != ClaimHashSize {
		return ClaimHash{}, ErrCorruptRow
	}
	var h ClaimHash
	copy(h[:], data)
	return h, nil
}

// RepostKey records the single claim a claim_hash reposts, if any.
type RepostKey struct {
	ClaimHash ClaimHash
}

func PackRepostKey(k RepostKey) []byte {
	b := make([]byte, 1+ClaimHashSize)
	b[0] = byte(PrefixRepost)
	copy(b[1:], k.ClaimHash[:])
	return b
}

func UnpackRepostKey(key []byte) (RepostKey, error) {
	if len(key) != 1+ClaimHashSize || Prefix(key[0]) != PrefixRepost {
		return RepostKey{}, ErrCorruptRow
	}
	var k RepostKey
	copy(k.ClaimHash[:], key[1:])
	return k, nil
}

func PackRepostValue(repostedClaimHash ClaimHash) []byte {
	out := make([]byte, ClaimHashSize)
	copy(out, repostedClaimHash[:])
	return out
}

func UnpackRepostValue(data []byte) (ClaimHash, error) {
	if len(data) != ClaimHashSize {
		return ClaimHash{}, ErrCorruptRow
	}
	var h ClaimHash
	copy(h[:], data)
	return h, nil
}

// RepostedKey is the inverse of RepostKey: every claim reposting a given
// target, in output order.
type RepostedKey struct {
	RepostedClaimHash ClaimHash
	TxNum             uint32
	Nout              uint16
}

func PackRepostedKey(k RepostedKey) []byte {
	b := make([]byte, 1+ClaimHashSize+4+2)
	b[0] = byte(PrefixReposted)
	copy(b[1:1+ClaimHashSize], k.RepostedClaimHash[:])
	binary.BigEndian.PutUint32(b[1+ClaimHashSize:], k.TxNum)
	binary.BigEndian.PutUint16(b[1+ClaimHashSize+4:], k.Nout)
	return b
}

// RepostedClaimPrefix iterates every repost of a target claim.
func RepostedClaimPrefix(repostedClaimHash ClaimHash) []byte {
	b := make([]byte, 1+ClaimHashSize)
	b[0] = byte(PrefixReposted)
	copy(b[1:], repostedClaimHash[:])
	return b
}

func UnpackRepostedKey(key []byte) (RepostedKey, error) {
	if len(key) != 1+ClaimHashSize+4+2 || Prefix(key[0]) != PrefixReposted {
		return RepostedKey{}, ErrCorruptRow
	}
	var k RepostedKey
	copy(k.RepostedClaimHash[:], key[1:1+ClaimHashSize])
	k.TxNum = binary.BigEndian.Uint32(key[1+ClaimHashSize:])
	k.Nout = binary.BigEndian.Uint16(key[1+ClaimHashSize+4:])
	return k, nil
}

func PackRepostedValue(claimHash ClaimHash) []byte {
	out := make([]byte, ClaimHashSize)
	copy(out, claimHash[:])
	return out
}

func UnpackRepostedValue(data []byte) (ClaimHash, error) {
	if len(data) != ClaimHashSize {
		return ClaimHash{}, ErrCorruptRow
	}
	var h ClaimHash
	copy(h[:], data)
	return h, nil
}

// TouchedOrDeletedKey addresses the per-block diff published downstream.
type TouchedOrDeletedKey struct {
	Height uint32
}

func PackTouchedOrDeletedKey(k TouchedOrDeletedKey) []byte {
	b := make([]byte, 1+4)
	b[0] = byte(PrefixTouchedOrDeleted)
	binary.BigEndian.PutUint32(b[1:], k.Height)
	return b
}

func UnpackTouchedOrDeletedKey(key []byte) (TouchedOrDeletedKey, error) {
	if len(key) != 1+4 || Prefix(key[0]) != PrefixTouchedOrDeleted {
		return TouchedOrDeletedKey{}, ErrCorruptRow
	}
	return TouchedOrDeletedKey{Height: binary.BigEndian.Uint32(key[1:])}, nil
}

type TouchedOrDeletedValue struct {
	Touched []ClaimHash
	Deleted []ClaimHash
}

func PackTouchedOrDeletedValue(v TouchedOrDeletedValue) []byte {
	b := make([]byte, 4, 4+(len(v.Touched)+len(v.Deleted))*ClaimHashSize)
	binary.BigEndian.PutUint32(b, uint32(len(v.Touched)))
	for _, h := range v.Touched {
		b = append(b, h[:]...)
	}
	for _, h := range v.Deleted {
		b = append(b, h[:]...)
	}
	return b
}

func UnpackTouchedOrDeletedValue(data []byte) (TouchedOrDeletedValue, error) {
	if len(data) < 4 {
		return TouchedOrDeletedValue{}, ErrCorruptRow
	}
	nTouched := int(binary.BigEndian.Uint32(data[:4]))
	data = data[4:]
	if len(data) < nTouched*ClaimHashSize || (len(data)-nTouched*ClaimHashSize)%ClaimHashSize != 0 {
		return TouchedOrDeletedValue{}, ErrCorruptRow
	}
	v := TouchedOrDeletedValue{
		Touched: make([]ClaimHash, nTouched),
	}
	for i := 0; i < nTouched; i++ {
		copy(v.Touched[i][:], data[i*ClaimHashSize:])
	}
	rest := data[nTouched*ClaimHashSize:]
	nDeleted := len(rest) / ClaimHashSize
	v.Deleted = make([]ClaimHash, nDeleted)
	for i := 0; i < nDeleted; i++ {
		copy(v.Deleted[i][:], rest[i*ClaimHashSize:])
	}
	return v, nil
}

// DBStateKey is the singleton row describing store-wide state.
type DBStateKey struct{}

func PackDBStateKey() []byte {
	return []byte{byte(PrefixDBState)}
}

type DBStateValue struct {
	Genesis       [32]byte
	Height        uint32
	TxCount       uint32
	Tip           [32]byte
	FirstSync     bool
	SchemaVersion uint32
}

func PackDBStateValue(v DBStateValue) []byte {
	b := make([]byte, 32+4+4+32+1+4)
	copy(b[0:32], v.Genesis[:])
	binary.BigEndian.PutUint32(b[32:36], v.Height)
	binary.BigEndian.PutUint32(b[36:40], v.TxCount)
	copy(b[40:72], v.Tip[:])
	if v.FirstSync {
		b[72] = 1
	}
	binary.BigEndian.PutUint32(b[73:77], v.SchemaVersion)
	return b
}

func UnpackDBStateValue(data []byte) (DBStateValue, error) {
	if len(data) != 32+4+4+32+1+4 {
		return DBStateValue{}, ErrCorruptRow
	}
	var v DBStateValue
	copy(v.Genesis[:], data[0:32])
	v.Height = binary.BigEndian.Uint32(data[32:36])
	v.TxCount = binary.BigEndian.Uint32(data[36:40])
	copy(v.Tip[:], data[40:72])
	v.FirstSync = data[72] != 0
	v.SchemaVersion = binary.BigEndian.Uint32(data[73:77])
	return v, nil
}
