// Package claim decodes the opaque claim payload carried in claim and
// update outputs. Per spec §1 the payload schema itself is treated as an
// external pure function `bytes -> ClaimMeta`; this package implements
// that contract with the fixed column set spec §9's design notes call
// for (unknown fields are dropped, never round-tripped).
package claim

import "encoding/binary"

// Metadata is the reified set of claim-payload fields the indexer and
// resolver actually consult. Anything else present in a raw payload is
// dropped on decode.
type Metadata struct {
	Title       string
	Author      string
	Duration    uint64
	FeeAmount   uint64
	FeeCurrency string
	ReleaseTime uint64
	StreamType  string
	MediaType   string
	IsChannel   bool
	IsRepost    bool
}

// Signature carries the optional channel-signing fields extracted from a
// claim payload: the signature bytes, the digest they cover, and the
// hash of the channel claiming to have produced them.
type Signature struct {
	Present            bool
	SigningChannelHash [20]byte
	SignatureDigest    []byte
	Bytes              []byte
}

// OutputData is the fully decoded content of a claim or update output.
// Name is carried alongside the payload (not inside it) because the
// indexer must read it before any signature work.
type OutputData struct {
	Name  string
	Meta  Metadata
	Sig   Signature
	// PublicKey is set iff Meta.IsChannel: the channel's signing key.
	PublicKey []byte
	// RepostedClaimHash is set iff Meta.IsRepost.
	RepostedClaimHash [20]byte
}

func putString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func getString(data []byte) (string, []byte) {
	n := binary.BigEndian.Uint16(data)
	return string(data[2 : 2+n]), data[2+n:]
}

func putBytes(buf []byte, b []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(b)))
	return append(buf, b...)
}

func getBytes(data []byte) ([]byte, []byte) {
	n := binary.BigEndian.Uint16(data)
	return data[2 : 2+n], data[2+n:]
}

// Encode serializes OutputData into the opaque bytes carried by
// types.Script.Data on a claim or update output.
func (o OutputData) Encode() []byte {
	var buf []byte
	buf = putString(buf, o.Name)
	buf = putString(buf, o.Meta.Title)
	buf = putString(buf, o.Meta.Author)
	buf = binary.BigEndian.AppendUint64(buf, o.Meta.Duration)
	buf = binary.BigEndian.AppendUint64(buf, o.Meta.FeeAmount)
	buf = putString(buf, o.Meta.FeeCurrency)
	buf = binary.BigEndian.AppendUint64(buf, o.Meta.ReleaseTime)
	buf = putString(buf, o.Meta.StreamType)
	buf = putString(buf, o.Meta.MediaType)

	flags := byte(0)
	if o.Meta.IsChannel {
		flags |= 1
	}
	if o.Meta.IsRepost {
		flags |= 2
	}
	if o.Sig.Present {
		flags |= 4
	}
	buf = append(buf, flags)

	if o.Meta.IsChannel {
		buf = putBytes(buf, o.PublicKey)
	}
	if o.Meta.IsRepost {
		buf = append(buf, o.RepostedClaimHash[:]...)
	}
	if o.Sig.Present {
		buf = append(buf, o.Sig.SigningChannelHash[:]...)
		buf = putBytes(buf, o.Sig.SignatureDigest)
		buf = putBytes(buf, o.Sig.Bytes)
	}
	return buf
}

// Decode parses bytes produced by Encode. It never returns a partially
// filled struct on error: callers should treat a decode failure as an
// invalid claim output (the transaction's claim effect is simply
// skipped, never fatal to block processing).
func Decode(data []byte) (o OutputData, err error) {
	// getString and getBytes index without bounds checks; a truncated
	// payload is reported as errTooShort rather than panicking.
	defer func() {
		if recover() != nil {
			o, err = OutputData{}, errTooShort
		}
	}()
	if len(data) < 2 {
		return OutputData{}, errTooShort
	}
	o.Name, data = getString(data)
	o.Meta.Title, data = getString(data)
	o.Meta.Author, data = getString(data)
	if len(data) < 8 {
		return OutputData{}, errTooShort
	}
	o.Meta.Duration = binary.BigEndian.Uint64(data)
	data = data[8:]
	if len(data) < 8 {
		return OutputData{}, errTooShort
	}
	o.Meta.FeeAmount = binary.BigEndian.Uint64(data)
	data = data[8:]
	o.Meta.FeeCurrency, data = getString(data)
	if len(data) < 8 {
		return OutputData{}, errTooShort
	}
	o.Meta.ReleaseTime = binary.BigEndian.Uint64(data)
	data = data[8:]
	o.Meta.StreamType, data = getString(data)
	o.Meta.MediaType, data = getString(data)
	if len(data) < 1 {
		return OutputData{}, errTooShort
	}
	flags := data[0]
	data = data[1:]
	o.Meta.IsChannel = flags&1 != 0
	o.Meta.IsRepost = flags&2 != 0
	o.Sig.Present = flags&4 != 0

	if o.Meta.IsChannel {
		o.PublicKey, data = getBytes(data)
	}
	if o.Meta.IsRepost {
		if len(data) < 20 {
			return OutputData{}, errTooShort
		}
		copy(o.RepostedClaimHash[:], data[:20])
		data = data[20:]
	}
	if o.Sig.Present {
		if len(data) < 20 {
			return OutputData{}, errTooShort
		}
		copy(o.Sig.SigningChannelHash[:], data[:20])
		data = data[20:]
		o.Sig.SignatureDigest, data = getBytes(data)
		o.Sig.Bytes, _ = getBytes(data)
	}
	return o, nil
}

var errTooShort = decodeError("claim: payload too short")

type decodeError string

func (e decodeError) Error() string { return string(e) }
