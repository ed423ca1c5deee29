package codec

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // hash160 requires it
)

// ClaimHash160 computes claim_hash = hash160(prev_tx_hash || u32be(nout)),
// the standard ripemd160(sha256(x)) construction (spec §4.4.1).
func ClaimHash160(prevTxHash [32]byte, nout uint32) ClaimHash {
	buf := make([]byte, 32+4)
	copy(buf, prevTxHash[:])
	binary.BigEndian.PutUint32(buf[32:], nout)

	sha := sha256.Sum256(buf)
	ripe := ripemd160.New()
	ripe.Write(sha[:])
	sum := ripe.Sum(nil)

	var out ClaimHash
	copy(out[:], sum)
	return out
}
