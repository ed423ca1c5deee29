// Package tx defines transaction types and their canonical serialization.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-hub/pkg/crypto"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// Transaction represents a blockchain transaction.
type Transaction struct {
	Version  uint32   `json:"version"`
	Inputs   []Input  `json:"inputs"`
	Outputs  []Output `json:"outputs"`
	LockTime uint64   `json:"locktime"`
}

// Input references a UTXO being spent.
type Input struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature []byte         `json:"signature"`
	PubKey    []byte         `json:"pubkey"`
}

// inputJSON is the JSON representation of Input with hex-encoded byte fields.
type inputJSON struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature *string        `json:"signature"`
	PubKey    *string        `json:"pubkey"`
}

// MarshalJSON encodes the input with hex-encoded signature and pubkey.
func (in Input) MarshalJSON() ([]byte, error) {
	j := inputJSON{PrevOut: in.PrevOut}
	if in.Signature != nil {
		s := hex.EncodeToString(in.Signature)
		j.Signature = &s
	}
	if in.PubKey != nil {
		p := hex.EncodeToString(in.PubKey)
		j.PubKey = &p
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes an input with hex-encoded signature and pubkey.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut = j.PrevOut
	if j.Signature != nil {
		b, err := hex.DecodeString(*j.Signature)
		if err != nil {
			return err
		}
		in.Signature = b
	}
	if j.PubKey != nil {
		b, err := hex.DecodeString(*j.PubKey)
		if err != nil {
			return err
		}
		in.PubKey = b
	}
	return nil
}

// Output defines a new UTXO.
type Output struct {
	Value  uint64           `json:"value"`
	Script types.Script     `json:"script"`
	Token  *types.TokenData `json:"token,omitempty"`
}

// Hash computes the transaction ID (BLAKE3 hash of the serialized signing data).
// This excludes signatures to avoid circular dependency.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// SigningBytes returns the canonical byte representation used for signing.
// Format: version(4) | input_count(4) | [prevout(36)]... | output_count(4) |
// [value(8) + script_type(1) + script_data_len(4) + script_data + has_token(1) + token?]... | locktime(8)
func (tx *Transaction) SigningBytes() []byte {
	var buf []byte

	// Version.
	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)

	// Input count + prevouts (no signatures, except coinbase data).
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.PrevOut.Index)
		// Include coinbase data (height) in the hash so each coinbase tx
		// has a unique ID. Regular inputs skip this (signature is excluded
		// to avoid circular dependency during signing).
		if in.PrevOut.IsZero() {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.Signature)))
			buf = append(buf, in.Signature...)
		}
	}

	// Output count + outputs.
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
		buf = append(buf, byte(out.Script.Type))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.Script.Data)))
		buf = append(buf, out.Script.Data...)
		if out.Token != nil {
			buf = append(buf, 1)
			buf = append(buf, out.Token.ID[:]...)
			buf = binary.LittleEndian.AppendUint64(buf, out.Token.Amount)
		} else {
			buf = append(buf, 0)
		}
	}

	// Locktime.
	buf = binary.LittleEndian.AppendUint64(buf, tx.LockTime)

	return buf
}

// Deserialize parses the byte representation produced by SigningBytes back
// into a Transaction. Signatures on non-coinbase inputs are not part of the
// signing format and come back empty; callers needing them must hold the
// original Transaction value rather than round-trip through this format.
func Deserialize(data []byte) (*Transaction, error) {
	t, _, err := DeserializeN(data)
	return t, err
}

// DeserializeN is Deserialize, additionally reporting how many leading
// bytes of data it consumed. Callers that pack multiple transactions
// back to back (a whole block's body) use this to walk the stream
// without a length prefix per transaction.
func DeserializeN(data []byte) (*Transaction, int, error) {
	r := data
	readU32 := func() (uint32, error) {
		if len(r) < 4 {
			return 0, fmt.Errorf("tx: truncated")
		}
		v := binary.LittleEndian.Uint32(r)
		r = r[4:]
		return v, nil
	}
	readU64 := func() (uint64, error) {
		if len(r) < 8 {
			return 0, fmt.Errorf("tx: truncated")
		}
		v := binary.LittleEndian.Uint64(r)
		r = r[8:]
		return v, nil
	}

	var t Transaction
	var err error
	if t.Version, err = readU32(); err != nil {
		return nil, 0, err
	}
	nIn, err := readU32()
	if err != nil {
		return nil, 0, err
	}
	t.Inputs = make([]Input, nIn)
	for i := range t.Inputs {
		if len(r) < types.HashSize+4 {
			return nil, 0, fmt.Errorf("tx: truncated input")
		}
		copy(t.Inputs[i].PrevOut.TxID[:], r[:types.HashSize])
		r = r[types.HashSize:]
		idx, err := readU32()
		if err != nil {
			return nil, 0, err
		}
		t.Inputs[i].PrevOut.Index = idx
		if t.Inputs[i].PrevOut.IsZero() {
			// Coinbase data is only present if the writer chose to include
			// it; peek is not possible, so this format requires the writer
			// and reader agree: coinbase inputs always carry it.
			sigLen, err := readU32()
			if err != nil {
				return nil, 0, err
			}
			if len(r) < int(sigLen) {
				return nil, 0, fmt.Errorf("tx: truncated coinbase data")
			}
			t.Inputs[i].Signature = append([]byte(nil), r[:sigLen]...)
			r = r[sigLen:]
		}
	}

	nOut, err := readU32()
	if err != nil {
		return nil, 0, err
	}
	t.Outputs = make([]Output, nOut)
	for i := range t.Outputs {
		val, err := readU64()
		if err != nil {
			return nil, 0, err
		}
		if len(r) < 1 {
			return nil, 0, fmt.Errorf("tx: truncated script type")
		}
		scriptType := types.ScriptType(r[0])
		r = r[1:]
		dataLen, err := readU32()
		if err != nil {
			return nil, 0, err
		}
		if len(r) < int(dataLen) {
			return nil, 0, fmt.Errorf("tx: truncated script data")
		}
		scriptData := append([]byte(nil), r[:dataLen]...)
		r = r[dataLen:]
		if len(r) < 1 {
			return nil, 0, fmt.Errorf("tx: truncated token flag")
		}
		hasToken := r[0] != 0
		r = r[1:]
		t.Outputs[i] = Output{Value: val, Script: types.Script{Type: scriptType, Data: scriptData}}
		if hasToken {
			if len(r) < types.HashSize+8 {
				return nil, 0, fmt.Errorf("tx: truncated token")
			}
			var tok types.TokenData
			copy(tok.ID[:], r[:types.HashSize])
			r = r[types.HashSize:]
			amt, err := readU64()
			if err != nil {
				return nil, 0, err
			}
			tok.Amount = amt
			t.Outputs[i].Token = &tok
		}
	}

	if t.LockTime, err = readU64(); err != nil {
		return nil, 0, err
	}
	return &t, len(data) - len(r), nil
}

// TotalOutputValue returns the sum of all output values.
// Returns an error if the sum overflows uint64.
func (tx *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Value {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Value
	}
	return total, nil
}
