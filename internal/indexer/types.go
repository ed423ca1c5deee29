package indexer

import (
	"github.com/Klingon-tech/klingnet-hub/pkg/tx"
	"github.com/Klingon-tech/klingnet-hub/pkg/types"
)

// RawBlock is one block at a known height, already deserialized by the
// caller (the upstream-node RPC client, spec §6). The indexer never
// re-validates consensus; it trusts height/header/transactions as given.
type RawBlock struct {
	Height       uint32
	Header       []byte // 112-byte wire header, codec.HeaderWireSize
	Transactions []*tx.Transaction
}

// ChangeNotification is broadcast after every committed block (spec §6).
type ChangeNotification struct {
	Height  uint32
	Hash    types.Hash
	Touched []CHash
	Deleted []CHash
}
