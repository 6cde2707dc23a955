package types

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ChainTip is the highest block considered indexed. Loaded from storage at
// startup and owned by the sync engine afterwards.
type ChainTip struct {
	Height int64
	Hash   chainhash.Hash
}

func (t ChainTip) Equal(o ChainTip) bool {
	return t.Height == o.Height && t.Hash == o.Hash
}

// Ownership attributes one transaction output to one address. Height is nil
// for mempool entries.
type Ownership struct {
	Address string
	Txid    chainhash.Hash
	Index   uint32
	Value   int64
	Height  *int64
}
