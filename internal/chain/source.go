package chain

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Source is the logical capability consumed from the full node. The sync
// engine only ever talks to the node through it.
type Source interface {
	// TipHeight returns the node's current best block height.
	TipHeight(ctx context.Context) (int64, error)

	// BlockHashAt returns the hash of the best-chain block at height.
	BlockHashAt(ctx context.Context, height int64) (*chainhash.Hash, error)

	// FetchBlock pulls and parses the full block for the given hash.
	FetchBlock(ctx context.Context, hash *chainhash.Hash) (*btcutil.Block, error)

	// MempoolTxids lists the node's currently unconfirmed transaction ids.
	MempoolTxids(ctx context.Context) ([]chainhash.Hash, error)

	// FetchTransaction pulls and parses a single transaction by id.
	FetchTransaction(ctx context.Context, txid *chainhash.Hash) (*btcutil.Tx, error)
}
