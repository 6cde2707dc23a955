package indexer

import (
	"bytes"
	"context"
	"database/sql"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/chainmirror/indexd/internal/extract"
	"github.com/chainmirror/indexd/internal/storage"
	"github.com/chainmirror/indexd/internal/types"
)

// Importer turns one fetched block into storage writes, atomically.
type Importer struct {
	store  *storage.Store
	params *chaincfg.Params

	// whether the mempool tables were already cleared during the current
	// catch-up run
	cleared bool
}

func NewImporter(store *storage.Store, params *chaincfg.Params) *Importer {
	return &Importer{store: store, params: params}
}

// BeginRun marks the start of a new catch-up run. The first block imported
// afterwards clears the mempool tables before anything else.
func (im *Importer) BeginRun() {
	im.cleared = false
}

// ImportBlock writes block at height in a single storage transaction and
// returns the tip the caller should adopt. On any error nothing of the
// block is visible.
func (im *Importer) ImportBlock(ctx context.Context, height int64, block *btcutil.Block) (types.ChainTip, error) {
	blockID := block.Hash()

	var headerBuf bytes.Buffer
	if err := block.MsgBlock().Header.Serialize(&headerBuf); err != nil {
		return types.ChainTip{}, err
	}

	blockTxs := block.Transactions()
	txids := make([]chainhash.Hash, len(blockTxs))
	for i, btx := range blockTxs {
		txids[i] = *btx.Hash()
	}

	err := im.store.Execute(ctx, func(tx *sql.Tx) error {
		if !im.cleared {
			// confirmed blocks invalidate all previously observed
			// unconfirmed state
			if err := storage.ClearMempool(tx); err != nil {
				return err
			}
		}

		if err := storage.InsertBlock(tx, height, blockID, headerBuf.Bytes(), txids); err != nil {
			return err
		}

		for _, btx := range blockTxs {
			raw, err := serializeTx(btx.MsgTx())
			if err != nil {
				return err
			}
			if err := storage.InsertTransaction(tx, btx.Hash(), raw, height); err != nil {
				return err
			}

			for index, out := range btx.MsgTx().TxOut {
				for _, addr := range extract.Addresses(out.PkScript, im.params) {
					err := storage.InsertHistory(
						tx, addr.EncodeAddress(), btx.Hash(), uint32(index), out.Value, height,
					)
					if err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return types.ChainTip{}, err
	}

	im.cleared = true
	return types.ChainTip{Height: height, Hash: *blockID}, nil
}

func serializeTx(msgTx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := msgTx.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
