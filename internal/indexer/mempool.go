package indexer

import (
	"context"
	"database/sql"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/chainmirror/indexd/internal/chain"
	"github.com/chainmirror/indexd/internal/extract"
	"github.com/chainmirror/indexd/internal/logging"
	"github.com/chainmirror/indexd/internal/storage"
)

// Mempool maintains the unconfirmed-transaction view. It only ever touches
// the *_mempool tables; confirmed rows belong to the importer.
type Mempool struct {
	source chain.Source
	store  *storage.Store
	params *chaincfg.Params
}

func NewMempool(source chain.Source, store *storage.Store, params *chaincfg.Params) *Mempool {
	return &Mempool{source: source, store: store, params: params}
}

// Refresh diffs the node's raw mempool against stored entries and indexes
// transactions not seen before, with no height attached. Safe to call
// repeatedly; already-known ids are skipped.
func (m *Mempool) Refresh(ctx context.Context) error {
	txids, err := m.source.MempoolTxids(ctx)
	if err != nil {
		return err
	}

	for i := range txids {
		txid := txids[i]

		known, err := m.store.HasTransaction(ctx, &txid)
		if err != nil {
			return err
		}
		if known {
			continue
		}

		btx, err := m.source.FetchTransaction(ctx, &txid)
		if err != nil {
			// mempool churn: the transaction may have been evicted or
			// confirmed between the listing and this fetch
			logging.L.Warn().Err(err).
				Str("txid", txid.String()).
				Msg("skipping vanished mempool transaction")
			continue
		}

		raw, err := serializeTx(btx.MsgTx())
		if err != nil {
			return err
		}

		err = m.store.Execute(ctx, func(tx *sql.Tx) error {
			if err := storage.InsertMempoolTransaction(tx, btx.Hash(), raw); err != nil {
				return err
			}
			for index, out := range btx.MsgTx().TxOut {
				for _, addr := range extract.Addresses(out.PkScript, m.params) {
					err := storage.InsertMempoolHistory(
						tx, addr.EncodeAddress(), btx.Hash(), uint32(index), out.Value,
					)
					if err != nil {
						return err
					}
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
