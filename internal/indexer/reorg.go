package indexer

import (
	"context"
	"database/sql"

	"github.com/chainmirror/indexd/internal/storage"
	"github.com/chainmirror/indexd/internal/types"
)

// Reorg rolls local state back when a competing branch is adopted.
type Reorg struct {
	store *storage.Store
}

func NewReorg(store *storage.Store) *Reorg {
	return &Reorg{store: store}
}

// RollbackTo deletes every confirmed row at height >= target and clears the
// mempool tables, all in one transaction, then returns the reloaded best
// tip. Calling it again at the same height deletes nothing further.
func (r *Reorg) RollbackTo(ctx context.Context, target int64) (types.ChainTip, error) {
	err := r.store.Execute(ctx, func(tx *sql.Tx) error {
		if err := storage.DeleteFromHeight(tx, target); err != nil {
			return err
		}
		return storage.ClearMempool(tx)
	})
	if err != nil {
		return types.ChainTip{}, err
	}

	return r.store.BestTip(ctx)
}
