package storage

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/chainmirror/indexd/internal/types"
)

// AddressHistory returns the confirmed ownership rows for address, ordered
// by height then output index.
func (s *Store) AddressHistory(ctx context.Context, address string) ([]types.Ownership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT txid, idx, value, height FROM history
		 WHERE address = ? ORDER BY height, idx`,
		address,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []types.Ownership
	for rows.Next() {
		var (
			txidBytes []byte
			entry     types.Ownership
		)
		entry.Address = address
		if err := rows.Scan(&txidBytes, &entry.Index, &entry.Value, &entry.Height); err != nil {
			return nil, err
		}
		txid, err := chainhash.NewHash(txidBytes)
		if err != nil {
			return nil, err
		}
		entry.Txid = *txid
		result = append(result, entry)
	}
	return result, rows.Err()
}

// BlockHeights returns all stored block heights in ascending order.
func (s *Store) BlockHeights(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT height FROM blocks ORDER BY height`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var heights []int64
	for rows.Next() {
		var h int64
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		heights = append(heights, h)
	}
	return heights, rows.Err()
}

// RowCounts reports how many rows each table holds.
func (s *Store) RowCounts(ctx context.Context) (map[string]int64, error) {
	tables := []string{
		"blocks", "transactions", "transactions_mempool", "history", "history_mempool",
	}

	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		var n int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
			return nil, err
		}
		counts[table] = n
	}
	return counts, nil
}
