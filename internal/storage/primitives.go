package storage

import (
	"database/sql"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Parametrized write/delete primitives. All of them run against an open
// transaction handed out by Store.Execute so callers control atomicity.

func InsertBlock(tx *sql.Tx, height int64, blockID *chainhash.Hash, header []byte, txids []chainhash.Hash) error {
	concat := make([]byte, 0, len(txids)*chainhash.HashSize)
	for i := range txids {
		concat = append(concat, txids[i][:]...)
	}

	_, err := tx.Exec(
		`INSERT INTO blocks(height, blockid, header, txids) VALUES (?,?,?,?)`,
		height, blockID[:], header, concat,
	)
	return err
}

func InsertTransaction(tx *sql.Tx, txid *chainhash.Hash, raw []byte, height int64) error {
	_, err := tx.Exec(
		`INSERT INTO transactions(txid, tx, height) VALUES (?,?,?)`,
		txid[:], raw, height,
	)
	return err
}

func InsertHistory(tx *sql.Tx, address string, txid *chainhash.Hash, index uint32, value, height int64) error {
	_, err := tx.Exec(
		`INSERT INTO history(address, txid, idx, value, height) VALUES (?,?,?,?,?)`,
		address, txid[:], index, value, height,
	)
	return err
}

func InsertMempoolTransaction(tx *sql.Tx, txid *chainhash.Hash, raw []byte) error {
	_, err := tx.Exec(
		`INSERT INTO transactions_mempool(txid, tx) VALUES (?,?)`,
		txid[:], raw,
	)
	return err
}

func InsertMempoolHistory(tx *sql.Tx, address string, txid *chainhash.Hash, index uint32, value int64) error {
	_, err := tx.Exec(
		`INSERT INTO history_mempool(address, txid, idx, value) VALUES (?,?,?,?)`,
		address, txid[:], index, value,
	)
	return err
}

// DeleteFromHeight removes every confirmed row at height >= from. Rows below
// are untouched.
func DeleteFromHeight(tx *sql.Tx, from int64) error {
	stmts := []string{
		`DELETE FROM history WHERE height >= ?`,
		`DELETE FROM transactions WHERE height >= ?`,
		`DELETE FROM blocks WHERE height >= ?`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s, from); err != nil {
			return err
		}
	}
	return nil
}

// ClearMempool wholesale drops the unconfirmed view. Stored mempool entries
// are not comparable to node-side content once the tip moves.
func ClearMempool(tx *sql.Tx) error {
	for _, s := range []string{
		`DELETE FROM transactions_mempool`,
		`DELETE FROM history_mempool`,
	} {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
