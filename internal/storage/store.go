package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	_ "modernc.org/sqlite" // driver

	"github.com/chainmirror/indexd/internal/types"
)

// Store is the transactional persistence boundary. The schema below is the
// durable contract the serving layer reads; only this process writes it.
type Store struct {
	db *sql.DB

	// tip reported while the store holds no blocks
	genesis types.ChainTip
}

// Open opens (and if needed bootstraps) the mirror database under dir.
// startHeight is the lowest height this mirror indexes; an empty store
// reports a tip of startHeight-1.
func Open(dir string, startHeight int64) (*Store, error) {
	dsn := "file:" + filepath.Join(dir, "db") +
		"?_txlock=immediate" + // BEGIN IMMEDIATE-style txns
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Single writer by design; one connection avoids SQLITE_BUSY during
	// initial block download.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:      db,
		genesis: types.ChainTip{Height: startHeight - 1},
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Execute runs fn inside a single database transaction. The transaction is
// committed only when fn returns nil; any error or panic rolls back every
// write fn made, so no block is ever partially visible.
func (s *Store) Execute(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// BestTip returns the highest committed block as the chain tip, or the
// genesis default when no blocks are stored.
func (s *Store) BestTip(ctx context.Context) (types.ChainTip, error) {
	var (
		height  int64
		blockID []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT height, blockid FROM blocks ORDER BY height DESC LIMIT 1`,
	).Scan(&height, &blockID)
	if err == sql.ErrNoRows {
		return s.genesis, nil
	}
	if err != nil {
		return types.ChainTip{}, err
	}

	hash, err := chainhash.NewHash(blockID)
	if err != nil {
		return types.ChainTip{}, err
	}
	return types.ChainTip{Height: height, Hash: *hash}, nil
}

// HasTransaction reports whether txid exists as a confirmed or mempool row.
func (s *Store) HasTransaction(ctx context.Context, txid *chainhash.Hash) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM transactions WHERE txid = ?
		 UNION ALL
		 SELECT 1 FROM transactions_mempool WHERE txid = ?
		 LIMIT 1`,
		txid[:], txid[:],
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MempoolCount returns the number of stored unconfirmed transactions.
func (s *Store) MempoolCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions_mempool`).Scan(&n)
	return n, err
}

const schemaSQL = `
-- One row per confirmed block on the indexed chain. txids is the ordered
-- concatenation of the block's transaction ids, 32 bytes each.
CREATE TABLE IF NOT EXISTS blocks (
  height  INTEGER PRIMARY KEY,
  blockid BLOB NOT NULL,
  header  BLOB NOT NULL,
  txids   BLOB NOT NULL
) STRICT, WITHOUT ROWID;

-- Confirmed transactions. height always set; NULL is reserved so the
-- serving layer can treat both tables uniformly.
CREATE TABLE IF NOT EXISTS transactions (
  txid   BLOB PRIMARY KEY,
  tx     BLOB NOT NULL,
  height INTEGER
) STRICT, WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS transactions_mempool (
  txid BLOB PRIMARY KEY,
  tx   BLOB NOT NULL
) STRICT, WITHOUT ROWID;

-- Address ownership of transaction outputs.
CREATE TABLE IF NOT EXISTS history (
  address TEXT    NOT NULL,
  txid    BLOB    NOT NULL,
  idx     INTEGER NOT NULL,
  value   INTEGER NOT NULL,
  height  INTEGER
) STRICT;

CREATE TABLE IF NOT EXISTS history_mempool (
  address TEXT    NOT NULL,
  txid    BLOB    NOT NULL,
  idx     INTEGER NOT NULL,
  value   INTEGER NOT NULL
) STRICT;

CREATE INDEX IF NOT EXISTS ix_transactions_height ON transactions(height);
CREATE INDEX IF NOT EXISTS ix_history_address ON history(address);
CREATE INDEX IF NOT EXISTS ix_history_height ON history(height);
CREATE INDEX IF NOT EXISTS ix_history_mempool_address ON history_mempool(address);
`
