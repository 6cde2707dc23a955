package indexer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/chainmirror/indexd/internal/storage"
)

var testParams = &chaincfg.MainNetParams

// fakeSource serves a scripted chain from memory. Swapping entries in
// blocks simulates the node adopting a competing branch.
type fakeSource struct {
	blocks  []*btcutil.Block // index = height
	mempool []*btcutil.Tx

	// pending blocks appended after revealAfter tip queries, simulating
	// the chain growing while the engine is already running
	pending     []*btcutil.Block
	revealAfter int

	tipErr         error
	tipHeightCalls int
}

func (f *fakeSource) TipHeight(ctx context.Context) (int64, error) {
	if f.tipErr != nil {
		return 0, f.tipErr
	}
	f.tipHeightCalls++
	if len(f.pending) > 0 && f.tipHeightCalls > f.revealAfter {
		f.blocks = append(f.blocks, f.pending...)
		f.pending = nil
	}
	return int64(len(f.blocks) - 1), nil
}

func (f *fakeSource) BlockHashAt(ctx context.Context, height int64) (*chainhash.Hash, error) {
	if height < 0 || height >= int64(len(f.blocks)) {
		return nil, fmt.Errorf("no block at height %d", height)
	}
	return f.blocks[height].Hash(), nil
}

func (f *fakeSource) FetchBlock(ctx context.Context, hash *chainhash.Hash) (*btcutil.Block, error) {
	for _, block := range f.blocks {
		if *block.Hash() == *hash {
			return block, nil
		}
	}
	return nil, fmt.Errorf("unknown block %s", hash)
}

func (f *fakeSource) MempoolTxids(ctx context.Context) ([]chainhash.Hash, error) {
	txids := make([]chainhash.Hash, len(f.mempool))
	for i, tx := range f.mempool {
		txids[i] = *tx.Hash()
	}
	return txids, nil
}

func (f *fakeSource) FetchTransaction(ctx context.Context, txid *chainhash.Hash) (*btcutil.Tx, error) {
	for _, tx := range f.mempool {
		if *tx.Hash() == *txid {
			return tx, nil
		}
	}
	return nil, fmt.Errorf("unknown transaction %s", txid)
}

// makeTx builds a transaction whose id is unique per tag.
func makeTx(tag uint32, outs ...*wire.TxOut) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{}, tag), nil, nil))
	for _, out := range outs {
		tx.AddTxOut(out)
	}
	return tx
}

func makeBlock(prev *chainhash.Hash, txs ...*wire.MsgTx) *btcutil.Block {
	merkle := txs[0].TxHash()
	header := wire.NewBlockHeader(1, prev, &merkle, 0x1d00ffff, 0)
	msg := wire.NewMsgBlock(header)
	for _, tx := range txs {
		if err := msg.AddTransaction(tx); err != nil {
			panic(err)
		}
	}
	return btcutil.NewBlock(msg)
}

// makeChain builds n linked blocks with one plain transaction each. tagBase
// keeps transaction ids distinct across competing branches.
func makeChain(n int, tagBase uint32) []*btcutil.Block {
	blocks := make([]*btcutil.Block, n)
	prev := &chainhash.Hash{}
	for i := range blocks {
		blocks[i] = makeBlock(prev, makeTx(tagBase+uint32(i)))
		prev = blocks[i].Hash()
	}
	return blocks
}

func p2pkhScript(t *testing.T, fill byte) ([]byte, string) {
	t.Helper()

	hash := make([]byte, 20)
	for i := range hash {
		hash[i] = fill
	}
	addr, err := btcutil.NewAddressPubKeyHash(hash, testParams)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return script, addr.EncodeAddress()
}

func newTestEngine(t *testing.T, source *fakeSource) (*Engine, *storage.Store) {
	t.Helper()

	store, err := storage.Open(t.TempDir(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewEngine(source, store, testParams, 0), store
}

func TestCatchUpImportsForward(t *testing.T) {
	source := &fakeSource{blocks: makeChain(3, 0)}
	engine, store := newTestEngine(t, source)

	require.NoError(t, engine.CatchUp(context.Background()))

	tip := engine.LocalTip()
	require.Equal(t, int64(2), tip.Height)
	require.Equal(t, *source.blocks[2].Hash(), tip.Hash)

	storedTip, err := store.BestTip(context.Background())
	require.NoError(t, err)
	require.Equal(t, tip, storedTip)

	// contiguous run from genesis to tip, one block per height
	heights, err := store.BlockHeights(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1, 2}, heights)
}

func TestCatchUpResumesFromStoredTip(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{blocks: makeChain(2, 0)}
	first, store := newTestEngine(t, source)
	require.NoError(t, first.CatchUp(ctx))

	// a restarted engine picks up the stored tip and only imports what
	// is missing
	source.blocks = append(source.blocks, makeBlock(source.blocks[1].Hash(), makeTx(99)))
	second := NewEngine(source, store, testParams, 0)
	require.NoError(t, second.CatchUp(ctx))

	require.Equal(t, int64(2), second.LocalTip().Height)
	heights, err := store.BlockHeights(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1, 2}, heights)
}

func TestStepReportsNoOutcomeOnError(t *testing.T) {
	source := &fakeSource{blocks: makeChain(1, 0), tipErr: errors.New("connection refused")}
	engine, _ := newTestEngine(t, source)

	outcome, err := engine.Step(context.Background())
	require.Error(t, err)
	require.Equal(t, outcomeNone, outcome)
	require.NotEqual(t, Advanced, outcome)
}

func TestSameHeightForkRollsBack(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{blocks: makeChain(3, 0)}
	engine, store := newTestEngine(t, source)

	require.NoError(t, engine.CatchUp(ctx))
	oldTip := engine.LocalTip()

	// the node adopts a competing block at the same height
	competing := makeBlock(source.blocks[1].Hash(), makeTx(1000))
	source.blocks[2] = competing
	require.NotEqual(t, oldTip.Hash, *competing.Hash())

	// the first cycle must roll back, never forward-import
	engine.importer.BeginRun()
	outcome, err := engine.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, Reorged, outcome)

	// rollback lands on the height-1 ancestor shared by both branches
	require.Equal(t, int64(1), engine.LocalTip().Height)
	require.Equal(t, *source.blocks[1].Hash(), engine.LocalTip().Hash)

	// subsequent forward imports reach the competing tip
	require.NoError(t, engine.CatchUp(ctx))
	require.Equal(t, int64(2), engine.LocalTip().Height)
	require.Equal(t, *competing.Hash(), engine.LocalTip().Hash)

	storedTip, err := store.BestTip(ctx)
	require.NoError(t, err)
	require.Equal(t, engine.LocalTip(), storedTip)
}

func TestRollbackIsIdempotent(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{blocks: makeChain(3, 0)}
	engine, store := newTestEngine(t, source)
	require.NoError(t, engine.CatchUp(ctx))

	reorg := NewReorg(store)

	tip1, err := reorg.RollbackTo(ctx, 2)
	require.NoError(t, err)
	counts1, err := store.RowCounts(ctx)
	require.NoError(t, err)

	tip2, err := reorg.RollbackTo(ctx, 2)
	require.NoError(t, err)
	counts2, err := store.RowCounts(ctx)
	require.NoError(t, err)

	require.Equal(t, tip1, tip2)
	require.Equal(t, counts1, counts2)
	require.Equal(t, int64(1), tip2.Height)
}

func TestFarBehindSkipsTipRequery(t *testing.T) {
	// 251 blocks: the engine starts 250 behind and must not re-query the
	// remote tip until the gap drops below the recheck threshold
	source := &fakeSource{blocks: makeChain(251, 0)}
	engine, _ := newTestEngine(t, source)

	require.NoError(t, engine.CatchUp(context.Background()))
	require.Equal(t, int64(250), engine.LocalTip().Height)

	// one initial refresh plus one per cycle once within tipRecheckGap of
	// the cached remote tip (local heights 150..250)
	require.Equal(t, 102, source.tipHeightCalls)
}

func TestImportRecordsOwnershipPerOutput(t *testing.T) {
	ctx := context.Background()

	script, address := p2pkhScript(t, 0xaa)
	nonstandard := []byte{txscript.OP_RETURN, txscript.OP_DATA_1, 0xff}
	tx := makeTx(7,
		wire.NewTxOut(5000, script),
		wire.NewTxOut(0, nonstandard),
	)

	source := &fakeSource{blocks: []*btcutil.Block{makeBlock(&chainhash.Hash{}, tx)}}
	engine, store := newTestEngine(t, source)
	require.NoError(t, engine.CatchUp(ctx))

	// the genesis block itself was imported, not skipped or rolled back
	heights, err := store.BlockHeights(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{0}, heights)

	// exactly one ownership row despite two outputs
	counts, err := store.RowCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts["history"])
	require.Equal(t, int64(1), counts["transactions"])

	entries, err := store.AddressHistory(ctx, address)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(5000), entries[0].Value)
	require.Equal(t, uint32(0), entries[0].Index)
	require.Equal(t, tx.TxHash(), entries[0].Txid)
	require.NotNil(t, entries[0].Height)
	require.Equal(t, int64(0), *entries[0].Height)
}

func TestMempoolClearedOncePerRun(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{blocks: makeChain(3, 0)}

	store, err := storage.Open(t.TempDir(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	seedMempool := func(tag byte) {
		txid := &chainhash.Hash{0: tag}
		err := store.Execute(ctx, func(tx *sql.Tx) error {
			return storage.InsertMempoolTransaction(tx, txid, []byte{0x01})
		})
		require.NoError(t, err)
	}

	importer := NewImporter(store, testParams)
	importer.BeginRun()

	seedMempool(0x01)

	// first import of the run clears the mempool view
	_, err = importer.ImportBlock(ctx, 0, source.blocks[0])
	require.NoError(t, err)
	n, err := store.MempoolCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	// later imports in the same run leave it untouched
	seedMempool(0x02)
	_, err = importer.ImportBlock(ctx, 1, source.blocks[1])
	require.NoError(t, err)
	n, err = store.MempoolCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// a new run clears again
	importer.BeginRun()
	_, err = importer.ImportBlock(ctx, 2, source.blocks[2])
	require.NoError(t, err)
	n, err = store.MempoolCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRunReentersCatchUpAndRefreshesMempool(t *testing.T) {
	script, _ := p2pkhScript(t, 0xcc)
	unconfirmed := btcutil.NewTx(makeTx(43, wire.NewTxOut(900, script)))

	full := makeChain(4, 0)
	source := &fakeSource{
		blocks:  full[:3],
		mempool: []*btcutil.Tx{unconfirmed},
		// grow the chain by one block once the initial catch-up has
		// settled (one refresh per import plus the completing one)
		pending:     full[3:],
		revealAfter: 4,
	}

	store, err := storage.Open(t.TempDir(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	engine := NewEngine(source, store, testParams, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, engine.Run(ctx), context.DeadlineExceeded)

	// a steady-state tick saw the mismatch and re-entered catch-up
	require.Equal(t, int64(3), engine.LocalTip().Height)
	heights, err := store.BlockHeights(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1, 2, 3}, heights)

	// ticks with matching tips refreshed the mempool view; repeated
	// refreshes left no duplicate rows
	counts, err := store.RowCounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), counts["transactions_mempool"])
	require.Equal(t, int64(1), counts["history_mempool"])
}

func TestMempoolRefreshIndexesNewTransactions(t *testing.T) {
	ctx := context.Background()

	script, _ := p2pkhScript(t, 0xbb)
	unconfirmed := btcutil.NewTx(makeTx(42, wire.NewTxOut(777, script)))

	source := &fakeSource{
		blocks:  makeChain(1, 0),
		mempool: []*btcutil.Tx{unconfirmed},
	}
	engine, store := newTestEngine(t, source)
	require.NoError(t, engine.CatchUp(ctx))

	mempool := NewMempool(source, store, testParams)
	require.NoError(t, mempool.Refresh(ctx))

	counts, err := store.RowCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts["transactions_mempool"])
	require.Equal(t, int64(1), counts["history_mempool"])

	// repeated refresh is a no-op for already-known ids
	require.NoError(t, mempool.Refresh(ctx))
	counts, err = store.RowCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), counts["transactions_mempool"])
	require.Equal(t, int64(1), counts["history_mempool"])
}
