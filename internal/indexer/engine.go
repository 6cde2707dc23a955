package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/chainmirror/indexd/internal/chain"
	"github.com/chainmirror/indexd/internal/logging"
	"github.com/chainmirror/indexd/internal/storage"
	"github.com/chainmirror/indexd/internal/types"
)

// tipRecheckGap is how far behind the remote tip we can be before it is
// pointless to re-query it every cycle.
const tipRecheckGap = 100

// Engine drives the mirror: it compares local and remote tips and
// dispatches to rollback, import or mempool refresh. It is the only owner
// of the in-process tip state and runs exactly one cycle at a time.
type Engine struct {
	source   chain.Source
	store    *storage.Store
	importer *Importer
	reorg    *Reorg
	mempool  *Mempool

	params   *chaincfg.Params
	interval time.Duration

	local     types.ChainTip
	remote    types.ChainTip
	tipLoaded bool
}

func NewEngine(source chain.Source, store *storage.Store, params *chaincfg.Params, interval time.Duration) *Engine {
	return &Engine{
		source:   source,
		store:    store,
		importer: NewImporter(store, params),
		reorg:    NewReorg(store),
		mempool:  NewMempool(source, store, params),
		params:   params,
		interval: interval,
	}
}

// Init verifies the node is reachable and on the configured network. It
// fails fast so a misconfigured process never starts importing. The local
// tip itself is loaded lazily by Step, so the engine works without Init.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.loadLocalTip(ctx); err != nil {
		return err
	}

	genesisHash, err := e.source.BlockHashAt(ctx, 0)
	if err != nil {
		return err
	}
	if *genesisHash != *e.params.GenesisHash {
		return fmt.Errorf("node genesis %s does not match configured network %s",
			genesisHash, e.params.Name)
	}

	if err := e.refreshRemote(ctx); err != nil {
		return err
	}

	logging.L.Info().
		Int64("local_height", e.local.Height).
		Int64("remote_height", e.remote.Height).
		Str("network", e.params.Name).
		Msg("engine initialized")
	return nil
}

// loadLocalTip reads the indexed tip out of storage once; after that the
// engine is the sole writer and keeps the in-memory copy authoritative.
func (e *Engine) loadLocalTip(ctx context.Context) error {
	if e.tipLoaded {
		return nil
	}
	tip, err := e.store.BestTip(ctx)
	if err != nil {
		return err
	}
	e.local = tip
	e.tipLoaded = true
	return nil
}

func (e *Engine) refreshRemote(ctx context.Context) error {
	height, err := e.source.TipHeight(ctx)
	if err != nil {
		return err
	}
	hash, err := e.source.BlockHashAt(ctx, height)
	if err != nil {
		return err
	}
	e.remote = types.ChainTip{Height: height, Hash: *hash}
	return nil
}

// LocalTip returns the engine's current view of the indexed tip.
func (e *Engine) LocalTip() types.ChainTip {
	return e.local
}

// Step runs one catch-up cycle and reports what it did. While far behind
// the cached remote tip, the remote is not re-queried.
func (e *Engine) Step(ctx context.Context) (Outcome, error) {
	if err := e.loadLocalTip(ctx); err != nil {
		return outcomeNone, err
	}

	if e.local.Height+tipRecheckGap >= e.remote.Height {
		if err := e.refreshRemote(ctx); err != nil {
			return outcomeNone, err
		}
		if e.local.Equal(e.remote) {
			return Completed, nil
		}
	}

	// Local at or above remote means a competing branch won, including a
	// same-height fork with a different id: roll back, never import.
	if e.local.Height >= e.remote.Height {
		tip, err := e.reorg.RollbackTo(ctx, e.remote.Height)
		if err != nil {
			return outcomeNone, err
		}
		e.local = tip
		logging.L.Info().
			Int64("target_height", e.remote.Height).
			Int64("local_height", tip.Height).
			Msg("reorg: rolled back local state")
		return Reorged, nil
	}

	next := e.local.Height + 1
	hash, err := e.source.BlockHashAt(ctx, next)
	if err != nil {
		return outcomeNone, err
	}
	block, err := e.source.FetchBlock(ctx, hash)
	if err != nil {
		return outcomeNone, err
	}

	tip, err := e.importer.ImportBlock(ctx, next, block)
	if err != nil {
		return outcomeNone, err
	}
	e.local = tip

	logging.L.Info().
		Int64("height", tip.Height).
		Str("blockid", tip.Hash.String()).
		Msg("imported block")
	return Advanced, nil
}

// CatchUp repeats Step with no delay until the tips match.
func (e *Engine) CatchUp(ctx context.Context) error {
	e.importer.BeginRun()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := e.Step(ctx)
		if err != nil {
			return err
		}
		if outcome == Completed {
			return nil
		}
		// Advanced and Reorged re-run immediately
	}
}

// Run catches up, then settles into the fixed-interval steady state: each
// tick re-checks the remote tip, re-entering catch-up on a mismatch and
// refreshing the mempool view on a match. The next tick is armed only after
// the current one fully settles, so cycles never overlap. Run returns only
// on a fatal error or context cancellation.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.CatchUp(ctx); err != nil {
		return err
	}
	logging.L.Info().Int64("height", e.local.Height).Msg("caught up with chain tip")

	for {
		start := time.Now()

		if err := e.refreshRemote(ctx); err != nil {
			return err
		}

		if !e.local.Equal(e.remote) {
			if err := e.CatchUp(ctx); err != nil {
				return err
			}
		} else if err := e.mempool.Refresh(ctx); err != nil {
			return err
		}

		delay := e.interval - time.Since(start)
		if delay < 0 {
			delay = 0
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
