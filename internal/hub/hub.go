// Package hub wires the store, indexer, resolver and upstream-node RPC
// client into a single runnable process (spec §6), the way
// internal/node/node.go wires the full node's consensus/P2P/mining
// stack. The hub never produces blocks; it only ingests them.
package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-hub/config"
	"github.com/Klingon-tech/klingnet-hub/internal/indexer"
	klog "github.com/Klingon-tech/klingnet-hub/internal/log"
	"github.com/Klingon-tech/klingnet-hub/internal/resolver"
	"github.com/Klingon-tech/klingnet-hub/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-hub/internal/storage"
	"github.com/Klingon-tech/klingnet-hub/internal/store"
	"github.com/rs/zerolog"
)

// Hub is a fully initialized indexer process: store, indexer, resolver,
// and the upstream-node RPC client that feeds it.
type Hub struct {
	cfg    *config.HubConfig
	logger zerolog.Logger

	db   storage.DB
	st   *store.Store
	idx  *indexer.Indexer
	res  *resolver.Resolver
	node *rpcclient.NodeClient

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the store at cfg.DBDir, recovers the indexer's cursor, and
// wires the resolver and upstream RPC client. It does not start the
// prefetch loop; call Start for that.
func New(cfg *config.HubConfig) (*Hub, error) {
	if err := config.ValidateHub(cfg); err != nil {
		return nil, err
	}

	logger := klog.WithComponent("hub")

	db, err := storage.NewBadger(cfg.DBDir)
	if err != nil {
		return nil, fmt.Errorf("hub: open store: %w", err)
	}

	st, err := store.Open(db, cfg.ReorgLimit, nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("hub: init store: %w", err)
	}

	idx, err := indexer.New(st, indexer.Config{
		ReorgLimit:   cfg.ReorgLimit,
		MaxUndoDepth: cfg.ReorgLimit,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("hub: init indexer: %w", err)
	}

	res := resolver.New(st, nil, nil)
	node := rpcclient.NewNode(cfg.NodeRPCURL)

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:    cfg,
		logger: logger,
		db:     db,
		st:     st,
		idx:    idx,
		res:    res,
		node:   node,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Indexer returns the hub's indexer, for subscribing to its change
// stream (spec §6).
func (h *Hub) Indexer() *indexer.Indexer { return h.idx }

// Resolver returns the hub's read-only query surface.
func (h *Hub) Resolver() *resolver.Resolver { return h.res }

// Start launches the prefetch loop as a background goroutine.
func (h *Hub) Start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runPrefetchLoop()
	}()
}

// Stop cancels the prefetch loop, waits for it to exit, and closes the
// store.
func (h *Hub) Stop() {
	h.cancel()
	h.wg.Wait()
	if h.db != nil {
		h.db.Close()
	}
	h.logger.Info().Msg("hub stopped")
}

const prefetchPollInterval = 5 * time.Second
