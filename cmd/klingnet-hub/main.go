// Klingnet hub: a claims/channels/name-takeover indexer and resolver
// that ingests blocks from an upstream klingnet node.
//
// Usage:
//
//	klingnet-hub --node-rpc-url=http://127.0.0.1:8545/ --db-dir=/var/lib/klingnet-hub
//	klingnet-hub --help
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/klingnet-hub/config"
	"github.com/Klingon-tech/klingnet-hub/internal/hub"
	klog "github.com/Klingon-tech/klingnet-hub/internal/log"
	"github.com/Klingon-tech/klingnet-hub/internal/store"
)

// Exit codes (spec §6).
const (
	exitOK           = 0
	exitChainError   = 1
	exitStoreCorrupt = 2
	exitConfigError  = 64
)

func main() {
	flags, err := config.ParseHubFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitConfigError)
	}
	if flags.Help {
		printHelp()
		os.Exit(exitOK)
	}
	if flags.Version {
		fmt.Println("klingnet-hub (development build)")
		os.Exit(exitOK)
	}

	cfg := config.MergeHubFlags(config.DefaultHubConfig(), flags)
	if err := config.ValidateHub(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitConfigError)
	}

	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(exitConfigError)
	}

	h, err := hub.New(cfg)
	if err != nil {
		klog.Error().Err(err).Msg("failed to start hub")
		if errors.Is(err, store.ErrUnknownPrefix) {
			os.Exit(exitStoreCorrupt)
		}
		os.Exit(exitChainError)
	}

	h.Start()
	klog.Info().
		Str("db_dir", cfg.DBDir).
		Str("node_rpc_url", cfg.NodeRPCURL).
		Uint32("reorg_limit", cfg.ReorgLimit).
		Msg("klingnet-hub started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	klog.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	h.Stop()
}

func printHelp() {
	fmt.Println(`klingnet-hub: claims/channels/name-takeover indexer and resolver

Usage:
  klingnet-hub [flags]

Flags:
  --db-dir string          Store data directory
  --node-rpc-url string    Upstream node JSON-RPC endpoint
  --reorg-limit uint       Max reorg depth to retain undo data for (default 200)
  --cache-mib int          Store cache size in MiB
  --max-open-files int     Max open file descriptors for the store
  --country string         Country code reported to clients
  --udp-port int           UDP port for peer discovery
  --shutdown-on-sync       Exit cleanly once first sync completes
  --config string          Path to a config file
  --log-level string       Log level (trace, debug, info, warn, error)
  --log-file string        Log file path (empty = stderr)
  --log-json               Emit logs as JSON

Environment:
  NODE_RPC_USER, NODE_RPC_PASSWORD   Basic auth for --node-rpc-url`)
}
