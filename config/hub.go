package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// HubConfig holds the klingnet-hub indexer process's runtime settings
// (spec §6's CLI surface). Unlike the full node's Config, there are no
// consensus/P2P/mining/wallet fields: the hub is a single-writer reader
// of an upstream node, nothing more.
type HubConfig struct {
	DBDir          string `conf:"db-dir"`
	NodeRPCURL     string `conf:"node-rpc-url"`
	ReorgLimit     uint32 `conf:"reorg-limit"`
	CacheMiB       int    `conf:"cache-mib"`
	MaxOpenFiles   int    `conf:"max-open-files"`
	Country        string `conf:"country"`
	UDPPort        int    `conf:"udp-port"`
	ShutdownOnSync bool   `conf:"shutdown-on-sync"`
	Log            LogConfig
}

// DefaultHubDataDir returns the default data directory for the hub
// process: ~/Library/Application Support/KlingnetHub on macOS,
// %APPDATA%\KlingnetHub on Windows (or ~/AppData/Roaming/KlingnetHub when
// APPDATA is unset), and ~/.klingnet-hub elsewhere.
func DefaultHubDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-hub"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetHub")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetHub")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetHub")
	default:
		return filepath.Join(home, ".klingnet-hub")
	}
}

// DefaultHubConfig returns the hub's out-of-the-box settings.
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		DBDir:        DefaultHubDataDir(),
		NodeRPCURL:   "http://127.0.0.1:8545/",
		ReorgLimit:   200,
		CacheMiB:     512,
		MaxOpenFiles: 1024,
		UDPPort:      0,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// HubFlags holds parsed klingnet-hub command-line flags.
type HubFlags struct {
	Help    bool
	Version bool

	DBDir          string
	NodeRPCURL     string
	ReorgLimit     uint
	CacheMiB       int
	MaxOpenFiles   int
	Country        string
	UDPPort        int
	ShutdownOnSync bool

	ConfigFile string
	LogLevel   string
	LogFile    string
	LogJSON    bool

	SetShutdownOnSync bool
	SetLogJSON        bool
}

// ParseHubFlags parses the klingnet-hub CLI surface (spec §6): --db-dir,
// --node-rpc-url, --reorg-limit (default 200), --cache-mib,
// --max-open-files, --country, --udp-port, --shutdown-on-sync.
func ParseHubFlags(args []string) (*HubFlags, error) {
	f := &HubFlags{}
	fs := flag.NewFlagSet("klingnet-hub", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	fs.StringVar(&f.DBDir, "db-dir", "", "Store data directory")
	fs.StringVar(&f.NodeRPCURL, "node-rpc-url", "", "Upstream node JSON-RPC endpoint")
	fs.UintVar(&f.ReorgLimit, "reorg-limit", 0, "Max reorg depth to retain undo data for (default 200)")
	fs.IntVar(&f.CacheMiB, "cache-mib", 0, "Store cache size in MiB")
	fs.IntVar(&f.MaxOpenFiles, "max-open-files", 0, "Max open file descriptors for the store")
	fs.StringVar(&f.Country, "country", "", "Country code reported to clients")
	fs.IntVar(&f.UDPPort, "udp-port", 0, "UDP port for peer discovery")
	fs.BoolVar(&f.ShutdownOnSync, "shutdown-on-sync", false, "Exit cleanly once first sync completes")

	fs.StringVar(&f.ConfigFile, "config", "", "Path to a config file")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path (empty = stderr)")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Emit logs as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "shutdown-on-sync":
			f.SetShutdownOnSync = true
		case "log-json":
			f.SetLogJSON = true
		}
	})

	return f, nil
}

// MergeHubFlags applies parsed flags on top of defaults, returning the
// effective configuration. Flags take precedence; unset flags keep the
// default's value.
func MergeHubFlags(base *HubConfig, f *HubFlags) *HubConfig {
	cfg := *base
	if f.DBDir != "" {
		cfg.DBDir = f.DBDir
	}
	if f.NodeRPCURL != "" {
		cfg.NodeRPCURL = f.NodeRPCURL
	}
	if f.ReorgLimit != 0 {
		cfg.ReorgLimit = uint32(f.ReorgLimit)
	}
	if f.CacheMiB != 0 {
		cfg.CacheMiB = f.CacheMiB
	}
	if f.MaxOpenFiles != 0 {
		cfg.MaxOpenFiles = f.MaxOpenFiles
	}
	if f.Country != "" {
		cfg.Country = f.Country
	}
	if f.UDPPort != 0 {
		cfg.UDPPort = f.UDPPort
	}
	if f.SetShutdownOnSync {
		cfg.ShutdownOnSync = f.ShutdownOnSync
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
	return &cfg
}

// ValidateHub checks a HubConfig for the config errors spec §6's exit
// code 64 covers.
func ValidateHub(cfg *HubConfig) error {
	if cfg.DBDir == "" {
		return fmt.Errorf("config: db-dir is required")
	}
	if cfg.NodeRPCURL == "" {
		return fmt.Errorf("config: node-rpc-url is required")
	}
	if cfg.ReorgLimit == 0 {
		return fmt.Errorf("config: reorg-limit must be positive")
	}
	return nil
}
