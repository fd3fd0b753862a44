package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"jobboard/config"
	"jobboard/core"
	"jobboard/observability/logging"
	"jobboard/rpc"
	"jobboard/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("JOBBOARD_ENV"))
	logger := logging.Setup("jobboardd", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	authority, err := cfg.MintAuthorityAddress()
	if err != nil {
		logger.Error("Failed to resolve mint authority", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node := core.NewNode(db, core.Config{
		Policy:        cfg.JobPolicy.Policy(),
		MintAuthority: authority,
	})

	logger.Info("node ready",
		slog.String("backend", cfg.Backend),
		slog.String("dataDir", cfg.DataDir),
		slog.String("mintAuthority", cfg.MintAuthority),
	)

	server := rpc.NewServer(node, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemDB(), nil
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "jobboard.db"))
	case "leveldb":
		return storage.NewLevelDB(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
