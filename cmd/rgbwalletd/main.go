package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rgbwallet/rgbwallet/internal/config"
	"github.com/rgbwallet/rgbwallet/internal/logging"
	"github.com/rgbwallet/rgbwallet/internal/rgbwallet"
)

// refreshInterval paces the steady-state transfer refresh loop.
const refreshInterval = 30 * time.Second

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging.
	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	slog.Info("rgbwalletd starting",
		"network", cfg.Network,
		"dataDir", cfg.DataDir,
		"indexerURL", cfg.IndexerURL,
	)

	if cfg.MnemonicFile == "" {
		slog.Error("RGBWALLET_MNEMONIC_FILE is required")
		os.Exit(1)
	}
	rawMnemonic, err := os.ReadFile(cfg.MnemonicFile)
	if err != nil {
		slog.Error("failed to read mnemonic file", "path", cfg.MnemonicFile, "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		slog.Error("failed to create data dir", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	wallet, err := rgbwallet.New(rgbwallet.Params{
		DataDir:               cfg.DataDir,
		Mnemonic:              strings.TrimSpace(string(rawMnemonic)),
		Network:               cfg.Network,
		MaxAllocationsPerUtxo: cfg.MaxAllocationsPerUtxo,
	})
	if err != nil {
		slog.Error("failed to open wallet", "error", err)
		os.Exit(1)
	}
	defer wallet.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := wallet.GoOnline(ctx, cfg.IndexerURL); err != nil {
		slog.Error("failed to go online", "error", err)
		os.Exit(1)
	}
	slog.Info("wallet online", "dir", wallet.WalletDir())

	// Steady state: a single-threaded refresh loop until shutdown; the
	// wallet's one-caller-at-a-time contract holds because this is the only
	// caller.
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("rgbwalletd shutting down")
			return
		case <-ticker.C:
			results, err := wallet.Refresh(ctx, "", nil)
			if err != nil {
				slog.Error("refresh pass failed", "error", err)
				continue
			}
			for batchIdx, r := range results {
				switch {
				case r.Failure != nil:
					slog.Warn("batch refresh failed", "batch_transfer_idx", batchIdx, "error", r.Failure)
				case r.UpdatedStatus != nil:
					slog.Info("batch advanced", "batch_transfer_idx", batchIdx, "status", *r.UpdatedStatus)
				}
			}
			due, err := wallet.BackupDue()
			if err == nil && due {
				slog.Debug("wallet backup due")
			}
		}
	}
}
