package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alejandrodnm/polypnl/internal/adapters/storage"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

func runImport(ctx context.Context, ledger ports.LedgerStore, path string) {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("failed to open import file", "path", path, "err", err)
		os.Exit(1)
	}
	defer f.Close()

	sum, err := storage.ImportFile(ctx, ledger, f)
	if err != nil {
		slog.Error("import failed", "path", path, "err", err)
		os.Exit(1)
	}
	slog.Info("import complete",
		"path", path,
		"events", sum.Events,
		"inserted", sum.Inserted,
		"resolutions", sum.Resolutions,
		"live_prices", sum.LivePrices,
	)
}
