package pnl

// batch.go — worker pool para evaluar muchas wallets en paralelo.
//
// Cada wallet es independiente (su propio fetch y su propio engine), así que el
// único límite de concurrencia es el rate limit del Event Source.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/metrics"
)

// EvaluateBatch evalúa todas las wallets con un worker pool acotado.
// El resultado está indexado por dirección en minúsculas; un fallo en una
// wallet queda en su WalletReport y nunca aborta el batch.
//
// Si workers <= 0 usa cfg.Workers, y si también es 0, runtime.NumCPU() × 2.
func (s *Service) EvaluateBatch(ctx context.Context, wallets []string, workers int) domain.BatchReport {
	if workers <= 0 {
		workers = s.cfg.Workers
	}
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}

	unique := dedupeWallets(wallets)
	report := domain.BatchReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Wallets:   make(map[string]domain.WalletReport, len(unique)),
	}
	if workers > len(unique) {
		workers = len(unique)
	}

	workCh := make(chan string, len(unique))
	resultCh := make(chan domain.WalletReport, len(unique))

	// Worker pool: cada worker toma wallets de workCh y envía informes a resultCh.
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for wallet := range workCh {
				metrics.BatchInFlight.Inc()
				rep := s.Report(ctx, wallet, nil)
				metrics.BatchInFlight.Dec()
				if rep.Error != "" {
					slog.Debug("batch wallet failed",
						"run_id", report.RunID,
						"wallet", wallet,
						"err", rep.Error,
					)
				}
				resultCh <- rep
			}
		}()
	}

	for _, w := range unique {
		workCh <- w
	}
	close(workCh)

	// Cerrar resultCh cuando todos los workers terminen.
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	for rep := range resultCh {
		report.Wallets[rep.Wallet] = rep
	}
	report.FinishedAt = time.Now().UTC()

	slog.Info("batch complete",
		"run_id", report.RunID,
		"wallets", len(report.Wallets),
		"failed", report.Failed(),
		"workers", workers,
		"duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
	)
	return report
}

func dedupeWallets(wallets []string) []string {
	seen := make(map[string]bool, len(wallets))
	out := make([]string, 0, len(wallets))
	for _, w := range wallets {
		w = domain.NormalizeWallet(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
