package pnl

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// RunnerConfig controla el re-cálculo periódico de un conjunto de wallets.
type RunnerConfig struct {
	Wallets  []string
	Workers  int
	Interval time.Duration // 0 = un solo ciclo
}

// Runner evalúa el mismo batch en cada tick y notifica el informe.
type Runner struct {
	cfg      RunnerConfig
	svc      *Service
	notifier ports.Notifier
}

// NewRunner crea un Runner. notifier puede ser nil.
func NewRunner(cfg RunnerConfig, svc *Service, notifier ports.Notifier) *Runner {
	return &Runner{cfg: cfg, svc: svc, notifier: notifier}
}

// Run ejecuta ciclos hasta que el contexto se cancele.
// Con Interval == 0 solo ejecuta un ciclo.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("runner starting",
		"wallets", len(r.cfg.Wallets),
		"interval", r.cfg.Interval,
	)

	r.RunOnce(ctx)
	if r.cfg.Interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("runner stopped")
			return nil
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce evalúa el batch una vez y lo pasa al notifier.
func (r *Runner) RunOnce(ctx context.Context) domain.BatchReport {
	report := r.svc.EvaluateBatch(ctx, r.cfg.Wallets, r.cfg.Workers)
	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, report); err != nil {
			slog.Warn("notifier error", "run_id", report.RunID, "err", err)
		}
	}
	return report
}
