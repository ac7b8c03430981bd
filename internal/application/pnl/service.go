// Package pnl orchestrates a wallet's PnL computation: fetch from the Event
// Source, fold through the accounting engine, classify and route for display.
package pnl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polypnl/internal/application/classifier"
	"github.com/alejandrodnm/polypnl/internal/application/cohort"
	"github.com/alejandrodnm/polypnl/internal/application/engine"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/metrics"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

// Config contiene la configuración del servicio.
type Config struct {
	FetchTimeout time.Duration  // timeout total de fetch por wallet (0 = sin timeout)
	Options      domain.Options // opciones por defecto de GetDisplay y del batch
	Workers      int            // workers del batch (0 = NumCPU*2)
	Tagger       classifier.TaggerConfig
}

// Service es el punto de entrada de computación, clasificación y display.
type Service struct {
	cfg    Config
	source ports.EventSource
	cache  ports.ResultCache
	tags   ports.TagProvider
	tagger *classifier.Tagger
}

// New crea un Service. cache y tags pueden ser nil.
func New(cfg Config, source ports.EventSource, cache ports.ResultCache, tags ports.TagProvider) *Service {
	if cfg.Options.Mode == "" {
		cfg.Options.Mode = domain.ModeEconomic
	}
	return &Service{
		cfg:    cfg,
		source: source,
		cache:  cache,
		tags:   tags,
		tagger: classifier.NewTagger(cfg.Tagger),
	}
}

// DefaultOptions returns the options used by GetDisplay and batches.
func (s *Service) DefaultOptions() domain.Options {
	return s.cfg.Options
}

// ComputePnL fetches the wallet's events, folds them and assembles a Result.
//
// Fetch failures are fatal for the wallet and wrap domain.ErrSourceTimeout
// or domain.ErrSourceUnavailable. Failing to fetch resolution or live prices
// only lowers confidence unless the deadline was hit.
func (s *Service) ComputePnL(ctx context.Context, wallet string, opts domain.Options) (domain.Result, error) {
	wallet = domain.NormalizeWallet(wallet)
	if wallet == "" {
		return domain.Result{}, errors.New("pnl.ComputePnL: empty wallet")
	}
	if opts.Mode == "" {
		opts.Mode = domain.ModeEconomic
	}
	mode := string(opts.Mode)
	key := opts.CacheKey(wallet)

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("cache get failed", "key", key, "err", err)
		} else if ok {
			metrics.ComputationsTotal.WithLabelValues(mode, "cached").Inc()
			return cached, nil
		}
	}

	start := time.Now()
	fetchCtx := ctx
	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	events, err := s.source.LoadEvents(fetchCtx, wallet)
	if err != nil {
		err = sourceError(fetchCtx, err)
		metrics.ComputationsTotal.WithLabelValues(mode, outcomeLabel(err)).Inc()
		return domain.Result{}, fmt.Errorf("pnl.ComputePnL: load events: %w", err)
	}

	state := engine.NewWalletState(wallet)
	state.ApplyEvents(events)
	conditionIDs := state.ConditionIDs()

	if len(conditionIDs) > 0 {
		resolutions, err := s.source.LoadResolutionPrices(fetchCtx, wallet, conditionIDs)
		if err != nil {
			if fatal := deadlineHit(fetchCtx, err); fatal != nil {
				metrics.ComputationsTotal.WithLabelValues(mode, "timeout").Inc()
				return domain.Result{}, fmt.Errorf("pnl.ComputePnL: load resolutions: %w", fatal)
			}
			slog.Warn("resolution prices unavailable, treating as unresolved", "wallet", wallet, "err", err)
		}
		state.ApplyResolutionPrices(resolutions)
	}

	var live map[string]float64
	if opts.Mode == domain.ModeLive && len(conditionIDs) > 0 {
		live, err = s.source.LoadLivePrices(fetchCtx, wallet, conditionIDs)
		if err != nil {
			if fatal := deadlineHit(fetchCtx, err); fatal != nil {
				metrics.ComputationsTotal.WithLabelValues(mode, "timeout").Inc()
				return domain.Result{}, fmt.Errorf("pnl.ComputePnL: load live prices: %w", fatal)
			}
			slog.Warn("live prices unavailable, marking at default", "wallet", wallet, "err", err)
			live = nil
		}
	}

	result := state.Result(opts, live)
	recordEngineMetrics(result)
	metrics.ComputationsTotal.WithLabelValues(mode, "ok").Inc()
	metrics.ComputationDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	if result.MissingResolutions > 0 || result.LivePriceFallbacks > 0 {
		slog.Warn("degraded external data",
			"wallet", wallet,
			"missing_resolutions", result.MissingResolutions,
			"live_price_fallbacks", result.LivePriceFallbacks,
		)
	}
	slog.Info("wallet computed",
		"wallet", wallet,
		"mode", mode,
		"events", result.EventsProcessed,
		"errors", len(result.Errors),
		"ui_parity", result.UIParityPnL,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, result); err != nil {
			slog.Warn("cache put failed", "key", key, "err", err)
		}
	}
	return result, nil
}

// ClassifyForLeaderboard evaluates the strict leaderboard gate.
func (s *Service) ClassifyForLeaderboard(r domain.Result) domain.LeaderboardEligibility {
	return classifier.EvaluateLeaderboardStrict(r)
}

// ClassifyForCopyTrade evaluates the strict copy-trade gate.
func (s *Service) ClassifyForCopyTrade(r domain.Result) domain.CopyTradeEligibility {
	return classifier.EvaluateCopyTradeStrict(r)
}

// GetDisplay computes the wallet with the default options and routes it to
// a cohort. It never fails: a wallet that cannot be computed is SUSPECT and
// its PnL hidden.
func (s *Service) GetDisplay(ctx context.Context, wallet string, benchmarkErrPct *float64) domain.Display {
	r, err := s.ComputePnL(ctx, wallet, s.cfg.Options)
	if err != nil {
		return s.failedDisplay(wallet, err)
	}
	return s.display(ctx, r, benchmarkErrPct)
}

// Report computes a wallet and evaluates every gate.
func (s *Service) Report(ctx context.Context, wallet string, benchmarkErrPct *float64) domain.WalletReport {
	wallet = domain.NormalizeWallet(wallet)
	r, err := s.ComputePnL(ctx, wallet, s.cfg.Options)
	if err != nil {
		return domain.WalletReport{
			Wallet:  wallet,
			Display: s.failedDisplay(wallet, err),
			Error:   err.Error(),
		}
	}
	lb := s.ClassifyForLeaderboard(r)
	ct := s.ClassifyForCopyTrade(r)
	return domain.WalletReport{
		Wallet:      wallet,
		Result:      &r,
		Leaderboard: &lb,
		CopyTrade:   &ct,
		Display:     s.display(ctx, r, benchmarkErrPct),
	}
}

func (s *Service) display(ctx context.Context, r domain.Result, benchmarkErrPct *float64) domain.Display {
	tags := s.tagsFor(ctx, r)
	decision := cohort.Route(cohort.InputFromResult(r, tags, benchmarkErrPct))
	metrics.CohortsTotal.WithLabelValues(string(decision.Cohort)).Inc()
	return cohort.DisplayFor(r.Wallet, decision, cohort.CanonicalPnL(r), classifier.Badge(&r, tags))
}

func (s *Service) failedDisplay(wallet string, err error) domain.Display {
	decision := domain.CohortDecision{Cohort: domain.CohortSuspect, Reason: "event source unavailable"}
	if errors.Is(err, domain.ErrSourceTimeout) {
		decision = cohort.Route(cohort.Input{TimedOut: true})
	}
	slog.Warn("wallet hidden", "wallet", domain.NormalizeWallet(wallet), "reason", decision.Reason, "err", err)
	metrics.CohortsTotal.WithLabelValues(string(decision.Cohort)).Inc()
	return cohort.DisplayFor(wallet, decision, 0, classifier.Badge(nil, domain.Tags{}))
}

// tagsFor prefers external tags and falls back to the counter-based tagger.
func (s *Service) tagsFor(ctx context.Context, r domain.Result) domain.Tags {
	if s.tags != nil {
		t, ok, err := s.tags.Tags(ctx, r.Wallet)
		if err != nil {
			slog.Warn("tag provider failed, deriving tags", "wallet", r.Wallet, "err", err)
		} else if ok {
			return t
		}
	}
	return s.tagger.Tags(r)
}

// sourceError clasifica un fallo del Event Source como timeout o no disponible.
func sourceError(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrSourceTimeout) || errors.Is(err, domain.ErrSourceUnavailable) {
		return err
	}
	if timeout := deadlineHit(ctx, err); timeout != nil {
		return timeout
	}
	return fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
}

// deadlineHit devuelve un error ErrSourceTimeout si el fallo se debe al deadline, nil si no.
func deadlineHit(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrSourceTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrSourceTimeout, err)
	}
	return nil
}

func outcomeLabel(err error) string {
	if errors.Is(err, domain.ErrSourceTimeout) {
		return "timeout"
	}
	return "error"
}

func recordEngineMetrics(r domain.Result) {
	c := r.Counts
	for kind, n := range map[domain.SourceKind]int{
		domain.SourceTrade:      c.Trades,
		domain.SourceSplit:      c.Splits,
		domain.SourceMerge:      c.Merges,
		domain.SourceRedemption: c.Redemptions,
	} {
		if n > 0 {
			metrics.EventsApplied.WithLabelValues(kind.String()).Add(float64(n))
		}
	}
	if len(r.Errors) > 0 {
		metrics.EventErrors.Add(float64(len(r.Errors)))
	}
}
