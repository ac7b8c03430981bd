package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alejandrodnm/polypnl/config"
	"github.com/alejandrodnm/polypnl/internal/adapters/cache"
	"github.com/alejandrodnm/polypnl/internal/adapters/httpapi"
	"github.com/alejandrodnm/polypnl/internal/adapters/notify"
	"github.com/alejandrodnm/polypnl/internal/adapters/polymarket"
	"github.com/alejandrodnm/polypnl/internal/adapters/storage"
	"github.com/alejandrodnm/polypnl/internal/application/classifier"
	"github.com/alejandrodnm/polypnl/internal/application/pnl"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file (empty = env + defaults)")
	wallets := flag.String("wallets", "", "comma-separated wallets to evaluate as a batch")
	importPath := flag.String("import", "", "JSON file with events/prices to load into the local ledger")
	serve := flag.Bool("serve", false, "start the HTTP API")
	interval := flag.Duration("interval", 0, "re-evaluate -wallets every interval until interrupted (0 = once)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full table (default: compact 1-line)")
	reasons := flag.Bool("reasons", false, "print exclusion reasons per wallet")
	mode := flag.String("mode", "", "valuation mode: economic|live (overrides config)")
	guard := flag.Bool("guard", false, "clamp the UI-parity figure for negative inventory")
	workers := flag.Int("workers", 0, "batch workers (overrides config)")
	flag.Parse()

	if *configPath != "" {
		if _, err := os.Stat(*configPath); err != nil {
			*configPath = ""
		}
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *mode != "" {
		cfg.Engine.ValuationMode = *mode
	}
	if *guard {
		cfg.Engine.GuardNegativeInventory = true
	}
	if *workers > 0 {
		cfg.Batch.Workers = *workers
	}
	setupLogger(cfg.Log)

	walletList := splitWallets(*wallets)
	if *importPath == "" && len(walletList) == 0 && !*serve {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -wallets, -import or -serve")
		flag.Usage()
		os.Exit(2)
	}

	valuation, err := domain.ParseValuationMode(cfg.Engine.ValuationMode)
	if err != nil {
		slog.Error("invalid valuation mode", "err", err)
		os.Exit(1)
	}

	slog.Info("polypnl starting",
		"config", *configPath,
		"source", cfg.Source.Kind,
		"mode", valuation,
		"guard", cfg.Engine.GuardNegativeInventory,
		"wallets", len(walletList),
		"serve", *serve,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// El ledger solo se abre si hace falta: import o source=sqlite|postgres.
	var source ports.EventSource
	if *importPath != "" || cfg.Source.Kind != "polymarket" {
		ledger, err := openLedger(ctx, cfg)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "source", cfg.Source.Kind)
			os.Exit(1)
		}
		defer ledger.Close()

		if *importPath != "" {
			runImport(ctx, ledger, *importPath)
		}
		source = ledger
	}
	if len(walletList) == 0 && !*serve {
		return
	}

	if cfg.Source.Kind == "polymarket" {
		source = polymarket.NewClient(cfg.Source.DataAPIBase, cfg.Source.CLOBBase)
	}

	resultCache, closeCache := openCache(ctx, cfg)
	defer closeCache()

	svc := pnl.New(pnl.Config{
		FetchTimeout: cfg.FetchTimeout(),
		Options: domain.Options{
			Mode:                   valuation,
			GuardNegativeInventory: cfg.Engine.GuardNegativeInventory,
		},
		Workers: cfg.Batch.Workers,
		Tagger: classifier.TaggerConfig{
			MakerHeavyMinRatio:  cfg.Tags.MakerHeavyMinRatio,
			MakerHeavyMinEvents: cfg.Tags.MakerHeavyMinEvents,
		},
	}, source, resultCache, nil)

	runnerCfg := pnl.RunnerConfig{Wallets: walletList, Workers: cfg.Batch.Workers, Interval: *interval}
	notifiers := notify.Multi{notify.NewConsole(*table, *reasons)}
	if cfg.Notify.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			// Telegram es opcional: seguimos solo con consola
			slog.Warn("telegram disabled", "err", err)
		} else {
			notifiers = append(notifiers, tg)
		}
	}

	if *serve {
		hub := notify.NewHub()
		go hub.Run(ctx)
		handler := httpapi.NewHandler(svc).
			WithReportStream(hub.HandleWS).
			WithCORS(cfg.Server.CORSOrigins)

		// Con -serve el runner (si hay wallets) corre en segundo plano y
		// además difunde cada informe por /api/v1/ws.
		if len(walletList) > 0 {
			runner := pnl.NewRunner(runnerCfg, svc, append(notifiers, hub))
			go runner.Run(ctx)
		}
		if err := runServer(ctx, handler, cfg.Server.Addr, cfg.RequestTimeout()); err != nil {
			slog.Error("server exited with error", "err", err)
			os.Exit(1)
		}
	} else {
		if err := pnl.NewRunner(runnerCfg, svc, notifiers).Run(ctx); err != nil {
			slog.Error("runner exited with error", "err", err)
			os.Exit(1)
		}
	}

	slog.Info("polypnl stopped cleanly")
}

// openLedger abre el ledger configurado: Postgres si source.kind=postgres, SQLite si no.
func openLedger(ctx context.Context, cfg *config.Config) (ports.LedgerStore, error) {
	if cfg.Source.Kind == "postgres" {
		return storage.OpenPostgres(ctx, cfg.Storage.PostgresURL)
	}
	return storage.NewLedger(cfg.Storage.DSN)
}

// openCache usa Redis si hay URL configurada; si no responde, cae a memoria.
func openCache(ctx context.Context, cfg *config.Config) (ports.ResultCache, func()) {
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.Dial(ctx, cfg.Cache.RedisURL, cfg.CacheTTL())
		if err == nil {
			slog.Info("result cache: redis", "ttl", cfg.CacheTTL())
			return rc, func() { rc.Close() }
		}
		slog.Warn("redis unavailable, using in-memory cache", "err", err)
	}
	slog.Debug("result cache: memory", "ttl", cfg.CacheTTL())
	return cache.NewMemory(cfg.CacheTTL()), func() {}
}

func splitWallets(s string) []string {
	var out []string
	for _, w := range strings.Split(s, ",") {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
