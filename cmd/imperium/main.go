package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rewired-gh/imperium/internal/catalog"
	"github.com/rewired-gh/imperium/internal/config"
	"github.com/rewired-gh/imperium/internal/journal"
	"github.com/rewired-gh/imperium/internal/ledger"
	"github.com/rewired-gh/imperium/internal/logger"
	"github.com/rewired-gh/imperium/internal/market"
	"github.com/rewired-gh/imperium/internal/storage"
	"github.com/rewired-gh/imperium/internal/telegram"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	exportPath = flag.String("export", "", "Write stored state to a JSON file and exit")
	importPath = flag.String("import", "", "Load state from a JSON export and exit")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	// Initialize storage
	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	switch {
	case *exportPath != "":
		if err := store.ExportJSON(*exportPath, 0o644, 0o755); err != nil {
			logger.Fatal("Export failed: %v", err)
		}
		logger.Info("Exported state to %s", *exportPath)
		return
	case *importPath != "":
		if err := store.ImportJSON(*importPath); err != nil {
			logger.Fatal("Import failed: %v", err)
		}
		logger.Info("Imported state from %s", *importPath)
		return
	}

	// Load market catalog
	cat := catalog.Default()
	if cfg.Market.CatalogPath != "" {
		cat, err = catalog.Load(cfg.Market.CatalogPath)
		if err != nil {
			logger.Fatal("Failed to load market catalog: %v", err)
		}
	}
	logger.Info("Loaded %d markets", len(cat.MarketIDs()))

	// Restore player ledger
	wallet := ledger.New(cfg.Ledger.StorageCaps, cfg.Ledger.DefaultStorageCap)
	balances, err := store.LoadBalances()
	if err != nil {
		logger.Fatal("Failed to load ledger: %v", err)
	}
	if len(balances) == 0 {
		wallet.SetBalance(ledger.Gold, cfg.Ledger.StartingGold)
		logger.Info("New ledger opened with %.0f gold", cfg.Ledger.StartingGold)
	} else {
		wallet.Restore(balances)
	}

	// Every market state write carries the ledger in the same transaction.
	opts := market.Options{
		Rand:         market.NewSource(cfg.Market.Seed),
		Store:        store.WithLedger(wallet),
		AutoSave:     cfg.Market.AutoSave,
		TickInterval: cfg.Market.TickInterval,
	}

	// Initialize trade journal
	if cfg.Journal.Enabled {
		jw := journal.NewWriter(cfg.Journal.Dir)
		defer func() {
			if err := jw.Close(); err != nil {
				logger.Error("Failed to close trade journal: %v", err)
			}
		}()
		opts.Journal = jw
		logger.Debug("Trade journal writing to %s", cfg.Journal.Dir)
	}

	// Initialize Telegram client
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries,
			cfg.Telegram.RetryDelayBase,
			cfg.Telegram.MessagesPerSecond,
		)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		opts.Notifier = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	// Initialize market engine
	engine := market.New(cat, opts)
	persisted, err := store.LoadMarketState()
	if err != nil {
		logger.Fatal("Failed to load market state: %v", err)
	}
	engine.Initialize(persisted)
	if err := engine.Save(); err != nil {
		logger.Warn("Failed to save initial market state: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	// Start Telegram delivery and command listener
	if telegramClient != nil {
		go telegramClient.Run(ctx)
		telegramClient.ListenForCommands(ctx, telegram.Commands{
			View:   engine,
			Desk:   engine,
			Wallet: wallet,
		})
	}

	logger.Info("Starting market service (tick: %v, check: %v, routes: %v, autosave: %v)",
		cfg.Market.TickInterval,
		cfg.Market.CheckInterval,
		cfg.Market.RouteInterval,
		cfg.Market.AutoSave,
	)

	tickTicker := time.NewTicker(cfg.Market.CheckInterval)
	defer tickTicker.Stop()
	routeTicker := time.NewTicker(cfg.Market.RouteInterval)
	defer routeTicker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Market cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	// Run initial tick immediately
	handleCycleResult(runTickCycle(engine, time.Now()))

	for {
		select {
		case <-ctx.Done():
			if err := engine.Save(); err != nil {
				logger.Error("Failed to save state on shutdown: %v", err)
			}
			logger.Info("Service stopped")
			return

		case tickTime := <-tickTicker.C:
			handleCycleResult(runTickCycle(engine, tickTime))

		case <-routeTicker.C:
			handleCycleResult(runRouteSweep(engine, wallet, telegramClient))
		}
	}
}

// runTickCycle advances prices if the tick interval has elapsed and saves
// market state and ledger together. The save runs even with autosave on so
// that a failed write reaches the failure/recovery notices.
func runTickCycle(engine *market.Engine, now time.Time) error {
	news, applied := engine.Tick(now)
	if !applied {
		logger.Debug("Tick skipped, last update %v", engine.LastUpdate().Format(time.RFC3339))
		return nil
	}
	logger.Info("Prices updated at %s (%d news items)", now.Format(time.RFC3339), len(news))

	if err := engine.Save(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// runRouteSweep runs every active trade route once and saves the result.
func runRouteSweep(engine *market.Engine, wallet *ledger.Ledger, telegramClient *telegram.Client) error {
	result := engine.RunTradeRoutes(wallet)
	if result.Considered == 0 {
		return nil
	}
	if telegramClient != nil {
		telegramClient.SweepCompleted(result)
	}
	if err := engine.Save(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}
