// Perpsim - Paper trading simulator for USDT-margined perpetual futures
//
// One simulated account, up to one leveraged position per symbol, marked to
// live Binance prices. Stop-loss, take-profit and liquidation closes fire
// automatically; the account state survives restarts through the snapshot
// store. Telegram is the control surface.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"perpsim/internal/bot"
	"perpsim/internal/config"
	"perpsim/internal/feeds"
	"perpsim/internal/ledger"
	"perpsim/internal/risk"
	"perpsim/internal/storage"
)

const version = "1.2.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Strs("symbols", cfg.Symbols).
		Str("balance", cfg.InitialBalance.StringFixed(2)).
		Msg("⚡ Perpsim starting...")

	// Initialize database
	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Restore the account, or seed a fresh one. A broken snapshot falls back
	// to the seed rather than aborting.
	account := ledger.New(cfg.Symbols, cfg.InitialBalance)
	snap, found, err := db.LoadSnapshot()
	switch {
	case err != nil:
		log.Error().Err(err).Msg("⚠️ Snapshot load failed, starting from seed")
	case found:
		account.Restore(snap)
		log.Info().
			Str("balance", snap.Balance.StringFixed(2)).
			Int("positions", len(snap.Positions)).
			Int("transactions", len(snap.Transactions)).
			Msg("💾 Account restored")
	default:
		log.Info().Str("balance", cfg.InitialBalance.StringFixed(2)).Msg("🆕 Fresh account seeded")
	}

	// Price feed
	feed := feeds.NewBinanceFeed(cfg.Symbols)
	if err := feed.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start Binance feed")
	}

	// Risk monitor: tick-driven evaluation plus a periodic sweep
	monitor := risk.NewMonitor(account, feed, cfg.MonitorInterval)

	tickCh := feed.Subscribe()
	go func() {
		for tick := range tickCh {
			monitor.Evaluate(tick.Symbol, tick.Price)
		}
	}()

	// Telegram bot (optional)
	var tg *bot.Bot
	if cfg.TelegramToken != "" {
		tg, err = bot.New(cfg.TelegramToken, cfg.TelegramChatID, account, feed)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Telegram bot")
		}
		monitor.SetNotifier(tg)
		tg.Start()
	}

	monitor.Start()

	// Periodic snapshot checkpoints
	checkpointStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.CheckpointInterval)
		defer ticker.Stop()
		for {
			select {
			case <-checkpointStop:
				return
			case <-ticker.C:
				if err := db.SaveSnapshot(account.Snapshot()); err != nil {
					log.Error().Err(err).Msg("Checkpoint save failed")
				}
			}
		}
	}()

	log.Info().Msg("🚀 Perpsim running. Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("Shutting down...")

	close(checkpointStop)
	monitor.Stop()
	if tg != nil {
		tg.Stop()
	}
	feed.Stop()

	if err := db.SaveSnapshot(account.Snapshot()); err != nil {
		log.Error().Err(err).Msg("Final snapshot save failed")
	} else {
		log.Info().Msg("💾 Final snapshot saved")
	}
}
