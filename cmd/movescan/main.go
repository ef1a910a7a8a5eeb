package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/movescan/movescan/internal/config"
	"github.com/movescan/movescan/internal/feed"
	"github.com/movescan/movescan/internal/histdata"
	"github.com/movescan/movescan/internal/logger"
	"github.com/movescan/movescan/internal/models"
	"github.com/movescan/movescan/internal/refprice"
	"github.com/movescan/movescan/internal/scanner"
	"github.com/movescan/movescan/internal/storage"
	"github.com/movescan/movescan/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	displayLoc, err := time.LoadLocation(cfg.Scanner.DisplayTimezone)
	if err != nil {
		logger.Fatal("Failed to load display timezone: %v", err)
	}
	refDate, err := cfg.ReferenceDate(displayLoc)
	if err != nil {
		logger.Fatal("Failed to resolve reference date: %v", err)
	}

	histClient := histdata.NewClient(
		cfg.Historical.BaseURL,
		cfg.Historical.APIKey,
		cfg.Historical.Timeout,
		histdata.ClientConfig{
			MaxRetries:     cfg.Historical.MaxRetries,
			RetryDelayBase: cfg.Historical.RetryDelayBase,
		},
	)

	var source refprice.Source = histClient
	if cfg.Storage.Enabled {
		store, err := storage.New(cfg.Storage.DBPath)
		if err != nil {
			logger.Fatal("Failed to initialize storage: %v", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Error("Failed to close storage: %v", err)
			}
		}()
		if err := store.PurgeBefore(refDate); err != nil {
			logger.Warn("Failed to purge stale cached closes: %v", err)
		}
		source = storage.NewCachedSource(store, histClient)
	}

	logger.Info("Building reference price table for session %s", refDate.Format("2006-01-02"))
	table, err := refprice.Build(context.Background(), source, refDate)
	if err != nil {
		logger.Fatal("Failed to build reference price table: %v", err)
	}
	logger.Info("Reference price table ready: %d symbols", table.Len())

	registry := prometheus.NewRegistry()
	engine := scanner.New(table, scanner.Config{Threshold: cfg.Scanner.Threshold}, scanner.NewMetrics(registry))

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping scan...")
		cancel()
	}()

	if cfg.Telegram.Enabled && telegramClient != nil {
		telegramClient.ListenForCommands(ctx)
	}

	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, cfg.Metrics.ListenAddr, registry)
	}

	feedClient := feed.NewClient(feed.Config{
		URL:            cfg.Feed.URL,
		Dataset:        cfg.Feed.Dataset,
		ReconnectDelay: cfg.Feed.ReconnectDelay,
		PingInterval:   cfg.Feed.PingInterval,
		BufferSize:     cfg.Feed.BufferSize,
	})
	events := feedClient.Stream(ctx)

	logger.Info("Starting scan (universe: %d symbols, threshold: %.2f%%)",
		engine.Universe(), cfg.Scanner.Threshold*100)

	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			logSummary(engine.Stats())
			return

		case st := <-feedClient.States():
			if !st.Connected {
				consecutiveFailures++
				if consecutiveFailures == 1 && telegramClient != nil {
					if sendErr := telegramClient.SendError(st.Err); sendErr != nil {
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

		case event, ok := <-events:
			if !ok {
				logSummary(engine.Stats())
				return
			}
			alert := engine.Handle(event)
			if alert == nil {
				continue
			}
			emitAlert(alert, displayLoc, telegramClient)
		}
	}
}

// emitAlert writes the alert to the log and forwards it to Telegram when
// configured.
func emitAlert(alert *models.Alert, loc *time.Location, telegramClient *telegram.Client) {
	logger.Info("[%s] %s moved by %.2f%% (current: %.4f, previous: %.4f)",
		alert.Timestamp.In(loc).Format(time.RFC3339Nano),
		alert.Symbol,
		alert.PercentMove*100,
		alert.CurrentPrice,
		alert.ReferencePrice,
	)

	if telegramClient != nil {
		if err := telegramClient.SendAlert(alert, loc); err != nil {
			logger.Error("Failed to send Telegram alert for %s: %v", alert.Symbol, err)
		}
	}
}

func startMetricsServer(ctx context.Context, addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Info("Metrics endpoint listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func logSummary(stats scanner.Stats) {
	logger.Info("Session summary: %d mappings, %d quotes, %d alerts fired; dropped %d unresolved, %d empty-book, %d out-of-universe, %d degenerate-reference",
		stats.MappingsSeen, stats.QuotesSeen, stats.AlertsFired,
		stats.DropUnresolved, stats.DropEmptyBook, stats.DropOutOfUniverse, stats.DropDegenerateRef,
	)
}
