package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/fredLedger/pkg/chit"
	"github.com/mcclellann/fredLedger/pkg/clock"
	"github.com/mcclellann/fredLedger/pkg/config"
	"github.com/mcclellann/fredLedger/pkg/ledger"
	"github.com/mcclellann/fredLedger/pkg/receipt"
	"github.com/mcclellann/fredLedger/pkg/store"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Production() {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	return zcfg.Build()
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize SQLite Store
	sqliteStore, err := store.NewSQLiteStore(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal("failed to initialize SQLite store", zap.Error(err))
	}
	defer sqliteStore.Close()

	dispatcher := receipt.NewDispatcher(receipt.LinkSender{
		BaseURL:     cfg.WhatsAppBaseURL,
		CountryCode: cfg.DefaultCountryCode,
		Log:         logger.Named("receipt"),
	}, cfg.ReceiptQueueSize, logger.Named("receipt"))
	dispatcher.Start()

	l := ledger.NewLedger(sqliteStore,
		ledger.WithNotifier(dispatcher),
		ledger.WithPolicy(cfg.PeriodPolicy()),
		ledger.WithCountryCode(cfg.DefaultCountryCode),
		ledger.WithLogger(logger.Named("ledger")))
	chits := chit.NewService(sqliteStore, chit.WithLogger(logger.Named("chit")))
	server := NewServer(sqliteStore, l, chits, clock.SystemClock{}, logger.Named("http"))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.Environment))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	dispatcher.Shutdown()
}
