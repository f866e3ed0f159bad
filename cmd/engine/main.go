package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"binance-ai-trader/internal/config"
	"binance-ai-trader/internal/credentials"
	"binance-ai-trader/internal/database"
	"binance-ai-trader/internal/llm"
	"binance-ai-trader/internal/logger"
	"binance-ai-trader/internal/trader"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	if cfg.LLM.ApiKey == "" {
		log.Fatal("No LLM API key configured")
	}
	completer := llm.NewClient(&cfg.LLM, log)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Initialize and run the trading engine
	engine := trader.NewEngine(&cfg, db, completer, credentials.AccountStore{}, log)
	if err := engine.Run(ctx); err != nil {
		log.Fatal("Engine stopped with error", zap.Error(err))
	}

	log.Info("Engine has been shut down.")
}
