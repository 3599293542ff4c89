package main

import (
	"context"
	"time"

	"b2bpayment/internal/config"
	"b2bpayment/internal/db"
	"b2bpayment/internal/gateway"
	"b2bpayment/internal/notify"
	"b2bpayment/internal/store"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	st := store.New(pool)

	verifier, err := gateway.LoadVerifier(cfg.Gateway.PublicKeyPath)
	if err != nil {
		logger.Fatal("load gateway public key failed", zap.Error(err))
	}

	processor := &notify.Processor{
		Notifications: st,
		Payments:      st,
		Logs:          st,
		Verifier:      verifier,
		MaxAttempts:   cfg.Notify.MaxAttempts,
		CallTimeout:   time.Duration(cfg.Notify.ProcessTimeoutSeconds) * time.Second,
		Logger:        logger,
	}

	sweeper := &notify.Sweeper{
		Notifications: st,
		Processor:     processor,
		Interval:      time.Duration(cfg.Notify.SweepIntervalSeconds) * time.Second,
		MaxAttempts:   cfg.Notify.MaxAttempts,
		Logger:        logger,
	}

	logger.Info("sweeper started",
		zap.Int64("interval_seconds", cfg.Notify.SweepIntervalSeconds),
		zap.Int("max_attempts", cfg.Notify.MaxAttempts))
	sweeper.Run(ctx)
}
