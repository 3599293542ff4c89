package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"b2bpayment/internal/config"
	"b2bpayment/internal/db"
	"b2bpayment/internal/gateway"
	internalhttp "b2bpayment/internal/http"
	"b2bpayment/internal/notify"
	"b2bpayment/internal/services"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	st := store.New(pool)

	signer, err := gateway.LoadSigner(cfg.Gateway.PrivateKeyPath)
	if err != nil {
		logger.Fatal("load signing key failed", zap.Error(err))
	}
	verifier, err := gateway.LoadVerifier(cfg.Gateway.PublicKeyPath)
	if err != nil {
		logger.Fatal("load gateway public key failed", zap.Error(err))
	}

	client := gateway.NewClient(cfg.Gateway.APIURL, cfg.Gateway.AppID, cfg.Gateway.MerchantID, signer)

	paymentSvc := &services.PaymentService{
		Store:     st,
		Gateway:   client,
		AppID:     cfg.Gateway.AppID,
		NotifyURL: cfg.Gateway.NotifyURL,
		Logger:    logger,
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

	intake := notify.NewIntake(st, processor, cfg.Notify.QueueSize, logger)
	intake.Start(ctx, cfg.Notify.Workers)

	h := internalhttp.NewHandler(paymentSvc, intake, st, cfg.Notify.MaxAttempts, logger)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		logger.Info("api listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)

	// Drain queued notifications before the pool goes away.
	intake.Stop()
}
