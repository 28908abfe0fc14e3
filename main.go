package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"purchase-confirmation-service/internal/config"
	"purchase-confirmation-service/internal/fulfillment"
	"purchase-confirmation-service/internal/ledger"
	"purchase-confirmation-service/internal/repository"
	"purchase-confirmation-service/internal/service"
	"purchase-confirmation-service/internal/watcher"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
	log.Info("Starting purchase confirmation service...")

	if err := godotenv.Load(); err != nil {
		log.Warn("Could not load .env file.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledgerClient := ledger.NewClient(cfg.RPCEndpoint())
	host := fulfillment.NewGraphQLClient(cfg.FulfillmentEndpoint)
	seen := repository.NewInMemorySignatureStore(cfg.SeenSignatureTTL)
	pipeline := service.NewWatcherService(cfg.MerchantWallet, cfg.TolerancePct, ledgerClient, host, seen)

	watch := watcher.New(watcher.Config{
		WSURL:             cfg.WSEndpoint(),
		Merchant:          cfg.MerchantWallet,
		HeartbeatInterval: cfg.HeartbeatInterval,
		PingTimeout:       cfg.PingTimeout,
		ReconnectDelay:    cfg.ReconnectDelay,
		MaxInflight:       cfg.MaxInflightHandlers,
	}, pipeline)
	go watch.Run(ctx)

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("Health and metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Health and metrics server stopped")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
}
