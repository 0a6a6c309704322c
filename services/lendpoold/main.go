package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lendfi/native/lending"
	"lendfi/native/venue"
	"lendfi/rpc"
	"lendfi/rpc/modules"
	"lendfi/services/lendpoold/config"
	"lendfi/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to lendpoold config")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "lendpoold")
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	params, err := lending.LoadConfig(cfg.LendingParamsPath)
	if err != nil {
		logger.Error("load lending params", "error", err)
		os.Exit(1)
	}
	logger.Info("lending parameters loaded",
		"baseRateBps", params.BaseRateBps,
		"kinkBps", params.KinkUtilisationBps,
		"riskFactorIdx", params.RiskFactorIndex,
	)

	var store *storage.Store
	if cfg.DataDir == "" {
		logger.Warn("no data_dir configured, running on an in-memory store")
		store = storage.NewMemStore()
	} else {
		store, err = storage.OpenStore(cfg.DataDir)
		if err != nil {
			logger.Error("open store", "error", err, "path", cfg.DataDir)
			os.Exit(1)
		}
	}
	defer store.Close()

	engine := lending.NewEngine()
	engine.SetState(store)
	engine.SetLedger(store)
	engine.SetVenue(venue.NewMemory())

	module := modules.NewLendingModule(engine)
	module.SetDefaultModel(params.Model())
	server := rpc.NewServer(module, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 2)
	go func() {
		logger.Info("lendpoold listening", "addr", cfg.ListenAddress)
		serverErr <- httpServer.ListenAndServe()
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", "addr", cfg.MetricsAddress)
			serverErr <- metricsServer.ListenAndServe()
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownGraceSeconds)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown http server", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown metrics server", "error", err)
		}
	}
}
