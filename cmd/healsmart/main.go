package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jo-hoe/healsmart/internal/analysis"
	appcfg "github.com/jo-hoe/healsmart/internal/config"
	"github.com/jo-hoe/healsmart/internal/llm"
	"github.com/jo-hoe/healsmart/internal/llm/provider"
	"github.com/jo-hoe/healsmart/internal/logging"
	"github.com/jo-hoe/healsmart/internal/metrics"
	"github.com/jo-hoe/healsmart/internal/server"
	"github.com/jo-hoe/healsmart/internal/session"
)

func main() {
	// Bootstrap logger until the configured one exists
	logger := logging.New(os.Stdout, "info", "text")

	// Load config
	cfg, err := appcfg.Load("")
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	logger = logging.New(os.Stdout, cfg.Server.LogLevel, cfg.Server.LogFormat)
	logger.Info("configuration loaded", "provider", cfg.LLM.Provider, "session_store", cfg.Session.Store)

	metrics.Register()

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// LLM client
	client, err := provider.Default().New(rootCtx, cfg.LLM, logger)
	if err != nil {
		logger.Error("init llm provider", "provider", cfg.LLM.Provider, "err", err)
		os.Exit(1)
	}
	defer func() { _ = llm.Close(client) }()

	// Session store
	store, err := session.New(rootCtx, cfg.Session)
	if err != nil {
		logger.Error("open session store", "store", cfg.Session.Store, "err", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	// HTTP server
	svc := &server.Service{
		Log:      logger,
		Cfg:      cfg,
		Analyzer: analysis.New(client, logger),
		Sessions: store,
	}
	httpSrv := server.NewHTTPServer(svc)

	// Run server in background
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "address", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "err", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	logger.Info("server stopped")
}
