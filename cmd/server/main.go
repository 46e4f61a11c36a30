package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/agenthands/symbiosis/internal/config"
	"github.com/agenthands/symbiosis/internal/core"
	"github.com/agenthands/symbiosis/internal/driver"
	"github.com/agenthands/symbiosis/internal/llm"
	"github.com/agenthands/symbiosis/internal/logger"
	"github.com/agenthands/symbiosis/internal/metrics"
	"github.com/agenthands/symbiosis/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Resolve("")
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := driver.NewNeo4jDriver(ctx, cfg.Neo4j, log)
	if err != nil {
		return err
	}

	// The dashboard still serves matches and text search without a model.
	var llmClient llm.LLMClient
	var embedder llm.EmbedderClient
	if cfg.LLM.Provider != "" {
		llmClient, embedder, err = llm.NewClient(ctx, cfg.LLM, log.Named("llm"))
		if err != nil {
			log.Warn("language model disabled", zap.Error(err))
			llmClient, embedder = nil, nil
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewDiscovery(reg)

	s := core.NewSymbiosis(d, llmClient, embedder, cfg, log, m)
	defer func() { _ = s.Close(context.Background()) }()

	if err := s.BuildIndices(ctx); err != nil {
		log.Warn("schema bootstrap failed", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.NewServer(s, reg, log.Named("http")).SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("port", cfg.Server.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
