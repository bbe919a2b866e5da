package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/awsl-project/clinicpulse/internal/config"
	"github.com/awsl-project/clinicpulse/internal/handler"
	"github.com/awsl-project/clinicpulse/internal/ingest"
	"github.com/awsl-project/clinicpulse/internal/metrics"
	"github.com/awsl-project/clinicpulse/internal/query"
	"github.com/awsl-project/clinicpulse/internal/repository/cached"
	"github.com/awsl-project/clinicpulse/internal/snapshot"
	"github.com/awsl-project/clinicpulse/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	addr := flag.String("addr", "", "Server address (overrides config and CLINICPULSE_ADDR)")
	configPath := flag.String("config", "", "Path to a YAML config file")
	staticDir := flag.String("static", "", "Directory holding the built dashboard")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		os.Exit(0)
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	// CLI flag > env > config file > default
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *staticDir != "" {
		cfg.StaticDir = *staticDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	var primary ingest.Source
	if cfg.Source.ResolvedKind() != config.KindNone {
		exec, err := query.NewExecutor(ctx, cfg.Source.QueryOptions(), logger)
		if err != nil {
			// Startup continues on the snapshot alone.
			logger.Error("failed to create query executor", zap.Error(err))
		} else {
			if c, ok := exec.(query.Closer); ok {
				defer c.Close()
			}
			primary = ingest.NewRemoteSource(exec, cfg.Queries, cfg.TopProcedures, logger)
		}
	}
	fallback := ingest.NewSnapshotSource(snapshot.NewReader(), cfg.Snapshot.Claims, cfg.Snapshot.Ledger, cfg.TopProcedures, logger)

	orchestrator := ingest.NewOrchestrator(primary, fallback, logger)
	repo := cached.NewDatasetRepository(orchestrator)
	if err := repo.Load(ctx); err != nil {
		logger.Error("initial ingestion failed, serving an empty dataset until reload", zap.Error(err))
	}

	var static http.Handler
	if cfg.StaticDir != "" {
		static = handler.NewStaticHandler(os.DirFS(cfg.StaticDir))
	}
	api := handler.NewAPIHandler(repo, metrics.NewProfitabilitySelector(), logger)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.NewRouter(api, static, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting clinicpulse", append(version.Fields(),
		zap.String("addr", cfg.Addr),
		zap.String("claims", cfg.Snapshot.Claims),
		zap.String("ledger", cfg.Snapshot.Ledger),
		zap.Bool("primary", primary != nil))...)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed, forcing close", zap.Error(err))
		server.Close()
	}
	logger.Info("server stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
