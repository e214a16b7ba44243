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
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PratikDhanave/event-analytics-sdk/internal/config"
	"github.com/PratikDhanave/event-analytics-sdk/internal/httpserver"
	"github.com/PratikDhanave/event-analytics-sdk/internal/logging"
	"github.com/PratikDhanave/event-analytics-sdk/internal/store"
)

const shutdownTimeout = 10 * time.Second

// main boots the dev collector: config → DB → schema → HTTP server.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "collector:", err)
		os.Exit(1)
	}
}

func run() error {
	// Load runtime config from environment (DB_DRIVER, DB_URL, API_KEYS, ADDR).
	cfg, err := config.LoadCollector()
	if err != nil {
		return err
	}

	flags := pflag.NewFlagSet("collector", pflag.ContinueOnError)
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flags.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "event sink: postgres or sqlite")
	flags.StringVar(&cfg.DBURL, "db-url", cfg.DBURL, "postgres URL or sqlite file path")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the sink and make sure its schema exists.
	sink, err := store.Open(ctx, cfg.DBDriver, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
	}
	defer sink.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.NewRouter(cfg.APIKeys, sink, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("collector started", zap.String("addr", cfg.Addr), zap.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("collector shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
