package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/costpilot/internal/api"
	"github.com/dvloznov/costpilot/internal/app"
	"github.com/dvloznov/costpilot/internal/config"
	"github.com/dvloznov/costpilot/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("COSTPILOT_CONFIG"), "Path to YAML config file (or set COSTPILOT_CONFIG)")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	bootLog := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	log, err := logger.NewWithConfig(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Invalid logging configuration")
	}

	ctx := context.Background()

	svc, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	if err := svc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start service")
	}

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      api.NewRouter(svc, log),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := svc.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping service")
	}

	log.Info().Msg("Server exited")
}
