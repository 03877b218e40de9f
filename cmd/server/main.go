package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ivr/gateway/internal/api"
	"ivr/gateway/internal/config"
	"ivr/gateway/internal/gateway"
	"ivr/gateway/internal/registry"
	"ivr/gateway/internal/twilio"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg)

	log.Info().
		Str("app_name", cfg.App.Name).
		Str("version", cfg.App.Version).
		Str("environment", cfg.Environment).
		Str("host", cfg.Server.Host).
		Str("port", cfg.Server.Port).
		Str("log_level", cfg.Server.LogLevel).
		Str("log_format", cfg.Server.LogFormat).
		Msg("application starting")

	if cfg.Twilio.AuthToken == "" && !cfg.IsDevelopment() {
		log.Fatal().Msg("TWILIO_AUTH_TOKEN is required outside development")
	}

	reg := registry.New()
	gate := twilio.NewGate(
		cfg.Twilio.AuthToken,
		twilio.SignatureSource(cfg.Twilio.SignatureSource),
		cfg.IsDevelopment(),
	)
	gw := gateway.NewServer(gate, reg)

	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(api.NewHandlers(cfg, reg)))
	mux.HandleFunc("/ws/media-stream", gw.HandleMediaStream)
	mux.HandleFunc("/ws/echo", gw.HandleEcho)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM: flag first so new connects
	// fail, then close the live transports, then drain HTTP.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Info().Msg("shutdown signal received")

		reg.BeginShutdown()
		if active := reg.ActiveCount(); active > 0 {
			log.Info().Int("active_sessions", active).Msg("closing active connections")
			closed := reg.CloseAll()
			log.Info().Int("closed_count", closed).Msg("connections closed")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	log.Info().Str("addr", addr).Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("application shut down")
}

func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Server.LogFormat == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		log.Logger = log.Output(os.Stdout)
	}
}
