package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Vovarama1992/chatra-widget-engine/internal/ai"
	"github.com/Vovarama1992/chatra-widget-engine/internal/config"
	"github.com/Vovarama1992/chatra-widget-engine/internal/logging"
	"github.com/Vovarama1992/chatra-widget-engine/internal/realtime"
	"github.com/Vovarama1992/chatra-widget-engine/internal/widget"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(logging.Config{Env: cfg.Env, Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	metrics := widget.NewMetrics(reg)

	// --- Known users ---
	profiles := widget.NewMemoryProfiles()
	if cfg.Database.URL != "" {
		db, err := openDB(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error(ctx, "database unavailable", zap.Error(err))
			os.Exit(1)
		}
		defer db.Close()
		profiles = widget.NewProfileRepo(db)
	}

	// --- Widget wiring ---
	backend := widget.NewHTTPBackend(cfg.Backend.URL, cfg.Backend.Token, cfg.Backend.Timeout)
	opts := widget.Options{
		AgentID:  cfg.Agent.ID,
		Locale:   cfg.Agent.Locale,
		Backend:  backend,
		History:  backend,
		Profiles: profiles,
		Player: widget.PlayerConfig{
			MinDelay:     cfg.Player.MinDelay,
			MaxDelay:     cfg.Player.MaxDelay,
			RatingDelay:  cfg.Player.RatingDelay,
			NewMarkerTTL: cfg.Player.NewMarkerTTL,
		},
		Logger:  logger,
		Metrics: metrics,
	}
	if cfg.Storage.URL != "" {
		opts.Storage = widget.NewHTTPStorage(cfg.Storage.URL, cfg.Storage.Token, cfg.Storage.Timeout)
	}
	if cfg.OpenAI.APIKey != "" {
		opts.Greeter = ai.NewGreeter(ai.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, logger))
	}

	hub := widget.NewHub(opts)
	defer hub.Close()

	// --- Realtime ---
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(time.Second),
		)
		if err != nil {
			logger.Error(ctx, "nats connect failed", zap.String("url", cfg.NATS.URL), zap.Error(err))
			os.Exit(1)
		}
		defer nc.Close()

		sub := realtime.NewSubscriber(nc, cfg.Agent.ID, hub, logger)
		if err := sub.Start(); err != nil {
			logger.Error(ctx, "realtime subscribe failed", zap.Error(err))
			os.Exit(1)
		}
		defer sub.Close()
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	handler := widget.NewHandler(hub, logger)
	handler.LimitSessionCreation(cfg.Server.SessionRate, cfg.Server.SessionBurst)
	widget.RegisterRoutes(r, handler)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "listening", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Env))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(ctx, "server error", zap.Error(err))
	}
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	if err := widget.EnsureSchema(pingCtx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
