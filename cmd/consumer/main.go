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

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-notify/internal/app"
	"github.com/example/ride-notify/internal/config"
	"github.com/example/ride-notify/internal/ingest"
	"github.com/example/ride-notify/internal/logging"
)

// source consumes change envelopes until ctx is cancelled.
type source interface {
	Run(ctx context.Context) error
}

func main() {
	var envFile string
	flag.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flag.Parse()

	if err := config.LoadDotEnv(envFile); err != nil {
		slog.Warn("dotenv", "error", err)
	}
	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFile).With("component", "consumer", "source", cfg.Source)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.ConsumerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Pushes from the consumer have no in-app sessions to reach.
	rt, err := app.Build(ctx, cfg.EngineConfig, nil, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	metrics := &http.Server{Addr: cfg.MetricsAddr, Handler: healthRouter(rt), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metrics.Shutdown(shutdownCtx)
	}()

	var src source
	switch cfg.Source {
	case config.SourceAMQP:
		src = &ingest.AMQPSource{
			URL:      cfg.AMQPURL,
			Queue:    cfg.AMQPQueue,
			Prefetch: cfg.AMQPPrefetch,
			Handle:   rt.Engine.HandleEnvelope,
			Logger:   logger,
		}
	default:
		r := ingest.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup)
		defer r.Close()
		src = &ingest.KafkaSource{
			Reader:     r,
			Handle:     rt.Engine.HandleEnvelope,
			Logger:     logger,
			MinBackoff: time.Second,
			MaxBackoff: 30 * time.Second,
		}
		logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)
	}
	return src.Run(ctx)
}

func healthRouter(rt *app.Runtime) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.HandleFunc("/ready", func(w http.ResponseWriter, req *http.Request) {
		for name, p := range rt.Ready {
			if err := p.Ping(req.Context()); err != nil {
				http.Error(w, name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return r
}
