package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/AaronLay10/AdventureEngine/internal/api"
	"github.com/AaronLay10/AdventureEngine/internal/attempt"
	"github.com/AaronLay10/AdventureEngine/internal/config"
	"github.com/AaronLay10/AdventureEngine/internal/events"
	"github.com/AaronLay10/AdventureEngine/internal/judge"
	"github.com/AaronLay10/AdventureEngine/internal/metrics"
	"github.com/AaronLay10/AdventureEngine/internal/mqtt"
	"github.com/AaronLay10/AdventureEngine/internal/storage/memory"
	"github.com/AaronLay10/AdventureEngine/internal/storage/postgres"
	"github.com/AaronLay10/AdventureEngine/internal/version"
)

// backend is what the service needs from a store.
type backend interface {
	attempt.AdventureStore
	attempt.Store
	Ping(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", os.Getenv("ADVENTURE_CONFIG"), "path to adventure.yaml")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load %s: %v", *configPath, err)
		}
		cfg = loaded
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	host, _ := os.Hostname()
	logger = logger.With(zap.String("service", cfg.Service.Name))

	policy, err := cfg.DefaultEdgePolicy()
	if err != nil {
		return err
	}

	if !cfg.Development() {
		if _, err := config.RequireSecret(api.SecretEnv); err != nil {
			return fmt.Errorf("authentication is required outside development: %w", err)
		}
	}
	auth, err := api.AuthenticatorFromEnv()
	if err != nil {
		return err
	}
	if !auth.Enabled() {
		logger.Warn("authentication disabled, callers are identified by X-User-ID")
	}

	tlsCfg, err := api.TLSFromEnv().Load()
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	store, history, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	checks := []api.ReadyCheck{{Name: "store", Check: store.Ping}}

	svc := attempt.NewService(store, store, judge.New(judgeSettings(cfg), logger.Named("judge")))
	svc.SetPolicy(policy)
	svc.SetRecorder(collector)

	if cfg.MQTT.Enabled {
		client := mqtt.NewClient(cfg.ClientID(), logger.Named("mqtt"))
		if err := client.Connect(); err != nil {
			logger.Warn("mqtt unavailable, progress will be dropped until it connects",
				zap.String("broker", mqtt.BrokerURL()), zap.Error(err))
		}
		defer client.Disconnect()

		svc.SetPublisher(mqtt.NewProgressPublisher(client, cfg.TopicPrefix()))
		collector.RegisterStatus("mqtt_connected", "Whether the MQTT broker connection is up", client.IsConnected)
		checks = append(checks, api.ReadyCheck{Name: "mqtt", Check: func(context.Context) error {
			if !client.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}})
	}

	events.Emit("info", "system.startup", "adventure engine starting", map[string]interface{}{
		"service":  cfg.Service.Name,
		"version":  version.Version,
		"hostname": host,
		"pid":      os.Getpid(),
		"storage":  cfg.Storage.Driver,
	})

	server := api.NewServer(svc, api.Options{
		Name:    cfg.Service.Name,
		Auth:    auth,
		Metrics: collector,
		Logger:  logger.Named("http"),
		Checks:  checks,
		History: history,
	})
	err = server.Serve(ctx, cfg.Port(), tlsCfg)

	events.Emit("info", "system.shutdown", "adventure engine stopping", map[string]interface{}{
		"service": cfg.Service.Name,
	})
	return err
}

// openStore connects to Postgres when configured, falling back to the
// in-memory store if it cannot be reached.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (backend, api.EventLog, func()) {
	if cfg.Storage.Driver == "postgres" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		client, err := postgres.New(connectCtx, cfg.Service.Name)
		if err == nil {
			events.SetSink(client)
			logger.Info("postgres connected")
			return client, client, func() {
				events.SetSink(nil)
				client.Close()
			}
		}
		logger.Warn("postgres unavailable, using in-memory store", zap.Error(err))
		events.Emit("error", "system.error", "postgres unavailable, using in-memory store", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return memory.New(), nil, func() {}
}

func judgeSettings(cfg *config.Config) judge.Settings {
	s := judge.DefaultSettings()
	if cfg.Judge.URL != "" {
		s.URL = cfg.Judge.URL
	}
	s.Timeout = cfg.JudgeTimeout()
	if cfg.Judge.FailureThreshold > 0 {
		s.FailureThreshold = cfg.Judge.FailureThreshold
	}
	if cfg.Judge.MinRequests > 0 {
		s.MinRequests = cfg.Judge.MinRequests
	}
	if cfg.Judge.OpenTimeout > 0 {
		s.OpenTimeout = cfg.Judge.OpenTimeout
	}
	return s
}
