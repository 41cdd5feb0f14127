package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/inspectra/fieldbot/internal/assistant"
	"github.com/inspectra/fieldbot/internal/config"
	"github.com/inspectra/fieldbot/internal/dedup"
	"github.com/inspectra/fieldbot/internal/inspection"
	"github.com/inspectra/fieldbot/internal/logger"
	"github.com/inspectra/fieldbot/internal/media"
	"github.com/inspectra/fieldbot/internal/orchestrator"
	"github.com/inspectra/fieldbot/internal/phone"
	"github.com/inspectra/fieldbot/internal/server"
	"github.com/inspectra/fieldbot/internal/session"
	"github.com/inspectra/fieldbot/internal/storage"
	"github.com/inspectra/fieldbot/internal/tools"
	"github.com/inspectra/fieldbot/internal/whatsapp"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBPool,
			provideInspectionService,
			provideObjectStore,
			provideEngine,
			provideTracker,
			provideSeeder,
			provideSessionStore,
			provideLedger,
			provideDispatcher,
			provideMediaService,
			provideSender,
			provideNormalizer,
			provideOrchestrator,
			provideWebhookHandler,
			provideServer,
		),
		fx.Invoke(
			startDedupSweeper,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// provideDBPool opens Postgres when a host is configured. A nil pool
// selects the in-memory session store and dedup ledger.
func provideDBPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.Postgres.Host == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(context.Background(), cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideInspectionService(log *slog.Logger, cfg config.Config) inspection.Service {
	return inspection.NewClient(log, cfg.Inspection.BaseURL, cfg.Inspection.APIToken, 30*time.Second)
}

func provideObjectStore(log *slog.Logger, cfg config.Config) (storage.ObjectStore, error) {
	return storage.NewSpacesStore(log, cfg.Storage.Endpoint, cfg.Storage.Region,
		cfg.Storage.Bucket, cfg.Storage.AccessKey, cfg.Storage.SecretKey)
}

func provideEngine(log *slog.Logger, cfg config.Config) *assistant.Engine {
	return assistant.NewEngine(log, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
}

func provideTracker(log *slog.Logger, engine *assistant.Engine) *assistant.Tracker {
	return assistant.NewTracker(log, engine, 0, 0)
}

func provideSeeder(log *slog.Logger, engine *assistant.Engine, domain inspection.Service) *orchestrator.Seeder {
	return orchestrator.NewSeeder(log, engine, domain)
}

func provideSessionStore(log *slog.Logger, pool *pgxpool.Pool, seeder *orchestrator.Seeder) session.Store {
	if pool == nil {
		return session.NewMemoryStore(log, seeder)
	}
	return session.NewPostgresStore(log, pool, seeder)
}

func provideLedger(log *slog.Logger, pool *pgxpool.Pool) dedup.Ledger {
	if pool == nil {
		return dedup.NewMemoryLedger(log, dedup.Window)
	}
	return dedup.NewPostgresLedger(log, pool, dedup.Window)
}

func provideDispatcher(log *slog.Logger, domain inspection.Service, sessions session.Store, engine *assistant.Engine) *tools.Dispatcher {
	return tools.NewDispatcher(log, domain, sessions, engine)
}

func provideMediaService(log *slog.Logger, store storage.ObjectStore, domain inspection.Service, cfg config.Config) *media.Service {
	return media.NewService(log, store, domain, cfg.Storage.Namespace)
}

func provideSender(log *slog.Logger, cfg config.Config) *whatsapp.Client {
	return whatsapp.NewClient(log, cfg.WhatsApp.APIURL, cfg.WhatsApp.APIToken)
}

func provideNormalizer(cfg config.Config) *phone.Normalizer {
	return phone.NewNormalizer(cfg.WhatsApp.DefaultCountryCode)
}

func provideOrchestrator(log *slog.Logger, ledger dedup.Ledger, sessions session.Store,
	engine *assistant.Engine, tracker *assistant.Tracker, dispatcher *tools.Dispatcher,
	mediaService *media.Service, sender *whatsapp.Client, normalizer *phone.Normalizer,
	cfg config.Config) *orchestrator.Orchestrator {
	return orchestrator.New(log, ledger, sessions, engine, tracker, dispatcher, mediaService,
		sender, normalizer, time.Duration(cfg.WhatsApp.ReplyTimeoutSec)*time.Second)
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, orch *orchestrator.Orchestrator) *whatsapp.WebhookHandler {
	return whatsapp.NewWebhookHandler(log, cfg.WhatsApp.WebhookSecret, orch)
}

func provideServer(log *slog.Logger, cfg config.Config, webhook *whatsapp.WebhookHandler) *server.Server {
	return server.New(log, cfg.Server.Addr, webhook)
}

func startDedupSweeper(lc fx.Lifecycle, log *slog.Logger, ledger dedup.Ledger) {
	c := cron.New()
	_, err := c.AddFunc(dedup.SweepSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		ledger.Sweep(ctx, time.Now())
	})
	if err != nil {
		log.Error("sweep schedule invalid", slog.Any("error", err))
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { c.Start(); return nil },
		OnStop: func(ctx context.Context) error {
			select {
			case <-c.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server,
	orch *orchestrator.Orchestrator, shutdowner fx.Shutdowner, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			log.Info("server starting", slog.String("addr", cfg.Server.Addr))
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// stop accepting webhooks first, then let in-flight turns finish
			if err := srv.Stop(ctx); err != nil {
				log.Warn("server shutdown", slog.Any("error", err))
			}
			if err := orch.Drain(ctx); err != nil {
				log.Warn("in-flight turns abandoned at shutdown", slog.Any("error", err))
			}
			return nil
		},
	})
}
