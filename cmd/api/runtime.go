package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"controlroom/internal/app"
	"controlroom/internal/artifacts"
	"controlroom/internal/config"
	"controlroom/internal/entities"
	"controlroom/internal/events"
	"controlroom/internal/export"
	"controlroom/internal/links"
	"controlroom/internal/logger"
	"controlroom/internal/notify"
	"controlroom/internal/search"
	"controlroom/internal/store"
	"controlroom/internal/telemetry"
	"controlroom/internal/workflow"
)

// runtime is the wired service graph shared by every command.
type runtime struct {
	cfg       config.Config
	log       *logger.Logger
	backend   store.Backend
	store     *entities.Store
	search    *search.Service
	telemetry *telemetry.Telemetry
	service   *app.Service

	closers []func()
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func openRuntime(ctx context.Context, cfg config.Config, log *logger.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	var (
		db        *sql.DB
		busClient *redis.Client
	)
	switch cfg.Storage {
	case "postgres":
		var err error
		db, err = store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = db.Close() })
		if err := store.ApplyMigrations(ctx, db, store.Migrations, "migrations"); err != nil {
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		rt.backend = store.NewPostgresBackend(db)
		if strings.TrimSpace(cfg.RedisURL) != "" {
			opts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return nil, fmt.Errorf("parse redis url: %w", err)
			}
			busClient = redis.NewClient(opts)
			rt.closers = append(rt.closers, func() { _ = busClient.Close() })
		}
	case "redis":
		backend, err := store.NewRedisBackend(cfg.RedisURL, cfg.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = backend.Close() })
		rt.backend = backend
		busClient = backend.Client()
	default:
		rt.backend = store.NewMemoryBackend()
	}

	var bus events.Bus
	if busClient != nil {
		redisBus := events.NewRedisBus(busClient, cfg.ChangeChannel, log)
		if err := redisBus.Start(ctx); err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = redisBus.Close() })
		bus = redisBus
	} else {
		bus = events.NewLocalBus(log)
	}

	rt.store = entities.Open(ctx, rt.backend, bus, log)
	rt.closers = append(rt.closers, rt.store.Close)

	var blobs artifacts.Store = artifacts.NewMemoryStore()
	if strings.TrimSpace(cfg.Artifacts.Endpoint) != "" {
		minioStore, err := artifacts.NewMinioStore(ctx, artifacts.MinioConfig{
			Endpoint:  cfg.Artifacts.Endpoint,
			AccessKey: cfg.Artifacts.AccessKey,
			SecretKey: cfg.Artifacts.SecretKey,
			Bucket:    cfg.Artifacts.Bucket,
			UseSSL:    cfg.Artifacts.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("artifact store: %w", err)
		}
		blobs = minioStore
	} else {
		log.Warn().Msg("no artifact endpoint configured, evidence files are kept in memory")
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
	}
	var pgfts *search.PgFTS
	if db != nil {
		pgfts = search.NewPgFTS(db)
	}
	rt.search = search.NewService(meili, pgfts, search.NewLocal(rt.store), log)
	rt.closers = append(rt.closers, rt.search.Close)
	rt.search.Reindex(rt.store.Controls(), rt.store.Evidence())

	rt.telemetry = telemetry.New(rt.store)

	mailer := notify.NewService(notify.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	}, log)
	if !mailer.IsConfigured() {
		log.Info().Msg("smtp not configured, task e-mails disabled")
	}

	engine := workflow.NewEngine(rt.store, log,
		workflow.WithNotifier(mailer),
		workflow.WithRecorder(rt.telemetry),
	)

	rt.service = app.New(cfg, app.Dependencies{
		Store:     rt.store,
		Backend:   rt.backend,
		Workflow:  engine,
		Artifacts: blobs,
		Search:    rt.search,
		Export:    export.NewService(rt.store, log),
		Links:     links.NewSigner([]byte(cfg.LinkSecret), cfg.LinkTTL),
		Logger:    log,
	})

	ok = true
	return rt, nil
}
