// Package app wires configuration, storage, the model client and the HTTP
// router into one process.
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thehanda/countcam-app/pkg/archive"
	"github.com/thehanda/countcam-app/pkg/auth"
	"github.com/thehanda/countcam-app/pkg/cachedstats"
	"github.com/thehanda/countcam-app/pkg/config"
	"github.com/thehanda/countcam-app/pkg/counter"
	"github.com/thehanda/countcam-app/pkg/database"
	"github.com/thehanda/countcam-app/pkg/handlers"
	"github.com/thehanda/countcam-app/pkg/history"
	"github.com/thehanda/countcam-app/pkg/jobs"
	"github.com/thehanda/countcam-app/pkg/server"
	"github.com/thehanda/countcam-app/pkg/services/ingest"
	"github.com/thehanda/countcam-app/pkg/services/spool"
	"github.com/thehanda/countcam-app/pkg/worker"
)

// App holds all application dependencies.
type App struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *database.DB
	history *history.Service
	relay   *history.RedisRelay
	router  *gin.Engine

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New initializes the application: database → history → model → routes,
// then starts the background loops.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	secret, err := base64.StdEncoding.DecodeString(cfg.AppKey)
	if err != nil {
		return nil, fmt.Errorf("decode APP_KEY: %w", err)
	}

	db, err := database.Open(cfg.DatabasePath(), log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a := &App{cfg: cfg, log: log, db: db}
	ok := false
	defer func() {
		if !ok {
			a.closeStores(context.Background())
		}
	}()

	if err := db.EnsureAdmin(cfg.AdminPassword); err != nil {
		return nil, fmt.Errorf("admin user: %w", err)
	}

	repo, err := openRepository(ctx, cfg, db)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}
	a.history = history.NewService(repo, log)
	log.Info("history store ready", zap.String("driver", cfg.StoreDriver))

	if cfg.RedisURL != "" {
		rdb, err := history.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.relay = history.NewRedisRelay(rdb, cfg.ProjectID, a.history, log)
		a.history.SetAnnouncer(a.relay)
	}

	model, err := counter.NewOpenAI(counter.Options{
		APIKey:  cfg.ModelAPIKey,
		BaseURL: cfg.ModelBaseURL,
		Model:   cfg.ModelName,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("model client: %w", err)
	}

	queue := jobs.NewQueue(db.SQL())
	var archiver worker.Archiver
	opts := ingest.Options{MaxBytes: cfg.MaxUploadBytes(), Location: loc}
	if cfg.ArchiveEnabled() {
		uploader, err := archive.NewUploader(archive.Options{
			Bucket:    cfg.ArchiveBucket,
			Region:    cfg.ArchiveRegion,
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		archiver = uploader
		opts.SpoolDir = cfg.SpoolDir()
		opts.Queue = queue
	}
	pipeline := ingest.New(model, a.history, opts, log)

	summary := cachedstats.New(a.history, queue, cfg.DataDir, log)

	h := handlers.New(handlers.Deps{
		Ingest:   pipeline,
		History:  a.history,
		Users:    db,
		Summary:  summary,
		Health:   db,
		Location: loc,
		Log:      log,
	})
	authenticator := auth.New(secret, db, log)
	a.router = server.SetupRouter(h, authenticator, server.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout(),
		Log:            log,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	summary.RunUpdater(runCtx)
	a.goRun(func() { worker.New(queue, archiver, log).Start(runCtx) })
	if cfg.ArchiveEnabled() && cfg.SpoolRetention() > 0 {
		janitor := spool.NewJanitor(cfg.SpoolDir(), cfg.SpoolRetention(), log)
		a.goRun(func() { janitor.Start(runCtx) })
	}
	if a.relay != nil {
		a.goRun(func() { a.relay.Run(runCtx) })
	}

	ok = true
	return a, nil
}

func openRepository(ctx context.Context, cfg *config.Config, db *database.DB) (history.Repository, error) {
	switch cfg.StoreDriver {
	case "mongo":
		return history.NewMongoRepository(ctx, cfg.MongoURI, cfg.ProjectID)
	case "postgres":
		return history.NewPostgresRepository(ctx, cfg.PostgresURL)
	default:
		return history.NewSQLiteRepository(db.SQL()), nil
	}
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops the background loops and closes every client.
func (a *App) Shutdown(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("background workers did not stop in time")
	}
	a.closeStores(ctx)
}

func (a *App) closeStores(ctx context.Context) {
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.log.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.history != nil {
		if err := a.history.Close(ctx); err != nil {
			a.log.Warn("failed to close history store", zap.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("failed to close database", zap.Error(err))
	}
}
