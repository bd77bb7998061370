// Package server wires configuration, storage, media, services and the HTTP
// layer together and runs them until the process is told to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Cybrite/your-tube/internal/filex"
	"github.com/Cybrite/your-tube/internal/logging"
	"github.com/Cybrite/your-tube/internal/server/config"
	"github.com/Cybrite/your-tube/internal/server/httpserver"
	"github.com/Cybrite/your-tube/internal/server/media"
	"github.com/Cybrite/your-tube/internal/server/ratelimit"
	"github.com/Cybrite/your-tube/internal/server/repositories/repomanager"
	"github.com/Cybrite/your-tube/internal/server/services"
)

var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}

	newRepositoryManager = repomanager.NewPostgresRepositoryManager

	newBlobStore = func(ctx context.Context, c *config.Config) (services.BlobStore, error) {
		return media.NewS3Store(ctx, c)
	}
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	server  *httpserver.Server
	janitor *services.MediaJanitor
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(c.LogLevel, c.LogFormat, os.Stdout)

	uploadDir, err := filex.EnsureDir(c.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app, err := build(ctx, c, logger, db, uploadDir)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func build(ctx context.Context, c *config.Config, logger logging.Logger, db *sql.DB, uploadDir string) (*App, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}

	rm := newRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	store, err := newBlobStore(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("media store: %w", err)
	}

	tokens := services.NewTokenService(db, rm, c, logger.With("module", "tokens"))
	mediaSvc := services.NewMediaService(db, rm, store, c, logger.With("module", "media"))
	sessions := services.NewSessionService(db, rm, tokens, mediaSvc, c, logger.With("module", "sessions"))
	graph := services.NewGraphService(db, rm, c, logger.With("module", "graph"))
	janitor := services.NewMediaJanitor(db, rm, store, logger.With("module", "media_janitor"))

	limiter := ratelimit.New(ratelimit.Config{
		Limit:         c.LoginRateLimit,
		Window:        c.LoginRateWindow,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisTimeout:  c.RequestTimeout,
	})

	server := httpserver.NewServer(c, logger, &httpserver.Deps{
		Sessions:       sessions,
		Media:          mediaSvc,
		Graph:          graph,
		Tokens:         tokens,
		Limiter:        limiter,
		UploadDir:      uploadDir,
		MaxUploadBytes: c.MaxUploadBytes,
		Logger:         logger,
	})

	return &App{config: c, logger: logger, db: db, server: server, janitor: janitor}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	stopJanitor := services.StartMediaJanitor(ctx, app.janitor, app.config.MediaJanitorInterval)

	err := app.server.Run(ctx)

	stopJanitor()
	if cerr := app.db.Close(); cerr != nil {
		app.logger.Error(ctx, "db close failed", "error", cerr)
	}

	app.logger.Info(ctx, "App stopped")
	return err
}
