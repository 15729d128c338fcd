// Package server initializes and runs the sync server: it opens the
// database, applies migrations, wires the engine services and starts the
// HTTP endpoint with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/theworldofobi/mini-dropbox/internal/logging"
	"github.com/theworldofobi/mini-dropbox/internal/server/blob"
	"github.com/theworldofobi/mini-dropbox/internal/server/config"
	"github.com/theworldofobi/mini-dropbox/internal/server/httpapi"
	"github.com/theworldofobi/mini-dropbox/internal/server/keylock"
	"github.com/theworldofobi/mini-dropbox/internal/server/repositories/repomanager"
	"github.com/theworldofobi/mini-dropbox/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	coordinator *services.Coordinator
	shares      *services.ShareService
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store := blob.NewS3Store(blob.Config{
		RootUser:     cfg.S3RootUser,
		RootPassword: cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})

	ledger := services.NewLedger(db, repos)
	resolver := services.NewChangeSetResolver(db, repos)
	conflicts := services.NewConflictService(db, repos, ledger, keylock.New())
	shares := services.NewShareService(db, repos, store, cfg.ShareTokenTTLDays)
	coordinator := services.NewCoordinator(db, repos, ledger, resolver, conflicts, shares, store, logger)

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		coordinator: coordinator,
		shares:      shares,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	mux := httpapi.NewMux(httpapi.MuxConfig{
		Sync:      app.coordinator,
		Shares:    app.shares,
		SecretKey: []byte(app.config.SecretKey),
		Logger:    app.logger,
	})

	s := httpapi.NewServer(app.config.EndpointAddrHTTP, mux, app.logger, app.config.ShutdownTimeout)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
