// Package app initializes and runs the main application service.
// It configures logging, storage, authentication, the background news
// refresher and routing, and handles graceful shutdown.
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/newswatcher/internal/auth"
	"github.com/patric-chuzhbe/newswatcher/internal/config"
	"github.com/patric-chuzhbe/newswatcher/internal/db/jsondb"
	"github.com/patric-chuzhbe/newswatcher/internal/db/memorystorage"
	"github.com/patric-chuzhbe/newswatcher/internal/db/postgresdb"
	"github.com/patric-chuzhbe/newswatcher/internal/db/storage"
	"github.com/patric-chuzhbe/newswatcher/internal/ipchecker"
	"github.com/patric-chuzhbe/newswatcher/internal/logger"
	"github.com/patric-chuzhbe/newswatcher/internal/models"
	"github.com/patric-chuzhbe/newswatcher/internal/newsrefresher"
	"github.com/patric-chuzhbe/newswatcher/internal/router"
	"github.com/patric-chuzhbe/newswatcher/internal/service"
)

// App encapsulates the configuration, HTTP handler, storage backend,
// and the background news refresher needed to run the service.
type App struct {
	cfg           *config.Config
	db            storage.Storage
	refresher     *newsrefresher.NewsRefresher
	stopRefresher context.CancelFunc
	httpHandler   http.Handler
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage
// - setting up the background news refresher
// - setting up the router and middleware
func New() (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New()
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	tokenSigningSecretKey, err := base64.URLEncoding.DecodeString(app.cfg.TokenSigningSecretKey)
	if err != nil {
		return nil, err
	}

	theAuth := auth.New(
		app.cfg.AuthCookieName,
		tokenSigningSecretKey,
		app.cfg.TokenTTL,
	)

	app.refresher = newsrefresher.New(
		app.db,
		gofeed.NewParser(),
		app.cfg.FeedURLs,
		app.cfg.RefreshSchedule,
		app.cfg.ChannelCapacity,
		app.cfg.DelayBetweenQueueFetches,
	)
	refresherRunCtx, stopRefresher := context.WithCancel(context.Background())
	app.stopRefresher = stopRefresher

	if err := app.refresher.Run(refresherRunCtx); err != nil {
		stopRefresher()
		return nil, err
	}
	app.refresher.ListenErrors(func(err error) {
		logger.Log.Debugln("Error passed from the `app.refresher.ListenErrors()`:", zap.Error(err))
	})

	theIPChecker, err := ipchecker.New(app.cfg.TrustedSubnet)
	if err != nil {
		return nil, err
	}

	app.httpHandler, err = router.New(
		service.New(app.db, app.refresher),
		theAuth,
		theIPChecker,
		app.cfg.Environment,
	)
	if err != nil {
		return nil, err
	}

	return app, nil
}

// Run starts the HTTP server with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:    a.cfg.RunAddr,
		Handler: a.httpHandler,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Saving database and exiting...")
		a.stopRefresher()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return a.db.Close()

	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.DBFileName != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage.Storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			cfg.MigrationsDir,
		)

	case models.StorageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	return memorystorage.New()
}
