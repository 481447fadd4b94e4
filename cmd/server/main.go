package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"gorm.io/gorm"

	"larder/internal/config"
	"larder/internal/db"
	"larder/internal/db/mock"
	"larder/internal/handlers"
	applog "larder/internal/log"
	"larder/internal/schema"
	"larder/internal/server"
	"larder/internal/storage"
	"larder/models"
)

type serverLifecycle interface {
	Start() error
	Stop() error
}

// options carry command line overrides of the environment configuration.
type options struct {
	addr     string
	logLevel string
	mock     bool
}

func (o options) apply(cfg *config.Config) {
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.mock {
		cfg.Database.UseMock = true
	}
}

var (
	loadConfigFunc      = config.Load
	setLogLevelFunc     = applog.SetLevel
	setLogFormatFunc    = applog.SetFormat
	newMockDatabaseFunc = mock.New
	configureDatabase   = db.Configure
	buildConstraints    = newConstraints
	newStorageFunc      = newStorage
	newServerFunc       = func(cfg server.Config) (serverLifecycle, error) {
		return server.New(cfg)
	}
	subscribeShutdownSig = func() (<-chan os.Signal, func()) {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		return ch, func() { signal.Stop(ch) }
	}
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		applog.Error(context.Background(), "command failed", "error", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	var opts options
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address, overrides SERVER_ADDR",
			Destination: &opts.addr,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error), overrides LOG_LEVEL",
			Destination: &opts.logLevel,
		},
		&cli.BoolFlag{
			Name:        "mock",
			Usage:       "serve a seeded in-memory catalog instead of DATABASE_URL",
			Destination: &opts.mock,
		},
	}

	serve := func(ctx context.Context, _ *cli.Command) error {
		return exitError(run(ctx, opts))
	}

	return &cli.Command{
		Name:   "larder",
		Usage:  "Food and recipe catalog API",
		Flags:  flags,
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "Create or update the catalog tables and exit",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return exitError(migrate(ctx, opts))
				},
			},
		},
	}
}

func exitError(code int) error {
	if code == 0 {
		return nil
	}
	return cli.Exit("", code)
}

// setup loads the configuration and applies the logging settings.
func setup(ctx context.Context, opts options) (config.Config, bool) {
	cfg, err := loadConfigFunc()
	if err != nil {
		applog.Error(ctx, "failed to load configuration", "error", err)
		return config.Config{}, false
	}
	opts.apply(&cfg)

	if err := setLogLevelFunc(cfg.Logging.Level); err != nil {
		applog.Error(ctx, "invalid log level", "level", cfg.Logging.Level, "error", err)
		return config.Config{}, false
	}
	if cfg.Logging.Format != "" {
		if err := setLogFormatFunc(cfg.Logging.Format); err != nil {
			applog.Error(ctx, "invalid log format", "format", cfg.Logging.Format, "error", err)
			return config.Config{}, false
		}
	}
	return cfg, true
}

func migrate(ctx context.Context, opts options) int {
	cfg, ok := setup(ctx, opts)
	if !ok {
		return 1
	}
	if cfg.Database.UseMock {
		applog.Info(ctx, "mock database is migrated on startup, nothing to do")
		return 0
	}
	if _, err := configureDatabase(cfg.Database); err != nil {
		applog.Error(ctx, "failed to migrate database", "error", err)
		return 1
	}
	applog.Info(ctx, "database migrated")
	return 0
}

func run(ctx context.Context, opts options) int {
	cfg, ok := setup(ctx, opts)
	if !ok {
		return 1
	}

	var (
		database *gorm.DB
		err      error
	)
	if cfg.Database.UseMock {
		applog.Info(ctx, "using mock database")
		database, err = newMockDatabaseFunc(ctx)
	} else {
		database, err = configureDatabase(cfg.Database)
	}
	if err != nil {
		applog.Error(ctx, "failed to initialise database", "error", err)
		return 1
	}

	constraints, err := buildConstraints(ctx, database, cfg.Database.LiveSchema)
	if err != nil {
		applog.Error(ctx, "failed to read database constraints", "error", err)
		return 1
	}

	store, err := newStorageFunc(ctx, cfg.Storage, cfg.Database.UseMock)
	if err != nil {
		applog.Error(ctx, "failed to initialise object storage", "error", err)
		return 1
	}
	fetcher, err := storage.NewFetcher(store, storage.FetcherConfig{
		Timeout:  cfg.Images.FetchTimeout,
		MaxBytes: cfg.Images.MaxBytes,
	})
	if err != nil {
		applog.Error(ctx, "failed to initialise image fetcher", "error", err)
		return 1
	}

	srv, err := newServerFunc(server.Config{
		Addr:              cfg.Server.Addr,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		Database:          database,
		Constraints:       constraints,
		Storage:           store,
		Images:            fetcher,
		Pagination: handlers.Pagination{
			DefaultSize: cfg.Pagination.DefaultSize,
			MaxSize:     cfg.Pagination.MaxSize,
		},
	})
	if err != nil {
		applog.Error(ctx, "failed to build server", "error", err)
		return 1
	}

	sigCh, unsubscribe := subscribeShutdownSig()
	defer unsubscribe()

	errCh := make(chan error, 1)
	go func() {
		applog.Info(ctx, "starting http server", "addr", cfg.Server.Addr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			applog.Error(ctx, "server encountered an error", "error", err)
			return 1
		}
		return 0
	case sig := <-sigCh:
		applog.Info(ctx, "shutting down http server", "signal", sig.String())
	case <-ctx.Done():
		applog.Info(ctx, "shutting down http server", "reason", ctx.Err())
	}

	if err := srv.Stop(); err != nil {
		applog.Error(ctx, "graceful shutdown failed", "error", err)
		return 1
	}
	return 0
}

// newConstraints snapshots the catalog constraints, or reads them on every
// check when live is set.
func newConstraints(ctx context.Context, database *gorm.DB, live bool) (schema.Source, error) {
	inspector, err := schema.NewInspector(database)
	if err != nil {
		return nil, err
	}
	if live {
		return schema.NewLive(inspector, models.Entities()...), nil
	}
	registry, err := schema.Build(ctx, inspector, models.Entities()...)
	if err != nil {
		return nil, err
	}
	return registry, nil
}

// newStorage connects to the configured bucket. Mock mode, an explicit
// memory setting or a missing bucket keep images in process memory.
func newStorage(ctx context.Context, cfg config.StorageConfig, mock bool) (storage.ObjectStorage, error) {
	if mock || cfg.UseMemory {
		return storage.NewMemory(cfg.PublicBaseURL), nil
	}
	if cfg.Bucket == "" {
		applog.Warn(ctx, "no object storage bucket configured, keeping images in memory")
		return storage.NewMemory(cfg.PublicBaseURL), nil
	}
	return storage.NewS3(ctx, storage.S3Config{
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Endpoint:        cfg.Endpoint,
		PublicBaseURL:   cfg.PublicBaseURL,
	})
}
