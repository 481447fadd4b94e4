package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"syscall"
	"testing"

	"gorm.io/gorm"

	"larder/internal/config"
	"larder/internal/db/dbtest"
	"larder/internal/schema"
	"larder/internal/server"
	"larder/internal/storage"
)

type stubServer struct {
	startErr       error
	stopErr        error
	blockUntilStop bool

	startCalled bool
	stopCalled  bool

	startGate   chan struct{}
	startNotify chan struct{}
}

func newStubServer(startErr, stopErr error, block bool) *stubServer {
	s := &stubServer{
		startErr:       startErr,
		stopErr:        stopErr,
		blockUntilStop: block,
		startNotify:    make(chan struct{}),
	}
	if block {
		s.startGate = make(chan struct{})
	}
	return s
}

func (s *stubServer) Start() error {
	s.startCalled = true
	close(s.startNotify)
	if s.blockUntilStop {
		<-s.startGate
	}
	return s.startErr
}

func (s *stubServer) Stop() error {
	s.stopCalled = true
	if s.blockUntilStop {
		close(s.startGate)
	}
	return s.stopErr
}

// restoreHooks resets every swappable dependency when the test ends.
func restoreHooks(t *testing.T) {
	t.Helper()
	originalLoadConfig := loadConfigFunc
	originalSetLogLevel := setLogLevelFunc
	originalSetLogFormat := setLogFormatFunc
	originalMock := newMockDatabaseFunc
	originalConfigure := configureDatabase
	originalConstraints := buildConstraints
	originalStorage := newStorageFunc
	originalNewServer := newServerFunc
	originalSubscribe := subscribeShutdownSig

	t.Cleanup(func() {
		loadConfigFunc = originalLoadConfig
		setLogLevelFunc = originalSetLogLevel
		setLogFormatFunc = originalSetLogFormat
		newMockDatabaseFunc = originalMock
		configureDatabase = originalConfigure
		buildConstraints = originalConstraints
		newStorageFunc = originalStorage
		newServerFunc = originalNewServer
		subscribeShutdownSig = originalSubscribe
	})

	setLogLevelFunc = func(string) error { return nil }
	setLogFormatFunc = func(string) error { return nil }
	buildConstraints = func(context.Context, *gorm.DB, bool) (schema.Source, error) {
		return &schema.Registry{}, nil
	}
}

func TestRunUsesMockDatabaseWhenConfigured(t *testing.T) {
	restoreHooks(t)

	cfg := config.Config{
		Server:   config.ServerConfig{Addr: ":8080"},
		Database: config.DatabaseConfig{UseMock: true},
		Logging:  config.LoggingConfig{Level: "debug"},
	}

	var mockCalled, memoryStorage bool
	loadConfigFunc = func() (config.Config, error) { return cfg, nil }
	newMockDatabaseFunc = func(ctx context.Context) (*gorm.DB, error) {
		mockCalled = true
		return &gorm.DB{}, nil
	}
	configureDatabase = func(config.DatabaseConfig) (*gorm.DB, error) {
		t.Fatal("configureDatabase should not be called when mock is enabled")
		return nil, nil
	}
	newStorageFunc = func(ctx context.Context, sc config.StorageConfig, mock bool) (storage.ObjectStorage, error) {
		memoryStorage = mock
		return storage.NewMemory(""), nil
	}

	serverStub := newStubServer(http.ErrServerClosed, nil, true)
	var received server.Config
	newServerFunc = func(sc server.Config) (serverLifecycle, error) {
		received = sc
		return serverStub, nil
	}

	shutdownCh := make(chan os.Signal, 1)
	subscribeShutdownSig = func() (<-chan os.Signal, func()) {
		return shutdownCh, func() {}
	}

	go func() {
		<-serverStub.startNotify
		shutdownCh <- syscall.SIGTERM
	}()

	code := run(context.Background(), options{})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !mockCalled || !memoryStorage {
		t.Fatal("expected mock database and memory storage to be used")
	}
	if !serverStub.startCalled || !serverStub.stopCalled {
		t.Fatal("expected server start and stop to be invoked")
	}
	if received.Addr != ":8080" || received.Images == nil || received.Constraints == nil {
		t.Fatalf("unexpected server config %+v", received)
	}
}

func TestRunAppliesCommandLineOverrides(t *testing.T) {
	restoreHooks(t)

	cfg := config.Config{
		Server:   config.ServerConfig{Addr: ":8080"},
		Database: config.DatabaseConfig{URL: "postgres://example"},
		Logging:  config.LoggingConfig{Level: "info"},
	}

	var level string
	loadConfigFunc = func() (config.Config, error) { return cfg, nil }
	setLogLevelFunc = func(l string) error { level = l; return nil }
	newMockDatabaseFunc = func(context.Context) (*gorm.DB, error) { return &gorm.DB{}, nil }
	configureDatabase = func(config.DatabaseConfig) (*gorm.DB, error) {
		t.Fatal("configureDatabase should not be called with --mock")
		return nil, nil
	}
	newStorageFunc = func(context.Context, config.StorageConfig, bool) (storage.ObjectStorage, error) {
		return storage.NewMemory(""), nil
	}

	var addr string
	serverStub := newStubServer(errors.New("listener failure"), nil, false)
	newServerFunc = func(sc server.Config) (serverLifecycle, error) {
		addr = sc.Addr
		return serverStub, nil
	}
	subscribeShutdownSig = func() (<-chan os.Signal, func()) {
		return make(chan os.Signal), func() {}
	}

	run(context.Background(), options{addr: ":9090", logLevel: "debug", mock: true})
	if addr != ":9090" {
		t.Fatalf("expected overridden address, got %q", addr)
	}
	if level != "debug" {
		t.Fatalf("expected overridden log level, got %q", level)
	}
}

func TestRunReturnsErrorWhenServerStartFails(t *testing.T) {
	restoreHooks(t)

	cfg := config.Config{
		Server:   config.ServerConfig{Addr: ":8080"},
		Database: config.DatabaseConfig{UseMock: true},
		Logging:  config.LoggingConfig{Level: "info"},
	}

	loadConfigFunc = func() (config.Config, error) { return cfg, nil }
	newMockDatabaseFunc = func(context.Context) (*gorm.DB, error) { return &gorm.DB{}, nil }
	newStorageFunc = func(context.Context, config.StorageConfig, bool) (storage.ObjectStorage, error) {
		return storage.NewMemory(""), nil
	}

	serverStub := newStubServer(errors.New("listener failure"), nil, false)
	newServerFunc = func(server.Config) (serverLifecycle, error) {
		return serverStub, nil
	}

	subscribeShutdownSig = func() (<-chan os.Signal, func()) {
		return make(chan os.Signal), func() {}
	}

	code := run(context.Background(), options{})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if serverStub.stopCalled {
		t.Fatal("server stop should not be called on start error")
	}
}

func TestRunHandlesDatabaseConfigurationError(t *testing.T) {
	restoreHooks(t)

	cfg := config.Config{
		Server:   config.ServerConfig{Addr: ":8080"},
		Database: config.DatabaseConfig{URL: "postgres://example", UseMock: false},
		Logging:  config.LoggingConfig{Level: "info"},
	}

	loadConfigFunc = func() (config.Config, error) { return cfg, nil }
	newMockDatabaseFunc = func(context.Context) (*gorm.DB, error) {
		t.Fatal("mock database should not be used when URL is configured")
		return nil, nil
	}
	configureDatabase = func(config.DatabaseConfig) (*gorm.DB, error) {
		return nil, errors.New("db connection refused")
	}

	code := run(context.Background(), options{})
	if code != 1 {
		t.Fatalf("expected exit code 1 on database configuration failure, got %d", code)
	}
}

func TestRunHandlesStorageError(t *testing.T) {
	restoreHooks(t)

	cfg := config.Config{
		Server:   config.ServerConfig{Addr: ":8080"},
		Database: config.DatabaseConfig{UseMock: true},
		Logging:  config.LoggingConfig{Level: "info"},
	}
	loadConfigFunc = func() (config.Config, error) { return cfg, nil }
	newMockDatabaseFunc = func(context.Context) (*gorm.DB, error) { return &gorm.DB{}, nil }
	newStorageFunc = func(context.Context, config.StorageConfig, bool) (storage.ObjectStorage, error) {
		return nil, errors.New("bucket region missing")
	}
	newServerFunc = func(server.Config) (serverLifecycle, error) {
		t.Fatal("server should not be built without storage")
		return nil, nil
	}

	if code := run(context.Background(), options{}); code != 1 {
		t.Fatalf("expected exit code 1 on storage failure, got %d", code)
	}
}

func TestRunReturnsErrorWhenLogLevelInvalid(t *testing.T) {
	restoreHooks(t)

	cfg := config.Config{Logging: config.LoggingConfig{Level: "invalid"}}
	loadConfigFunc = func() (config.Config, error) { return cfg, nil }
	setLogLevelFunc = func(string) error { return errors.New("invalid level") }

	code := run(context.Background(), options{})
	if code != 1 {
		t.Fatalf("expected exit code 1 for invalid log level, got %d", code)
	}
}

func TestMigrate(t *testing.T) {
	restoreHooks(t)

	cfg := config.Config{
		Database: config.DatabaseConfig{URL: "postgres://example"},
		Logging:  config.LoggingConfig{Level: "info"},
	}
	loadConfigFunc = func() (config.Config, error) { return cfg, nil }

	var migrated bool
	configureDatabase = func(dc config.DatabaseConfig) (*gorm.DB, error) {
		migrated = dc.URL == "postgres://example"
		return &gorm.DB{}, nil
	}
	if code := migrate(context.Background(), options{}); code != 0 || !migrated {
		t.Fatalf("expected successful migration, got code %d migrated %v", code, migrated)
	}

	configureDatabase = func(config.DatabaseConfig) (*gorm.DB, error) {
		return nil, errors.New("permission denied")
	}
	if code := migrate(context.Background(), options{}); code != 1 {
		t.Fatalf("expected exit code 1 on migration failure, got %d", code)
	}

	configureDatabase = func(config.DatabaseConfig) (*gorm.DB, error) {
		t.Fatal("mock mode should not migrate")
		return nil, nil
	}
	if code := migrate(context.Background(), options{mock: true}); code != 0 {
		t.Fatalf("expected mock migration to be a no-op, got %d", code)
	}
}

func TestNewConstraints(t *testing.T) {
	database := dbtest.Open(t)

	source, err := newConstraints(context.Background(), database, false)
	if err != nil {
		t.Fatalf("newConstraints returned error: %v", err)
	}
	if _, ok := source.(*schema.Registry); !ok {
		t.Fatalf("expected registry snapshot, got %T", source)
	}

	source, err = newConstraints(context.Background(), database, true)
	if err != nil {
		t.Fatalf("newConstraints returned error: %v", err)
	}
	if _, ok := source.(*schema.Live); !ok {
		t.Fatalf("expected live source, got %T", source)
	}
}

func TestNewStorageFallsBackToMemory(t *testing.T) {
	store, err := newStorage(context.Background(), config.StorageConfig{}, false)
	if err != nil {
		t.Fatalf("newStorage returned error: %v", err)
	}
	if _, ok := store.(*storage.Memory); !ok {
		t.Fatalf("expected memory storage without a bucket, got %T", store)
	}

	if _, err := newStorage(context.Background(), config.StorageConfig{Bucket: "media"}, false); err == nil {
		t.Fatal("expected error for bucket without region")
	}
}

func TestNewCommandRegistersSubcommands(t *testing.T) {
	cmd := newCommand()
	names := map[string]bool{}
	for _, sub := range cmd.Commands {
		names[sub.Name] = true
	}
	if !names["serve"] || !names["migrate"] {
		t.Fatalf("expected serve and migrate commands, got %v", names)
	}
	if cmd.Action == nil {
		t.Fatal("expected serve to be the default action")
	}
}
