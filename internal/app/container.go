// Package app provides the dependency injection container for the application.
package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/runoshun/magicbin/internal/client"
	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/infra/config"
	"github.com/runoshun/magicbin/internal/infra/jsonstore"
	"github.com/runoshun/magicbin/internal/infra/logging"
	"github.com/runoshun/magicbin/internal/usecase"
)

// Config holds the resolved application settings.
type Config struct {
	WorkDir      string // Directory commands resolve configuration from
	SettingsPath string // Path of the daemon settings file
	Settings     domain.Settings
}

// Container provides dependency injection for the application.
// It holds all port implementations and provides factory methods for use cases.
type Container struct {
	// Ports (interfaces bound to implementations)
	Finder      domain.ConfigFinder
	Opener      domain.ConfigOpener
	Initializer domain.ConfigInitializer
	Daemon      domain.Daemon
	Registry    domain.NamespaceRegistry // nil disables restoring namespaces on daemon start

	// Pointer fields
	Client *client.Client // nil when the daemon is replaced by a test double
	Logger *slog.Logger
	log    *logging.Logger

	// Getenv reads the process environment; replaced in tests.
	Getenv func(string) string

	// Warnings found while loading the settings file
	Warnings []string

	// Configuration
	Config Config
}

// New creates a new Container for commands run from dir.
func New(dir string) (*Container, error) {
	settingsLoader := config.NewSettingsLoader()
	settings, err := settingsLoader.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	cl, err := client.New(settings.Listen)
	if err != nil {
		return nil, err
	}

	log := logging.New(settings.StateDir, logging.ParseLevel(settings.LogLevel))
	loader := config.NewLoader()

	var registry domain.NamespaceRegistry
	if settings.StateDir != "" {
		registry = jsonstore.New(domain.RegistryPath(settings.StateDir))
	}

	return &Container{
		Finder:      loader,
		Opener:      loader,
		Initializer: config.NewManager(),
		Daemon:      cl,
		Registry:    registry,
		Client:      cl,
		Logger:      log.Slog(),
		log:         log,
		Getenv:      os.Getenv,
		Warnings:    settingsLoader.Warnings(),
		Config: Config{
			WorkDir:      dir,
			SettingsPath: settingsLoader.Path(),
			Settings:     *settings,
		},
	}, nil
}

// NewWithDeps creates a new Container with custom dependencies for testing.
func NewWithDeps(cfg Config, finder domain.ConfigFinder, daemon domain.Daemon, initializer domain.ConfigInitializer, logger *slog.Logger) *Container {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Container{
		Finder:      finder,
		Initializer: initializer,
		Daemon:      daemon,
		Logger:      logger,
		Getenv:      func(string) string { return "" },
		Config:      cfg,
	}
}

// Close releases the log file.
func (c *Container) Close() error {
	if c.log == nil {
		return nil
	}
	return c.log.Close()
}

// UseCase factory methods

// InitConfigUseCase returns a new InitConfig use case.
func (c *Container) InitConfigUseCase() *usecase.InitConfig {
	return usecase.NewInitConfig(c.Initializer)
}

// SyncNamespaceUseCase returns a new SyncNamespace use case.
func (c *Container) SyncNamespaceUseCase() *usecase.SyncNamespace {
	return usecase.NewSyncNamespace(c.Finder, c.Daemon)
}

// StartTaskUseCase returns a new StartTask use case.
func (c *Container) StartTaskUseCase() *usecase.StartTask {
	return usecase.NewStartTask(c.Finder, c.Daemon)
}

// StopTaskUseCase returns a new StopTask use case.
func (c *Container) StopTaskUseCase() *usecase.StopTask {
	return usecase.NewStopTask(c.Finder, c.Daemon)
}

// ListTasksUseCase returns a new ListTasks use case.
func (c *Container) ListTasksUseCase() *usecase.ListTasks {
	return usecase.NewListTasks(c.Finder, c.Daemon)
}

// TailTaskUseCase returns a new TailTask use case.
func (c *Container) TailTaskUseCase() *usecase.TailTask {
	return usecase.NewTailTask(c.Finder, c.Daemon)
}

// ConfirmTaskUseCase returns a new ConfirmTask use case.
func (c *Container) ConfirmTaskUseCase() *usecase.ConfirmTask {
	return usecase.NewConfirmTask(c.Daemon)
}
