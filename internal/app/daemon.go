package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/runoshun/magicbin/internal/api"
	"github.com/runoshun/magicbin/internal/domain"
	"github.com/runoshun/magicbin/internal/engine"
	"github.com/runoshun/magicbin/internal/executor"
	"github.com/runoshun/magicbin/internal/infra/filewatch"
	"github.com/runoshun/magicbin/internal/infra/metrics"
)

// ErrNotInDaemon is returned when the daemon is started from one of its own tasks.
var ErrNotInDaemon = errors.New("refusing to start the daemon from inside a magicbin task")

// Daemon is the wired daemon process: engine, metrics and HTTP server.
type Daemon struct {
	Core     *engine.Core
	Metrics  *metrics.Metrics
	Server   *api.Server
	opener   domain.ConfigOpener
	registry domain.NamespaceRegistry
	logger   *slog.Logger
}

// NewDaemon wires a daemon listening on the configured address.
// Log records are also written to foreground when it is non-nil.
func (c *Container) NewDaemon(foreground io.Writer) (*Daemon, error) {
	if c.Getenv(domain.TokenEnv) != "" {
		return nil, ErrNotInDaemon
	}
	if c.Opener == nil {
		return nil, fmt.Errorf("%w: no configuration opener", domain.ErrInvalidConfig)
	}

	logger := c.Logger
	if c.log != nil && foreground != nil {
		logger = c.log.WithWriter(foreground).Slog()
	}

	registry := executor.NewRegistry()
	core := engine.NewCore(engine.Options{
		Executors: executor.New,
		Registry:  registry,
		Opener:    c.Opener,
		Watch:     filewatch.Func(filewatch.WithLogger(logger)),
		Logger:    logger,
	})
	m := metrics.New(registry.Len)

	var opts []api.RouterOption
	if c.Registry != nil {
		opts = append(opts, api.WithRegistry(c.Registry))
	}
	router := api.NewRouter(core, c.Opener, m, logger, opts...)

	return &Daemon{
		Core:     core,
		Metrics:  m,
		Server:   api.NewServer(c.Config.Settings.Listen, core, router, logger),
		opener:   c.Opener,
		registry: c.Registry,
		logger:   logger,
	}, nil
}

// Run restores the remembered namespaces and serves until ctx is done,
// then stops every task.
func (d *Daemon) Run(ctx context.Context) error {
	stop := d.Metrics.Observe(d.Core)
	defer stop()

	d.restore()

	d.logger.Info("daemon started")
	err := d.Server.Run(ctx)
	d.logger.Info("daemon stopped")
	return err
}

// restore queues a sync of every remembered namespace. Namespaces whose
// configuration file is gone are forgotten.
func (d *Daemon) restore() {
	if d.registry == nil {
		return
	}
	regs, err := d.registry.Registrations()
	if err != nil {
		d.logger.Warn("read namespace registry", "error", err)
		return
	}

	for _, reg := range regs {
		cfg, err := d.opener.Open(reg.ConfigPath)
		switch {
		case errors.Is(err, domain.ErrConfigNotFound):
			d.logger.Info("forgetting namespace", "namespace", reg.Namespace, "path", reg.ConfigPath)
			if err := d.registry.Forget(reg.Namespace); err != nil {
				d.logger.Warn("forget namespace", "namespace", reg.Namespace, "error", err)
			}
			continue
		case err != nil:
			d.logger.Warn("restore namespace", "namespace", reg.Namespace, "path", reg.ConfigPath, "error", err)
			continue
		}
		if cfg.Namespace != reg.Namespace {
			// The file was renamed to another namespace since it was synced.
			if err := d.registry.Forget(reg.Namespace); err != nil {
				d.logger.Warn("forget namespace", "namespace", reg.Namespace, "error", err)
			}
			if err := d.registry.Remember(cfg.Namespace, cfg.Path); err != nil {
				d.logger.Warn("remember namespace", "namespace", cfg.Namespace, "error", err)
			}
		}

		d.Core.Post(func() {
			d.Core.SyncConfig(cfg)
		})
		d.logger.Info("namespace restored", "namespace", cfg.Namespace, "path", cfg.Path)
	}
}
