package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/magicbin/internal/domain"
)

// SyncNamespaceInput contains the parameters for syncing a namespace.
type SyncNamespaceInput struct {
	Dir string // Directory the configuration is searched from
}

// SyncNamespaceOutput contains the result of syncing a namespace.
type SyncNamespaceOutput struct {
	Config *domain.Config     // Configuration found locally
	Result *domain.SyncResult // Namespace as reported by the daemon
}

// SyncNamespace is the use case for reconciling the daemon with the local configuration.
type SyncNamespace struct {
	finder domain.ConfigFinder
	daemon domain.Daemon
}

// NewSyncNamespace creates a new SyncNamespace use case.
func NewSyncNamespace(finder domain.ConfigFinder, daemon domain.Daemon) *SyncNamespace {
	return &SyncNamespace{finder: finder, daemon: daemon}
}

// Execute validates the configuration locally, then asks the daemon to load it.
func (uc *SyncNamespace) Execute(ctx context.Context, in SyncNamespaceInput) (*SyncNamespaceOutput, error) {
	cfg, err := findNamespace(uc.finder, in.Dir)
	if err != nil {
		return nil, err
	}

	res, err := uc.daemon.Sync(ctx, cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sync %s: %w", cfg.Namespace, err)
	}

	return &SyncNamespaceOutput{Config: cfg, Result: res}, nil
}
