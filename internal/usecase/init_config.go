package usecase

import (
	"context"

	"github.com/runoshun/magicbin/internal/domain"
)

// InitConfigInput contains the input for the InitConfig use case.
type InitConfigInput struct {
	Dir       string // Directory to create the configuration in
	Namespace string // Namespace name (defaults to the directory name)
}

// InitConfigOutput contains the output of the InitConfig use case.
type InitConfigOutput struct {
	Path string // Path to the created config file
}

// InitConfig generates a configuration file template.
type InitConfig struct {
	initializer domain.ConfigInitializer
}

// NewInitConfig creates a new InitConfig use case.
func NewInitConfig(initializer domain.ConfigInitializer) *InitConfig {
	return &InitConfig{initializer: initializer}
}

// Execute creates a configuration file with default template.
func (uc *InitConfig) Execute(_ context.Context, in InitConfigInput) (*InitConfigOutput, error) {
	path, err := uc.initializer.Init(in.Dir, in.Namespace)
	if err != nil {
		return nil, err
	}
	return &InitConfigOutput{Path: path}, nil
}
