package interfaces

import (
	"context"

	"github.com/ezenkico/indi-stack/models"
)

// Platform drives a topology against a container runtime.
type Platform interface {
	Run(ctx context.Context, config models.Configuration) error
	Close() error
}
