package ports

import (
	"context"

	"github.com/quietreach/reach-cli/internal/domain"
)

// RateStateRepository persists rate-limiter windows so throttling guarantees
// survive a process restart.
type RateStateRepository interface {
	Load(ctx context.Context) ([]domain.RateStateEntry, error)
	Save(ctx context.Context, entries []domain.RateStateEntry) error
}
