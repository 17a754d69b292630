package ports

import (
	"context"

	"github.com/quietreach/reach-cli/internal/domain"
)

type SessionRepository interface {
	GetByAccount(ctx context.Context, id domain.AccountID) (domain.Session, error)
	List(ctx context.Context) ([]domain.Session, error)
	Save(ctx context.Context, session domain.Session) error
	Delete(ctx context.Context, id domain.AccountID) error
}
