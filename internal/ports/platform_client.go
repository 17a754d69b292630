package ports

import (
	"context"

	"github.com/quietreach/reach-cli/internal/domain"
)

// PlatformClient is the single seam to the external platform. It performs no
// retries and no rate accounting; both belong to the executor and limiter.
// Login and Refresh return the cookie jar blob alongside the session so the
// session store decides where and how it is persisted.
type PlatformClient interface {
	Login(ctx context.Context, account domain.AccountID, email, password string) (domain.Session, string, error)
	Refresh(ctx context.Context, session domain.Session) (domain.Session, string, error)
	Execute(ctx context.Context, request domain.ActionRequest, session domain.Session) (domain.RawResult, error)
}
