package domain

import (
	"errors"
	"fmt"
)

type PlatformErrorKind string

const (
	PlatformAuthExpired      PlatformErrorKind = "auth_expired"
	PlatformBlocked          PlatformErrorKind = "blocked"
	PlatformNotFound         PlatformErrorKind = "not_found"
	PlatformTransientNetwork PlatformErrorKind = "transient_network"
	PlatformUnknown          PlatformErrorKind = "unknown"
)

// Retryable reports whether the executor may retry an action that failed with
// this kind. AuthExpired is handled separately: it is retryable only after a
// successful session refresh.
func (k PlatformErrorKind) Retryable() bool {
	return k == PlatformTransientNetwork
}

// PlatformError is the only error shape the platform adapter returns for a
// failed action. The executor classifies it into a terminal outcome or a
// retry; nothing above the executor ever sees it.
type PlatformError struct {
	Kind   PlatformErrorKind
	Detail string
}

func (e *PlatformError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("platform error: %s", e.Kind)
	}

	return fmt.Sprintf("platform error: %s: %s", e.Kind, e.Detail)
}

func NewPlatformError(kind PlatformErrorKind, detail string) *PlatformError {
	return &PlatformError{Kind: kind, Detail: detail}
}

func AsPlatformError(err error) (*PlatformError, bool) {
	var perr *PlatformError
	if errors.As(err, &perr) {
		return perr, true
	}

	return nil, false
}
