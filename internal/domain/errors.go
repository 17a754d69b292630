package domain

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrRefreshFailed    = errors.New("session refresh failed")
	ErrDispatcherClosed = errors.New("dispatcher closed")
)
