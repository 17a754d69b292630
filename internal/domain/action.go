package domain

import (
	"fmt"
	"strings"
	"time"
)

type ActionKind string

const (
	ActionConnect     ActionKind = "connect"
	ActionMessage     ActionKind = "message"
	ActionViewProfile ActionKind = "view_profile"
	ActionScrape      ActionKind = "scrape"
)

func ActionKinds() []ActionKind {
	return []ActionKind{ActionConnect, ActionMessage, ActionViewProfile, ActionScrape}
}

func (k ActionKind) Valid() bool {
	switch k {
	case ActionConnect, ActionMessage, ActionViewProfile, ActionScrape:
		return true
	default:
		return false
	}
}

func ParseActionKind(raw string) (ActionKind, error) {
	kind := ActionKind(strings.ToLower(strings.TrimSpace(raw)))
	if !kind.Valid() {
		return "", fmt.Errorf("unknown action kind %q", raw)
	}

	return kind, nil
}

type RequestID string

// ActionRequest describes one automated platform operation. It is immutable
// after creation and consumed exactly once by the executor.
type ActionRequest struct {
	ID        RequestID
	Kind      ActionKind
	AccountID AccountID
	// Target is the platform profile reference the action applies to.
	Target string
	// Message is the payload for message actions, empty otherwise.
	Message string
	// WaitForCapacity makes a rate-denied request wait for the window to
	// free up instead of resolving as rate limited.
	WaitForCapacity bool
	SubmittedAt     time.Time
}

func (r ActionRequest) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("unknown action kind %q", r.Kind)
	}
	if strings.TrimSpace(string(r.AccountID)) == "" {
		return fmt.Errorf("account id is required")
	}
	if strings.TrimSpace(r.Target) == "" {
		return fmt.Errorf("target is required")
	}
	if r.Kind == ActionMessage && strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message body is required for %s actions", ActionMessage)
	}

	return nil
}

type OutcomeStatus string

const (
	StatusSucceeded        OutcomeStatus = "succeeded"
	StatusRateLimited      OutcomeStatus = "rate_limited"
	StatusTransientFailure OutcomeStatus = "transient_failure"
	StatusPermanentFailure OutcomeStatus = "permanent_failure"
	StatusCanceled         OutcomeStatus = "canceled"
)

func (s OutcomeStatus) Failure() bool {
	switch s {
	case StatusRateLimited, StatusTransientFailure, StatusPermanentFailure:
		return true
	default:
		return false
	}
}

// ActionOutcome is the single resolution every submitted request ends in.
type ActionOutcome struct {
	RequestID   RequestID
	Status      OutcomeStatus
	Attempts    int
	CompletedAt time.Time
	// RetryAt is set on rate-limited outcomes: the earliest time capacity
	// becomes available again.
	RetryAt time.Time
	// ErrorKind is a machine-readable failure kind, Reason the human one.
	ErrorKind string
	Reason    string
}

// RawResult is what the platform adapter hands back on success. The executor
// does not interpret it beyond passing it through.
type RawResult struct {
	StatusCode int
	Detail     string
	Data       map[string]string
}
