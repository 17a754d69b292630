package application

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quietreach/reach-cli/internal/domain"
	"github.com/quietreach/reach-cli/internal/ports"
)

const queueBuffer = 128

type actionExecutor interface {
	Execute(ctx context.Context, request domain.ActionRequest) domain.ActionOutcome
}

type handleState int

const (
	handlePending handleState = iota
	handleExecuting
	handleDone
)

// Handle tracks one submitted request until it resolves. Every handle
// resolves to exactly one outcome; canceling a resolved handle is a no-op.
type Handle struct {
	request domain.ActionRequest
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	state    handleState
	canceled bool
	outcome  domain.ActionOutcome
	done     chan struct{}
}

func (h *Handle) ID() domain.RequestID {
	return h.request.ID
}

func (h *Handle) Request() domain.ActionRequest {
	return h.request
}

// Outcome returns the resolution without blocking; ok is false while the
// request is still pending or executing.
func (h *Handle) Outcome() (domain.ActionOutcome, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != handleDone {
		return domain.ActionOutcome{}, false
	}

	return h.outcome, true
}

func (h *Handle) resolve(outcome domain.ActionOutcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resolveLocked(outcome)
}

func (h *Handle) resolveLocked(outcome domain.ActionOutcome) {
	if h.state == handleDone {
		return
	}

	h.outcome = outcome
	h.state = handleDone
	h.cancel()
	close(h.done)
}

// Dispatcher serializes actions per account: one worker goroutine per account
// key, FIFO within it, full concurrency across accounts. An account maps to
// exactly one platform session, so this is the per-session serialization that
// keeps a session from being mutated by two in-flight actions.
type Dispatcher struct {
	exec  actionExecutor
	clock ports.Clock
	log   zerolog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	queues   map[domain.AccountID]chan *Handle
	closed   bool
	inflight sync.WaitGroup
	workers  sync.WaitGroup
}

func NewDispatcher(exec actionExecutor, clock ports.Clock, log zerolog.Logger) *Dispatcher {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())

	return &Dispatcher{
		exec:       exec,
		clock:      clock,
		log:        log,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		queues:     map[domain.AccountID]chan *Handle{},
	}
}

// Submit enqueues the request behind any earlier requests for the same
// account and returns a handle to await or cancel it.
func (d *Dispatcher) Submit(request domain.ActionRequest) (*Handle, error) {
	if request.ID == "" {
		request.ID = domain.RequestID(uuid.NewString())
	}
	if request.SubmittedAt.IsZero() {
		request.SubmittedAt = d.clock.Now()
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(d.baseCtx)
	handle := &Handle{
		request: request,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		cancel()
		return nil, domain.ErrDispatcherClosed
	}

	queue, ok := d.queues[request.AccountID]
	if !ok {
		queue = make(chan *Handle, queueBuffer)
		d.queues[request.AccountID] = queue
		d.workers.Add(1)
		go d.worker(request.AccountID, queue)
	}
	d.inflight.Add(1)
	d.mu.Unlock()

	queue <- handle
	d.inflight.Done()

	d.log.Debug().
		Str("request", string(request.ID)).
		Str("account", string(request.AccountID)).
		Str("kind", string(request.Kind)).
		Msg("request enqueued")

	return handle, nil
}

// Await blocks until the handle resolves or ctx expires.
func (d *Dispatcher) Await(ctx context.Context, handle *Handle) (domain.ActionOutcome, error) {
	select {
	case <-ctx.Done():
		return domain.ActionOutcome{}, ctx.Err()
	case <-handle.done:
		outcome, _ := handle.Outcome()
		return outcome, nil
	}
}

// Cancel resolves a pending handle immediately with no side effect. For an
// executing handle it is best effort: the in-flight platform call is left to
// finish, its result is discarded and not retried. Terminal handles are
// untouched.
func (d *Dispatcher) Cancel(handle *Handle) {
	handle.mu.Lock()
	defer handle.mu.Unlock()

	switch handle.state {
	case handleDone:
		return
	case handlePending:
		handle.canceled = true
		handle.resolveLocked(domain.ActionOutcome{
			RequestID:   handle.request.ID,
			Status:      domain.StatusCanceled,
			CompletedAt: d.clock.Now(),
			ErrorKind:   "canceled",
			Reason:      "canceled before execution",
		})
	case handleExecuting:
		handle.canceled = true
		handle.cancel()
	}
}

func (d *Dispatcher) worker(account domain.AccountID, queue chan *Handle) {
	defer d.workers.Done()

	for handle := range queue {
		handle.mu.Lock()
		if handle.state == handleDone {
			handle.mu.Unlock()
			continue
		}
		handle.state = handleExecuting
		handle.mu.Unlock()

		outcome := d.exec.Execute(handle.ctx, handle.request)

		handle.mu.Lock()
		if handle.canceled {
			outcome = domain.ActionOutcome{
				RequestID:   handle.request.ID,
				Status:      domain.StatusCanceled,
				Attempts:    outcome.Attempts,
				CompletedAt: d.clock.Now(),
				ErrorKind:   "canceled",
				Reason:      "canceled while executing",
			}
		}
		handle.resolveLocked(outcome)
		handle.mu.Unlock()

		d.log.Debug().
			Str("request", string(handle.request.ID)).
			Str("account", string(account)).
			Str("status", string(outcome.Status)).
			Msg("request resolved")
	}
}

// Close drains the queues, waits for workers and rejects further submits.
// Every request accepted before Close still resolves.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	queues := d.queues
	d.mu.Unlock()

	d.inflight.Wait()
	for _, queue := range queues {
		close(queue)
	}
	d.workers.Wait()
	d.baseCancel()
}
