// Package bridge adapts single-shot asynchronous remote calls into blocking
// calls with a bounded wait.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/procflow/procflow/pkg/faults"
	"github.com/procflow/procflow/pkg/telemetry"
)

// DefaultTimeout is the wait bound used when none is configured.
const DefaultTimeout = 30 * time.Second

// Emitter receives the signals of a Single. Only the first signal delivered
// to an emitter counts; later ones are dropped.
type Emitter[T any] interface {
	Success(value T)
	Error(err error)
}

// Single is a one-shot asynchronous operation. It is started by calling it
// and may emit a value, an error, or nothing at all. Cancelling ctx disposes
// the subscription and must abort any work still in flight.
type Single[T any] func(ctx context.Context, emit Emitter[T])

// Outcome labels used for metrics.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeTimeout     = "timeout"
	OutcomeInterrupted = "interrupted"
)

// Observer records bridged call outcomes. *telemetry.Metrics satisfies it.
type Observer interface {
	RecordBridgeCall(operation, outcome string, duration time.Duration)
	BridgeCallStarted()
	BridgeCallFinished()
}

// Bridge holds the wait bound and instrumentation shared by bridged calls.
// A Bridge carries no per-call state and is safe for concurrent use.
type Bridge struct {
	timeout  time.Duration
	observer Observer
	logger   *telemetry.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimeout sets the wait bound. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(b *Bridge) {
		b.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// New creates a Bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Timeout returns the configured wait bound.
func (b *Bridge) Timeout() time.Duration {
	return b.timeout
}

// Await blocks until op signals, the bridge timeout elapses, or ctx is done.
// operation and resourceID only add context to faults.
func Await[T any](ctx context.Context, b *Bridge, op Single[T], operation, resourceID string) (T, error) {
	return AwaitWithin(ctx, b, op, operation, resourceID, b.timeout)
}

// AwaitWithin is Await with an explicit wait bound.
//
// Exactly one outcome reaches the caller: the first value, the first error
// wrapped with operation and resource context, or a timeout fault. On
// timeout or interruption the subscription context is cancelled so the
// pending remote call is released.
func AwaitWithin[T any](ctx context.Context, b *Bridge, op Single[T], operation, resourceID string, timeout time.Duration) (T, error) {
	var zero T
	if op == nil {
		return zero, faults.Unclassified(errors.New("nil operation")).WithOperation(operation).WithResource(resourceID)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := time.Now()
	if b.observer != nil {
		b.observer.BridgeCallStarted()
		defer b.observer.BridgeCallFinished()
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := newSlot[T]()
	go subscribe(subCtx, op, s)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-s.ch:
		if out.err != nil {
			b.record(operation, OutcomeError, start)
			b.debug(operation, resourceID, OutcomeError, start)
			return zero, contextualize(out.err, operation, resourceID)
		}
		b.record(operation, OutcomeSuccess, start)
		b.debug(operation, resourceID, OutcomeSuccess, start)
		return out.value, nil

	case <-timer.C:
		cancel()
		b.record(operation, OutcomeTimeout, start)
		b.warn(operation, resourceID, timeout)
		return zero, faults.Timeout(operation, resourceID, timeout)

	case <-ctx.Done():
		cancel()
		b.record(operation, OutcomeInterrupted, start)
		b.debug(operation, resourceID, OutcomeInterrupted, start)
		return zero, faults.Unclassified(fmt.Errorf("call %s interrupted: %w", operation, ctx.Err())).
			WithOperation(operation).
			WithResource(resourceID)
	}
}

// subscribe starts op, turning a panic into an error signal.
func subscribe[T any](ctx context.Context, op Single[T], s *slot[T]) {
	defer func() {
		if r := recover(); r != nil {
			s.Error(fmt.Errorf("operation panicked: %v", r))
		}
	}()
	op(ctx, s)
}

// contextualize attaches operation and resource context to err. Faults keep
// their kind; anything else becomes a remote API fault with no status.
func contextualize(err error, operation, resourceID string) error {
	var f *faults.Fault
	if errors.As(err, &f) {
		return f.WithContext(operation, resourceID)
	}
	return faults.RemoteAPI(0, operation, resourceID, "", err)
}

func (b *Bridge) record(operation, outcome string, start time.Time) {
	if b.observer != nil {
		b.observer.RecordBridgeCall(operation, outcome, time.Since(start))
	}
}

func (b *Bridge) debug(operation, resourceID, outcome string, start time.Time) {
	if b.logger == nil {
		return
	}
	b.logger.WithOperation(operation).
		WithResourceID(resourceID).
		WithField("outcome", outcome).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debug("bridged call finished")
}

func (b *Bridge) warn(operation, resourceID string, timeout time.Duration) {
	if b.logger == nil {
		return
	}
	b.logger.WithOperation(operation).
		WithResourceID(resourceID).
		WithField("timeout", timeout.String()).
		Warn("bridged call timed out, subscription cancelled")
}

type outcome[T any] struct {
	value T
	err   error
}

// slot is the single-assignment completion cell of one call. It is never
// shared between calls.
type slot[T any] struct {
	once sync.Once
	ch   chan outcome[T]
}

func newSlot[T any]() *slot[T] {
	return &slot[T]{ch: make(chan outcome[T], 1)}
}

func (s *slot[T]) Success(value T) {
	s.once.Do(func() {
		s.ch <- outcome[T]{value: value}
	})
}

func (s *slot[T]) Error(err error) {
	if err == nil {
		err = errors.New("operation signalled a nil error")
	}
	s.once.Do(func() {
		s.ch <- outcome[T]{err: err}
	})
}
