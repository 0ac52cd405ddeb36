// File: internal/browser/element/handle.go
package element

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/poll"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/uierr"
)

// DefaultTimeout is used when no WithTimeout/WithPolicy option is given.
const DefaultTimeout = 120 * time.Second

// Handle is a self-healing proxy for one logical element. It caches a remote
// reference and, whenever an operation fails with a retryable error, drops
// that reference and resolves the same Locator again before retrying. Every
// operation is bounded by the handle's timeout.
//
// A Handle is not safe for concurrent use.
type Handle struct {
	drv    driver.Driver
	loc    locator.Locator
	parent *Handle
	policy poll.Policy
	logger *zap.Logger

	ref     driver.ElementRef
	lastErr error
}

// Option configures a Handle.
type Option func(*Handle)

// WithTimeout sets the budget of every operation on the handle.
func WithTimeout(d time.Duration) Option {
	return func(h *Handle) { h.policy.Timeout = d }
}

// WithPolicy replaces the whole retry policy, timeout included.
func WithPolicy(p poll.Policy) Option {
	return func(h *Handle) { h.policy = p }
}

func WithLogger(logger *zap.Logger) Option {
	return func(h *Handle) {
		if logger != nil {
			h.logger = logger.Named("element")
		}
	}
}

// New returns an unbound handle. The first operation resolves it.
func New(drv driver.Driver, loc locator.Locator, opts ...Option) *Handle {
	h := &Handle{
		drv:    drv,
		loc:    loc,
		policy: poll.DefaultPolicy(DefaultTimeout),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Find returns a handle that is already bound, or ErrElementNotFound once the
// timeout passes without a match.
func Find(ctx context.Context, drv driver.Driver, loc locator.Locator, opts ...Option) (*Handle, error) {
	h := New(drv, loc, opts...)
	if err := h.Bind(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handle) Locator() locator.Locator { return h.loc }

// Timeout is the per-operation budget.
func (h *Handle) Timeout() time.Duration { return h.policy.Timeout }

// LastError is the most recent failure seen by any attempt, including ones
// that were later retried successfully.
func (h *Handle) LastError() error { return h.lastErr }

// Bound reports whether a reference is currently cached.
func (h *Handle) Bound() bool { return h.ref != nil }

// Bind drops any cached reference and resolves the locator under the poll
// engine. Lookups that match nothing, and transient failures, are retried.
func (h *Handle) Bind(ctx context.Context) error {
	h.ref = nil
	out := poll.Run(ctx, h.policy, func(ctx context.Context) (driver.ElementRef, error) {
		ref, err := h.resolve(ctx)
		if err != nil {
			h.lastErr = err
		}
		return ref, err
	}, retryTransient)

	switch out.Status {
	case poll.Succeeded:
		return nil
	case poll.Exhausted:
		h.logger.Debug("Element never appeared.", zap.Stringer("locator", h.loc), zap.Int("attempts", out.Attempts), zap.Error(out.Err))
		return &uierr.TimeoutError{
			Op:       "find " + h.loc.String(),
			Budget:   h.policy.Timeout,
			Attempts: out.Attempts,
			Sentinel: uierr.ErrElementNotFound,
			Last:     out.Err,
		}
	default:
		return fmt.Errorf("find %s: %w", h.loc, out.Err)
	}
}

// FindChild returns a lazily bound handle for loc searched within this
// element's subtree. It shares the driver, policy and logger.
func (h *Handle) FindChild(loc locator.Locator) *Handle {
	return &Handle{
		drv:    h.drv,
		loc:    loc,
		parent: h,
		policy: h.policy,
		logger: h.logger,
	}
}

// resolve returns the cached reference or performs a single lookup.
func (h *Handle) resolve(ctx context.Context) (driver.ElementRef, error) {
	if h.ref != nil {
		return h.ref, nil
	}

	var scope driver.ElementRef
	if h.parent != nil {
		ref, err := h.parent.resolve(ctx)
		if err != nil {
			return nil, err
		}
		scope = ref
	}

	ref, err := h.drv.FindElement(ctx, scope, h.loc)
	if err != nil {
		// The container was re-rendered; find it again next time.
		if h.parent != nil && uierr.KindOf(err) == uierr.KindStaleReference {
			h.parent.invalidate(err)
		}
		return nil, err
	}
	h.ref = ref
	return ref, nil
}

func (h *Handle) invalidate(cause error) {
	if h.ref == nil {
		return
	}
	h.logger.Debug("Discarding element reference.", zap.Stringer("locator", h.loc), zap.Error(cause))
	h.ref = nil
}

// -- Retry classes --

// rebindPending covers a lookup that found nothing while re-resolving: the
// element may be between renders.
func rebindPending(err error) bool {
	return uierr.KindOf(err) == uierr.KindNoSuchElement
}

func retryTransient(err error) bool {
	return uierr.IsTransient(err) || rebindPending(err)
}

func retryStale(err error) bool {
	return uierr.KindOf(err) == uierr.KindStaleReference || rebindPending(err)
}

// retryAny retries everything except a dead session and context errors.
func retryAny(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return uierr.KindOf(err) != uierr.KindSessionClosed
}

// do runs fn against a resolved reference under the poll engine. A failure
// accepted by retry invalidates the cached reference first.
func do[T any](ctx context.Context, h *Handle, op string, retry poll.Classifier, fn func(context.Context, driver.ElementRef) (T, error)) (T, error) {
	out := poll.Run(ctx, h.policy, func(ctx context.Context) (T, error) {
		var zero T
		ref, err := h.resolve(ctx)
		if err != nil {
			h.lastErr = err
			return zero, err
		}
		v, err := fn(ctx, ref)
		if err != nil {
			h.lastErr = err
			if retry(err) {
				h.invalidate(err)
			}
		}
		return v, err
	}, retry)

	var zero T
	switch out.Status {
	case poll.Succeeded:
		return out.Value, nil
	case poll.Exhausted:
		h.logger.Debug("Element operation timed out.",
			zap.String("op", op),
			zap.Stringer("locator", h.loc),
			zap.Int("attempts", out.Attempts),
			zap.Error(out.Err))
		// An element that never resolved is reported as not found, not as
		// an interaction that kept failing.
		sentinel := uierr.ErrOperationTimeout
		if uierr.KindOf(out.Err) == uierr.KindNoSuchElement {
			sentinel = uierr.ErrElementNotFound
		}
		return zero, &uierr.TimeoutError{
			Op:       op + " " + h.loc.String(),
			Budget:   h.policy.Timeout,
			Attempts: out.Attempts,
			Sentinel: sentinel,
			Last:     out.Err,
		}
	default:
		return zero, fmt.Errorf("%s %s: %w", op, h.loc, out.Err)
	}
}

// exec adapts an error-only primitive to do.
func exec(ctx context.Context, h *Handle, op string, retry poll.Classifier, fn func(context.Context, driver.ElementRef) error) error {
	_, err := do(ctx, h, op, retry, func(ctx context.Context, ref driver.ElementRef) (struct{}, error) {
		return struct{}{}, fn(ctx, ref)
	})
	return err
}
