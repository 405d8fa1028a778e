package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mivvo/internal/logging"
	"mivvo/internal/services"
)

// AttemptObserver receives every classified provider attempt, primary and
// fallback alike.
type AttemptObserver func(kind string, attempt Attempt)

// Chain runs a primary binding with at most one fallback to a secondary
// binding per request. Retries of transient failures happen inside each
// binding; the chain only decides whether the secondary gets its single shot.
type Chain struct {
	primary  Analyzer
	fallback Analyzer
	logger   *slog.Logger
	observer AttemptObserver
}

// ChainOption customizes a Chain.
type ChainOption func(*Chain)

// WithFallback configures the secondary binding.
func WithFallback(fallback Analyzer) ChainOption {
	return func(c *Chain) {
		c.fallback = fallback
	}
}

// WithLogger overrides the chain logger.
func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAttemptObserver registers a sink for attempt records.
func WithAttemptObserver(observer AttemptObserver) ChainOption {
	return func(c *Chain) {
		c.observer = observer
	}
}

// NewChain builds a chain around the primary binding.
func NewChain(primary Analyzer, opts ...ChainOption) (*Chain, error) {
	if primary == nil {
		return nil, errors.New("providers: primary binding required")
	}
	chain := &Chain{
		primary: primary,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(chain)
	}
	return chain, nil
}

// Analyze runs the request through the primary binding and, if that fails
// with anything other than a user error or cancellation, through the fallback
// exactly once. The last failure wins when both bindings fail.
func (c *Chain) Analyze(ctx context.Context, req Request) (*Result, error) {
	result, primaryErr := c.runBinding(ctx, c.primary, req)
	if primaryErr == nil {
		return result, nil
	}
	if !c.shouldFallBack(ctx, primaryErr) {
		return nil, primaryErr
	}

	c.logger.Warn("primary provider failed, trying fallback",
		logging.String(logging.FieldKind, string(req.Kind)),
		logging.String(logging.FieldProvider, c.primary.Name()),
		logging.String("fallback", c.fallback.Name()),
		logging.Error(primaryErr))

	result, fallbackErr := c.runBinding(ctx, c.fallback, req)
	if fallbackErr == nil {
		return result, nil
	}
	return nil, services.Wrap(services.ErrProviderUnavailable, "providers", "analyze",
		fmt.Sprintf("primary %s and fallback %s both failed for %s", c.primary.Name(), c.fallback.Name(), req.Kind),
		errors.Join(primaryErr, fallbackErr))
}

func (c *Chain) runBinding(ctx context.Context, binding Analyzer, req Request) (*Result, error) {
	started := time.Now()
	result, err := binding.Analyze(ctx, req)
	outcome := ClassifyOutcome(err)

	attempt := Attempt{
		Provider: binding.Name(),
		Outcome:  outcome,
		Duration: time.Since(started),
	}
	if result != nil {
		attempt.Model = result.Model
	}
	if err != nil {
		attempt.Err = err.Error()
	}
	if c.observer != nil {
		c.observer(string(req.Kind), attempt)
	}
	c.logger.Debug("provider call settled",
		logging.String(logging.FieldKind, string(req.Kind)),
		logging.String(logging.FieldProvider, binding.Name()),
		logging.String(logging.FieldOutcome, string(outcome)),
		logging.Duration("duration", attempt.Duration))
	return result, err
}

func (c *Chain) shouldFallBack(ctx context.Context, err error) bool {
	if c.fallback == nil {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return !services.IsUserError(err)
}
