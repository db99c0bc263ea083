package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Defaults used when a Policy field is zero.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// ErrExhausted is matched (errors.Is) by the error Do returns once every
// attempt has failed with a retryable error.
var ErrExhausted = errors.New("retry: attempts exhausted")

// State is a step of a single Do invocation.
type State int

const (
	Idle State = iota
	Attempting
	BackingOff
	Succeeded
	Exhausted
	Failed    // non-retryable error
	Cancelled // ctx done while backing off
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attempting:
		return "attempting"
	case BackingOff:
		return "backing_off"
	case Succeeded:
		return "succeeded"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Policy bounds a retry schedule.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Jitter is the fraction (0 ≤ j < 1) by which each delay is randomly
	// stretched or shrunk. Zero disables jitter.
	Jitter float64
}

// withDefaults fills zero fields.
func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter >= 1 {
		p.Jitter = 0.99
	}
	return p
}

// Delay returns the un-jittered wait after the n-th failed attempt (n ≥ 1).
func (p Policy) Delay(n int) time.Duration {
	p = p.withDefaults()
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.MaxDelay || d <= 0 {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Classifier reports whether err should be retried.
type Classifier func(err error) bool

// Always retries every error.
func Always(error) bool { return true }

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Result describes how a Do invocation ended.
type Result struct {
	State    State
	Attempts int
	Waits    []time.Duration
}

// Retrier runs operations under a Policy.
type Retrier struct {
	policy    Policy
	retryable Classifier
	sleep     SleepFunc
	rand      func() float64
	onRetry   func(attempt int, wait time.Duration, err error)
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithSleep replaces the wait implementation; tests use it to record delays
// without sleeping.
func WithSleep(fn SleepFunc) Option {
	return func(r *Retrier) { r.sleep = fn }
}

// WithRand replaces the jitter source. fn must return values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(r *Retrier) { r.rand = fn }
}

// OnRetry registers a hook called before every backoff wait with the number
// of the attempt that just failed.
func OnRetry(fn func(attempt int, wait time.Duration, err error)) Option {
	return func(r *Retrier) { r.onRetry = fn }
}

// New returns a Retrier. A nil classifier retries everything.
func New(p Policy, retryable Classifier, opts ...Option) *Retrier {
	if retryable == nil {
		retryable = Always
	}
	r := &Retrier{
		policy:    p.withDefaults(),
		retryable: retryable,
		sleep:     Sleep,
		rand:      rand.Float64, //nolint:gosec // not crypto
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Policy returns the effective policy, defaults applied.
func (r *Retrier) Policy() Policy { return r.policy }

// Do runs op until it succeeds, returns a non-retryable error, exhausts
// MaxAttempts, or ctx is cancelled during a wait. op receives ctx unchanged.
//
// On exhaustion the returned error wraps both ErrExhausted and the last
// failure. On cancellation it wraps ctx.Err() and the last failure.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) (Result, error) {
	res := Result{State: Idle}

	for {
		res.State = Attempting
		res.Attempts++
		err := op(ctx)
		if err == nil {
			res.State = Succeeded
			return res, nil
		}

		if !r.retryable(err) {
			res.State = Failed
			return res, err
		}
		if res.Attempts >= r.policy.MaxAttempts {
			res.State = Exhausted
			return res, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, res.Attempts, err)
		}

		wait := r.jitter(r.policy.Delay(res.Attempts))
		res.State = BackingOff
		if r.onRetry != nil {
			r.onRetry(res.Attempts, wait, err)
		}
		res.Waits = append(res.Waits, wait)
		if serr := r.sleep(ctx, wait); serr != nil {
			res.State = Cancelled
			return res, fmt.Errorf("retry: %w: %w", serr, err)
		}
	}
}

// jitter applies ±Jitter to d.
func (r *Retrier) jitter(d time.Duration) time.Duration {
	if r.policy.Jitter == 0 {
		return d
	}
	delta := float64(d) * r.policy.Jitter * (r.rand()*2 - 1)
	d += time.Duration(delta)
	if d < 0 {
		d = 0
	}
	return d
}
