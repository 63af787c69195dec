package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultInterval is the spacing between two attempts when a Policy
	// does not set one.
	DefaultInterval = 1 * time.Second
	// DefaultTimeout is the total wall-clock budget when a Policy does
	// not set one.
	DefaultTimeout = 30 * time.Second
)

// Policy describes how long and how often an action is retried.
// The budget is measured on the wall clock, not in attempts, so slow
// endpoints get fewer attempts rather than a longer overall wait.
type Policy struct {
	// Timeout is the total time allowed across all attempts.
	Timeout time.Duration `json:"timeout"`
	// Interval is the pause between the end of one attempt and the
	// start of the next.
	Interval time.Duration `json:"interval"`
}

// DefaultPolicy returns a Policy with DefaultTimeout and DefaultInterval.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:  DefaultTimeout,
		Interval: DefaultInterval,
	}
}

func (p Policy) withDefaults() Policy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	return p
}

// backOff turns the policy into a constant, non-randomized backoff that
// stops once the elapsed time would exceed the timeout.
func (p Policy) backOff() backoff.BackOff {
	p = p.withDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Interval
	b.MaxInterval = p.Interval
	b.Multiplier = 1
	b.RandomizationFactor = 0
	b.MaxElapsedTime = p.Timeout
	b.Reset()
	return b
}

// Result is the outcome of a successful Do.
type Result[T any] struct {
	// Value is the first value that passed the check.
	Value T
	// Attempts is the number of times the action ran.
	Attempts int
}

// Notify is called after every failed attempt with the attempt number,
// the error it produced and the wait before the next attempt.
type Notify func(attempt int, err error, wait time.Duration)

// Option customizes a single Do or Eventually call.
type Option func(*options)

type options struct {
	notify Notify
}

// WithNotify registers fn to be called after every failed attempt.
func WithNotify(fn Notify) Option {
	return func(o *options) {
		o.notify = fn
	}
}

// Permanent marks err as non-retryable. Do returns it unwrapped on the
// attempt that produced it.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs action and then check on its value until check passes or the
// policy's timeout elapses. Attempts never overlap: the next one starts
// only after the previous one returned and Interval has passed.
//
// A nil check accepts every value action returns without error. When the
// budget runs out, the error of the last attempt is returned as is so the
// caller sees the most specific failure rather than a generic timeout.
func Do[T any](
	ctx context.Context,
	p Policy,
	action func(context.Context) (T, error),
	check func(T) error,
	opts ...Option,
) (Result[T], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	attempts := 0
	operation := func() (T, error) {
		attempts++
		v, err := action(ctx)
		if err == nil && check != nil {
			err = check(v)
		}
		if err != nil {
			var zero T
			return zero, err
		}
		return v, nil
	}
	notify := func(err error, wait time.Duration) {
		if o.notify != nil {
			o.notify(attempts, err, wait)
		}
	}

	v, err := backoff.RetryNotifyWithData(operation, backoff.WithContext(p.backOff(), ctx), notify)
	return Result[T]{Value: v, Attempts: attempts}, err
}

// Eventually retries assertion until it returns nil or the policy's
// timeout elapses, returning the last assertion error in the latter case.
func Eventually(ctx context.Context, p Policy, assertion func(context.Context) error, opts ...Option) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, assertion(ctx)
	}, nil, opts...)
	return err
}
