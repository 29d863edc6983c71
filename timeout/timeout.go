// Package timeout races an operation against a deadline.
package timeout

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrTimeout is returned when the timer fires before the operation
// completes.
var ErrTimeout = errors.New("future has timed out")

// Timer races operations against durations measured on a clock.
type Timer struct {
	clock clock.Clock
}

// New returns a Timer using c; nil means the wall clock.
func New(c clock.Clock) *Timer {
	if c == nil {
		c = clock.New()
	}
	return &Timer{clock: c}
}

var defaultTimer = New(nil)

// Race runs op on the wall clock. See Timer.Race.
func Race[T any](ctx context.Context, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	return Do(ctx, defaultTimer, d, op)
}

// Do runs op in its own goroutine and returns its result if it finishes
// within d, or ErrTimeout otherwise. The losing operation is abandoned: its
// context is cancelled and its result discarded, but Do does not wait for
// it. A result that arrives at or after the deadline loses, so a tie is a
// timeout. A non-positive d runs op inline without a deadline.
func Do[T any](ctx context.Context, t *Timer, d time.Duration, op func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return op(ctx)
	}

	type result struct {
		v   T
		err error
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan result, 1)
	deadline := t.clock.Now().Add(d)
	timer := t.clock.Timer(d)
	defer timer.Stop()

	go func() {
		v, err := op(ctx)
		done <- result{v, err}
	}()

	var zero T
	select {
	case r := <-done:
		cancel()
		if !t.clock.Now().Before(deadline) {
			return zero, ErrTimeout
		}
		return r.v, r.err
	case <-timer.C:
		cancel()
		return zero, ErrTimeout
	case <-ctx.Done():
		err := ctx.Err()
		cancel()
		return zero, err
	}
}
