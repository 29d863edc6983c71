package middleware

import (
	"context"
	"time"

	"mini-grpc/service"
	"mini-grpc/status"
)

// RetryPolicy decides which failures are retried and how long to wait.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Retryable defaults to Unavailable only.
	Retryable func(status.Code) bool
}

func (p RetryPolicy) retryable(c status.Code) bool {
	if p.Retryable != nil {
		return p.Retryable(c)
	}
	return c == status.Unavailable
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}

// Retry re-issues failed calls with exponential backoff. Each attempt waits
// for readiness again. The request is reused, so it must not be mutated by
// inner services.
func Retry[Req, Resp any](p RetryPolicy) service.Layer[Req, Resp] {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return around(func(ctx context.Context, req Req, next service.Service[Req, Resp]) (Resp, error) {
		resp, err := next.Call(ctx, req)
		for attempt := 1; attempt < p.MaxAttempts && err != nil; attempt++ {
			if !p.retryable(status.CodeOf(err)) {
				break
			}
			t := time.NewTimer(p.delay(attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return resp, err
			case <-t.C:
			}
			if rerr := next.Ready(ctx); rerr != nil {
				return resp, rerr
			}
			resp, err = next.Call(ctx, req)
		}
		return resp, err
	})
}
