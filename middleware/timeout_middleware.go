package middleware

import (
	"context"
	"errors"
	"time"

	"mini-grpc/service"
	"mini-grpc/status"
	"mini-grpc/timeout"
)

// Timeout bounds each call to d. A call still running when d elapses is
// abandoned and the caller gets DeadlineExceeded; a result that arrives in
// time, success or error, passes through unchanged.
func Timeout[Req, Resp any](d time.Duration) service.Layer[Req, Resp] {
	return TimeoutWithTimer[Req, Resp](timeout.New(nil), d)
}

// TimeoutWithTimer is Timeout on an explicit timer.
func TimeoutWithTimer[Req, Resp any](t *timeout.Timer, d time.Duration) service.Layer[Req, Resp] {
	return around(func(ctx context.Context, req Req, next service.Service[Req, Resp]) (Resp, error) {
		resp, err := timeout.Do(ctx, t, d, func(ctx context.Context) (Resp, error) {
			return next.Call(ctx, req)
		})
		if errors.Is(err, timeout.ErrTimeout) {
			return resp, status.Wrap(status.DeadlineExceeded, err)
		}
		return resp, err
	})
}
