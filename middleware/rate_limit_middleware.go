package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"mini-grpc/service"
	"mini-grpc/status"
)

// RateLimit admits r calls per second with the given burst and rejects the
// rest with ResourceExhausted.
func RateLimit[Req, Resp any](r float64, burst int) service.Layer[Req, Resp] {
	return RateLimitWith[Req, Resp](rate.NewLimiter(rate.Limit(r), burst))
}

// RateLimitWith shares limiter between every service it wraps.
func RateLimitWith[Req, Resp any](limiter *rate.Limiter) service.Layer[Req, Resp] {
	return around(func(ctx context.Context, req Req, next service.Service[Req, Resp]) (Resp, error) {
		if !limiter.Allow() {
			var zero Resp
			return zero, status.New(status.ResourceExhausted, "rate limit exceeded")
		}
		return next.Call(ctx, req)
	})
}
