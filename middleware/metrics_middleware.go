package middleware

import (
	"context"
	"time"

	"github.com/uber-go/tally"

	"mini-grpc/rpcinfo"
	"mini-grpc/service"
	"mini-grpc/status"
)

// Metrics records per-method counters and latency on scope:
// "calls", "successes", "failures" tagged by code, and "latency".
func Metrics[Req, Resp any](scope tally.Scope) service.Layer[Req, Resp] {
	return around(func(ctx context.Context, req Req, next service.Service[Req, Resp]) (Resp, error) {
		s := scope.Tagged(map[string]string{"method": rpcinfo.MethodFromContext(ctx)})
		s.Counter("calls").Inc(1)

		start := time.Now()
		resp, err := next.Call(ctx, req)
		s.Timer("latency").Record(time.Since(start))

		if err != nil {
			s.Tagged(map[string]string{"code": status.CodeOf(err).String()}).Counter("failures").Inc(1)
		} else {
			s.Counter("successes").Inc(1)
		}
		return resp, err
	})
}
