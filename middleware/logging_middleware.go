package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mini-grpc/rpcinfo"
	"mini-grpc/service"
	"mini-grpc/status"
)

// Logging logs one entry per call with its method, duration and code.
func Logging[Req, Resp any](log *zap.Logger) service.Layer[Req, Resp] {
	return around(func(ctx context.Context, req Req, next service.Service[Req, Resp]) (Resp, error) {
		start := time.Now()
		resp, err := next.Call(ctx, req)

		fields := []zap.Field{
			zap.String("method", rpcinfo.MethodFromContext(ctx)),
			zap.Duration("duration", time.Since(start)),
			zap.Stringer("code", status.CodeOf(err)),
		}
		if info, ok := rpcinfo.FromContext(ctx); ok {
			if info.Caller != nil {
				fields = append(fields, zap.Stringer("caller", info.Caller))
			}
			if info.Callee != nil {
				fields = append(fields, zap.Stringer("callee", info.Callee))
			}
		}
		if err != nil {
			log.Warn("call failed", append(fields, zap.Error(err))...)
		} else {
			log.Info("call", fields...)
		}
		return resp, err
	})
}
