package middleware

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"mini-grpc/message"
	"mini-grpc/metadata"
	"mini-grpc/rpcinfo"
	"mini-grpc/service"
	"mini-grpc/status"
)

// mdCarrier lets the tracer read and write request metadata.
type mdCarrier metadata.MD

func (c mdCarrier) Set(key, val string) {
	metadata.MD(c).Set(key, val)
}

func (c mdCarrier) ForeachKey(handler func(key, val string) error) error {
	for k, vs := range c {
		for _, v := range vs {
			if err := handler(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// ClientTracing starts a client span per call and injects it into the
// request metadata.
func ClientTracing[T, U any](tracer opentracing.Tracer) service.Layer[*message.Request[T], *message.Response[U]] {
	return around(func(ctx context.Context, req *message.Request[T], next service.Service[*message.Request[T], *message.Response[U]]) (*message.Response[U], error) {
		var parent opentracing.SpanContext
		if sp := opentracing.SpanFromContext(ctx); sp != nil {
			parent = sp.Context()
		}
		span := tracer.StartSpan(rpcinfo.MethodFromContext(ctx), opentracing.ChildOf(parent), ext.SpanKindRPCClient)
		defer span.Finish()
		if info, ok := rpcinfo.FromContext(ctx); ok && info.Callee != nil {
			ext.PeerAddress.Set(span, info.Callee.String())
		}

		if req.Metadata == nil {
			req.Metadata = metadata.MD{}
		}
		if err := tracer.Inject(span.Context(), opentracing.TextMap, mdCarrier(req.Metadata)); err != nil {
			span.LogKV("event", "inject failed", "error", err.Error())
		}

		resp, err := next.Call(opentracing.ContextWithSpan(ctx, span), req)
		finishSpan(span, err)
		return resp, err
	})
}

// ServerTracing continues the caller's span, if the request carries one.
func ServerTracing[T, U any](tracer opentracing.Tracer) service.Layer[*message.Request[T], *message.Response[U]] {
	return around(func(ctx context.Context, req *message.Request[T], next service.Service[*message.Request[T], *message.Response[U]]) (*message.Response[U], error) {
		parent, _ := tracer.Extract(opentracing.TextMap, mdCarrier(req.Metadata))
		span := tracer.StartSpan(rpcinfo.MethodFromContext(ctx), ext.RPCServerOption(parent))
		defer span.Finish()
		if info, ok := rpcinfo.FromContext(ctx); ok && info.Caller != nil {
			ext.PeerAddress.Set(span, info.Caller.String())
		}

		resp, err := next.Call(opentracing.ContextWithSpan(ctx, span), req)
		finishSpan(span, err)
		return resp, err
	})
}

func finishSpan(span opentracing.Span, err error) {
	code := status.CodeOf(err)
	span.SetTag("rpc.status_code", code.String())
	if err != nil {
		ext.Error.Set(span, true)
		span.LogKV("event", "error", "message", err.Error())
	}
}
