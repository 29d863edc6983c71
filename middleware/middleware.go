// Package middleware provides stock layers. Each constructor is generic so
// the same layer wraps typed client stubs and the server's raw handler.
package middleware

import (
	"context"

	"mini-grpc/message"
	"mini-grpc/service"
)

// Raw request and response types seen by server-wide layers.
type (
	RawRequest  = message.Request[[]byte]
	RawResponse = message.Response[[]byte]
	RawLayer    = service.Layer[*RawRequest, *RawResponse]
)

// Chain composes layers, outermost first.
func Chain[Req, Resp any](layers ...service.Layer[Req, Resp]) service.Layer[Req, Resp] {
	return service.Stack(layers...)
}

func around[Req, Resp any](
	call func(ctx context.Context, req Req, next service.Service[Req, Resp]) (Resp, error),
) service.Layer[Req, Resp] {
	return service.LayerFunc[Req, Resp](func(inner service.Service[Req, Resp]) service.Service[Req, Resp] {
		return service.Around(inner, call)
	})
}
