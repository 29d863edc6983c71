// Package service defines the readiness-plus-call contract shared by client
// and server, and the layer algebra used to wrap it.
//
// A caller first waits for Ready, then issues exactly one Call. Layers wrap
// a Service into another Service with the same request and response types;
// a wrapping layer forwards Ready to the service it wraps unless it has its
// own capacity to wait for.
package service

import "context"

// Service processes requests.
type Service[Req, Resp any] interface {
	// Ready blocks until the service can accept one call, or returns the
	// reason it never will.
	Ready(ctx context.Context) error
	// Call processes one request.
	Call(ctx context.Context, req Req) (Resp, error)
}

// Func is a Service that is always ready.
type Func[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

func (f Func[Req, Resp]) Ready(context.Context) error { return nil }

func (f Func[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// Oneshot waits for svc to be ready and then calls it once.
func Oneshot[Req, Resp any](ctx context.Context, svc Service[Req, Resp], req Req) (Resp, error) {
	if err := svc.Ready(ctx); err != nil {
		var zero Resp
		return zero, err
	}
	return svc.Call(ctx, req)
}

// Layer wraps a Service.
type Layer[Req, Resp any] interface {
	Layer(inner Service[Req, Resp]) Service[Req, Resp]
}

// LayerFunc adapts a function to Layer.
type LayerFunc[Req, Resp any] func(inner Service[Req, Resp]) Service[Req, Resp]

func (f LayerFunc[Req, Resp]) Layer(inner Service[Req, Resp]) Service[Req, Resp] {
	return f(inner)
}

// Identity returns a Layer that leaves the service unchanged.
func Identity[Req, Resp any]() Layer[Req, Resp] {
	return LayerFunc[Req, Resp](func(inner Service[Req, Resp]) Service[Req, Resp] { return inner })
}

// Stack composes layers. The first layer is the outermost: it sees the
// request first and the response last. nil layers are skipped.
func Stack[Req, Resp any](layers ...Layer[Req, Resp]) Layer[Req, Resp] {
	return LayerFunc[Req, Resp](func(inner Service[Req, Resp]) Service[Req, Resp] {
		for i := len(layers) - 1; i >= 0; i-- {
			if layers[i] != nil {
				inner = layers[i].Layer(inner)
			}
		}
		return inner
	})
}

// Apply wraps svc with layers, outermost first.
func Apply[Req, Resp any](svc Service[Req, Resp], layers ...Layer[Req, Resp]) Service[Req, Resp] {
	return Stack(layers...).Layer(svc)
}

// Around builds a Service that runs call around inner and forwards Ready to
// inner. It is the usual way to write a layer that only touches the call.
func Around[Req, Resp any](
	inner Service[Req, Resp],
	call func(ctx context.Context, req Req, next Service[Req, Resp]) (Resp, error),
) Service[Req, Resp] {
	return &around[Req, Resp]{inner: inner, call: call}
}

type around[Req, Resp any] struct {
	inner Service[Req, Resp]
	call  func(ctx context.Context, req Req, next Service[Req, Resp]) (Resp, error)
}

func (a *around[Req, Resp]) Ready(ctx context.Context) error {
	return a.inner.Ready(ctx)
}

func (a *around[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return a.call(ctx, req, a.inner)
}
