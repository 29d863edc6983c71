package server

import (
	"context"
	"fmt"

	"mini-grpc/codec"
	"mini-grpc/message"
	"mini-grpc/middleware"
	"mini-grpc/rpcinfo"
	"mini-grpc/service"
	"mini-grpc/status"
)

// Handler serves one method on raw payloads. The codec negotiated for the
// call is in the context's RPCInfo.
type Handler = service.Service[*middleware.RawRequest, *middleware.RawResponse]

// ServiceDesc names a service and its methods. Name is the fully qualified
// service, e.g. "hello.Greeter"; method keys are bare names, e.g. "SayHello".
type ServiceDesc struct {
	Name    string
	Methods map[string]Handler
}

// UnaryFunc handles a decoded request.
type UnaryFunc[T, U any] func(ctx context.Context, req *message.Request[T]) (*message.Response[U], error)

// Unary adapts a typed handler. The request payload is decoded and the
// response encoded with the call's codec.
func Unary[T, U any](fn UnaryFunc[T, U]) Handler {
	return service.Func[*middleware.RawRequest, *middleware.RawResponse](
		func(ctx context.Context, raw *middleware.RawRequest) (*middleware.RawResponse, error) {
			cdc := codecFromContext(ctx)
			msg, err := codec.Decode[T](cdc, raw.Message)
			if err != nil {
				return nil, status.Wrap(status.Internal, fmt.Errorf("unmarshal request: %w", err))
			}
			resp, err := fn(ctx, &message.Request[T]{
				Metadata:   raw.Metadata,
				Extensions: raw.Extensions,
				Message:    msg,
			})
			if err != nil {
				return nil, err
			}
			if resp == nil {
				return nil, status.New(status.Internal, "handler returned no response")
			}
			data, err := cdc.Marshal(resp.Message)
			if err != nil {
				return nil, status.Wrap(status.Internal, fmt.Errorf("marshal response: %w", err))
			}
			return &middleware.RawResponse{
				Metadata:   resp.Metadata,
				Trailers:   resp.Trailers,
				Extensions: resp.Extensions,
				Message:    data,
			}, nil
		})
}

func codecFromContext(ctx context.Context) codec.Codec {
	if info, ok := rpcinfo.FromContext(ctx); ok && info.Codec != nil {
		return info.Codec
	}
	return codec.Proto{}
}

// router dispatches by the service and method of the call's path.
type router struct {
	services map[string]*ServiceDesc
}

func (r *router) Ready(context.Context) error { return nil }

func (r *router) Call(ctx context.Context, req *middleware.RawRequest) (*middleware.RawResponse, error) {
	path := rpcinfo.MethodFromContext(ctx)
	svcName, method := rpcinfo.SplitMethod(path)
	if svcName == "" {
		return nil, status.Newf(status.Unimplemented, "malformed method name %q", path)
	}
	desc, ok := r.services[svcName]
	if !ok {
		return nil, status.Newf(status.Unimplemented, "unknown service %s", svcName)
	}
	h, ok := desc.Methods[method]
	if !ok {
		return nil, status.Newf(status.Unimplemented, "unknown method %s for service %s", method, svcName)
	}
	return service.Oneshot(ctx, h, req)
}
