// Package client calls unary methods on remote services.
//
// A Client owns its connections; create one per target and share it. Typed
// stubs are built with NewUnary:
//
//	c, err := client.New(client.WithTarget("127.0.0.1:8080"), client.WithCodec(codec.JSON{}))
//	sayHello := client.NewUnary[HelloRequest, HelloReply](c, "/hello.Greeter/SayHello")
//	resp, err := sayHello.Call(ctx, message.NewRequest(HelloRequest{Name: "Volo"}))
package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mini-grpc/codec"
	"mini-grpc/config"
	"mini-grpc/conn"
	"mini-grpc/message"
	"mini-grpc/middleware"
	"mini-grpc/rpcinfo"
	"mini-grpc/service"
	"mini-grpc/status"
	"mini-grpc/transport"
)

// Client resolves callees and runs calls over a shared transport.
type Client struct {
	opts   options
	codec  codec.Codec
	target conn.Address
	tr     *transport.ClientTransport
	log    *zap.Logger
}

// New creates a Client. Connections are dialed on first use.
func New(opts ...Option) (*Client, error) {
	o := options{cfg: config.DefaultClient()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log
	if log == nil {
		log = zap.NewNop()
	}

	c := &Client{opts: o, codec: o.codec, log: log.Named("client")}
	if c.codec == nil {
		name := o.cfg.Codec
		if name == "" {
			name = codec.Proto{}.Name()
		}
		cdc, ok := codec.Get(name)
		if !ok {
			return nil, fmt.Errorf("client: unknown codec %q", name)
		}
		c.codec = cdc
	}
	if o.cfg.Target != "" {
		addr, err := conn.ParseAddress(o.cfg.Target)
		if err != nil {
			return nil, fmt.Errorf("client: target: %w", err)
		}
		c.target = addr
	}
	if o.registry != nil && o.balancer == nil {
		return nil, fmt.Errorf("client: a resolver needs a balancer")
	}

	c.tr = transport.NewClientTransport(transport.Options{
		HTTP2:              o.cfg.HTTP2,
		MaxConnsPerAddress: o.cfg.MaxConnsPerAddress,
		KeepAlive:          o.cfg.KeepAlive,
		Logger:             log,
	})
	return c, nil
}

// Close closes every connection. Calls in flight fail.
func (c *Client) Close() error {
	return c.tr.Close()
}

// resolve picks the callee. A nil address with a nil error is left for the
// transport to reject.
func (c *Client) resolve(ctx context.Context, method string, co *callOptions) (conn.Address, error) {
	if co.target != nil {
		return co.target, nil
	}
	if c.target != nil {
		return c.target, nil
	}
	if c.opts.registry == nil {
		return nil, nil
	}
	svcName, _ := rpcinfo.SplitMethod(method)
	instances, err := c.opts.registry.Discover(ctx, svcName)
	if err != nil {
		return nil, status.Wrap(status.Unavailable, fmt.Errorf("discover %s: %w", svcName, err))
	}
	inst, err := c.opts.balancer.Pick(ctx, instances)
	if err != nil {
		return nil, status.Wrap(status.Unavailable, fmt.Errorf("pick instance of %s: %w", svcName, err))
	}
	addr, err := inst.Address()
	if err != nil {
		return nil, status.Wrap(status.Unavailable, err)
	}
	return addr, nil
}

// Unary is a typed stub for one method.
type Unary[T, U any] struct {
	c      *Client
	method string
	svc    service.Service[*message.Request[T], *message.Response[U]]
}

// NewUnary returns the stub for method, a full path such as
// "/hello.Greeter/SayHello".
func NewUnary[T, U any](c *Client, method string) *Unary[T, U] {
	var layers []service.Layer[*message.Request[T], *message.Response[U]]
	if c.opts.log != nil {
		layers = append(layers, middleware.Logging[*message.Request[T], *message.Response[U]](c.log))
	}
	if c.opts.scope != nil {
		layers = append(layers, middleware.Metrics[*message.Request[T], *message.Response[U]](c.opts.scope))
	}
	if c.opts.tracer != nil {
		layers = append(layers, middleware.ClientTracing[T, U](c.opts.tracer))
	}
	if c.opts.timeout > 0 {
		layers = append(layers, middleware.Timeout[*message.Request[T], *message.Response[U]](c.opts.timeout))
	}
	if c.opts.limiter != nil {
		layers = append(layers, middleware.RateLimitWith[*message.Request[T], *message.Response[U]](c.opts.limiter))
	}
	if c.opts.retry != nil {
		layers = append(layers, middleware.Retry[*message.Request[T], *message.Response[U]](*c.opts.retry))
	}
	return &Unary[T, U]{
		c:      c,
		method: method,
		svc:    service.Apply(service.Service[*message.Request[T], *message.Response[U]](transport.NewUnary[T, U](c.tr)), layers...),
	}
}

// Call sends req and waits for the response.
func (u *Unary[T, U]) Call(ctx context.Context, req *message.Request[T], opts ...CallOption) (*message.Response[U], error) {
	co := callOptions{cfg: u.c.opts.cfg.Call.Clone()}
	for _, opt := range opts {
		opt(&co)
	}
	addr, err := u.c.resolve(ctx, u.method, &co)
	if err != nil {
		return nil, err
	}
	ctx = rpcinfo.NewContext(ctx, &rpcinfo.RPCInfo{
		Callee: addr,
		Method: u.method,
		Codec:  u.c.codec,
		Config: co.cfg,
	})
	return service.Oneshot(ctx, u.svc, req)
}

// Invoke calls method with msg and returns the response message.
func Invoke[T, U any](ctx context.Context, c *Client, method string, msg T, opts ...CallOption) (U, error) {
	resp, err := NewUnary[T, U](c, method).Call(ctx, message.NewRequest(msg), opts...)
	if err != nil {
		var zero U
		return zero, err
	}
	return resp.Message, nil
}
