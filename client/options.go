package client

import (
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mini-grpc/codec"
	"mini-grpc/compression"
	"mini-grpc/config"
	"mini-grpc/conn"
	"mini-grpc/loadbalance"
	"mini-grpc/middleware"
	"mini-grpc/registry"
)

type options struct {
	cfg      config.Client
	codec    codec.Codec
	log      *zap.Logger
	tracer   opentracing.Tracer
	scope    tally.Scope
	limiter  *rate.Limiter
	retry    *middleware.RetryPolicy
	timeout  time.Duration
	registry registry.Registry
	balancer loadbalance.Balancer
}

// Option configures a Client.
type Option func(*options)

// WithConfig replaces the client configuration.
func WithConfig(cfg config.Client) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithTarget sends every call to addr, an "ip:port" or a socket path.
func WithTarget(addr string) Option {
	return func(o *options) { o.cfg.Target = addr }
}

// WithResolver resolves the callee per call: the service's instances are
// discovered in reg and one is picked by bal.
func WithResolver(reg registry.Registry, bal loadbalance.Balancer) Option {
	return func(o *options) {
		o.registry = reg
		o.balancer = bal
	}
}

// WithCodec sets the payload codec. The default is taken from the config,
// proto when unset.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithCompressions sets the send preference and accept lists of every call.
func WithCompressions(send, accept []compression.Encoding) Option {
	return func(o *options) {
		o.cfg.Call.SendCompressions = send
		o.cfg.Call.AcceptCompressions = accept
	}
}

// WithLogger logs every call.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithTracer starts a client span per call and propagates it in metadata.
func WithTracer(t opentracing.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMetrics reports call counts and latency to scope.
func WithMetrics(scope tally.Scope) Option {
	return func(o *options) { o.scope = scope }
}

// WithRateLimit admits r calls per second across the client.
func WithRateLimit(r float64, burst int) Option {
	return func(o *options) { o.limiter = rate.NewLimiter(rate.Limit(r), burst) }
}

// WithRetry retries failed calls per p.
func WithRetry(p middleware.RetryPolicy) Option {
	return func(o *options) { o.retry = &p }
}

// WithTimeout bounds each call, retries included.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	cfg    config.Call
	target conn.Address
}

// WithAddress overrides the callee of one call.
func WithAddress(addr conn.Address) CallOption {
	return func(o *callOptions) { o.target = addr }
}

// WithConnectTimeout bounds dialing.
func WithConnectTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.cfg.ConnectTimeout = d }
}

// WithReadTimeout bounds reading the response after its headers.
func WithReadTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.cfg.ReadTimeout = d }
}

// WithWriteTimeout bounds sending the request until response headers.
func WithWriteTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.cfg.WriteTimeout = d }
}

// WithSendCompression compresses the request with enc.
func WithSendCompression(enc compression.Encoding) CallOption {
	return func(o *callOptions) { o.cfg.SendCompressions = []compression.Encoding{enc} }
}
