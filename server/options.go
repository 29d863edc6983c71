package server

import (
	"time"

	"go.uber.org/zap"

	"mini-grpc/compression"
	"mini-grpc/config"
	"mini-grpc/registry"
)

type options struct {
	log                *zap.Logger
	timeout            time.Duration
	drainTimeout       time.Duration
	keepAlive          time.Duration
	sendCompressions   []compression.Encoding
	acceptCompressions []compression.Encoding
	maxRecvMessageSize int
	http2              config.HTTP2

	registry      registry.Registry
	advertiseAddr string
	registryTTL   int64
}

func defaultOptions() options {
	return fromConfig(config.DefaultServer())
}

func fromConfig(cfg config.Server) options {
	return options{
		log:                zap.NewNop(),
		timeout:            cfg.Timeout,
		drainTimeout:       cfg.DrainTimeout,
		keepAlive:          cfg.KeepAlive,
		sendCompressions:   cfg.SendCompressions,
		acceptCompressions: cfg.AcceptCompressions,
		maxRecvMessageSize: cfg.MaxRecvMessageSize,
		http2:              cfg.HTTP2,
		advertiseAddr:      cfg.AdvertiseAddress,
		registryTTL:        cfg.RegistryTTL,
	}
}

// Option configures a Server.
type Option func(*options)

// WithConfig replaces every setting covered by cfg. Options after it still
// apply.
func WithConfig(cfg config.Server) Option {
	return func(o *options) {
		log, reg := o.log, o.registry
		*o = fromConfig(cfg)
		o.log, o.registry = log, reg
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithTimeout bounds every call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithDrainTimeout bounds how long ServeWithShutdown waits for in-flight
// calls.
func WithDrainTimeout(d time.Duration) Option {
	return func(o *options) { o.drainTimeout = d }
}

// WithKeepAlive sets the TCP keepalive period of accepted connections.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) { o.keepAlive = d }
}

// WithCompressions sets the encodings responses are sent with, in
// preference order, and the encodings accepted on requests.
func WithCompressions(send, accept []compression.Encoding) Option {
	return func(o *options) {
		o.sendCompressions = send
		o.acceptCompressions = accept
	}
}

// WithMaxRecvMessageSize limits request payloads. Zero keeps the protocol
// default.
func WithMaxRecvMessageSize(n int) Option {
	return func(o *options) { o.maxRecvMessageSize = n }
}

// WithHTTP2 sets the HTTP/2 tuning knobs.
func WithHTTP2(cfg config.HTTP2) Option {
	return func(o *options) { o.http2 = cfg }
}

// WithRegistry publishes every service at advertiseAddr while serving.
// An empty advertiseAddr uses the listener's address.
func WithRegistry(reg registry.Registry, advertiseAddr string, ttl int64) Option {
	return func(o *options) {
		o.registry = reg
		o.advertiseAddr = advertiseAddr
		if ttl > 0 {
			o.registryTTL = ttl
		}
	}
}
