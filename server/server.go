// Package server routes inbound calls to registered services.
//
// A Server moves through four states:
//
//	Building -> Running -> Draining -> Stopped
//
// Services and layers are added while Building. Serve starts Running.
// Shutdown enters Draining: the server deregisters from the registry,
// stops accepting connections, sends GOAWAY on open ones, and waits for
// in-flight calls before Stopped.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"

	"mini-grpc/conn"
	"mini-grpc/middleware"
	"mini-grpc/registry"
	"mini-grpc/service"
)

// State is the lifecycle state of a Server.
type State int32

const (
	Building State = iota
	Running
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var (
	// ErrServerStarted is returned when the server is configured or served
	// after Serve.
	ErrServerStarted = errors.New("server already started")
	// ErrDuplicateService is returned when a service name is added twice.
	ErrDuplicateService = errors.New("duplicate service")
)

// Server dispatches calls to services by name.
type Server struct {
	opts  options
	log   *zap.Logger
	state atomic.Int32

	mu       sync.Mutex
	services map[string]*ServiceDesc
	layers   []middleware.RawLayer
	handler  Handler
	ln       *conn.Listener
	h1       *http.Server
	conns    map[*conn.Conn]struct{}
	active   int
	idle     chan struct{}
	stopped  chan struct{}

	connWG sync.WaitGroup
}

// NewServer creates a Server in the Building state.
func NewServer(opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	return &Server{
		opts:     o,
		log:      o.log.Named("server"),
		services: make(map[string]*ServiceDesc),
		conns:    make(map[*conn.Conn]struct{}),
		stopped:  make(chan struct{}),
	}
}

// State returns the current state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// setState is called with s.mu held.
func (s *Server) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	s.log.Info("state changed", zap.Stringer("from", prev), zap.Stringer("to", st))
}

// AddService registers desc under desc.Name.
func (s *Server) AddService(desc *ServiceDesc) error {
	if desc == nil || desc.Name == "" {
		return errors.New("service must have a name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != Building {
		return ErrServerStarted
	}
	if _, ok := s.services[desc.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateService, desc.Name)
	}
	s.services[desc.Name] = desc
	return nil
}

// AddOptionalService is AddService that ignores a nil desc.
func (s *Server) AddOptionalService(desc *ServiceDesc) error {
	if desc == nil {
		return nil
	}
	return s.AddService(desc)
}

// Use wraps every service in layer. Layers added first are outermost.
func (s *Server) Use(layer middleware.RawLayer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != Building {
		return ErrServerStarted
	}
	s.layers = append(s.layers, layer)
	return nil
}

// Addr returns the listener address, nil before Serve.
func (s *Server) Addr() conn.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ServeWithShutdown listens on addr and serves until signal fires or ctx
// is done, then drains for at most the drain timeout.
func (s *Server) ServeWithShutdown(ctx context.Context, addr conn.Address, signal <-chan struct{}) error {
	ln, err := conn.ListenContext(ctx, addr, s.opts.keepAlive)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(gctx, ln)
	})
	g.Go(func() error {
		select {
		case <-signal:
			s.log.Info("shutdown signal received")
			return s.drain()
		case <-s.stopped:
			return nil
		}
	})
	return g.Wait()
}

// Serve accepts connections on ln until Shutdown or ctx is done, and
// returns once the server is Stopped. ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln *conn.Listener) error {
	s.mu.Lock()
	if s.State() != Building {
		s.mu.Unlock()
		ln.Close()
		return ErrServerStarted
	}
	layers := make([]middleware.RawLayer, 0, len(s.layers)+1)
	if s.opts.timeout > 0 {
		layers = append(layers, middleware.Timeout[*middleware.RawRequest, *middleware.RawResponse](s.opts.timeout))
	}
	layers = append(layers, s.layers...)
	s.handler = service.Apply[*middleware.RawRequest, *middleware.RawResponse](&router{services: s.services}, layers...)
	s.ln = ln

	h1 := &http.Server{Handler: s}
	h2 := &http2.Server{
		MaxConcurrentStreams: s.opts.http2.MaxConcurrentStreams,
		MaxReadFrameSize:     s.opts.http2.MaxFrameSize,
		IdleTimeout:          s.opts.http2.IdleTimeout,
		ReadIdleTimeout:      s.opts.http2.ReadIdleTimeout,
		PingTimeout:          s.opts.http2.PingTimeout,
	}
	if s.opts.http2.MaxHeaderListSize > 0 {
		h1.MaxHeaderBytes = int(s.opts.http2.MaxHeaderListSize)
	}
	if err := http2.ConfigureServer(h1, h2); err != nil {
		s.mu.Unlock()
		ln.Close()
		return err
	}
	s.h1 = h1
	s.setState(Running)
	s.mu.Unlock()

	s.log.Info("serving", zap.Stringer("addr", ln.Addr()), zap.Int("services", len(s.services)))
	if err := s.register(ctx); err != nil {
		return multierr.Append(err, s.drain())
	}

	// connections outlive ctx so that cancelling it drains instead of
	// aborting calls
	base := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.accept(base, ln, h1, h2)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return s.drain()
		case <-s.stopped:
			return nil
		}
	})
	err := g.Wait()
	<-s.stopped
	return err
}

func (s *Server) accept(base context.Context, ln *conn.Listener, h1 *http.Server, h2 *http2.Server) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.State() != Running {
				return nil
			}
			s.log.Error("accept failed", zap.Error(err))
			return err
		}
		if !s.trackConn(c) {
			c.Close()
			continue
		}
		go func() {
			defer s.untrackConn(c)
			h2.ServeConn(c, &http2.ServeConnOpts{
				Context:    conn.NewContext(base, c.Info()),
				BaseConfig: h1,
				Handler:    s,
			})
		}()
	}
}

func (s *Server) trackConn(c *conn.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != Running {
		return false
	}
	s.conns[c] = struct{}{}
	s.connWG.Add(1)
	return true
}

func (s *Server) untrackConn(c *conn.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	c.Close()
	s.connWG.Done()
}

// beginCall admits a call while Running.
func (s *Server) beginCall() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != Running {
		return false
	}
	s.active++
	return true
}

func (s *Server) endCall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	if s.active == 0 && s.idle != nil {
		close(s.idle)
		s.idle = nil
	}
}

func (s *Server) drain() error {
	ctx := context.Background()
	if s.opts.drainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.drainTimeout)
		defer cancel()
	}
	return s.Shutdown(ctx)
}

// Shutdown drains the server: it deregisters, stops accepting, lets
// in-flight calls finish and waits for connections to close. When ctx ends
// first, remaining connections are closed. Calling Shutdown on a server
// that never served stops it immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	switch s.State() {
	case Building:
		s.setState(Stopped)
		close(s.stopped)
		s.mu.Unlock()
		return nil
	case Draining, Stopped:
		s.mu.Unlock()
		select {
		case <-s.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.setState(Draining)
	idle := make(chan struct{})
	if s.active == 0 {
		close(idle)
	} else {
		s.idle = idle
	}
	inflight := s.active
	s.mu.Unlock()

	s.log.Info("draining", zap.Int("inflight", inflight))

	err := s.deregister(ctx)
	if cerr := s.ln.Close(); cerr != nil {
		err = multierr.Append(err, cerr)
	}
	// sends GOAWAY on every connection
	err = multierr.Append(err, s.h1.Shutdown(ctx))

	select {
	case <-idle:
	case <-ctx.Done():
	}

	closed := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(closed)
	}()
	select {
	case <-closed:
	case <-ctx.Done():
		err = multierr.Append(err, ctx.Err())
		s.log.Warn("drain timed out, closing connections", zap.Error(ctx.Err()))
		s.closeConns()
		<-closed
	}

	s.mu.Lock()
	s.setState(Stopped)
	close(s.stopped)
	s.mu.Unlock()
	return err
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

func (s *Server) advertiseAddr() string {
	if s.opts.advertiseAddr != "" {
		return s.opts.advertiseAddr
	}
	return s.ln.Addr().String()
}

func (s *Server) register(ctx context.Context) error {
	if s.opts.registry == nil {
		return nil
	}
	inst := registry.ServiceInstance{Addr: s.advertiseAddr()}
	for name := range s.services {
		if err := s.opts.registry.Register(ctx, name, inst, s.opts.registryTTL); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

func (s *Server) deregister(ctx context.Context) error {
	if s.opts.registry == nil {
		return nil
	}
	var err error
	addr := s.advertiseAddr()
	for name := range s.services {
		err = multierr.Append(err, s.opts.registry.Deregister(ctx, name, addr))
	}
	return err
}
