package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/sync/singleflight"

	"mini-grpc/conn"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("connection pool closed")

// ConnPool keeps up to maxConns multiplexed HTTP/2 connections per address.
// Connections are dialed lazily, outside the pool lock; concurrent callers
// for the same address share one dial. A connection that stops accepting
// new streams (GOAWAY, closed, or full) is skipped; once every slot is
// taken the least loaded connection is returned and the stream queues there.
type ConnPool struct {
	mu       sync.Mutex
	conns    map[string][]*http2.ClientConn
	maxConns int
	h2       *http2.Transport
	dial     conn.DialConfig
	dialer   func(context.Context, conn.Address, conn.DialConfig) (*conn.Conn, error)
	dials    singleflight.Group
	log      *zap.Logger
	closed   bool
}

// NewConnPool creates an empty pool.
func NewConnPool(h2 *http2.Transport, maxConns int, dial conn.DialConfig, log *zap.Logger) *ConnPool {
	if maxConns < 1 {
		maxConns = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ConnPool{
		conns:    make(map[string][]*http2.ClientConn),
		maxConns: maxConns,
		h2:       h2,
		dial:     dial,
		dialer:   conn.Dial,
		log:      log,
	}
}

func poolKey(addr conn.Address) string {
	return addr.Network() + "://" + addr.String()
}

// Get returns a connection to addr that is ready for a new stream, dialing
// one if needed. connectTimeout overrides the pool's dial timeout when
// positive. Only callers for the same address wait on a dial.
func (p *ConnPool) Get(ctx context.Context, addr conn.Address, connectTimeout time.Duration) (*http2.ClientConn, error) {
	key := poolKey(addr)
	if cc, err := p.pick(key); err != nil || cc != nil {
		return cc, err
	}

	// the shared dial outlives any single caller; each caller is bounded by
	// its own ctx below
	dialCtx := context.WithoutCancel(ctx)
	ch := p.dials.DoChan(key, func() (any, error) {
		return p.dialShared(dialCtx, key, addr, connectTimeout)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*http2.ClientConn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pick returns a ready connection, or the least loaded one when every slot
// is taken. It returns nil when a dial is needed.
func (p *ConnPool) pick(key string) (*http2.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	live := p.conns[key][:0]
	for _, cc := range p.conns[key] {
		if st := cc.State(); st.Closed || st.Closing {
			continue
		}
		live = append(live, cc)
	}
	p.conns[key] = live

	for _, cc := range live {
		if cc.CanTakeNewRequest() {
			return cc, nil
		}
	}
	if len(live) >= p.maxConns {
		return leastLoaded(live), nil
	}
	return nil, nil
}

// dialShared runs once per address at a time.
func (p *ConnPool) dialShared(ctx context.Context, key string, addr conn.Address, connectTimeout time.Duration) (*http2.ClientConn, error) {
	// a dial that finished just before this one started may already serve
	if cc, err := p.pick(key); err != nil || cc != nil {
		return cc, err
	}
	cc, err := p.createNew(ctx, addr, connectTimeout)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		cc.Close()
		return nil, ErrPoolClosed
	}
	p.conns[key] = append(p.conns[key], cc)
	return cc, nil
}

func leastLoaded(ccs []*http2.ClientConn) *http2.ClientConn {
	best, load := ccs[0], -1
	for _, cc := range ccs {
		st := cc.State()
		if l := st.StreamsActive + st.StreamsPending + st.StreamsReserved; load < 0 || l < load {
			best, load = cc, l
		}
	}
	return best
}

// createNew dials and performs the HTTP/2 handshake. Called without p.mu.
func (p *ConnPool) createNew(ctx context.Context, addr conn.Address, connectTimeout time.Duration) (*http2.ClientConn, error) {
	cfg := p.dial
	if connectTimeout > 0 {
		cfg.ConnectTimeout = connectTimeout
	}
	c, err := p.dialer(ctx, addr, cfg)
	if err != nil {
		return nil, err
	}
	cc, err := p.h2.NewClientConn(c)
	if err != nil {
		c.Close()
		return nil, err
	}
	p.log.Debug("connection established", zap.Stringer("addr", addr))
	return cc, nil
}

// Close closes every connection. In-flight streams fail.
func (p *ConnPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var err error
	for key, ccs := range p.conns {
		for _, cc := range ccs {
			err = multierr.Append(err, cc.Close())
		}
		delete(p.conns, key)
	}
	return err
}
