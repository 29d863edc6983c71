package conn

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"
)

// DialConfig controls how connections are established.
type DialConfig struct {
	// ConnectTimeout bounds dialing. Zero means no bound beyond ctx.
	ConnectTimeout time.Duration
	// KeepAlive is the TCP keepalive period. Zero uses the system default,
	// negative disables it.
	KeepAlive time.Duration
}

// Dial connects to addr.
func Dial(ctx context.Context, addr Address, cfg DialConfig) (*Conn, error) {
	d := net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: cfg.KeepAlive}
	c, err := d.DialContext(ctx, addr.Network(), addr.String())
	if err != nil {
		return nil, err
	}
	return New(c)
}

// Listener accepts Conns.
type Listener struct {
	ln   net.Listener
	addr Address
}

// Listen binds addr. For a Unix address a stale socket file is removed
// first.
func Listen(addr Address) (*Listener, error) {
	return ListenContext(context.Background(), addr, 0)
}

// ListenContext is Listen with a TCP keepalive period for accepted
// connections. Zero uses the system default, negative disables it.
func ListenContext(ctx context.Context, addr Address, keepAlive time.Duration) (*Listener, error) {
	if u, ok := addr.(UnixAddress); ok {
		if fi, err := os.Stat(u.Path); err == nil && fi.Mode()&os.ModeSocket != 0 {
			_ = os.Remove(u.Path)
		}
	}
	lc := net.ListenConfig{KeepAlive: keepAlive}
	ln, err := lc.Listen(ctx, addr.Network(), addr.String())
	if err != nil {
		return nil, err
	}
	return NewListener(ln)
}

// NewListener wraps a TCP or Unix listener.
func NewListener(ln net.Listener) (*Listener, error) {
	bound, ok := FromNetAddr(ln.Addr())
	if !ok {
		return nil, fmt.Errorf("conn: unsupported listener address %v", ln.Addr())
	}
	return &Listener{ln: ln, addr: bound}, nil
}

// Accept waits for the next connection.
func (l *Listener) Accept() (*Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	cc, err := New(c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return cc, nil
}

// Addr returns the bound address, with the port filled in for ":0" binds.
func (l *Listener) Addr() Address {
	return l.addr
}

// Close stops accepting. Established connections are unaffected.
func (l *Listener) Close() error {
	return l.ln.Close()
}
