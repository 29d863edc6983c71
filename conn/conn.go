// Package conn unifies TCP and Unix domain sockets behind one connection
// type.
//
// A Conn owns exactly one socket. It can be used whole, as a net.Conn, or
// consumed by IntoSplit into a ReadHalf and a WriteHalf that are owned by
// different goroutines. Closing one half shuts down only that direction; the
// socket is released once both halves are closed.
package conn

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// stream is what TCP and Unix sockets have in common.
type stream interface {
	net.Conn
	CloseRead() error
	CloseWrite() error
}

var (
	_ stream   = (*net.TCPConn)(nil)
	_ stream   = (*net.UnixConn)(nil)
	_ net.Conn = (*Conn)(nil)
)

// Info describes the connection.
type Info struct {
	// PeerAddr is nil when the peer address is unavailable, e.g. an unnamed
	// Unix socket.
	PeerAddr Address
}

// Conn is a TCP or Unix stream plus its Info.
type Conn struct {
	stream stream
	info   Info
	split  atomic.Bool
}

// FromTCP wraps an established TCP connection and disables Nagle's
// algorithm.
func FromTCP(c *net.TCPConn) *Conn {
	_ = c.SetNoDelay(true)
	return newConn(c)
}

// FromUnix wraps an established Unix stream connection.
func FromUnix(c *net.UnixConn) *Conn {
	return newConn(c)
}

// New wraps c, which must be a *net.TCPConn or *net.UnixConn.
func New(c net.Conn) (*Conn, error) {
	switch v := c.(type) {
	case *Conn:
		return v, nil
	case *net.TCPConn:
		return FromTCP(v), nil
	case *net.UnixConn:
		return FromUnix(v), nil
	}
	return nil, fmt.Errorf("conn: unsupported connection type %T", c)
}

func newConn(s stream) *Conn {
	c := &Conn{stream: s}
	c.info.PeerAddr, _ = FromNetAddr(s.RemoteAddr())
	return c
}

// Info returns the connection metadata.
func (c *Conn) Info() Info {
	return c.info
}

// PeerAddr returns the remote address or nil.
func (c *Conn) PeerAddr() Address {
	return c.info.PeerAddr
}

func (c *Conn) checkWhole() {
	if c.split.Load() {
		panic("conn: use of connection after IntoSplit")
	}
}

func (c *Conn) Read(b []byte) (int, error) {
	c.checkWhole()
	return c.stream.Read(b)
}

func (c *Conn) Write(b []byte) (int, error) {
	c.checkWhole()
	return c.stream.Write(b)
}

// Close closes both directions.
func (c *Conn) Close() error {
	c.checkWhole()
	return c.stream.Close()
}

// CloseWrite half-closes the connection; the peer reads EOF.
func (c *Conn) CloseWrite() error {
	c.checkWhole()
	return c.stream.CloseWrite()
}

// CloseRead shuts down the read direction.
func (c *Conn) CloseRead() error {
	c.checkWhole()
	return c.stream.CloseRead()
}

func (c *Conn) LocalAddr() net.Addr {
	c.checkWhole()
	return c.stream.LocalAddr()
}

func (c *Conn) RemoteAddr() net.Addr {
	c.checkWhole()
	return c.stream.RemoteAddr()
}

func (c *Conn) SetDeadline(t time.Time) error {
	c.checkWhole()
	return c.stream.SetDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	c.checkWhole()
	return c.stream.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.checkWhole()
	return c.stream.SetWriteDeadline(t)
}

// IntoSplit consumes c. Every later method call on c panics.
func (c *Conn) IntoSplit() (*ReadHalf, *WriteHalf) {
	if !c.split.CompareAndSwap(false, true) {
		panic("conn: IntoSplit called twice")
	}
	s := &shared{stream: c.stream}
	return &ReadHalf{shared: s, info: c.info}, &WriteHalf{shared: s, info: c.info}
}

// shared releases the socket when both halves are closed.
type shared struct {
	stream stream
	open   atomic.Int32
}

func (s *shared) release() error {
	if s.open.Inc() == 2 {
		return s.stream.Close()
	}
	return nil
}

// ReadHalf is the read direction of a split Conn.
type ReadHalf struct {
	*shared
	info   Info
	closed atomic.Bool
}

func (r *ReadHalf) Read(b []byte) (int, error) {
	return r.stream.Read(b)
}

// SetReadDeadline sets the deadline of pending and future reads.
func (r *ReadHalf) SetReadDeadline(t time.Time) error {
	return r.stream.SetReadDeadline(t)
}

// PeerAddr returns the remote address or nil.
func (r *ReadHalf) PeerAddr() Address {
	return r.info.PeerAddr
}

// Close shuts down the read direction. The write half is unaffected.
func (r *ReadHalf) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return multierr.Append(r.stream.CloseRead(), r.release())
}

// WriteHalf is the write direction of a split Conn.
type WriteHalf struct {
	*shared
	info   Info
	closed atomic.Bool
}

func (w *WriteHalf) Write(b []byte) (int, error) {
	return w.stream.Write(b)
}

// SetWriteDeadline sets the deadline of pending and future writes.
func (w *WriteHalf) SetWriteDeadline(t time.Time) error {
	return w.stream.SetWriteDeadline(t)
}

// PeerAddr returns the remote address or nil.
func (w *WriteHalf) PeerAddr() Address {
	return w.info.PeerAddr
}

// Close sends a half-close to the peer. Reads keep working.
func (w *WriteHalf) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	return multierr.Append(w.stream.CloseWrite(), w.release())
}

type infoKey struct{}

// NewContext attaches connection info to ctx.
func NewContext(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, infoKey{}, info)
}

// InfoFromContext returns the connection info stored by NewContext.
func InfoFromContext(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(infoKey{}).(Info)
	return info, ok
}
