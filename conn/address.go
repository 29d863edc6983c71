package conn

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// Address is either an IP endpoint or a Unix socket path. It satisfies
// net.Addr.
type Address interface {
	net.Addr
	// Authority is the value used as the request authority.
	Authority() string
	isAddress()
}

// IPAddress is a TCP endpoint.
type IPAddress struct {
	netip.AddrPort
}

// UnixAddress is a filesystem path of a Unix domain socket.
type UnixAddress struct {
	Path string
}

var (
	_ Address = IPAddress{}
	_ Address = UnixAddress{}
)

func NewIPAddress(ap netip.AddrPort) IPAddress { return IPAddress{AddrPort: ap} }

func NewUnixAddress(path string) UnixAddress { return UnixAddress{Path: path} }

func (IPAddress) Network() string { return "tcp" }

func (a IPAddress) Authority() string { return a.AddrPort.String() }

func (IPAddress) isAddress() {}

func (UnixAddress) Network() string { return "unix" }

func (a UnixAddress) String() string { return a.Path }

// Authority hex-encodes the path so it is a valid host token.
func (a UnixAddress) Authority() string { return hex.EncodeToString([]byte(a.Path)) }

func (UnixAddress) isAddress() {}

// ParseAddress accepts "ip:port", "host:port" (resolved) or a filesystem
// path. Paths must contain a '/'.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return nil, fmt.Errorf("conn: empty address")
	}
	if strings.Contains(s, "/") {
		return UnixAddress{Path: s}, nil
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return IPAddress{AddrPort: ap}, nil
	}
	tcp, err := net.ResolveTCPAddr("tcp", s)
	if err != nil {
		return nil, fmt.Errorf("conn: resolve %q: %w", s, err)
	}
	return IPAddress{AddrPort: tcp.AddrPort()}, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromNetAddr converts a TCP or Unix net.Addr.
func FromNetAddr(a net.Addr) (Address, bool) {
	switch v := a.(type) {
	case Address:
		return v, true
	case *net.TCPAddr:
		if v == nil {
			return nil, false
		}
		return IPAddress{AddrPort: v.AddrPort()}, true
	case *net.UnixAddr:
		if v == nil || v.Name == "" {
			return nil, false
		}
		return UnixAddress{Path: v.Name}, true
	}
	return nil, false
}
