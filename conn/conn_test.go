package conn

import (
	"context"
	"io"
	"net"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("127.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, IPAddress{AddrPort: netip.MustParseAddrPort("127.0.0.1:8080")}, a)
	assert.Equal(t, "tcp", a.Network())

	a, err = ParseAddress("/tmp/rpc.sock")
	require.NoError(t, err)
	assert.Equal(t, UnixAddress{Path: "/tmp/rpc.sock"}, a)
	assert.Equal(t, "2f746d702f7270632e736f636b", a.Authority())

	_, err = ParseAddress("")
	assert.Error(t, err)
}

// pair returns a dialed Conn and the accepted server side.
func pair(t *testing.T, addr Address) (client, server *Conn) {
	t.Helper()
	ln, err := Listen(addr)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
		close(accepted)
	}()

	client, err = Dial(context.Background(), ln.Addr(), DialConfig{ConnectTimeout: time.Second})
	require.NoError(t, err)
	server = <-accepted
	require.NotNil(t, server)
	return client, server
}

func addresses(t *testing.T) map[string]Address {
	return map[string]Address{
		"tcp":  MustParseAddress("127.0.0.1:0"),
		"unix": UnixAddress{Path: filepath.Join(t.TempDir(), "conn.sock")},
	}
}

func TestPeerAddr(t *testing.T) {
	for name, addr := range addresses(t) {
		t.Run(name, func(t *testing.T) {
			client, server := pair(t, addr)
			defer client.Close()
			defer server.Close()

			require.NotNil(t, client.PeerAddr())
			assert.Equal(t, addr.Network(), client.PeerAddr().Network())
			if name == "tcp" {
				assert.NotNil(t, server.PeerAddr())
			}
		})
	}
}

func TestSplitHalvesAreIndependent(t *testing.T) {
	defer goleak.VerifyNone(t)

	for name, addr := range addresses(t) {
		t.Run(name, func(t *testing.T) {
			client, server := pair(t, addr)
			defer server.Close()

			rd, wr := client.IntoSplit()

			// a write commits while nothing reads on this side
			_, err := wr.Write([]byte("ping"))
			require.NoError(t, err)

			buf := make([]byte, 4)
			_, err = io.ReadFull(server, buf)
			require.NoError(t, err)
			assert.Equal(t, "ping", string(buf))

			// half-close: the peer sees EOF, our read side stays usable
			require.NoError(t, wr.Close())
			_, err = server.Read(buf)
			assert.Equal(t, io.EOF, err)

			_, err = server.Write([]byte("pong"))
			require.NoError(t, err)
			_, err = io.ReadFull(rd, buf)
			require.NoError(t, err)
			assert.Equal(t, "pong", string(buf))

			require.NoError(t, rd.Close())
			assert.NoError(t, rd.Close(), "second close is a no-op")
		})
	}
}

func TestSplitConcurrentReadWrite(t *testing.T) {
	client, server := pair(t, MustParseAddress("127.0.0.1:0"))
	defer server.Close()
	rd, wr := client.IntoSplit()
	defer rd.Close()
	defer wr.Close()

	// echo on the server side
	go io.Copy(server, server)

	const n = 64 << 10
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = byte(i)
	}

	errc := make(chan error, 1)
	go func() {
		_, err := wr.Write(payload)
		errc <- err
	}()

	got := make([]byte, n)
	_, err := io.ReadFull(rd, got)
	require.NoError(t, err)
	require.NoError(t, <-errc)
	assert.Equal(t, payload, got)
}

func TestUseAfterSplitPanics(t *testing.T) {
	client, server := pair(t, MustParseAddress("127.0.0.1:0"))
	defer server.Close()
	rd, wr := client.IntoSplit()
	defer rd.Close()
	defer wr.Close()

	assert.Panics(t, func() { client.Write([]byte("x")) })
	assert.Panics(t, func() { client.Close() })
	assert.Panics(t, func() { client.IntoSplit() })
}

func TestNewRejectsUnknown(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	_, err := New(a)
	assert.Error(t, err)
}

func TestContextInfo(t *testing.T) {
	info := Info{PeerAddr: MustParseAddress("10.0.0.1:1")}
	got, ok := InfoFromContext(NewContext(context.Background(), info))
	require.True(t, ok)
	assert.Equal(t, info, got)
}
