package hello

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mini-grpc/client"
	"mini-grpc/codec"
	"mini-grpc/compression"
	"mini-grpc/conn"
	"mini-grpc/message"
	"mini-grpc/server"
	"mini-grpc/status"
)

func serveGreeter(t *testing.T, addr conn.Address, opts ...server.Option) conn.Address {
	t.Helper()
	s := server.NewServer(append([]server.Option{server.WithLogger(zaptest.NewLogger(t))}, opts...)...)
	require.NoError(t, s.AddService(NewGreeterService(Greeter{})))

	ln, err := conn.Listen(addr)
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- s.Serve(context.Background(), ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, s.Shutdown(ctx))
		assert.NoError(t, <-served)
	})
	return ln.Addr()
}

func TestSayHello(t *testing.T) {
	for name, addr := range map[string]conn.Address{
		"tcp":  conn.MustParseAddress("127.0.0.1:0"),
		"unix": conn.UnixAddress{Path: filepath.Join(t.TempDir(), "greeter.sock")},
	} {
		t.Run(name, func(t *testing.T) {
			bound := serveGreeter(t, addr)
			c, err := client.New(client.WithTarget(bound.String()), client.WithCodec(codec.JSON{}))
			require.NoError(t, err)
			defer c.Close()

			resp, err := NewGreeterClient(c).SayHello(context.Background(), message.NewRequest(HelloRequest{Name: "Volo"}))
			require.NoError(t, err)
			assert.Equal(t, status.OK, status.CodeOf(err))
			assert.Equal(t, HelloReply{Message: "Hello, Volo!"}, resp.Message)
		})
	}
}

func TestSayHelloCompressed(t *testing.T) {
	gzip := []compression.Encoding{compression.Gzip}
	bound := serveGreeter(t, conn.MustParseAddress("127.0.0.1:0"), server.WithCompressions(gzip, gzip))
	c, err := client.New(
		client.WithTarget(bound.String()),
		client.WithCodec(codec.JSON{}),
		client.WithCompressions(gzip, gzip),
	)
	require.NoError(t, err)
	defer c.Close()

	reply, err := client.Invoke[HelloRequest, HelloReply](context.Background(), c, SayHelloMethod, HelloRequest{Name: "gzip"})
	require.NoError(t, err)
	assert.Equal(t, "Hello, gzip!", reply.Message)
}

func TestWireFormat(t *testing.T) {
	data, err := codec.JSON{}.Marshal(HelloRequest{Name: "Volo"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Volo"}`, string(data))

	var reply HelloReply
	require.NoError(t, codec.JSON{}.Unmarshal([]byte(`{"message":"Hello, Volo!","extra":[1,{"a":null}]}`), &reply))
	assert.Equal(t, "Hello, Volo!", reply.Message)
}
