package transport

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/http2"

	"mini-grpc/codec"
	"mini-grpc/compression"
	"mini-grpc/config"
	"mini-grpc/conn"
	"mini-grpc/message"
	"mini-grpc/metadata"
	"mini-grpc/protocol"
	"mini-grpc/rpcinfo"
	"mini-grpc/status"
)

type greeting struct {
	Name string `json:"name"`
}

type reply struct {
	Message string `json:"message"`
}

// countingCodec counts Unmarshal calls.
type countingCodec struct {
	codec.JSON
	decodes *atomic.Int32
}

func (c countingCodec) Unmarshal(data []byte, v any) error {
	c.decodes.Inc()
	return c.JSON.Unmarshal(data, v)
}

// serveH2 runs handler behind a plain HTTP/2 server on addr.
func serveH2(t *testing.T, addr conn.Address, handler http.HandlerFunc) conn.Address {
	t.Helper()
	ln, err := conn.Listen(addr)
	require.NoError(t, err)
	srv := &http2.Server{}
	var wg sync.WaitGroup
	var mu sync.Mutex
	var accepted []*conn.Conn
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			accepted = append(accepted, c)
			mu.Unlock()
			go srv.ServeConn(c, &http2.ServeConnOpts{Handler: handler})
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		wg.Wait()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range accepted {
			c.Close()
		}
	})
	return ln.Addr()
}

func greeter(t *testing.T, respEnc compression.Encoding) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqEnc, _ := compression.Parse(r.Header.Get(compression.HeaderEncoding))
		data, err := protocol.ReadMessage(r.Body, reqEnc, 0)
		if !assert.NoError(t, err) {
			return
		}
		var in greeting
		assert.NoError(t, codec.JSON{}.Unmarshal(data, &in))
		out, _ := codec.JSON{}.Marshal(reply{Message: "Hello, " + in.Name + "!"})

		w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
		w.Header().Set("X-Echo", r.Header.Get("X-Request-Id"))
		w.Header().Set("X-Authority", r.Host)
		if respEnc != compression.Identity {
			w.Header().Set(compression.HeaderEncoding, respEnc.HeaderValue())
		}
		w.WriteHeader(http.StatusOK)
		assert.NoError(t, protocol.WriteMessage(w, out, respEnc))
		w.Header().Set(http.TrailerPrefix+"X-Served-By", "stub")
		status.New(status.OK, "").AddToTrailer(w.Header())
	}
}

func callContext(addr conn.Address, cfg config.Call, cdc codec.Codec) context.Context {
	return rpcinfo.NewContext(context.Background(), &rpcinfo.RPCInfo{
		Callee: addr,
		Method: "/hello.Greeter/SayHello",
		Codec:  cdc,
		Config: cfg,
	})
}

func newTransport(t *testing.T) *ClientTransport {
	tr := NewClientTransport(Options{Logger: zaptest.NewLogger(t)})
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestUnaryCall(t *testing.T) {
	for name, addr := range map[string]conn.Address{
		"tcp":  conn.MustParseAddress("127.0.0.1:0"),
		"unix": conn.UnixAddress{Path: filepath.Join(t.TempDir(), "greeter.sock")},
	} {
		t.Run(name, func(t *testing.T) {
			bound := serveH2(t, addr, greeter(t, compression.Gzip))
			tr := newTransport(t)

			cfg := config.DefaultCall()
			cfg.SendCompressions = []compression.Encoding{compression.Snappy, compression.Gzip}

			req := message.NewRequest(greeting{Name: "Volo"})
			req.Metadata.Set("x-request-id", "42")
			resp, err := NewUnary[greeting, reply](tr).Call(callContext(bound, cfg, codec.JSON{}), req)
			require.NoError(t, err)
			assert.Equal(t, "Hello, Volo!", resp.Message.Message)
			assert.Equal(t, "42", resp.Metadata.Value("x-echo"))
			assert.Equal(t, bound.Authority(), resp.Metadata.Value("x-authority"))
			assert.Equal(t, "stub", resp.Trailers.Value("x-served-by"))
		})
	}
}

func TestRequestHeaders(t *testing.T) {
	seen := make(chan http.Header, 1)
	addr := serveH2(t, conn.MustParseAddress("127.0.0.1:0"), func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
		assert.Equal(t, "/hello.Greeter/SayHello", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		greeter(t, compression.Identity)(w, r)
	})
	cfg := config.Call{
		SendCompressions:   []compression.Encoding{compression.Gzip},
		AcceptCompressions: []compression.Encoding{compression.Identity, compression.Gzip, compression.Deflate},
	}
	ctx, cancel := context.WithTimeout(callContext(addr, cfg, codec.JSON{}), time.Minute)
	defer cancel()
	_, err := NewUnary[greeting, reply](newTransport(t)).Call(ctx, message.NewRequest(greeting{Name: "x"}))
	require.NoError(t, err)

	h := <-seen
	assert.Equal(t, "application/grpc+json", h.Get("Content-Type"))
	assert.Equal(t, "gzip", h.Get("Grpc-Encoding"))
	assert.Equal(t, "gzip,deflate", h.Get("Grpc-Accept-Encoding"))
	assert.Equal(t, UserAgent, h.Get("User-Agent"))
	assert.NotEmpty(t, h.Get("Grpc-Timeout"))
}

func TestEarlyStatusSkipsDecode(t *testing.T) {
	addr := serveH2(t, conn.MustParseAddress("127.0.0.1:0"), func(w http.ResponseWriter, r *http.Request) {
		out, _ := codec.JSON{}.Marshal(reply{Message: "well-formed"})
		w.Header().Set("Content-Type", "application/grpc+json")
		status.New(status.PermissionDenied, "go away").AddToHeader(w.Header())
		w.WriteHeader(http.StatusOK)
		protocol.WriteMessage(w, out, compression.Identity)
	})
	decodes := atomic.NewInt32(0)
	cdc := countingCodec{decodes: decodes}

	_, err := NewUnary[greeting, reply](newTransport(t)).Call(
		callContext(addr, config.DefaultCall(), cdc), message.NewRequest(greeting{}))
	require.Error(t, err)
	st := status.FromError(err)
	assert.Equal(t, status.PermissionDenied, st.Code())
	assert.Equal(t, "go away", st.Message())
	assert.Zero(t, decodes.Load())
}

func TestLateStatusWins(t *testing.T) {
	addr := serveH2(t, conn.MustParseAddress("127.0.0.1:0"), func(w http.ResponseWriter, r *http.Request) {
		out, _ := codec.JSON{}.Marshal(reply{Message: "partial"})
		w.Header().Set("Content-Type", "application/grpc+json")
		w.WriteHeader(http.StatusOK)
		protocol.WriteMessage(w, out, compression.Identity)
		status.New(status.DataLoss, "lost it").WithDetails([]byte{1, 2}).AddToTrailer(w.Header())
	})
	_, err := NewUnary[greeting, reply](newTransport(t)).Call(
		callContext(addr, config.DefaultCall(), codec.JSON{}), message.NewRequest(greeting{}))
	st := status.FromError(err)
	assert.Equal(t, status.DataLoss, st.Code())
	assert.Equal(t, "lost it", st.Message())
	assert.Equal(t, []byte{1, 2}, st.Details())
}

func TestUnsupportedResponseEncoding(t *testing.T) {
	addr := serveH2(t, conn.MustParseAddress("127.0.0.1:0"), greeter(t, compression.Snappy))
	cfg := config.Call{AcceptCompressions: []compression.Encoding{compression.Gzip}}
	_, err := NewUnary[greeting, reply](newTransport(t)).Call(
		callContext(addr, cfg, codec.JSON{}), message.NewRequest(greeting{Name: "x"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, compression.ErrUnsupportedEncoding)
}

func TestMissingStatus(t *testing.T) {
	addr := serveH2(t, conn.MustParseAddress("127.0.0.1:0"), func(w http.ResponseWriter, r *http.Request) {
		out, _ := codec.JSON{}.Marshal(reply{})
		w.Header().Set("Content-Type", "application/grpc+json")
		protocol.WriteMessage(w, out, compression.Identity)
	})
	_, err := NewUnary[greeting, reply](newTransport(t)).Call(
		callContext(addr, config.DefaultCall(), codec.JSON{}), message.NewRequest(greeting{}))
	assert.Equal(t, status.Internal, status.CodeOf(err))
}

func TestHTTPStatusFallback(t *testing.T) {
	addr := serveH2(t, conn.MustParseAddress("127.0.0.1:0"), func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	_, err := NewUnary[greeting, reply](newTransport(t)).Call(
		callContext(addr, config.DefaultCall(), codec.JSON{}), message.NewRequest(greeting{}))
	assert.Equal(t, status.Unimplemented, status.CodeOf(err))
}

func TestNoAddress(t *testing.T) {
	ctx := rpcinfo.NewContext(context.Background(), &rpcinfo.RPCInfo{Method: "/a.B/C"})
	_, err := NewUnary[greeting, reply](newTransport(t)).Call(ctx, message.NewRequest(greeting{}))
	assert.ErrorIs(t, err, ErrNoAddress)
	assert.Equal(t, status.Unavailable, status.CodeOf(err))

	_, err = NewUnary[greeting, reply](newTransport(t)).Call(context.Background(), message.NewRequest(greeting{}))
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestConnectionRefused(t *testing.T) {
	ln, err := conn.Listen(conn.MustParseAddress("127.0.0.1:0"))
	require.NoError(t, err)
	addr := ln.Addr()
	require.NoError(t, ln.Close())

	_, err = NewUnary[greeting, reply](newTransport(t)).Call(
		callContext(addr, config.DefaultCall(), codec.JSON{}), message.NewRequest(greeting{}))
	require.Error(t, err)
	assert.Equal(t, status.Unavailable, status.CodeOf(err))
}

func TestWriteTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	addr := serveH2(t, conn.MustParseAddress("127.0.0.1:0"), func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	cfg := config.DefaultCall()
	cfg.WriteTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := NewUnary[greeting, reply](newTransport(t)).Call(
		callContext(addr, cfg, codec.JSON{}), message.NewRequest(greeting{}))
	assert.Equal(t, status.DeadlineExceeded, status.CodeOf(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestConcurrentCallsShareConnection(t *testing.T) {
	addr := serveH2(t, conn.MustParseAddress("127.0.0.1:0"), greeter(t, compression.Identity))
	tr := newTransport(t)
	u := NewUnary[greeting, reply](tr)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := u.Call(callContext(addr, config.DefaultCall(), codec.JSON{}), message.NewRequest(greeting{Name: "n"}))
			if assert.NoError(t, err) {
				assert.Equal(t, "Hello, n!", resp.Message.Message)
			}
		}()
	}
	wg.Wait()

	tr.pool.mu.Lock()
	defer tr.pool.mu.Unlock()
	assert.Len(t, tr.pool.conns[poolKey(addr)], 1)
}

func TestBuildURI(t *testing.T) {
	u, err := BuildURI(conn.MustParseAddress("127.0.0.1:8000"), "/path?query=1")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000/path?query=1", u.String())

	u, err = BuildURI(conn.UnixAddress{Path: "/tmp/rpc.sock"}, "/path?query=1")
	require.NoError(t, err)
	assert.Equal(t, "http+unix://2f746d702f7270632e736f636b/path?query=1", u.String())
}

func TestMetadataRejectsReserved(t *testing.T) {
	addr := serveH2(t, conn.MustParseAddress("127.0.0.1:0"), greeter(t, compression.Identity))
	req := message.NewRequest(greeting{})
	req.Metadata = metadata.Pairs("grpc-status", "0")
	_, err := NewUnary[greeting, reply](newTransport(t)).Call(
		callContext(addr, config.DefaultCall(), codec.JSON{}), req)
	assert.Equal(t, status.InvalidArgument, status.CodeOf(err))
}
