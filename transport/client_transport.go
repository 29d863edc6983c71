// Package transport executes unary calls over HTTP/2.
//
// A call goes through these steps, strictly in order:
//
//  1. resolve the callee from the call's RPCInfo
//  2. split the request into metadata, extensions and payload
//  3. marshal and compress the payload with the first send encoding
//  4. build the HTTP request: path, content-type, te, grpc-encoding,
//     grpc-accept-encoding, grpc-timeout and metadata headers
//  5. wait for a ready connection and send; transport failures become
//     Unavailable or Unknown statuses
//  6. a non-OK grpc-status in the response headers is returned as-is
//     without touching the payload
//  7. validate grpc-encoding, read and decode the payload, drain to the
//     trailers
//  8. a non-OK grpc-status in the trailers wins over the decoded payload
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
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
	"mini-grpc/timeout"
)

// UserAgent is sent with every request.
const UserAgent = "mini-grpc-go/1.0"

// ErrNoAddress is wrapped by the status returned when a call has no
// resolved callee.
var ErrNoAddress = errors.New("callee address is required")

// Options configures a ClientTransport.
type Options struct {
	HTTP2              config.HTTP2
	MaxConnsPerAddress int
	KeepAlive          time.Duration
	Logger             *zap.Logger
}

// ClientTransport owns the connections used by unary calls. It is safe for
// concurrent use; calls share nothing but the pool.
type ClientTransport struct {
	pool *ConnPool
	log  *zap.Logger
}

// NewClientTransport creates a transport. Connections are dialed on first
// use.
func NewClientTransport(opts Options) *ClientTransport {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("transport")
	h2 := &http2.Transport{
		AllowHTTP:          true,
		DisableCompression: true,
		MaxHeaderListSize:  opts.HTTP2.MaxHeaderListSize,
		MaxReadFrameSize:   opts.HTTP2.MaxFrameSize,
		ReadIdleTimeout:    opts.HTTP2.ReadIdleTimeout,
		PingTimeout:        opts.HTTP2.PingTimeout,
		IdleConnTimeout:    opts.HTTP2.IdleTimeout,
	}
	dial := conn.DialConfig{ConnectTimeout: config.DefaultConnectTimeout, KeepAlive: opts.KeepAlive}
	return &ClientTransport{
		pool: NewConnPool(h2, opts.MaxConnsPerAddress, dial, log),
		log:  log,
	}
}

// Close closes all connections.
func (t *ClientTransport) Close() error {
	return t.pool.Close()
}

// BuildURI renders the request target. Unix sockets use the http+unix
// scheme with the hex-encoded socket path as host. The scheme sent on the
// wire is always http.
func BuildURI(addr conn.Address, path string) (*url.URL, error) {
	var scheme string
	switch addr.(type) {
	case conn.IPAddress:
		scheme = "http"
	case conn.UnixAddress:
		scheme = "http+unix"
	default:
		return nil, fmt.Errorf("unsupported address %T", addr)
	}
	return url.Parse(scheme + "://" + addr.Authority() + path)
}

// Unary is the call pipeline for one request and response type.
type Unary[T, U any] struct {
	t *ClientTransport
}

// NewUnary returns a Service that runs calls on t.
func NewUnary[T, U any](t *ClientTransport) *Unary[T, U] {
	return &Unary[T, U]{t: t}
}

// Ready reports whether a call may start. Connection readiness is awaited
// inside Call, once the callee is known.
func (u *Unary[T, U]) Ready(ctx context.Context) error {
	return ctx.Err()
}

type unaryResult[U any] struct {
	msg       U
	ok        bool
	decodeErr error
}

// Call runs one unary call.
func (u *Unary[T, U]) Call(ctx context.Context, req *message.Request[T]) (*message.Response[U], error) {
	info, ok := rpcinfo.FromContext(ctx)
	if !ok || info.Callee == nil {
		return nil, status.Wrap(status.Unavailable, ErrNoAddress)
	}
	cfg := info.Config
	cdc := info.Codec
	if cdc == nil {
		cdc = codec.Proto{}
	}

	md, ext, msg := req.IntoParts()

	sendEnc := compression.SelectSend(cfg.SendCompressions)
	payload, err := cdc.Marshal(msg)
	if err != nil {
		return nil, status.Wrap(status.Internal, fmt.Errorf("marshal request: %w", err))
	}
	if cfg.MaxSendMessageSize > 0 && len(payload) > cfg.MaxSendMessageSize {
		return nil, status.Newf(status.ResourceExhausted, "request of %d bytes exceeds limit of %d", len(payload), cfg.MaxSendMessageSize)
	}
	body := new(bytes.Buffer)
	if err := protocol.WriteMessage(body, payload, sendEnc); err != nil {
		return nil, err
	}

	// reqCtx outlives the send race so the body can be read after it.
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpReq, err := newRequest(reqCtx, info, md, body, sendEnc, cdc)
	if err != nil {
		return nil, err
	}

	resp, err := timeout.Race(ctx, cfg.WriteTimeout, func(context.Context) (*http.Response, error) {
		return u.t.send(reqCtx, info.Callee, cfg.ConnectTimeout, httpReq)
	})
	if err != nil {
		return nil, transportStatus(err)
	}
	defer resp.Body.Close()

	headerStatus, hasHeaderStatus := status.FromHeader(resp.Header)
	if hasHeaderStatus && headerStatus.Code() != status.OK {
		return nil, headerStatus
	}
	if resp.StatusCode != http.StatusOK {
		return nil, status.FromHTTPStatus(resp.StatusCode)
	}
	if _, ok := codec.FromContentType(resp.Header.Get("Content-Type")); !ok {
		return nil, status.Newf(status.Internal, "unexpected content-type %q", resp.Header.Get("Content-Type"))
	}

	enc, err := compression.FromEncodingHeader(resp.Header, cfg.AcceptCompressions)
	if err != nil {
		return nil, err
	}

	res, err := timeout.Race(ctx, cfg.ReadTimeout, func(context.Context) (unaryResult[U], error) {
		return readResponse[U](resp.Body, enc, cfg.MaxRecvMessageSize, cdc)
	})
	if err != nil {
		return nil, transportStatus(err)
	}

	if st, ok := status.FromHeader(resp.Trailer); ok && st.Code() != status.OK {
		return nil, st
	} else if !ok && !hasHeaderStatus {
		return nil, status.New(status.Internal, "server closed the stream without a grpc-status")
	}
	if res.decodeErr != nil {
		return nil, res.decodeErr
	}
	if !res.ok {
		return nil, status.New(status.Internal, "missing response message")
	}

	return &message.Response[U]{
		Metadata:   metadata.FromHeader(resp.Header),
		Trailers:   metadata.FromHeader(resp.Trailer),
		Extensions: ext,
		Message:    res.msg,
	}, nil
}

func newRequest(
	ctx context.Context,
	info *rpcinfo.RPCInfo,
	md metadata.MD,
	body *bytes.Buffer,
	sendEnc compression.Encoding,
	cdc codec.Codec,
) (*http.Request, error) {
	target, err := BuildURI(info.Callee, info.Method)
	if err != nil {
		return nil, status.Wrap(status.InvalidArgument, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), body)
	if err != nil {
		return nil, status.Wrap(status.InvalidArgument, err)
	}
	// :scheme is http on the wire for every callee; a Unix socket keeps its
	// hex path as the authority.
	req.URL.Scheme = "http"
	if err := metadata.ToHeader(md, req.Header); err != nil {
		return nil, status.Wrap(status.InvalidArgument, err)
	}
	req.Header.Set("Content-Type", codec.ContentType(cdc))
	req.Header.Set("Te", "trailers")
	req.Header.Set("User-Agent", UserAgent)
	if sendEnc != compression.Identity {
		req.Header.Set(compression.HeaderEncoding, sendEnc.HeaderValue())
	}
	if v, ok := compression.AcceptEncodingHeaderValue(info.Config.AcceptCompressions); ok {
		req.Header.Set(compression.HeaderAcceptEncoding, v)
	}
	if deadline, ok := ctx.Deadline(); ok {
		req.Header.Set("Grpc-Timeout", timeout.EncodeHeader(time.Until(deadline)))
	}
	return req, nil
}

func (t *ClientTransport) send(ctx context.Context, addr conn.Address, connectTimeout time.Duration, req *http.Request) (*http.Response, error) {
	cc, err := t.pool.Get(ctx, addr, connectTimeout)
	if err != nil {
		return nil, err
	}
	return cc.RoundTrip(req)
}

func readResponse[U any](body io.Reader, enc compression.Encoding, maxSize int, cdc codec.Codec) (unaryResult[U], error) {
	var r unaryResult[U]
	data, err := protocol.ReadMessage(body, enc, maxSize)
	if err == io.EOF {
		return r, nil
	}
	if err != nil {
		return r, err
	}
	r.ok = true
	r.msg, err = codec.Decode[U](cdc, data)
	if err != nil {
		r.decodeErr = status.Wrap(status.Internal, fmt.Errorf("unmarshal response: %w", err))
	}

	// unary responses carry one message; read on to reach the trailers
	if _, err := protocol.ReadMessage(body, enc, maxSize); err != io.EOF {
		if err == nil {
			return r, status.New(status.Internal, "too many response messages for a unary call")
		}
		return r, err
	}
	return r, nil
}

// transportStatus maps a failure to send or receive into a Status.
func transportStatus(err error) error {
	if status.IsStatus(err) {
		return err
	}
	if errors.Is(err, timeout.ErrTimeout) {
		return status.Wrap(status.DeadlineExceeded, err)
	}
	var goAway http2.GoAwayError
	if errors.As(err, &goAway) || errors.Is(err, ErrPoolClosed) {
		return status.Wrap(status.Unavailable, err)
	}
	var se http2.StreamError
	if errors.As(err, &se) && se.Code == http2.ErrCodeRefusedStream {
		return status.Wrap(status.Unavailable, err)
	}
	return status.FromError(err)
}
