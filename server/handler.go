package server

import (
	"context"
	"io"
	"net/http"

	"go.uber.org/zap"

	"mini-grpc/codec"
	"mini-grpc/compression"
	"mini-grpc/config"
	"mini-grpc/conn"
	"mini-grpc/message"
	"mini-grpc/metadata"
	"mini-grpc/middleware"
	"mini-grpc/protocol"
	"mini-grpc/rpcinfo"
	"mini-grpc/service"
	"mini-grpc/status"
	"mini-grpc/timeout"
)

// ServeHTTP serves one unary call on an HTTP/2 stream. Failures before a
// response message is produced are sent trailers-only: grpc-status in the
// response headers and no body.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cdc, ok := codec.FromContentType(r.Header.Get("Content-Type"))
	if !ok {
		http.Error(w, "unsupported content-type", http.StatusUnsupportedMediaType)
		return
	}

	h := w.Header()
	h.Set("Content-Type", codec.ContentType(cdc))
	if v, ok := compression.AcceptEncodingHeaderValue(s.opts.acceptCompressions); ok {
		h.Set(compression.HeaderAcceptEncoding, v)
	}

	if !s.beginCall() {
		writeStatus(w, status.New(status.Unavailable, "server is shutting down"))
		return
	}
	defer s.endCall()

	ctx := r.Context()
	if v := r.Header.Get("Grpc-Timeout"); v != "" {
		d, err := timeout.ParseHeader(v)
		if err != nil {
			writeStatus(w, status.Wrap(status.InvalidArgument, err))
			return
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	reqEnc, err := compression.FromEncodingHeader(r.Header, s.opts.acceptCompressions)
	if err != nil {
		writeStatus(w, status.FromError(err))
		return
	}
	payload, err := protocol.ReadMessage(r.Body, reqEnc, s.opts.maxRecvMessageSize)
	if err != nil {
		writeStatus(w, readStatus(ctx, err))
		return
	}

	info := &rpcinfo.RPCInfo{
		Method: r.URL.Path,
		Codec:  cdc,
		Config: config.Call{
			SendCompressions:   s.opts.sendCompressions,
			AcceptCompressions: s.opts.acceptCompressions,
			MaxRecvMessageSize: s.opts.maxRecvMessageSize,
		},
	}
	if ci, ok := conn.InfoFromContext(ctx); ok {
		info.Caller = ci.PeerAddr
	}
	if s.ln != nil {
		info.Callee = s.ln.Addr()
	}
	ctx = rpcinfo.NewContext(ctx, info)

	req := &middleware.RawRequest{
		Metadata:   metadata.FromHeader(r.Header),
		Extensions: message.Extensions{},
		Message:    payload,
	}
	resp, err := service.Oneshot(ctx, s.handler, req)
	if err == nil && resp == nil {
		err = status.New(status.Internal, "handler returned no response")
	}
	if err != nil {
		writeStatus(w, status.FromError(err))
		return
	}

	enc := compression.Negotiate(s.opts.sendCompressions, r.Header.Get(compression.HeaderAcceptEncoding))
	if enc != compression.Identity {
		h.Set(compression.HeaderEncoding, enc.HeaderValue())
	}
	if err := metadata.ToHeader(resp.Metadata, h); err != nil {
		s.log.Warn("dropped response metadata", zap.String("method", info.Method), zap.Error(err))
	}
	w.WriteHeader(http.StatusOK)
	if err := protocol.WriteMessage(w, resp.Message, enc); err != nil {
		s.log.Debug("write response failed", zap.String("method", info.Method), zap.Error(err))
		return
	}

	trailers := make(http.Header)
	if err := metadata.ToHeader(resp.Trailers, trailers); err != nil {
		s.log.Warn("dropped response trailers", zap.String("method", info.Method), zap.Error(err))
	}
	for k, vs := range trailers {
		for _, v := range vs {
			h.Add(http.TrailerPrefix+k, v)
		}
	}
	status.New(status.OK, "").AddToTrailer(h)
}

// writeStatus ends the call trailers-only.
func writeStatus(w http.ResponseWriter, st *status.Status) {
	st.AddToHeader(w.Header())
	w.WriteHeader(http.StatusOK)
}

func readStatus(ctx context.Context, err error) *status.Status {
	switch {
	case err == io.EOF:
		return status.New(status.Internal, "missing request message")
	case status.IsStatus(err):
		return status.FromError(err)
	case ctx.Err() != nil:
		return status.FromError(ctx.Err())
	}
	return status.Wrap(status.Internal, err)
}
