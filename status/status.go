// Package status is the protocol-level outcome of a call: a code, an optional
// message and optional opaque binary details. A Status travels either in the
// response headers (trailers-only failure) or in the trailers.
package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	grpcstatus "google.golang.org/grpc/status"

	"mini-grpc/timeout"
)

// Status is an error carrying a Code.
type Status struct {
	code    Code
	message string
	details []byte
	cause   error
}

// New returns a Status with the given code and message.
func New(code Code, message string) *Status {
	return &Status{code: code, message: message}
}

// Newf formats the message.
func Newf(code Code, format string, args ...interface{}) *Status {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap returns a Status whose message is the error text and which unwraps to
// err.
func Wrap(code Code, err error) *Status {
	if err == nil {
		return New(code, "")
	}
	return &Status{code: code, message: err.Error(), cause: err}
}

// WithDetails returns a copy of s carrying the binary details.
func (s *Status) WithDetails(details []byte) *Status {
	cp := *s
	if len(details) == 0 {
		cp.details = nil
	} else {
		cp.details = append([]byte(nil), details...)
	}
	return &cp
}

// Code returns the code, OK for a nil Status.
func (s *Status) Code() Code {
	if s == nil {
		return OK
	}
	return s.code
}

// Message returns the message.
func (s *Status) Message() string {
	if s == nil {
		return ""
	}
	return s.message
}

// Details returns the binary details.
func (s *Status) Details() []byte {
	if s == nil {
		return nil
	}
	return s.details
}

// Err returns s as an error, or nil when the code is OK.
func (s *Status) Err() error {
	if s.Code() == OK {
		return nil
	}
	return s
}

func (s *Status) Error() string {
	if s.message == "" {
		return fmt.Sprintf("code:%s", s.code)
	}
	return fmt.Sprintf("code:%s message:%s", s.code, s.message)
}

func (s *Status) Unwrap() error {
	return s.cause
}

// GRPCStatus lets grpc-go recognise a Status returned from handlers and
// interceptors.
func (s *Status) GRPCStatus() *grpcstatus.Status {
	return grpcstatus.New(s.Code().GRPCCode(), s.Message())
}

// IsStatus reports whether err is or wraps a Status.
func IsStatus(err error) bool {
	var st *Status
	return errors.As(err, &st)
}

// FromError converts err into a Status. It returns nil for a nil error.
func FromError(err error) *Status {
	if err == nil {
		return nil
	}
	var st *Status
	if errors.As(err, &st) {
		return st
	}
	var gs interface{ GRPCStatus() *grpcstatus.Status }
	if errors.As(err, &gs) {
		g := gs.GRPCStatus()
		return &Status{code: FromGRPCCode(g.Code()), message: g.Message(), cause: err}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, timeout.ErrTimeout):
		return Wrap(DeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return Wrap(Cancelled, err)
	case isTransportError(err):
		return Wrap(Unavailable, err)
	}
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return Wrap(DeadlineExceeded, err)
	}
	return Wrap(Unknown, err)
}

// CodeOf returns the code of err; OK for nil.
func CodeOf(err error) Code {
	return FromError(err).Code()
}

func isTransportError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// FromHTTPStatus maps an HTTP status of a response that carried no
// grpc-status to a Status.
func FromHTTPStatus(httpStatus int) *Status {
	var code Code
	switch httpStatus {
	case http.StatusBadRequest:
		code = Internal
	case http.StatusUnauthorized:
		code = Unauthenticated
	case http.StatusForbidden:
		code = PermissionDenied
	case http.StatusNotFound:
		code = Unimplemented
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		code = Unavailable
	default:
		code = Unknown
	}
	return Newf(code, "unexpected HTTP status %d %s", httpStatus, http.StatusText(httpStatus))
}
