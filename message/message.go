// Package message defines the typed request and response envelopes that
// travel through services and layers.
package message

import "mini-grpc/metadata"

// Extensions carries values between layers that never go on the wire.
type Extensions map[any]any

// Get returns the value stored under key.
func (e Extensions) Get(key any) (any, bool) {
	v, ok := e[key]
	return v, ok
}

// Insert stores v under key. It is a no-op on a nil map.
func (e Extensions) Insert(key, v any) {
	if e != nil {
		e[key] = v
	}
}

// Request is a typed payload with out-of-band metadata.
type Request[T any] struct {
	Metadata   metadata.MD
	Extensions Extensions
	Message    T
}

// NewRequest wraps msg with empty metadata and extensions.
func NewRequest[T any](msg T) *Request[T] {
	return &Request[T]{
		Metadata:   metadata.MD{},
		Extensions: Extensions{},
		Message:    msg,
	}
}

// IntoParts splits the request. The pipeline consumes a request once.
func (r *Request[T]) IntoParts() (metadata.MD, Extensions, T) {
	return r.Metadata, r.Extensions, r.Message
}

// Response is a typed payload with the response headers and the trailers
// received after the payload.
type Response[T any] struct {
	Metadata   metadata.MD
	Trailers   metadata.MD
	Extensions Extensions
	Message    T
}

// NewResponse wraps msg with empty metadata.
func NewResponse[T any](msg T) *Response[T] {
	return &Response[T]{
		Metadata:   metadata.MD{},
		Trailers:   metadata.MD{},
		Extensions: Extensions{},
		Message:    msg,
	}
}
