// Package rpcinfo carries the per-call RPCInfo through a context.
package rpcinfo

import (
	"context"
	"strings"

	"mini-grpc/codec"
	"mini-grpc/config"
	"mini-grpc/conn"
)

// RPCInfo is created once per call and read-only afterwards.
type RPCInfo struct {
	// Caller is the peer address on the server side, nil on the client.
	Caller conn.Address
	// Callee is the resolved target on the client, the local address on the
	// server.
	Callee conn.Address
	// Method is the full path, "/package.Service/Method".
	Method string
	Codec  codec.Codec
	Config config.Call
}

// ServiceName returns "package.Service" from the method path.
func (r *RPCInfo) ServiceName() string {
	svc, _ := SplitMethod(r.Method)
	return svc
}

// MethodName returns "Method" from the method path.
func (r *RPCInfo) MethodName() string {
	_, m := SplitMethod(r.Method)
	return m
}

// SplitMethod splits "/package.Service/Method". Malformed paths yield empty
// strings.
func SplitMethod(path string) (service, method string) {
	path = strings.TrimPrefix(path, "/")
	i := strings.LastIndexByte(path, '/')
	if i <= 0 || i == len(path)-1 {
		return "", ""
	}
	return path[:i], path[i+1:]
}

// FullMethod joins a service and method into a path.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

type ctxKey struct{}

// NewContext returns ctx carrying info.
func NewContext(ctx context.Context, info *RPCInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// FromContext returns the call's RPCInfo.
func FromContext(ctx context.Context) (*RPCInfo, bool) {
	info, ok := ctx.Value(ctxKey{}).(*RPCInfo)
	return info, ok && info != nil
}

// MethodFromContext returns the method path or "".
func MethodFromContext(ctx context.Context) string {
	if info, ok := FromContext(ctx); ok {
		return info.Method
	}
	return ""
}
