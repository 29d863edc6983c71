package rpcinfo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		give, svc, method string
	}{
		{"/hello.Greeter/SayHello", "hello.Greeter", "SayHello"},
		{"hello.Greeter/SayHello", "hello.Greeter", "SayHello"},
		{"/a.b.C/D", "a.b.C", "D"},
		{"/nomethod/", "", ""},
		{"/justone", "", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		svc, m := SplitMethod(tt.give)
		assert.Equal(t, tt.svc, svc, tt.give)
		assert.Equal(t, tt.method, m, tt.give)
	}
	assert.Equal(t, "/hello.Greeter/SayHello", FullMethod("hello.Greeter", "SayHello"))
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "", MethodFromContext(context.Background()))

	info := &RPCInfo{Method: "/hello.Greeter/SayHello"}
	got, ok := FromContext(NewContext(context.Background(), info))
	require.True(t, ok)
	assert.Same(t, info, got)
	assert.Equal(t, "hello.Greeter", got.ServiceName())
	assert.Equal(t, "SayHello", got.MethodName())
}
