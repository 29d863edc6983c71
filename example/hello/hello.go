// Package hello is the Greeter example service.
package hello

import (
	"context"

	"mini-grpc/client"
	"mini-grpc/message"
	"mini-grpc/server"
)

//go:generate easyjson -all hello.go

// ServiceName is the fully qualified name of the Greeter service.
const ServiceName = "hello.Greeter"

// SayHelloMethod is the path of Greeter.SayHello.
const SayHelloMethod = "/" + ServiceName + "/SayHello"

type HelloRequest struct {
	Name string `json:"name"`
}

type HelloReply struct {
	Message string `json:"message"`
}

// GreeterServer is implemented by Greeter handlers.
type GreeterServer interface {
	SayHello(ctx context.Context, req *message.Request[HelloRequest]) (*message.Response[HelloReply], error)
}

// NewGreeterService describes impl for server.Server.AddService.
func NewGreeterService(impl GreeterServer) *server.ServiceDesc {
	return &server.ServiceDesc{
		Name: ServiceName,
		Methods: map[string]server.Handler{
			"SayHello": server.Unary(impl.SayHello),
		},
	}
}

// Greeter greets by name.
type Greeter struct{}

func (Greeter) SayHello(_ context.Context, req *message.Request[HelloRequest]) (*message.Response[HelloReply], error) {
	return message.NewResponse(HelloReply{Message: "Hello, " + req.Message.Name + "!"}), nil
}

// GreeterClient calls Greeter through a client.Client.
type GreeterClient struct {
	sayHello *client.Unary[HelloRequest, HelloReply]
}

func NewGreeterClient(c *client.Client) *GreeterClient {
	return &GreeterClient{
		sayHello: client.NewUnary[HelloRequest, HelloReply](c, SayHelloMethod),
	}
}

func (g *GreeterClient) SayHello(ctx context.Context, req *message.Request[HelloRequest], opts ...client.CallOption) (*message.Response[HelloReply], error) {
	return g.sayHello.Call(ctx, req, opts...)
}
