package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mini-grpc/client"
	"mini-grpc/codec"
	"mini-grpc/compression"
	"mini-grpc/config"
	"mini-grpc/example/hello"
	"mini-grpc/loadbalance"
	"mini-grpc/message"
	"mini-grpc/registry"
)

type HelloCommand struct {
	Name     string        `arg:"" optional:"" default:"Volo" help:"Name to greet."`
	Target   string        `help:"Server address. Overrides client.target."`
	Balancer string        `default:"round_robin" enum:"round_robin,weighted_random,consistent_hash" help:"Instance picker used with --etcd."`
	Timeout  time.Duration `default:"5s" help:"Call timeout."`
	Gzip     bool          `help:"Compress the request with gzip."`
}

func (c *HelloCommand) Run(ctx context.Context, log *zap.Logger, cfg *config.File) error {
	opts := []client.Option{
		client.WithConfig(cfg.Client),
		client.WithCodec(codec.JSON{}),
		client.WithTimeout(c.Timeout),
		client.WithLogger(log),
	}
	switch {
	case c.Target != "":
		opts = append(opts, client.WithTarget(c.Target))
	case cfg.Client.Target == "" && len(CLI.Etcd) == 0:
		opts = append(opts, client.WithTarget(defaultAddr))
	}
	if len(CLI.Etcd) > 0 {
		reg, err := registry.NewEtcdRegistry(CLI.Etcd, log)
		if err != nil {
			return err
		}
		defer reg.Close()
		bal, err := loadbalance.New(c.Balancer)
		if err != nil {
			return err
		}
		opts = append(opts, client.WithResolver(reg, bal))
	}

	cl, err := client.New(opts...)
	if err != nil {
		return err
	}
	defer cl.Close()

	var callOpts []client.CallOption
	if c.Gzip {
		callOpts = append(callOpts, client.WithSendCompression(compression.Gzip))
	}
	resp, err := hello.NewGreeterClient(cl).SayHello(ctx, message.NewRequest(hello.HelloRequest{Name: c.Name}), callOpts...)
	if err != nil {
		return err
	}
	fmt.Println(resp.Message.Message)
	return nil
}
