package main

import (
	"context"

	"go.uber.org/zap"

	"mini-grpc/config"
	"mini-grpc/conn"
	"mini-grpc/example/hello"
	"mini-grpc/middleware"
	"mini-grpc/registry"
	"mini-grpc/server"
)

const defaultAddr = "127.0.0.1:8080"

type ServeCommand struct {
	Addr      string  `arg:"" optional:"" help:"Listen address, ip:port or a socket path. Overrides server.address."`
	Advertise string  `help:"Address published to the registry."`
	Requests  float64 `help:"Server-wide request rate limit, 0 disables it."`
}

func (c *ServeCommand) Run(ctx context.Context, log *zap.Logger, cfg *config.File) error {
	addrStr := c.Addr
	if addrStr == "" {
		addrStr = cfg.Server.Address
	}
	if addrStr == "" {
		addrStr = defaultAddr
	}
	addr, err := conn.ParseAddress(addrStr)
	if err != nil {
		return err
	}

	opts := []server.Option{server.WithConfig(cfg.Server), server.WithLogger(log)}
	if len(CLI.Etcd) > 0 {
		reg, err := registry.NewEtcdRegistry(CLI.Etcd, log)
		if err != nil {
			return err
		}
		defer reg.Close()
		advertise := c.Advertise
		if advertise == "" {
			advertise = cfg.Server.AdvertiseAddress
		}
		opts = append(opts, server.WithRegistry(reg, advertise, cfg.Server.RegistryTTL))
	}

	s := server.NewServer(opts...)
	if err := s.Use(middleware.Logging[*middleware.RawRequest, *middleware.RawResponse](log)); err != nil {
		return err
	}
	if c.Requests > 0 {
		err := s.Use(middleware.RateLimit[*middleware.RawRequest, *middleware.RawResponse](c.Requests, int(c.Requests)+1))
		if err != nil {
			return err
		}
	}
	if err := s.AddService(hello.NewGreeterService(hello.Greeter{})); err != nil {
		return err
	}
	return s.ServeWithShutdown(context.Background(), addr, ctx.Done())
}
