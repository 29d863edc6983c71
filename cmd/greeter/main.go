// Command greeter serves and calls the hello.Greeter example service.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	mangokong "github.com/alecthomas/mango-kong"
	"go.uber.org/zap"

	"mini-grpc/config"
)

var CLI struct {
	Serve ServeCommand      `cmd:"" help:"Serve hello.Greeter."`
	Hello HelloCommand      `cmd:"" help:"Call hello.Greeter/SayHello."`
	Man   mangokong.ManFlag `help:"Write man page." hidden:""`

	Config string   `type:"existingfile" help:"YAML configuration file."`
	Etcd   []string `help:"etcd endpoints used for service discovery." placeholder:"HOST:PORT"`
	Debug  bool     `help:"Log at debug level."`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(
		&CLI,
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.ConfigureHelp(kong.HelpOptions{
			Tree:    true,
			Compact: true,
		}),
		kong.Description(`hello.Greeter over gRPC

Serves the Greeter example service or calls it, either at a fixed address or
through an etcd registry.`),
	)

	log, err := newLogger(CLI.Debug)
	kongCtx.FatalIfErrorf(err)
	defer log.Sync() //nolint:errcheck

	cfg, err := loadConfig(CLI.Config)
	kongCtx.FatalIfErrorf(err)
	kongCtx.Bind(log, cfg)

	err = kongCtx.Run()
	kongCtx.FatalIfErrorf(err)
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func loadConfig(path string) (*config.File, error) {
	if path == "" {
		return &config.File{Client: config.DefaultClient(), Server: config.DefaultServer()}, nil
	}
	return config.LoadFile(path)
}
