// Package registry publishes server addresses under a service name and lets
// clients discover them.
package registry

import (
	"context"

	"mini-grpc/conn"
)

//go:generate mockgen -destination=registrytest/registry.go -package=registrytest mini-grpc/registry Registry

// ServiceInstance is one server reachable for a service.
type ServiceInstance struct {
	Addr    string `json:"addr" yaml:"addr"`
	Weight  int    `json:"weight,omitempty" yaml:"weight"`
	Version string `json:"version,omitempty" yaml:"version"`
}

// Address parses Addr.
func (i ServiceInstance) Address() (conn.Address, error) {
	return conn.ParseAddress(i.Addr)
}

// Registry stores service instances.
type Registry interface {
	// Register publishes instance under serviceName. The entry expires ttl
	// seconds after the registry loses contact with the process.
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	// Deregister removes the instance at addr.
	Deregister(ctx context.Context, serviceName string, addr string) error
	// Discover lists the current instances of serviceName.
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Watch emits the full instance list after every change until ctx ends.
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
