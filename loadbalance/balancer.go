// Package loadbalance picks the instance a call is sent to.
//
//   - RoundRobin: equal-capacity instances
//   - WeightedRandom: instances of different capacity
//   - ConsistentHash: affinity by a per-call key
package loadbalance

import (
	"context"
	"errors"
	"fmt"

	"mini-grpc/registry"
)

// ErrNoInstances is returned when there is nothing to pick from.
var ErrNoInstances = errors.New("no instances available")

// Balancer selects one instance per call. Implementations are safe for
// concurrent use.
type Balancer interface {
	Pick(ctx context.Context, instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

// New returns the balancer registered under name.
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, fmt.Errorf("unknown balancer %q", name)
}
