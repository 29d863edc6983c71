package loadbalance

import (
	"context"
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"mini-grpc/registry"
	"mini-grpc/rpcinfo"
)

const defaultReplicas = 100

type hashKey struct{}

// WithHashKey sets the key ConsistentHashBalancer routes the call by.
func WithHashKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, hashKey{}, key)
}

// ConsistentHashBalancer maps a key onto a ring of virtual nodes, so the
// same key reaches the same instance while the instance set is stable. The
// key comes from WithHashKey, falling back to the call's method.
type ConsistentHashBalancer struct {
	replicas int

	mu    sync.Mutex
	sig   string
	ring  []uint32
	nodes map[uint32]string
}

// NewConsistentHashBalancer places 100 virtual nodes per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: defaultReplicas}
}

func signature(instances []registry.ServiceInstance) string {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	sort.Strings(addrs)
	return strings.Join(addrs, ",")
}

// rebuild replaces the ring when the instance set changed. Called with b.mu
// held.
func (b *ConsistentHashBalancer) rebuild(instances []registry.ServiceInstance) {
	sig := signature(instances)
	if sig == b.sig && b.nodes != nil {
		return
	}
	b.sig = sig
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]string, len(instances)*b.replicas)
	for _, inst := range instances {
		for i := 0; i < b.replicas; i++ {
			h := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", inst.Addr, i)))
			b.ring = append(b.ring, h)
			b.nodes[h] = inst.Addr
		}
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

func (b *ConsistentHashBalancer) Pick(ctx context.Context, instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	key, _ := ctx.Value(hashKey{}).(string)
	if key == "" {
		key = rpcinfo.MethodFromContext(ctx)
	}

	b.mu.Lock()
	b.rebuild(instances)
	h := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= h })
	if idx == len(b.ring) {
		idx = 0
	}
	addr := b.nodes[b.ring[idx]]
	b.mu.Unlock()

	for i := range instances {
		if instances[i].Addr == addr {
			return &instances[i], nil
		}
	}
	return &instances[0], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "consistent_hash"
}
