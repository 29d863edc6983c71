package loadbalance

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-grpc/registry"
)

var testInstances = []registry.ServiceInstance{
	{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"},
	{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0"},
	{Addr: "127.0.0.1:8003", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}
	ctx := context.Background()

	var got []string
	for i := 0; i < 4; i++ {
		inst, err := b.Pick(ctx, testInstances)
		require.NoError(t, err)
		got = append(got, inst.Addr)
	}
	assert.Equal(t, []string{"127.0.0.1:8001", "127.0.0.1:8002", "127.0.0.1:8003", "127.0.0.1:8001"}, got)
}

func TestRoundRobinConcurrent(t *testing.T) {
	b := &RoundRobinBalancer{}
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		counts = map[string]int{}
	)
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst, err := b.Pick(context.Background(), testInstances)
			assert.NoError(t, err)
			mu.Lock()
			counts[inst.Addr]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	for _, inst := range testInstances {
		assert.Equal(t, 100, counts[inst.Addr])
	}
}

func TestEmpty(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}, NewConsistentHashBalancer()} {
		t.Run(b.Name(), func(t *testing.T) {
			_, err := b.Pick(context.Background(), nil)
			assert.ErrorIs(t, err, ErrNoInstances)
		})
	}
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}
	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		inst, err := b.Pick(context.Background(), testInstances)
		require.NoError(t, err)
		counts[inst.Addr]++
	}
	// weights are 10:5:10
	ratio := float64(counts["127.0.0.1:8001"]) / float64(counts["127.0.0.1:8002"])
	assert.InDelta(t, 2.0, ratio, 0.5)
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	inst, err := b.Pick(context.Background(), []registry.ServiceInstance{{Addr: "a"}})
	require.NoError(t, err)
	assert.Equal(t, "a", inst.Addr)
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()

	pick := func(key string, instances []registry.ServiceInstance) string {
		inst, err := b.Pick(WithHashKey(context.Background(), key), instances)
		require.NoError(t, err)
		return inst.Addr
	}

	assert.Equal(t, pick("user-123", testInstances), pick("user-123", testInstances))

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		seen[pick(fmt.Sprintf("key-%d", i), testInstances)] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2)

	// a removed instance is never picked after the ring is rebuilt
	remaining := testInstances[:2]
	for i := 0; i < 100; i++ {
		assert.NotEqual(t, "127.0.0.1:8003", pick(fmt.Sprintf("key-%d", i), remaining))
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{"round_robin", "weighted_random", "consistent_hash"} {
		b, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, b.Name())
	}
	_, err := New("random")
	assert.Error(t, err)
}
