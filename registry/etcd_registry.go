package registry

import (
	"context"
	"sync"

	jsoniter "github.com/json-iterator/go"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// KeyPrefix is the root of every key written by EtcdRegistry:
//
//	/mini-grpc/{service}/{addr} -> JSON ServiceInstance
const KeyPrefix = "/mini-grpc/"

// EtcdRegistry keeps instances in etcd under leases renewed in the
// background.
type EtcdRegistry struct {
	client *clientv3.Client
	log    *zap.Logger

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID
}

var _ Registry = (*EtcdRegistry)(nil)

// NewEtcdRegistry connects to endpoints.
func NewEtcdRegistry(endpoints []string, log *zap.Logger) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	return NewEtcdRegistryFromClient(c, log), nil
}

// NewEtcdRegistryFromClient uses an existing client. Close closes it.
func NewEtcdRegistryFromClient(c *clientv3.Client, log *zap.Logger) *EtcdRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &EtcdRegistry{
		client: c,
		log:    log.Named("registry"),
		leases: make(map[string]clientv3.LeaseID),
	}
}

func serviceKey(serviceName string) string {
	return KeyPrefix + serviceName + "/"
}

func instanceKey(serviceName, addr string) string {
	return serviceKey(serviceName) + addr
}

// Register puts the instance under a fresh lease and keeps the lease alive
// until Deregister or Close.
func (r *EtcdRegistry) Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error {
	val, err := jsoniter.Marshal(instance)
	if err != nil {
		return err
	}
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}
	key := instanceKey(serviceName, instance.Addr)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// the keepalive outlives the registering call
	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
		r.log.Debug("lease keepalive stopped", zap.String("key", key))
	}()

	r.mu.Lock()
	old, replaced := r.leases[key]
	r.leases[key] = lease.ID
	r.mu.Unlock()
	if replaced {
		_, _ = r.client.Revoke(ctx, old)
	}

	r.log.Info("registered",
		zap.String("service", serviceName),
		zap.String("addr", instance.Addr),
		zap.Int64("ttl", ttl))
	return nil
}

// Deregister deletes the key and revokes its lease.
func (r *EtcdRegistry) Deregister(ctx context.Context, serviceName string, addr string) error {
	key := instanceKey(serviceName, addr)
	_, err := r.client.Delete(ctx, key)

	r.mu.Lock()
	id, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()
	if ok {
		_, rerr := r.client.Revoke(ctx, id)
		err = multierr.Append(err, rerr)
	}
	if err == nil {
		r.log.Info("deregistered", zap.String("service", serviceName), zap.String("addr", addr))
	}
	return err
}

// Discover lists every instance under the service prefix. Malformed values
// are skipped.
func (r *EtcdRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, serviceKey(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := jsoniter.Unmarshal(kv.Value, &instance); err != nil {
			r.log.Warn("skipping malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch re-reads the instance list on every change under the prefix. The
// channel is closed when ctx ends.
func (r *EtcdRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	go func() {
		defer close(ch)
		for range r.client.Watch(ctx, serviceKey(serviceName), clientv3.WithPrefix()) {
			instances, err := r.Discover(ctx, serviceName)
			if err != nil {
				r.log.Warn("discover after watch event failed", zap.String("service", serviceName), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Close revokes outstanding leases and closes the client.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	leases := r.leases
	r.leases = make(map[string]clientv3.LeaseID)
	r.mu.Unlock()

	var err error
	for _, id := range leases {
		_, rerr := r.client.Revoke(context.Background(), id)
		err = multierr.Append(err, rerr)
	}
	return multierr.Append(err, r.client.Close())
}
