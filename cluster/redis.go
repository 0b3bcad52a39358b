package cluster

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kulupu-go/kulupu/cluster/pb"
	"github.com/kulupu-go/kulupu/mining"
	"github.com/kulupu-go/kulupu/primitives"
)

// RedisConfig holds Redis connection configuration for a shared cluster
// cache, letting several coordinator replicas present one logical cluster.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache backs metadata distribution, worker presence, and seal
// deduplication with Redis, so a pool of coordinator instances can share
// state instead of each tracking its own in-memory worker set.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache dials Redis and verifies connectivity before returning.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cluster: failed to connect to redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Close closes the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

const metadataKey = "cluster:metadata:current"

// SetMetadata caches the current block-template snapshot for other
// coordinator replicas to pick up, and publishes a notification on the
// cluster:metadata channel.
func (c *RedisCache) SetMetadata(ctx context.Context, meta *mining.Metadata) error {
	wire, err := metadataToWire(meta).Marshal()
	if err != nil {
		return fmt.Errorf("cluster: failed to marshal metadata: %w", err)
	}
	if err := c.client.Set(ctx, metadataKey, wire, time.Minute).Err(); err != nil {
		return fmt.Errorf("cluster: failed to cache metadata: %w", err)
	}
	return c.client.Publish(ctx, "cluster:metadata", meta.PreHash.String()).Err()
}

// GetMetadata retrieves the cached block-template snapshot, or nil if none
// is currently cached.
func (c *RedisCache) GetMetadata(ctx context.Context) (*mining.Metadata, error) {
	value, err := c.client.Get(ctx, metadataKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cluster: failed to get cached metadata: %w", err)
	}

	msg := new(pb.JobMessage)
	if err := msg.Unmarshal(value); err != nil {
		return nil, fmt.Errorf("cluster: failed to unmarshal cached metadata: %w", err)
	}
	return wireToMetadata(msg), nil
}

// SubscribeMetadata subscribes to new-metadata notifications.
func (c *RedisCache) SubscribeMetadata(ctx context.Context) *redis.PubSub {
	return c.client.Subscribe(ctx, "cluster:metadata")
}

// CheckSealDuplicate reports whether a (workerID, preHash, sealBytes) triple
// was already submitted recently, guarding against the same seal being
// forwarded to the node twice by concurrent coordinator replicas.
func (c *RedisCache) CheckSealDuplicate(ctx context.Context, workerID string, preHash primitives.H256, sealBytes []byte) (bool, error) {
	key := fmt.Sprintf("cluster:seal:%s:%s:%s", workerID, preHash.String(), hex.EncodeToString(sealBytes))

	set, err := c.client.SetNX(ctx, key, "1", 10*time.Minute).Result()
	if err != nil {
		return false, fmt.Errorf("cluster: failed to check seal duplicate: %w", err)
	}
	return !set, nil
}

// SetWorkerOnline marks a worker present in the shared presence set.
func (c *RedisCache) SetWorkerOnline(ctx context.Context, workerID string) error {
	return c.client.SAdd(ctx, "cluster:workers:online", workerID).Err()
}

// SetWorkerOffline removes a worker from the shared presence set.
func (c *RedisCache) SetWorkerOffline(ctx context.Context, workerID string) error {
	return c.client.SRem(ctx, "cluster:workers:online", workerID).Err()
}

// OnlineWorkerCount returns how many workers are currently present
// cluster-wide, across all coordinator replicas.
func (c *RedisCache) OnlineWorkerCount(ctx context.Context) (int64, error) {
	return c.client.SCard(ctx, "cluster:workers:online").Result()
}

// RecordHashrate accounts difficulty-weighted share credit into a 1-minute
// bucket for worker and cluster-wide hashrate estimation.
func (c *RedisCache) RecordHashrate(ctx context.Context, workerID string, difficulty uint64) error {
	bucket := time.Now().Unix() / 60

	pipe := c.client.Pipeline()

	clusterKey := fmt.Sprintf("cluster:hashrate:total:%d", bucket)
	pipe.IncrBy(ctx, clusterKey, int64(difficulty))
	pipe.Expire(ctx, clusterKey, 10*time.Minute)

	workerKey := fmt.Sprintf("cluster:hashrate:worker:%s:%d", workerID, bucket)
	pipe.IncrBy(ctx, workerKey, int64(difficulty))
	pipe.Expire(ctx, workerKey, 10*time.Minute)

	_, err := pipe.Exec(ctx)
	return err
}

// ClusterHashrate estimates the whole cluster's hashrate (in difficulty
// units/sec) over the last N minutes.
func (c *RedisCache) ClusterHashrate(ctx context.Context, minutes int) (float64, error) {
	now := time.Now().Unix() / 60

	var total int64
	for i := 0; i < minutes; i++ {
		bucket := now - int64(i)
		key := fmt.Sprintf("cluster:hashrate:total:%d", bucket)
		val, err := c.client.Get(ctx, key).Int64()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return 0, err
		}
		total += val
	}
	return float64(total) / float64(minutes*60), nil
}

