package kvstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"paykit/pkg/platform/sentinel"
)

const clearScanBatch = 100

// Redis is a go-redis Backend. Keys are stored as "<namespace>:<key>" so Clear
// only touches this SDK's keys.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a Redis-backed key-value backend.
func NewRedis(client *redis.Client, namespace string) *Redis {
	return &Redis{client: client, prefix: namespace + ":"}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Put stores value without expiry; identity state must outlive any TTL.
func (r *Redis) Put(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, 0).Err()
}

// PutMany writes every item in one MULTI/EXEC transaction.
func (r *Redis) PutMany(ctx context.Context, items map[string][]byte) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range items {
			pipe.Set(ctx, r.prefix+k, v, 0)
		}
		return nil
	})
	return err
}

func (r *Redis) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", clearScanBatch).Iterator()
	batch := make([]string, 0, clearScanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == clearScanBatch {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}

// Close is a no-op; the client is owned by whoever constructed it.
func (r *Redis) Close() error {
	return nil
}
