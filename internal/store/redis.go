package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	fieldValue   = "value"
	fieldVersion = "version"
)

// Redis stores each key as a hash holding the value and its version and
// guards writes with WATCH/MULTI.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(key string) string {
	return r.prefix + key
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, Version, error) {
	vals, err := r.client.HMGet(ctx, r.key(key), fieldValue, fieldVersion).Result()
	if err != nil {
		return nil, "", err
	}
	value, _ := vals[0].(string)
	version, _ := vals[1].(string)
	if version == "" {
		return nil, "", ErrNotFound
	}
	return []byte(value), Version(version), nil
}

func (r *Redis) CompareAndSwap(ctx context.Context, key string, expected Version, value []byte) error {
	k := r.key(key)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, k, fieldVersion).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if Version(current) != expected {
			return conflict(key)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, fieldValue, value, fieldVersion, uuid.NewString())
			return nil
		})
		return err
	}, k)

	if errors.Is(err, redis.TxFailedErr) {
		return conflict(key)
	}
	return err
}

func (r *Redis) Close() error {
	return r.client.Close()
}
