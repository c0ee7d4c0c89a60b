package mailbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/eleven-am/dictation/internal/shared"
	"github.com/redis/go-redis/v9"
)

// Redis keeps a mailbox in a single hash so a worker can serve callers on
// other hosts that share the server.
type Redis struct {
	redis *redis.Client
	key   string
}

func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{redis: client, key: key}
}

func NewRedisPair(client *redis.Client, prefix string) Pair {
	if prefix == "" {
		prefix = "dictation"
	}
	return Pair{
		Requests:  NewRedis(client, prefix+":requests"),
		Responses: NewRedis(client, prefix+":responses"),
	}
}

func (r *Redis) Publish(ctx context.Context, id string, payload []byte) error {
	if err := r.redis.HSet(ctx, r.key, id, payload).Err(); err != nil {
		return fmt.Errorf("%w: hset %s: %v", shared.ErrTransport, id, err)
	}
	return nil
}

func (r *Redis) List(ctx context.Context) ([]string, error) {
	ids, err := r.redis.HKeys(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: hkeys %s: %v", shared.ErrTransport, r.key, err)
	}
	return ids, nil
}

func (r *Redis) Read(ctx context.Context, id string) ([]byte, error) {
	data, err := r.redis.HGet(ctx, r.key, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: hget %s: %v", shared.ErrTransport, id, err)
	}
	return data, nil
}

func (r *Redis) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.redis.HDel(ctx, r.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("%w: hdel %s: %v", shared.ErrTransport, id, err)
	}
	return n > 0, nil
}

func (r *Redis) Probe(ctx context.Context) error {
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", shared.ErrTransport, err)
	}
	return nil
}

func (r *Redis) Purge(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("%w: del %s: %v", shared.ErrTransport, r.key, err)
	}
	return nil
}
