package tokencache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a Redis server, for sharing one token across
// processes. Keys are stored under Prefix.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// DefaultRedisPrefix is prepended to every key unless overridden.
const DefaultRedisPrefix = "geminilive:token:"

// NewRedis wraps a Redis client. An empty prefix uses DefaultRedisPrefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) (Token, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, ErrNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("tokencache: redis get: %w", err)
	}
	tok, err := decode(data)
	if err != nil {
		return Token{}, fmt.Errorf("tokencache: decode %s: %w", key, err)
	}
	if !tok.Valid(0) {
		return Token{}, ErrNotFound
	}
	return tok, nil
}

func (r *Redis) Set(ctx context.Context, key string, tok Token) error {
	ttl := tok.ttl()
	if ttl < 0 {
		return nil
	}
	data, err := encode(tok)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("tokencache: redis set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("tokencache: redis del: %w", err)
	}
	return nil
}
