package testbank

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisProvider is the production RowProvider: each repository's test rows
// live in a Redis hash keyed "<prefix><repo_id>", field=hash, value=test
// source.
type RedisProvider struct {
	client *redis.Client
	prefix string
}

// NewRedisProvider wraps an existing go-redis client.
func NewRedisProvider(client *redis.Client, keyPrefix string) *RedisProvider {
	return &RedisProvider{client: client, prefix: keyPrefix}
}

// LoadRows loads the full hash -> test-source map for repoID via HGETALL.
func (p *RedisProvider) LoadRows(ctx context.Context, repoID string) (map[string]string, error) {
	key := p.prefix + repoID
	rows, err := p.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("testbank: redis HGETALL %s: %w", key, err)
	}
	return rows, nil
}
