package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tokenguard/internal/server/repositories/users"
	"github.com/redis/go-redis/v9"
)

// RedisRepositoryManager vends the Redis-backed users store. Redis needs no
// schema, so RunMigrations only checks the connection.
type RedisRepositoryManager struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRepositoryManager(addr, prefix string) *RedisRepositoryManager {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisRepositoryManager{client: client, prefix: prefix}
}

func (m *RedisRepositoryManager) Users() users.Repository {
	return users.NewRedisRepository(m.client, m.prefix)
}

func (m *RedisRepositoryManager) RunMigrations(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (m *RedisRepositoryManager) Close() error {
	return m.client.Close()
}
