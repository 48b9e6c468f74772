package lease

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "venue_scheduler:lease:"

// RedisLocker распределённая аренда через SET NX PX
type RedisLocker struct {
	client *redis.Client
	prefix string
	owner  string
}

// NewRedisClient создаёт клиент Redis
func NewRedisClient(addr, username, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       0,
	})
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	host, _ := os.Hostname()
	return &RedisLocker{
		client: client,
		prefix: defaultPrefix,
		owner:  host + ":" + strconv.Itoa(os.Getpid()),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	return ok, nil
}

// Owner возвращает текущего владельца аренды или пустую строку
func (l *RedisLocker) Owner(ctx context.Context, key string) (string, error) {
	owner, err := l.client.Get(ctx, l.prefix+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get lease owner %s: %w", key, err)
	}
	return owner, nil
}

// Ping проверяет доступность Redis при старте
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
