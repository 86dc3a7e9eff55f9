package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/autopo-forecast/internal/config"
)

const (
	defaultCacheTTL = time.Hour
	scanBatchSize   = 100
)

// jsonStore holds JSON documents under prefixed keys with a shared TTL
type jsonStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func newJSONStore(cfg config.CacheConfig, prefix string) (*jsonStore, error) {
	opts, err := buildRedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &jsonStore{client: client, prefix: prefix, ttl: cacheTTL(cfg)}, nil
}

func (s *jsonStore) key(suffix string) string {
	return s.prefix + ":" + suffix
}

// get decodes the document into dest. found is false on a miss.
func (s *jsonStore) get(ctx context.Context, suffix string, dest interface{}) (found bool, err error) {
	payload, err := s.client.Get(ctx, s.key(suffix)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s failed: %w", s.prefix, err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("decode %s cache entry: %w", s.prefix, err)
	}
	return true, nil
}

// set stores the full document with a single SET
func (s *jsonStore) set(ctx context.Context, suffix string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s cache entry: %w", s.prefix, err)
	}
	if err := s.client.Set(ctx, s.key(suffix), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", s.prefix, err)
	}
	return nil
}

func (s *jsonStore) del(ctx context.Context, suffix string) error {
	if err := s.client.Del(ctx, s.key(suffix)).Err(); err != nil {
		return fmt.Errorf("redis delete %s failed: %w", s.prefix, err)
	}
	return nil
}

// clear removes every key under the store prefix
func (s *jsonStore) clear(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, s.client, s.prefix+":", scanBatchSize)
}

func cacheTTL(cfg config.CacheConfig) time.Duration {
	ttl := time.Duration(cfg.StatsTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return ttl
}

func buildRedisOptions(cfg config.CacheConfig) (*redis.Options, error) {
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return opt, nil
	}

	host := cfg.RedisHost
	if host == "" {
		host = "127.0.0.1"
	}

	port := cfg.RedisPort
	if port == "" {
		port = "6379"
	}

	return &redis.Options{
		Addr:     net.JoinHostPort(host, port),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

func deleteKeysWithPrefix(ctx context.Context, client *redis.Client, prefix string, batchSize int64) error {
	var cursor uint64
	pattern := prefix + "*"
	for {
		keys, nextCursor, err := client.Scan(ctx, cursor, pattern, batchSize).Result()
		if err != nil {
			return fmt.Errorf("redis scan failed: %w", err)
		}

		if len(keys) > 0 {
			if err := client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis delete failed: %w", err)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return nil
}
