package schema

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"mongoscan/pkg/redis"
)

const schemaKeyPrefix = "mongoscan:schema:"

// ErrNotStored is returned by Store.Load when no mapping is persisted.
var ErrNotStored = errors.New("schema mapping not stored")

// Store persists mappings beyond the process, as a second cache tier.
type Store interface {
	Load(ctx context.Context, key string) (*Mapping, error)
	Save(ctx context.Context, key string, m *Mapping, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisStore keeps zlib-compressed JSON mappings in Redis.
type RedisStore struct {
	redisRepo redis.IRedisRepositories
}

func NewRedisStore(redisRepo redis.IRedisRepositories) *RedisStore {
	return &RedisStore{redisRepo: redisRepo}
}

func (s *RedisStore) Save(ctx context.Context, key string, m *Mapping, ttl time.Duration) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	compressed, err := compress(data)
	if err != nil {
		return fmt.Errorf("failed to compress schema: %w", err)
	}

	if err := s.redisRepo.Set(schemaKeyPrefix+key, compressed, ttl, ctx); err != nil {
		return fmt.Errorf("failed to store schema in Redis: %w", err)
	}

	log.Printf("RedisStore -> Save -> Stored schema for %s", key)
	return nil
}

func (s *RedisStore) Load(ctx context.Context, key string) (*Mapping, error) {
	raw, err := s.redisRepo.Get(schemaKeyPrefix+key, ctx)
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return nil, ErrNotStored
		}
		return nil, fmt.Errorf("failed to get schema from Redis: %w", err)
	}

	decompressed, err := decompress([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress schema: %w", err)
	}

	var m Mapping
	if err := json.Unmarshal(decompressed, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return &m, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.redisRepo.Del(schemaKeyPrefix+key, ctx)
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write compressed data: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close compressor: %w", err)
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer r.Close()

	return io.ReadAll(r)
}
