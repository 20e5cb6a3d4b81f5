package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/flsim/pkg/errors"
)

// RedisConfig holds configuration for Redis experiment storage.
type RedisConfig struct {
	Addr         string        `json:"addr"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	PoolSize     int           `json:"pool_size"`
	TTL          time.Duration `json:"ttl"`
	KeyPrefix    string        `json:"key_prefix"`
}

// RedisStorage keeps experiment documents in Redis, one key per experiment,
// with an optional TTL.
type RedisStorage struct {
	config *RedisConfig
	client *redis.Client
	logger *logrus.Logger
	mu     sync.RWMutex
	closed bool
}

// NewRedisStorage creates a Redis storage instance.
func NewRedisStorage(config *RedisConfig, logger *logrus.Logger) (*RedisStorage, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis config cannot be nil")
	}
	if config.Addr == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis address is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "flsim:experiment:"
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &RedisStorage{config: config, logger: logger}, nil
}

// Connect establishes the connection and verifies it with a ping.
func (r *RedisStorage) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         r.config.Addr,
		Password:     r.config.Password,
		DB:           r.config.DB,
		DialTimeout:  r.config.DialTimeout,
		ReadTimeout:  r.config.ReadTimeout,
		WriteTimeout: r.config.WriteTimeout,
		PoolSize:     r.config.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			fmt.Sprintf("failed to connect to Redis at %s", r.config.Addr))
	}

	r.client = client
	r.logger.WithField("addr", r.config.Addr).Info("Redis storage connected")
	return nil
}

// Put stores a document under its experiment key.
func (r *RedisStorage) Put(ctx context.Context, id string, data []byte) error {
	client, err := r.activeClient()
	if err != nil {
		return err
	}
	if err := client.Set(ctx, r.key(id), data, r.config.TTL).Err(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to store experiment %s", id))
	}
	return nil
}

// Get retrieves a document by experiment id.
func (r *RedisStorage) Get(ctx context.Context, id string) ([]byte, error) {
	client, err := r.activeClient()
	if err != nil {
		return nil, err
	}
	data, err := client.Get(ctx, r.key(id)).Bytes()
	if err == redis.Nil {
		return nil, errors.NewExperimentError(errors.CodeExperimentNotFound,
			fmt.Sprintf("experiment %s not found", id))
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("failed to read experiment %s", id))
	}
	return data, nil
}

// List scans for all experiment keys under the configured prefix.
func (r *RedisStorage) List(ctx context.Context) ([]string, error) {
	client, err := r.activeClient()
	if err != nil {
		return nil, err
	}

	var ids []string
	iter := client.Scan(ctx, 0, r.config.KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), r.config.KeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			"failed to scan experiment keys")
	}
	return ids, nil
}

// Delete removes a document by experiment id.
func (r *RedisStorage) Delete(ctx context.Context, id string) error {
	client, err := r.activeClient()
	if err != nil {
		return err
	}
	removed, err := client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to delete experiment %s", id))
	}
	if removed == 0 {
		return errors.NewExperimentError(errors.CodeExperimentNotFound,
			fmt.Sprintf("experiment %s not found", id))
	}
	return nil
}

// Close shuts down the connection pool.
func (r *RedisStorage) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil || r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

func (r *RedisStorage) activeClient() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil || r.closed {
		return nil, errors.NewStorageError(errors.CodeNotConnected, "Redis storage is not connected")
	}
	return r.client, nil
}

func (r *RedisStorage) key(id string) string {
	return r.config.KeyPrefix + id
}
