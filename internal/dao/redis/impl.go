package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"edulead_chat_server/pkg/errorx"
)

// RedisStore implements AsyncKVStore on a shared Redis instance. A worker
// pool drains SubmitTask so cache write-backs never block request handling.
type RedisStore struct {
	client   *redis.Client
	taskChan chan func()
}

// NewRedisStore creates the store and starts workerNum background workers.
func NewRedisStore(client *redis.Client, workerNum, taskChanSize int) *RedisStore {
	rs := &RedisStore{
		client:   client,
		taskChan: make(chan func(), taskChanSize),
	}
	for i := 0; i < workerNum; i++ {
		go rs.startWorker()
	}
	zap.L().Info("redis store workers started",
		zap.Int("workers", workerNum), zap.Int("buffer", taskChanSize))
	return rs
}

func (r *RedisStore) startWorker() {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("redis worker panic", zap.Any("recover", rec))
			go r.startWorker()
		}
	}()
	for task := range r.taskChan {
		if task != nil {
			task()
		}
	}
}

// ==================== String ops ====================

func (r *RedisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "redis set key %s", key)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", errorx.Wrapf(err, errorx.CodeCacheError, "redis get key %s", key)
	}
	return value, nil
}

func (r *RedisStore) GetOrError(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", errorx.Wrapf(err, errorx.CodeNotFound, "redis key %s not found", key)
		}
		return "", errorx.Wrapf(err, errorx.CodeCacheError, "redis get key %s", key)
	}
	return value, nil
}

func (r *RedisStore) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, errorx.Wrapf(err, errorx.CodeCacheError, "redis setnx key %s", key)
	}
	return ok, nil
}

// ==================== Key ops ====================

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "redis exists key %s", key)
	}
	if exists == 1 {
		if err := r.client.Unlink(ctx, key).Err(); err != nil {
			return errorx.Wrapf(err, errorx.CodeCacheError, "redis unlink key %s", key)
		}
	}
	return nil
}

func (r *RedisStore) GetByPrefix(ctx context.Context, prefix string) (map[string]string, error) {
	var cursor uint64
	var foundKeys []string

	// SCAN rather than KEYS so a large registry never blocks Redis.
	for {
		var keys []string
		var err error
		keys, cursor, err = r.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, errorx.Wrapf(err, errorx.CodeCacheError, "redis scan prefix %s", prefix)
		}
		foundKeys = append(foundKeys, keys...)
		if cursor == 0 {
			break
		}
	}

	result := make(map[string]string, len(foundKeys))
	if len(foundKeys) == 0 {
		return result, nil
	}
	values, err := r.client.MGet(ctx, foundKeys...).Result()
	if err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "redis mget prefix %s", prefix)
	}
	for i, v := range values {
		if s, ok := v.(string); ok {
			result[foundKeys[i]] = s
		}
	}
	return result, nil
}

// ==================== List ops ====================

func (r *RedisStore) AppendToList(ctx context.Context, key string, value string, max int64, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, value)
	if max > 0 {
		// Keep the max most-recent entries; older ones are dropped, not
		// retried.
		pipe.LTrim(ctx, key, -max, -1)
	}
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "redis append list %s", key)
	}
	return nil
}

func (r *RedisStore) ListRange(ctx context.Context, key string) ([]string, error) {
	values, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "redis lrange %s", key)
	}
	return values, nil
}

func (r *RedisStore) DrainList(ctx context.Context, key string) ([]string, error) {
	pipe := r.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Unlink(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "redis drain list %s", key)
	}
	return rangeCmd.Val(), nil
}

// ==================== Async tasks ====================

func (r *RedisStore) SubmitTask(action func()) {
	select {
	case r.taskChan <- action:
	default:
		zap.L().Warn("redis task channel full, executing synchronously")
		action()
	}
}

var _ AsyncKVStore = (*RedisStore)(nil)
