/*
 * @module cache/redis_lock
 * @description 快照写入锁，多实例共享同一份快照时只允许一个实例写入
 * @architecture 工具层 - 基于Redis的分布式锁
 * @stateFlow 获取锁 -> 写入快照 -> 释放锁/自动过期
 * @rules 使用SET NX获取锁，Lua脚本校验持有者后释放；未获取到锁时跳过写入
 * @dependencies github.com/go-redis/redis/v8, github.com/google/uuid
 * @refs cache/redis_store.go, service/table_service.go
 */

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// LockKeyPrefix 快照锁键前缀
const LockKeyPrefix = "hstable:lock"

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// LockKey 快照锁键：hstable:lock:<appid>:<tableid>
func LockKey(appID, tableID string) string {
	return fmt.Sprintf("%s:%s:%s", LockKeyPrefix, appID, tableID)
}

// TryLock 尝试获取表的快照锁，返回是否获取成功
func (s *RedisStore) TryLock(ctx context.Context, appID, tableID string, ttl time.Duration) (bool, error) {
	key := LockKey(appID, tableID)

	ok, err := s.client.SetNX(ctx, key, s.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("获取锁失败: %w", err)
	}

	if ok {
		slog.Debug("快照锁: 成功获取锁", "key", key, "ttl", ttl, "owner", s.owner)
	}
	return ok, nil
}

// Unlock 释放快照锁，只释放本实例持有的锁
func (s *RedisStore) Unlock(ctx context.Context, appID, tableID string) error {
	key := LockKey(appID, tableID)

	n, err := s.client.Eval(ctx, unlockScript, []string{key}, s.owner).Int64()
	if err != nil {
		return fmt.Errorf("释放锁失败: %w", err)
	}

	if n == 0 {
		slog.Warn("快照锁: 锁不存在或已被其他实例持有", "key", key, "owner", s.owner)
	}
	return nil
}

// WithLock 在快照锁保护下执行 fn。锁被其他实例持有时不执行，返回 false
func (s *RedisStore) WithLock(ctx context.Context, appID, tableID string, ttl time.Duration, fn func() error) (bool, error) {
	locked, err := s.TryLock(ctx, appID, tableID, ttl)
	if err != nil {
		return false, err
	}
	if !locked {
		slog.Debug("快照锁: 锁已被其他实例持有，跳过执行", "table_id", tableID)
		return false, nil
	}

	defer func() {
		if err := s.Unlock(ctx, appID, tableID); err != nil {
			slog.Error("快照锁: 释放锁失败", "table_id", tableID, "error", err)
		}
	}()

	return true, fn()
}

func newOwner() string {
	return uuid.NewString()
}
