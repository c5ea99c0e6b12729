/*
 * @module cache/redis_store
 * @description 表快照的Redis缓存，在进程之间复用已加载的表结构和记录
 * @architecture 适配器模式 - 封装go-redis客户端
 * @stateFlow 连接建立 -> 保存/读取/删除快照 -> 关闭连接
 * @rules 快照以JSON存储并设置过期时间；只做缓存，不做合并或冲突处理
 * @dependencies github.com/go-redis/redis/v8, encoding/json
 * @refs table/snapshot.go, cache/redis_lock.go
 */

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hstable-service/table"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// KeyPrefix 快照键前缀
const KeyPrefix = "hstable:snapshot"

// ErrSnapshotNotFound 缓存中不存在快照
var ErrSnapshotNotFound = errors.New("快照不存在")

// Options Redis连接参数
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// kv 快照存取和快照锁用到的Redis命令
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisStore 基于Redis的快照存储
type RedisStore struct {
	client kv
	ttl    time.Duration
	owner  string // 快照锁持有者标识
}

// NewRedisStore 创建快照存储并测试连接
func NewRedisStore(ctx context.Context, opts Options) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	store, err := newStore(ctx, client, opts.TTL)
	if err != nil {
		return nil, err
	}

	slog.Info("Redis快照缓存初始化成功", "addr", opts.Addr, "db", opts.DB, "ttl", opts.TTL)
	return store, nil
}

func newStore(ctx context.Context, client kv, ttl time.Duration) (*RedisStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl, owner: newOwner()}, nil
}

// Key 快照键：hstable:snapshot:<appid>:<tableid>
func Key(appID, tableID string) string {
	return fmt.Sprintf("%s:%s:%s", KeyPrefix, appID, tableID)
}

// Save 保存快照
func (s *RedisStore) Save(ctx context.Context, snapshot *table.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("序列化快照失败: %w", err)
	}

	key := Key(snapshot.ApplicationID, snapshot.TableID)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("写入快照失败: %w", err)
	}

	slog.Debug("快照已缓存", "key", key, "records", len(snapshot.Records), "bytes", len(data))
	return nil
}

// Load 读取快照，不存在时返回 ErrSnapshotNotFound
func (s *RedisStore) Load(ctx context.Context, appID, tableID string) (*table.Snapshot, error) {
	data, err := s.client.Get(ctx, Key(appID, tableID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("读取快照失败: %w", err)
	}

	var snapshot table.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("解析快照失败: %w", err)
	}
	return &snapshot, nil
}

// Delete 删除快照
func (s *RedisStore) Delete(ctx context.Context, appID, tableID string) error {
	if err := s.client.Del(ctx, Key(appID, tableID)).Err(); err != nil {
		return fmt.Errorf("删除快照失败: %w", err)
	}
	return nil
}

// Close 关闭连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}
