/*
 * @module service/table_service
 * @description 表代理服务，为HTTP接口和命令行提供串行化的表访问与快照缓存
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 预热(快照或远程加载) -> 查询记录/导出CSV -> 刷新快照
 * @rules 表代理不支持并发访问，所有操作在互斥锁内执行；快照缓存失败只记录日志；多实例写快照时加分布式锁
 * @dependencies hstable-service/table, hstable-service/cache, log/slog
 * @refs api/controllers/table_controller.go, cmd/export.go
 */

package service

import (
	"context"
	"errors"
	"fmt"
	"hstable-service/field"
	"hstable-service/record"
	"hstable-service/table"
	"log/slog"
	"sync"
	"time"
)

// ErrNotReady 表结构尚未加载
var ErrNotReady = errors.New("表结构尚未加载")

// SnapshotStore 快照存储
type SnapshotStore interface {
	Save(ctx context.Context, snapshot *table.Snapshot) error
	Load(ctx context.Context, appID, tableID string) (*table.Snapshot, error)
	Delete(ctx context.Context, appID, tableID string) error
}

// SnapshotLocker 多实例共享快照时的写入锁，由快照存储选择实现
type SnapshotLocker interface {
	WithLock(ctx context.Context, appID, tableID string, ttl time.Duration, fn func() error) (bool, error)
}

// snapshotLockTTL 快照写入锁的过期时间
const snapshotLockTTL = 10 * time.Second

// SchemaView 表结构视图
type SchemaView struct {
	ApplicationID string                   `json:"application_id"`
	TableID       string                   `json:"table_id"`
	Data          map[string]interface{}   `json:"data"`
	Fields        []map[string]interface{} `json:"fields"`
	Fids          []record.FidPair         `json:"fids"`
}

// RecordsQuery 记录查询参数
type RecordsQuery struct {
	Fids  []string
	Query string
	Sort  string
	Limit int
}

// TableService 表代理服务
type TableService struct {
	mu     sync.Mutex
	table  *table.Table
	store  SnapshotStore
	logger *slog.Logger
	ready  bool
}

// NewTableService 创建表代理服务，store 可为空
func NewTableService(tbl *table.Table, store SnapshotStore, logger *slog.Logger) *TableService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TableService{table: tbl, store: store, logger: logger}
}

// Warm 预热表结构：优先使用缓存快照，否则从远程加载并写入缓存
func (s *TableService) Warm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	appID, tableID := s.table.ApplicationID(), s.table.TableID()

	if s.store != nil {
		snapshot, err := s.store.Load(ctx, appID, tableID)
		if err == nil {
			s.table.Restore(snapshot)
			s.ready = true
			s.logger.Info("已从快照恢复表结构", "table_id", tableID, "taken_at", snapshot.TakenAt, "records", len(snapshot.Records))
			return nil
		}
		s.logger.Debug("快照不可用，从远程加载", "table_id", tableID, "error", err)
	}

	if _, err := s.table.LoadSchema(ctx); err != nil {
		return fmt.Errorf("加载表结构失败: %w", err)
	}
	s.ready = true
	s.saveSnapshot(ctx)

	s.logger.Info("表结构加载完成", "table_id", tableID, "fields", len(s.table.Fields()))
	return nil
}

// Ready 检查服务是否就绪
func (s *TableService) Ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrNotReady
	}
	return nil
}

// Schema 返回表结构，未加载时先加载
func (s *TableService) Schema(ctx context.Context) (*SchemaView, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return &SchemaView{
		ApplicationID: s.table.ApplicationID(),
		TableID:       s.table.TableID(),
		Data:          s.table.Data(),
		Fields:        fieldData(s.table.Fields()),
		Fids:          s.table.Fids().Pairs(),
	}, nil
}

// Records 查询记录并刷新快照，返回以字段名为键的记录值
func (s *TableService) Records(ctx context.Context, q RecordsQuery) ([]map[string]interface{}, error) {
	records, err := s.load(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, len(records))
	for i, r := range records {
		out[i] = r.Values()
	}
	return out, nil
}

// ExportCSV 查询记录并导出为指定编码的CSV
func (s *TableService) ExportCSV(ctx context.Context, q RecordsQuery, encoding string) ([]byte, error) {
	records, err := s.load(ctx, q)
	if err != nil {
		return nil, err
	}

	text, err := s.formatCSV(q.Fids, records)
	if err != nil {
		return nil, fmt.Errorf("导出CSV失败: %w", err)
	}
	return table.EncodeCSV(text, encoding)
}

// formatCSV 在锁内读取字段映射并渲染CSV，columns 为空时导出全部映射字段
func (s *TableService) formatCSV(columns []string, records []*record.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(columns) == 0 {
		columns = s.table.Fids().Names()
	}
	return table.ToCSV(s.table, columns, records)
}

// Invalidate 删除缓存快照
func (s *TableService) Invalidate(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.Delete(ctx, s.table.ApplicationID(), s.table.TableID())
}

func (s *TableService) ensureReady(ctx context.Context) error {
	if s.Ready() == nil {
		return nil
	}
	return s.Warm(ctx)
}

func (s *TableService) load(ctx context.Context, q RecordsQuery) ([]*record.Record, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range q.Fids {
		if _, ok := s.table.Fids().Lookup(name); !ok {
			return nil, fmt.Errorf("未映射的字段名: %s", name)
		}
	}

	records, err := s.table.LoadRecords(ctx, table.LoadRecordsOptions{
		Fids:  q.Fids,
		Query: q.Query,
		Sort:  q.Sort,
		Limit: q.Limit,
	})
	if err != nil {
		return nil, err
	}

	s.saveSnapshot(ctx)
	return records, nil
}

// saveSnapshot 调用方需持有锁。存储实现了 SnapshotLocker 时，
// 其他实例正在写入则跳过本次写入
func (s *TableService) saveSnapshot(ctx context.Context) {
	if s.store == nil {
		return
	}

	snapshot := s.table.Snapshot()
	save := func() error { return s.store.Save(ctx, snapshot) }

	var err error
	if locker, ok := s.store.(SnapshotLocker); ok {
		var saved bool
		saved, err = locker.WithLock(ctx, snapshot.ApplicationID, snapshot.TableID, snapshotLockTTL, save)
		if err == nil && !saved {
			s.logger.Debug("其他实例正在写入快照，跳过", "table_id", snapshot.TableID)
		}
	} else {
		err = save()
	}

	if err != nil {
		s.logger.Warn("快照缓存失败", "table_id", snapshot.TableID, "error", err)
	}
}

func fieldData(fields []*field.Field) []map[string]interface{} {
	out := make([]map[string]interface{}, len(fields))
	for i, f := range fields {
		out[i] = f.Data()
	}
	return out
}
