/*
 * @module table/table
 * @description HighSystems数据表代理，在本地缓存与远程API之间协调表结构、字段和记录
 * @architecture 代理模式 - 单表远程资源的本地代理
 * @stateFlow 创建 -> 加载 -> 本地修改 -> 保存/删除
 * @rules 远程错误原样返回；所有远程调用顺序执行；fids始终包含recordid
 * @dependencies github.com/google/uuid, github.com/spf13/cast, log/slog
 * @refs client/highsystems.go, field/field.go, record/record.go
 */

package table

import (
	"context"
	"errors"
	"fmt"
	"hstable-service/client"
	"hstable-service/field"
	"hstable-service/record"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// ErrBulkDeleteNotImplemented 批量删除尚未实现，只支持逐条删除
var ErrBulkDeleteNotImplemented = errors.New("批量删除尚未实现，请使用逐条删除")

// API 表代理依赖的远程接口
type API interface {
	field.API
	record.API

	GetTable(ctx context.Context, appID, tableID string) (map[string]interface{}, error)
	PostTable(ctx context.Context, appID string, data map[string]interface{}) (map[string]interface{}, error)
	PutTable(ctx context.Context, appID, tableID string, data map[string]interface{}) (map[string]interface{}, error)
	DeleteTable(ctx context.Context, appID, tableID string) (map[string]interface{}, error)
	GetFields(ctx context.Context, appID, tableID string) ([]map[string]interface{}, error)
	GetRecords(ctx context.Context, req client.GetRecordsRequest) ([]map[string]interface{}, error)
}

// Options 表代理构建参数。Client 与 Connection 二选一，同时设置时使用 Client
type Options struct {
	Client     API
	Connection *client.Config

	ApplicationID string
	TableID       string
	Fids          map[string]string
	Logger        *slog.Logger
}

// Schema LoadSchema 的返回结果
type Schema struct {
	Data   map[string]interface{} `json:"data"`
	Fields []*field.Field         `json:"-"`
}

// Table 单个远程数据表的本地代理，不支持并发访问
type Table struct {
	id     string
	client API
	logger *slog.Logger

	applicationID string
	tableID       string
	fids          *record.Fids
	fields        []*field.Field
	records       []*record.Record
	data          map[string]interface{}
}

// New 创建表代理
func New(opts Options) (*Table, error) {
	api := opts.Client
	if api == nil {
		var cfg client.Config
		if opts.Connection != nil {
			cfg = *opts.Connection
		}
		if cfg.Logger == nil {
			cfg.Logger = opts.Logger
		}
		c, err := client.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("创建HighSystems客户端失败: %w", err)
		}
		api = c
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Table{
		id:     uuid.NewString(),
		client: api,
		logger: logger,
		fids:   record.NewFids(),
		data:   map[string]interface{}{},
	}

	t.SetApplicationID(opts.ApplicationID).
		SetTableID(opts.TableID).
		SetFids(opts.Fids)

	return t, nil
}

// InstanceID 本地实例ID
func (t *Table) InstanceID() string {
	return t.id
}

// Clear 清空本地缓存的字段、记录和表属性
func (t *Table) Clear() *Table {
	t.fields = nil
	t.records = nil
	t.data = map[string]interface{}{}
	return t
}

// Get 获取表属性，id/tableId 与 appId/applicationId 为别名
func (t *Table) Get(attribute string) interface{} {
	switch attribute {
	case "id", "tableId":
		return t.tableID
	case "appid", "appId", "applicationId":
		return t.applicationID
	}
	return t.data[attribute]
}

// Set 设置表属性
func (t *Table) Set(attribute string, value interface{}) *Table {
	switch attribute {
	case "id", "tableId":
		return t.SetTableID(cast.ToString(value))
	case "appid", "appId", "applicationId":
		return t.SetApplicationID(cast.ToString(value))
	}
	t.data[attribute] = value
	return t
}

// Data 返回表属性副本
func (t *Table) Data() map[string]interface{} {
	out := make(map[string]interface{}, len(t.data))
	for k, v := range t.data {
		out[k] = v
	}
	return out
}

// ApplicationID 应用ID
func (t *Table) ApplicationID() string {
	return t.applicationID
}

// SetApplicationID 设置应用ID
func (t *Table) SetApplicationID(appID string) *Table {
	t.applicationID = appID
	return t
}

// TableID 表ID
func (t *Table) TableID() string {
	return t.tableID
}

// SetTableID 设置表ID，同时写入 data["id"]
func (t *Table) SetTableID(tableID string) *Table {
	t.tableID = tableID
	t.data["id"] = tableID
	return t
}

// ==================== fids ====================

// Fids 返回字段映射，记录与表共享同一映射
func (t *Table) Fids() *record.Fids {
	return t.fids
}

// Fid 字段名 -> 字段ID
func (t *Table) Fid(name string) string {
	return t.fids.Fid(name)
}

// FieldName 字段ID -> 字段名
func (t *Table) FieldName(fid string) string {
	return t.fids.Name(fid)
}

// SetFid 设置字段名映射
func (t *Table) SetFid(name, fid string) *Table {
	t.fids.Set(name, fid)
	return t
}

// SetFids 批量设置字段名映射
func (t *Table) SetFids(fids map[string]string) *Table {
	t.fids.SetMap(fids)
	return t
}

// ==================== 表操作 ====================

// LoadTable 加载表属性
func (t *Table) LoadTable(ctx context.Context) (map[string]interface{}, error) {
	result, err := t.client.GetTable(ctx, t.applicationID, t.tableID)
	if err != nil {
		return nil, err
	}

	t.merge(result)
	return t.Data(), nil
}

// LoadSchema 依次加载字段和表属性
func (t *Table) LoadSchema(ctx context.Context) (*Schema, error) {
	fields, err := t.LoadFields(ctx)
	if err != nil {
		return nil, err
	}

	data, err := t.LoadTable(ctx)
	if err != nil {
		return nil, err
	}

	return &Schema{Data: data, Fields: fields}, nil
}

// SaveTable 保存表属性。已有表ID时更新，否则创建。
// attributesToSave 非空时只提交其中列出的属性
func (t *Table) SaveTable(ctx context.Context, attributesToSave []string) (map[string]interface{}, error) {
	data := map[string]interface{}{}
	for attribute, value := range t.data {
		if attribute == "id" {
			continue
		}
		if len(attributesToSave) > 0 && !containsString(attributesToSave, attribute) {
			continue
		}
		data[attribute] = value
	}
	data["relatedApplication"] = t.applicationID

	var (
		result map[string]interface{}
		err    error
	)
	if t.tableID != "" {
		data["tableid"] = t.tableID
		result, err = t.client.PutTable(ctx, t.applicationID, t.tableID, data)
	} else {
		result, err = t.client.PostTable(ctx, t.applicationID, data)
	}
	if err != nil {
		return nil, err
	}

	t.merge(result)
	return t.Data(), nil
}

// Delete 删除远程表，成功后清空表ID和本地缓存
func (t *Table) Delete(ctx context.Context) (map[string]interface{}, error) {
	result, err := t.client.DeleteTable(ctx, t.applicationID, t.tableID)
	if err != nil {
		return nil, err
	}

	t.logger.Info("数据表已删除", "application_id", t.applicationID, "table_id", t.tableID)

	t.SetTableID("")
	t.Clear()

	return result, nil
}

func (t *Table) merge(attributes map[string]interface{}) {
	for attribute, value := range attributes {
		t.Set(attribute, value)
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
