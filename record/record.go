/*
 * @module record/record
 * @description 表记录实体，按字段名存取值，通过fids映射到平台字段ID
 * @architecture 领域模型 - 远程资源代理
 * @stateFlow 创建 -> 设置值 -> 保存(获得recordid) -> 删除
 * @rules 计算字段不参与写入；缺失值以空字符串占位
 * @dependencies github.com/google/uuid, github.com/spf13/cast
 * @refs table/records.go
 */

package record

import (
	"context"
	"hstable-service/field"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// UndefinedPlaceholder 写入时缺失值或nil值的占位符
const UndefinedPlaceholder = ""

// API 记录操作所需的远程接口
type API interface {
	UpsertRecords(ctx context.Context, appID, tableID string, data []map[string]interface{}) ([]string, error)
	DeleteRecord(ctx context.Context, appID, tableID, recordID string) error
}

// Options 记录构建参数
type Options struct {
	Client        API
	ApplicationID string
	TableID       string
	Fids          *Fids
	// FieldSource 字段定义来源，每次判断计算字段时读取，可为空
	FieldSource func() []*field.Field
}

// Record 表记录
type Record struct {
	// ID 本地实例ID，与平台recordid无关
	ID string

	client        API
	applicationID string
	tableID       string
	fids          *Fids
	fieldSource   func() []*field.Field
	values        map[string]interface{}
}

// New 创建记录，fids为空时使用默认映射
func New(opts Options) *Record {
	fids := opts.Fids
	if fids == nil {
		fids = NewFids()
	}
	return &Record{
		ID:            uuid.NewString(),
		client:        opts.Client,
		applicationID: opts.ApplicationID,
		tableID:       opts.TableID,
		fids:          fids,
		fieldSource:   opts.FieldSource,
		values:        map[string]interface{}{},
	}
}

// Get 按字段名取值，不存在时返回nil
func (r *Record) Get(name string) interface{} {
	return r.values[name]
}

// Lookup 按字段名取值
func (r *Record) Lookup(name string) (interface{}, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Set 按字段名设置值
func (r *Record) Set(name string, value interface{}) *Record {
	r.values[name] = value
	return r
}

// Unset 删除字段值
func (r *Record) Unset(name string) *Record {
	delete(r.values, name)
	return r
}

// Values 返回值副本
func (r *Record) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Fids 返回共享的字段映射
func (r *Record) Fids() *Fids {
	return r.fids
}

// Fields 返回记录关联的当前字段定义
func (r *Record) Fields() []*field.Field {
	if r.fieldSource == nil {
		return nil
	}
	return r.fieldSource()
}

// SetFields 设置固定的字段定义，用于判断计算字段
func (r *Record) SetFields(fields []*field.Field) *Record {
	r.fieldSource = func() []*field.Field { return fields }
	return r
}

// SetFieldSource 设置字段定义来源，表的字段列表变化后记录随之可见
func (r *Record) SetFieldSource(source func() []*field.Field) *Record {
	r.fieldSource = source
	return r
}

// RecordID 返回平台记录ID
func (r *Record) RecordID() string {
	v, ok := r.values[RecordIDName]
	if !ok || v == nil {
		return ""
	}
	return cast.ToString(v)
}

// IsPersisted recordid 为真值时表示记录已保存到平台
func (r *Record) IsPersisted() bool {
	return Truthy(r.values[RecordIDName])
}

// Payload 按字段名列表构建以字段ID为键的写入数据
func (r *Record) Payload(names []string) map[string]interface{} {
	payload := make(map[string]interface{}, len(names))
	for _, name := range names {
		fid := r.fids.Fid(name)
		if fid == "" {
			continue
		}
		value, ok := r.values[name]
		if !ok || value == nil {
			value = UndefinedPlaceholder
		}
		payload[fid] = value
	}
	return payload
}

// Save 单条保存记录，成功后写回recordid
func (r *Record) Save(ctx context.Context, fidsToSave []string) error {
	names := WritableNames(r.fids, r.Fields(), fidsToSave)

	ids, err := r.client.UpsertRecords(ctx, r.applicationID, r.tableID, []map[string]interface{}{r.Payload(names)})
	if err != nil {
		return err
	}

	if len(ids) > 0 {
		r.Set(RecordIDName, ids[0])
	}
	return nil
}

// Delete 删除远程记录，未保存的记录不发起请求
func (r *Record) Delete(ctx context.Context) error {
	if !r.IsPersisted() {
		return nil
	}

	if err := r.client.DeleteRecord(ctx, r.applicationID, r.tableID, r.RecordID()); err != nil {
		return err
	}

	r.Unset(RecordIDName)
	return nil
}

// WritableNames 计算需要写入的字段名：
// 按fidsToSave过滤（字段名或字段ID均可，主键始终保留），并排除计算字段
func WritableNames(fids *Fids, fields []*field.Field, fidsToSave []string) []string {
	primary := fids.Fid(RecordIDName)
	names := make([]string, 0, fids.Len())

	for _, name := range fids.Names() {
		fid := fids.Fid(name)
		selected := len(fidsToSave) == 0 || fid == primary ||
			containsString(fidsToSave, fid) || containsString(fidsToSave, name)
		if !selected {
			continue
		}

		if f := findField(fields, fid); f != nil && f.IsComputed() {
			continue
		}

		names = append(names, name)
	}

	return names
}

// Truthy 判断值是否为真值：nil、空字符串、数值0、false均为假
func Truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return cast.ToFloat64(val) != 0
	default:
		return true
	}
}

func findField(fields []*field.Field, fid string) *field.Field {
	for _, f := range fields {
		if f.Fid() == fid {
			return f
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
