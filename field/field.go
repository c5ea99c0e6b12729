/*
 * @module field/field
 * @description 表字段实体，保存字段属性并负责字段的远程加载与保存
 * @architecture 领域模型 - 远程资源代理
 * @stateFlow 创建 -> 加载/设置属性 -> 保存
 * @rules 字段ID通过id/fid属性别名访问；lookup/summary/formula为计算字段
 * @dependencies github.com/spf13/cast
 * @refs table/fields.go, record/record.go
 */

package field

import (
	"context"

	"github.com/spf13/cast"
)

// Mode 字段模式
type Mode string

const (
	ModeLookup  Mode = "lookup"
	ModeSummary Mode = "summary"
	ModeFormula Mode = "formula"
)

// ComputedModes 由平台计算、不参与写入的字段模式
var ComputedModes = []Mode{ModeLookup, ModeSummary, ModeFormula}

// API 字段操作所需的远程接口
type API interface {
	GetField(ctx context.Context, appID, tableID, fid string) (map[string]interface{}, error)
	PostField(ctx context.Context, appID, tableID string, data map[string]interface{}) (map[string]interface{}, error)
	PutField(ctx context.Context, appID, tableID, fid string, data map[string]interface{}) (map[string]interface{}, error)
	DeleteField(ctx context.Context, appID, tableID, fid string) error
}

// Options 字段构建参数
type Options struct {
	Client        API
	ApplicationID string
	TableID       string
	Fid           string
}

// Field 表字段
type Field struct {
	client        API
	applicationID string
	tableID       string
	fid           string
	data          map[string]interface{}
}

// New 创建字段
func New(opts Options) *Field {
	return &Field{
		client:        opts.Client,
		applicationID: opts.ApplicationID,
		tableID:       opts.TableID,
		fid:           opts.Fid,
		data:          map[string]interface{}{},
	}
}

// Fid 返回字段ID
func (f *Field) Fid() string {
	return f.fid
}

// SetFid 设置字段ID
func (f *Field) SetFid(fid string) *Field {
	f.fid = fid
	return f
}

// Get 获取属性
func (f *Field) Get(attribute string) interface{} {
	if attribute == "id" || attribute == "fid" {
		return f.fid
	}
	return f.data[attribute]
}

// Set 设置属性
func (f *Field) Set(attribute string, value interface{}) *Field {
	if attribute == "id" || attribute == "fid" {
		return f.SetFid(cast.ToString(value))
	}
	f.data[attribute] = value
	return f
}

// Data 返回属性副本
func (f *Field) Data() map[string]interface{} {
	out := make(map[string]interface{}, len(f.data)+1)
	for k, v := range f.data {
		out[k] = v
	}
	out["id"] = f.fid
	return out
}

// Mode 返回字段模式
func (f *Field) Mode() Mode {
	return Mode(cast.ToString(f.data["mode"]))
}

// Label 返回字段显示名
func (f *Field) Label() string {
	return cast.ToString(f.data["label"])
}

// IsComputed 是否为平台计算字段
func (f *Field) IsComputed() bool {
	mode := f.Mode()
	for _, m := range ComputedModes {
		if mode == m {
			return true
		}
	}
	return false
}

// DefaultValue 返回properties.defaultValue
func (f *Field) DefaultValue() (interface{}, bool) {
	props, ok := f.data["properties"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	value, ok := props["defaultValue"]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

// Load 从远程加载字段属性
func (f *Field) Load(ctx context.Context) error {
	result, err := f.client.GetField(ctx, f.applicationID, f.tableID, f.fid)
	if err != nil {
		return err
	}
	f.merge(result)
	return nil
}

// Save 保存字段，已有字段ID时更新，否则创建
func (f *Field) Save(ctx context.Context, attributesToSave []string) error {
	payload := make(map[string]interface{}, len(f.data))
	for attribute, value := range f.data {
		if len(attributesToSave) > 0 && !contains(attributesToSave, attribute) {
			continue
		}
		payload[attribute] = value
	}

	var (
		result map[string]interface{}
		err    error
	)
	if f.fid != "" {
		result, err = f.client.PutField(ctx, f.applicationID, f.tableID, f.fid, payload)
	} else {
		result, err = f.client.PostField(ctx, f.applicationID, f.tableID, payload)
	}
	if err != nil {
		return err
	}

	f.merge(result)
	return nil
}

// Delete 删除远程字段
func (f *Field) Delete(ctx context.Context) error {
	if f.fid == "" {
		return nil
	}
	return f.client.DeleteField(ctx, f.applicationID, f.tableID, f.fid)
}

func (f *Field) merge(attributes map[string]interface{}) {
	for attribute, value := range attributes {
		f.Set(attribute, value)
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
