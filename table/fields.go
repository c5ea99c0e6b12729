package table

import (
	"context"
	"hstable-service/field"
	"hstable-service/record"

	"github.com/spf13/cast"
)

// FieldInput UpsertField 的输入：已有字段对象或属性集合，二者取其一
type FieldInput struct {
	field  *field.Field
	values map[string]interface{}
}

// ExistingField 以字段对象作为输入
func ExistingField(f *field.Field) FieldInput {
	return FieldInput{field: f}
}

// FieldValues 以属性集合作为输入
func FieldValues(values map[string]interface{}) FieldInput {
	return FieldInput{values: values}
}

// Fields 返回本地缓存的字段
func (t *Table) Fields() []*field.Field {
	return t.fields
}

// Field 按字段ID查找缓存字段
func (t *Table) Field(fid string) *field.Field {
	if i := t.FieldIndex(fid); i != -1 {
		return t.fields[i]
	}
	return nil
}

// FieldIndex 按字段ID查找缓存字段位置，不存在时返回-1
func (t *Table) FieldIndex(fid string) int {
	for i, f := range t.fields {
		if f.Fid() == fid {
			return i
		}
	}
	return -1
}

func (t *Table) newField(fid string) *field.Field {
	return field.New(field.Options{
		Client:        t.client,
		ApplicationID: t.applicationID,
		TableID:       t.tableID,
		Fid:           fid,
	})
}

func (t *Table) hasField(f *field.Field) bool {
	for _, cached := range t.fields {
		if cached == f {
			return true
		}
	}
	return false
}

// LoadField 加载单个字段，缓存中不存在时先创建
func (t *Table) LoadField(ctx context.Context, fid string) (*field.Field, error) {
	f := t.Field(fid)
	if f == nil {
		f = t.newField(fid)
		t.fields = append(t.fields, f)
	}

	if err := f.Load(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

// LoadFields 加载所有字段，按ID合并到已缓存的字段对象上
func (t *Table) LoadFields(ctx context.Context) ([]*field.Field, error) {
	results, err := t.client.GetFields(ctx, t.applicationID, t.tableID)
	if err != nil {
		return nil, err
	}

	for _, attributes := range results {
		fid := cast.ToString(attributes["id"])

		f := t.Field(fid)
		if f == nil {
			f = t.newField(fid)
			t.fields = append(t.fields, f)
		}

		for attribute, value := range attributes {
			f.Set(attribute, value)
		}
	}

	t.logger.Debug("字段加载完成", "table_id", t.tableID, "count", len(results))
	return t.fields, nil
}

// SaveFields 逐个保存缓存字段
func (t *Table) SaveFields(ctx context.Context, attributesToSave []string) ([]*field.Field, error) {
	for _, f := range t.fields {
		if err := f.Save(ctx, attributesToSave); err != nil {
			return t.fields, err
		}
	}
	return t.fields, nil
}

// UpsertField 查找或创建字段并应用属性，autoSave 为真时立即保存
func (t *Table) UpsertField(ctx context.Context, input FieldInput, autoSave bool) (*field.Field, error) {
	var f *field.Field

	switch {
	case input.field != nil:
		if record.Truthy(input.field.Get("recordid")) || record.Truthy(input.field.Get("primaryKey")) {
			f = t.Field(input.field.Fid())
		}
		if f == nil {
			f = input.field
			if !t.hasField(f) {
				t.fields = append(t.fields, f)
			}
		}
	case input.values != nil:
		if fid := cast.ToString(input.values["fid"]); fid != "" {
			f = t.Field(fid)
		} else if id := cast.ToString(input.values["id"]); id != "" {
			f = t.Field(id)
		}
	}

	if f == nil {
		f = t.newField(cast.ToString(input.values["fid"]))
		t.fields = append(t.fields, f)
	}

	for attribute, value := range input.values {
		f.Set(attribute, value)
	}

	if autoSave {
		if err := f.Save(ctx, nil); err != nil {
			return f, err
		}
	}

	return f, nil
}

// UpsertFields 依次执行 UpsertField
func (t *Table) UpsertFields(ctx context.Context, inputs []FieldInput, autoSave bool) ([]*field.Field, error) {
	results := make([]*field.Field, 0, len(inputs))
	for _, input := range inputs {
		f, err := t.UpsertField(ctx, input, autoSave)
		if err != nil {
			return results, err
		}
		results = append(results, f)
	}
	return results, nil
}
