package table

import (
	"context"
	"hstable-service/client"
	"hstable-service/record"
	"reflect"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// LoadRecordsOptions 记录加载参数
type LoadRecordsOptions struct {
	Fids   []string // 需要加载的字段名，为空时加载全部映射字段
	Query  string
	Sort   string
	Limit  int
	Offset int
}

// SaveRecordsOptions 记录保存参数
type SaveRecordsOptions struct {
	Individually bool
	FidsToSave   []string // 字段名或字段ID
	Records      []*record.Record
}

// DeleteRecordsOptions 记录删除参数
type DeleteRecordsOptions struct {
	Individually bool
	Records      []*record.Record
}

// DeleteRecordsResult 记录删除结果
type DeleteRecordsResult struct {
	NumberDeleted int `json:"numberDeleted"`
}

// RecordInput UpsertRecord 的输入：已有记录对象或字段值集合，二者取其一
type RecordInput struct {
	record *record.Record
	values map[string]interface{}
}

// ExistingRecord 以记录对象作为输入
func ExistingRecord(r *record.Record) RecordInput {
	return RecordInput{record: r}
}

// RecordValues 以字段值集合作为输入，键为字段名
func RecordValues(values map[string]interface{}) RecordInput {
	return RecordInput{values: values}
}

// Records 返回本地缓存的记录
func (t *Table) Records() []*record.Record {
	return t.records
}

// NRecords 缓存记录数
func (t *Table) NRecords() int {
	return len(t.records)
}

// Record 按字段值线性查找记录，fieldName 为空时使用 recordid
func (t *Table) Record(value interface{}, fieldName string) *record.Record {
	if i := t.RecordIndex(value, fieldName); i != -1 {
		return t.records[i]
	}
	return nil
}

// RecordIndex 按字段值线性查找记录位置，不存在时返回-1
func (t *Table) RecordIndex(value interface{}, fieldName string) int {
	if fieldName == "" {
		fieldName = record.RecordIDName
	}
	for i, r := range t.records {
		if valuesEqual(r.Get(fieldName), value) {
			return i
		}
	}
	return -1
}

// NewRecord 创建不加入缓存的新记录
func (t *Table) NewRecord(values map[string]interface{}) *record.Record {
	r := t.newRecord()
	for name, value := range values {
		r.Set(name, value)
	}
	return r
}

func (t *Table) newRecord() *record.Record {
	r := record.New(record.Options{
		Client:        t.client,
		ApplicationID: t.applicationID,
		TableID:       t.tableID,
		Fids:          t.fids,
		FieldSource:   t.Fields,
	})
	return r
}

// LoadRecords 按条件加载记录，并整体替换本地记录缓存。
// 每条记录只包含请求的字段
func (t *Table) LoadRecords(ctx context.Context, opts LoadRecordsOptions) ([]*record.Record, error) {
	names := opts.Fids
	if len(names) == 0 {
		names = t.fids.Names()
	}

	columns := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		fid := t.fids.Fid(name)
		if fid == "" || seen[fid] {
			continue
		}
		seen[fid] = true
		columns = append(columns, fid)
	}

	rows, err := t.client.GetRecords(ctx, client.GetRecordsRequest{
		ApplicationID: t.applicationID,
		TableID:       t.tableID,
		Query:         opts.Query,
		Columns:       columns,
		Sort:          opts.Sort,
		Limit:         opts.Limit,
		Offset:        opts.Offset,
	})
	if err != nil {
		return nil, err
	}

	records := make([]*record.Record, 0, len(rows))
	for _, row := range rows {
		r := t.newRecord()
		for _, name := range names {
			r.Set(name, row[t.fids.Fid(name)])
		}
		records = append(records, r)
	}
	t.records = records

	t.logger.Debug("记录加载完成", "table_id", t.tableID, "count", len(records), "columns", strings.Join(columns, client.ColumnSeparator))
	return t.records, nil
}

// SaveRecords 保存记录。
//
// 批量模式下，records 会被原地稳定排序：未保存（recordid 不是真值）的记录排在前面，
// 其余按 recordid 数值（均为数值时）或字符串比较；平台返回的第 i 个ID
// 写回排序后的第 i 条记录。返回值为排序后的记录。
func (t *Table) SaveRecords(ctx context.Context, opts SaveRecordsOptions) ([]*record.Record, error) {
	records := opts.Records
	if records == nil {
		records = t.records
	}

	if opts.Individually {
		for _, r := range records {
			r.SetFieldSource(t.Fields)
			if err := r.Save(ctx, opts.FidsToSave); err != nil {
				return records, err
			}
		}
		return records, nil
	}

	if len(records) == 0 {
		return records, nil
	}

	names := record.WritableNames(t.fids, t.fields, opts.FidsToSave)
	sortNewFirst(records)

	data := make([]map[string]interface{}, len(records))
	for i, r := range records {
		data[i] = r.Payload(names)
	}

	ids, err := t.client.UpsertRecords(ctx, t.applicationID, t.tableID, data)
	if err != nil {
		return nil, err
	}

	for i, r := range records {
		if i < len(ids) {
			r.Set(record.RecordIDName, ids[i])
		}
	}

	t.logger.Debug("记录批量保存完成", "table_id", t.tableID, "count", len(records))
	return records, nil
}

// DeleteRecord 从缓存移除记录；已保存的记录再发起远程删除，
// 远程删除失败时记录重新加入缓存并返回错误
func (t *Table) DeleteRecord(ctx context.Context, r *record.Record) error {
	if i := t.cachedRecordIndex(r); i != -1 {
		next := make([]*record.Record, 0, len(t.records)-1)
		next = append(next, t.records[:i]...)
		t.records = append(next, t.records[i+1:]...)
	}

	if !r.IsPersisted() {
		return nil
	}

	if err := r.Delete(ctx); err != nil {
		t.records = append(t.records, r)
		t.logger.Warn("记录删除失败，已恢复本地缓存", "table_id", t.tableID, "record_id", r.RecordID(), "error", err)
		return err
	}

	return nil
}

// DeleteRecords 删除记录，目前只支持逐条删除。records 为空时删除全部缓存记录
func (t *Table) DeleteRecords(ctx context.Context, opts DeleteRecordsOptions) (*DeleteRecordsResult, error) {
	result := &DeleteRecordsResult{}

	if !opts.Individually {
		return result, ErrBulkDeleteNotImplemented
	}

	records := opts.Records
	if records == nil {
		records = make([]*record.Record, len(t.records))
		copy(records, t.records)
	}

	for _, r := range records {
		if err := t.DeleteRecord(ctx, r); err != nil {
			return result, err
		}
		result.NumberDeleted++
	}

	return result, nil
}

// UpsertRecord 查找或创建记录并应用字段值，autoSave 为真时立即保存。
// 未保存的记录会先填充字段默认值，显式传入的非nil值覆盖默认值
func (t *Table) UpsertRecord(ctx context.Context, input RecordInput, autoSave bool) (*record.Record, error) {
	var r *record.Record

	switch {
	case input.record != nil:
		if input.record.IsPersisted() {
			r = t.Record(input.record.Get(record.RecordIDName), record.RecordIDName)
		}
		if r == nil {
			r = input.record
			if t.cachedRecordIndex(r) == -1 {
				t.records = append(t.records, r)
			}
		}
	case input.values != nil:
		if id := input.values[record.RecordIDName]; record.Truthy(id) {
			r = t.Record(id, record.RecordIDName)
		}
	}

	if r == nil {
		r = t.newRecord()
		t.records = append(t.records, r)
	}

	r.SetFieldSource(t.Fields)

	if input.values != nil {
		addDefaults := !r.IsPersisted()
		if addDefaults {
			t.applyDefaults(r)
		}

		for name, value := range input.values {
			if value == nil && addDefaults {
				if _, ok := r.Lookup(name); ok {
					continue
				}
			}
			r.Set(name, value)
		}
	}

	if autoSave {
		if err := r.Save(ctx, nil); err != nil {
			return r, err
		}
	}

	return r, nil
}

// UpsertRecords 依次执行 UpsertRecord
func (t *Table) UpsertRecords(ctx context.Context, inputs []RecordInput, autoSave bool) ([]*record.Record, error) {
	results := make([]*record.Record, 0, len(inputs))
	for _, input := range inputs {
		r, err := t.UpsertRecord(ctx, input, autoSave)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// applyDefaults 为尚未赋值的字段填充 properties.defaultValue
func (t *Table) applyDefaults(r *record.Record) {
	for _, name := range t.fids.Names() {
		if _, ok := r.Lookup(name); ok {
			continue
		}
		f := t.Field(t.fids.Fid(name))
		if f == nil {
			continue
		}
		if value, ok := f.DefaultValue(); ok {
			r.Set(name, value)
		}
	}
}

// cachedRecordIndex 按实例ID或 recordid 查找缓存位置
func (t *Table) cachedRecordIndex(r *record.Record) int {
	persisted := r.IsPersisted()
	for i, cached := range t.records {
		if cached.ID == r.ID {
			return i
		}
		if persisted && valuesEqual(cached.Get(record.RecordIDName), r.Get(record.RecordIDName)) {
			return i
		}
	}
	return -1
}

// sortNewFirst 稳定排序：recordid 不是真值（未保存）的记录在前
func sortNewFirst(records []*record.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return compareRecordIDs(records[i], records[j]) < 0
	})
}

func compareRecordIDs(a, b *record.Record) int {
	av, bv := a.Get(record.RecordIDName), b.Get(record.RecordIDName)
	aok, bok := record.Truthy(av), record.Truthy(bv)

	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}

	if af, err := cast.ToFloat64E(av); err == nil {
		if bf, err := cast.ToFloat64E(bv); err == nil {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}

	return strings.Compare(cast.ToString(av), cast.ToString(bv))
}

// valuesEqual 比较字段值；标量按字符串形式比较，使 "12" 与 12 视为相同的记录ID
func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	as, aerr := cast.ToStringE(a)
	bs, berr := cast.ToStringE(b)
	return aerr == nil && berr == nil && as == bs
}
