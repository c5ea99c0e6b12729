package record

import "sort"

const (
	// RecordIDName 主键字段的固定名称
	RecordIDName = "recordid"
	// DefaultRecordIDFid 平台主键字段ID
	DefaultRecordIDFid = "id"
)

// FidPair 字段名与字段ID的映射项
type FidPair struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Fids 字段名与字段ID的双向映射，保持插入顺序。
// 正向查找 O(1)，反向查找按插入顺序线性扫描 O(n)。
type Fids struct {
	names []string
	ids   map[string]string
}

// NewFids 创建映射，始终包含 recordid
func NewFids(pairs ...FidPair) *Fids {
	f := &Fids{ids: map[string]string{}}
	f.Set(RecordIDName, DefaultRecordIDFid)
	for _, p := range pairs {
		f.Set(p.Name, p.ID)
	}
	return f
}

// Set 设置字段名对应的字段ID
func (f *Fids) Set(name, id string) *Fids {
	if _, ok := f.ids[name]; !ok {
		f.names = append(f.names, name)
	}
	f.ids[name] = id
	return f
}

// SetMap 批量设置，按名称排序写入以保证顺序稳定
func (f *Fids) SetMap(m map[string]string) *Fids {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f.Set(name, m[name])
	}
	return f
}

// Fid 字段名 -> 字段ID，不存在时返回空字符串
func (f *Fids) Fid(name string) string {
	return f.ids[name]
}

// Lookup 字段名 -> 字段ID
func (f *Fids) Lookup(name string) (string, bool) {
	id, ok := f.ids[name]
	return id, ok
}

// Name 字段ID -> 字段名，返回第一个匹配的名称
func (f *Fids) Name(id string) string {
	for _, name := range f.names {
		if f.ids[name] == id {
			return name
		}
	}
	return ""
}

// Names 按插入顺序返回所有字段名
func (f *Fids) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Pairs 按插入顺序返回所有映射项
func (f *Fids) Pairs() []FidPair {
	out := make([]FidPair, 0, len(f.names))
	for _, name := range f.names {
		out = append(out, FidPair{Name: name, ID: f.ids[name]})
	}
	return out
}

// Map 返回映射副本
func (f *Fids) Map() map[string]string {
	out := make(map[string]string, len(f.ids))
	for k, v := range f.ids {
		out[k] = v
	}
	return out
}

// Len 映射数量
func (f *Fids) Len() int {
	return len(f.names)
}
