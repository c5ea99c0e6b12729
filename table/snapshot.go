package table

import (
	"hstable-service/record"
	"time"

	"github.com/spf13/cast"
)

// Snapshot 表代理本地状态的可序列化快照
type Snapshot struct {
	ApplicationID string                   `json:"application_id"`
	TableID       string                   `json:"table_id"`
	Fids          []record.FidPair         `json:"fids"`
	Data          map[string]interface{}   `json:"data"`
	Fields        []map[string]interface{} `json:"fields"`
	Records       []map[string]interface{} `json:"records"`
	TakenAt       time.Time                `json:"taken_at"`
}

// Snapshot 导出当前本地缓存
func (t *Table) Snapshot() *Snapshot {
	s := &Snapshot{
		ApplicationID: t.applicationID,
		TableID:       t.tableID,
		Fids:          t.fids.Pairs(),
		Data:          t.Data(),
		Fields:        make([]map[string]interface{}, 0, len(t.fields)),
		Records:       make([]map[string]interface{}, 0, len(t.records)),
		TakenAt:       time.Now(),
	}

	for _, f := range t.fields {
		s.Fields = append(s.Fields, f.Data())
	}
	for _, r := range t.records {
		s.Records = append(s.Records, r.Values())
	}

	return s
}

// Restore 用快照替换本地缓存，不发起远程调用
func (t *Table) Restore(s *Snapshot) *Table {
	t.Clear()
	t.SetApplicationID(s.ApplicationID).SetTableID(s.TableID)

	for _, pair := range s.Fids {
		t.fids.Set(pair.Name, pair.ID)
	}
	for attribute, value := range s.Data {
		t.Set(attribute, value)
	}

	for _, attributes := range s.Fields {
		f := t.newField(cast.ToString(attributes["id"]))
		for attribute, value := range attributes {
			f.Set(attribute, value)
		}
		t.fields = append(t.fields, f)
	}

	for _, values := range s.Records {
		r := t.newRecord()
		for name, value := range values {
			r.Set(name, value)
		}
		t.records = append(t.records, r)
	}

	return t
}
