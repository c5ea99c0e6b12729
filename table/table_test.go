/*
 * @module table/table_test
 * @description 表代理集成测试，基于内存版HighSystems服务
 * @architecture 测试层 - testify suite + httptest
 * @stateFlow 启动模拟平台 -> 预置表/字段/记录 -> 执行代理操作 -> 验证本地缓存与远程状态
 * @rules 每个用例使用独立的模拟平台
 * @dependencies testing, github.com/stretchr/testify/suite, hstable-service/testutil
 * @refs table/table.go, table/records.go, table/fields.go
 */

package table

import (
	"context"
	"encoding/json"
	"errors"
	"hstable-service/client"
	"hstable-service/record"
	"hstable-service/testutil"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type TableTestSuite struct {
	suite.Suite
	ctx      context.Context
	platform *testutil.FakePlatform
	table    *Table
}

func TestTableTestSuite(t *testing.T) {
	suite.Run(t, new(TableTestSuite))
}

func (s *TableTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.platform = testutil.NewFakePlatform()

	s.platform.AddTable("app", "tbl", map[string]interface{}{"name": "Orders"})
	s.platform.AddField("app", "tbl", map[string]interface{}{"id": "6", "label": "Name"})
	s.platform.AddField("app", "tbl", map[string]interface{}{
		"id":         "7",
		"label":      "Status",
		"properties": map[string]interface{}{"defaultValue": "open"},
	})
	s.platform.AddField("app", "tbl", map[string]interface{}{"id": "8", "label": "Total", "mode": "formula"})
	s.platform.AddRecord("app", "tbl", map[string]interface{}{"id": "1", "6": "Alice", "7": "done", "8": 10})
	s.platform.AddRecord("app", "tbl", map[string]interface{}{"id": "2", "6": "Bob", "7": "open", "8": 20})

	s.table = s.newTable("tbl")
}

func (s *TableTestSuite) TearDownTest() {
	s.platform.Close()
}

func (s *TableTestSuite) newTable(tableID string) *Table {
	t, err := New(Options{
		Connection:    &client.Config{BaseURL: s.platform.URL(), UserToken: "token"},
		ApplicationID: "app",
		TableID:       tableID,
		Fids:          map[string]string{"name": "6", "status": "7", "total": "8"},
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	s.Require().NoError(err)
	return t
}

// ==================== 表操作 ====================

func (s *TableTestSuite) TestLoadSchema() {
	schema, err := s.table.LoadSchema(s.ctx)
	s.Require().NoError(err)

	s.Equal("Orders", schema.Data["name"])
	s.Len(schema.Fields, 3)
	s.True(s.table.Field("8").IsComputed())
	s.Equal("tbl", s.table.TableID())
}

func (s *TableTestSuite) TestSaveTable_Update() {
	_, err := s.table.LoadTable(s.ctx)
	s.Require().NoError(err)

	s.table.Set("name", "Orders 2024").Set("description", "年度订单")
	_, err = s.table.SaveTable(s.ctx, nil)
	s.Require().NoError(err)

	last := s.platform.LastRequest()
	s.Equal(http.MethodPut, last.Method)
	body := last.Body.(map[string]interface{})
	s.Equal("Orders 2024", body["name"])
	s.Equal("app", body["relatedApplication"])
	s.Equal("tbl", body["tableid"])
	s.NotContains(body, "id")
	s.Equal("年度订单", s.platform.Table("app", "tbl").Attributes["description"])
}

func (s *TableTestSuite) TestSaveTable_OnlyListedAttributes() {
	s.table.Set("name", "Ignored").Set("description", "Saved")

	_, err := s.table.SaveTable(s.ctx, []string{"description"})
	s.Require().NoError(err)

	body := s.platform.LastRequest().Body.(map[string]interface{})
	s.Equal(map[string]interface{}{
		"description":        "Saved",
		"relatedApplication": "app",
		"tableid":            "tbl",
	}, body)
}

func (s *TableTestSuite) TestSaveTable_Create() {
	t := s.newTable("")
	t.Set("name", "Invoices")

	data, err := t.SaveTable(s.ctx, nil)
	s.Require().NoError(err)

	s.Equal(http.MethodPost, s.platform.LastRequest().Method)
	s.NotEmpty(t.TableID())
	s.Equal(t.TableID(), data["id"])
	s.NotNil(s.platform.Table("app", t.TableID()))
}

func (s *TableTestSuite) TestDelete() {
	_, err := s.table.LoadSchema(s.ctx)
	s.Require().NoError(err)
	_, err = s.table.LoadRecords(s.ctx, LoadRecordsOptions{})
	s.Require().NoError(err)

	_, err = s.table.Delete(s.ctx)
	s.Require().NoError(err)

	s.Empty(s.table.TableID())
	s.Empty(s.table.Fields())
	s.Zero(s.table.NRecords())
	s.Nil(s.platform.Table("app", "tbl"))
}

func (s *TableTestSuite) TestRemoteErrorPropagates() {
	s.platform.Fail("GET table", http.StatusForbidden, "denied")

	_, err := s.table.LoadTable(s.ctx)

	var apiErr *client.APIError
	s.Require().ErrorAs(err, &apiErr)
	s.Equal(http.StatusForbidden, apiErr.StatusCode)
	s.Equal("denied", apiErr.Message)
}

// ==================== 字段 ====================

func (s *TableTestSuite) TestLoadFields_MergesIntoCachedObjects() {
	f, err := s.table.UpsertField(s.ctx, FieldValues(map[string]interface{}{"fid": "6", "note": "local"}), false)
	s.Require().NoError(err)

	fields, err := s.table.LoadFields(s.ctx)
	s.Require().NoError(err)

	s.Len(fields, 3)
	s.Same(f, s.table.Field("6"))
	s.Equal("Name", f.Label())
	s.Equal("local", f.Get("note"))
}

func (s *TableTestSuite) TestUpsertField() {
	_, err := s.table.LoadFields(s.ctx)
	s.Require().NoError(err)

	updated, err := s.table.UpsertField(s.ctx, FieldValues(map[string]interface{}{"fid": "6", "label": "Full Name"}), true)
	s.Require().NoError(err)
	s.Same(s.table.Field("6"), updated)
	s.Equal(http.MethodPut, s.platform.LastRequest().Method)

	created, err := s.table.UpsertField(s.ctx, FieldValues(map[string]interface{}{"label": "Notes", "type": "text"}), true)
	s.Require().NoError(err)
	s.Equal(http.MethodPost, s.platform.LastRequest().Method)
	s.NotEmpty(created.Fid())
	s.Len(s.table.Fields(), 4)
	s.Len(s.platform.Table("app", "tbl").Fields, 4)
}

func (s *TableTestSuite) TestUpsertFields_ThenSaveFields() {
	_, err := s.table.LoadFields(s.ctx)
	s.Require().NoError(err)
	before := len(s.platform.Requests())

	fields, err := s.table.UpsertFields(s.ctx, []FieldInput{
		FieldValues(map[string]interface{}{"fid": "6", "label": "Full Name"}),
		FieldValues(map[string]interface{}{"label": "Notes"}),
	}, false)
	s.Require().NoError(err)
	s.Len(fields, 2)
	s.Same(s.table.Field("6"), fields[0])
	s.Empty(fields[1].Fid())
	s.Len(s.platform.Requests(), before, "autoSave为false时不应发送请求")

	saved, err := s.table.SaveFields(s.ctx, []string{"label"})
	s.Require().NoError(err)
	s.Len(saved, 4)

	requests := s.platform.Requests()[before:]
	s.Require().Len(requests, 4)
	for _, req := range requests[:3] {
		s.Equal(http.MethodPut, req.Method)
	}
	s.Equal(http.MethodPost, requests[3].Method)
	s.Equal(map[string]interface{}{"label": "Notes"}, requests[3].Body)
	s.NotEmpty(fields[1].Fid())
	s.Equal("Full Name", s.platform.Table("app", "tbl").Fields[0]["label"])
}

func (s *TableTestSuite) TestLoadField_NotFound() {
	_, err := s.table.LoadField(s.ctx, "99")

	s.True(client.IsNotFound(err))
}

// ==================== 记录 ====================

func (s *TableTestSuite) TestLoadRecords_RequestedFieldsOnly() {
	records, err := s.table.LoadRecords(s.ctx, LoadRecordsOptions{Fids: []string{record.RecordIDName, "name"}})
	s.Require().NoError(err)

	s.Contains(s.platform.LastRequest().Query, "columns=id.6")
	s.Require().Len(records, 2)
	for _, r := range records {
		s.ElementsMatch([]string{record.RecordIDName, "name"}, keys(r.Values()))
	}
	s.Equal("Alice", s.table.Record("1", "").Get("name"))
}

func (s *TableTestSuite) TestLoadRecords_ReplacesCache() {
	_, err := s.table.UpsertRecord(s.ctx, RecordValues(map[string]interface{}{"name": "Local"}), false)
	s.Require().NoError(err)
	s.Equal(1, s.table.NRecords())

	_, err = s.table.LoadRecords(s.ctx, LoadRecordsOptions{Query: "{'6'.EX.'Bob'}"})
	s.Require().NoError(err)

	s.Equal(1, s.table.NRecords())
	bob := s.table.Record("Bob", "name")
	s.Require().NotNil(bob)
	s.Equal("2", bob.RecordID())
	s.Equal("open", bob.Get("status"))
	s.Nil(s.table.Record("Local", "name"))
}

func (s *TableTestSuite) TestSaveRecords_BulkAssignsIDsAfterSort() {
	_, err := s.table.LoadFields(s.ctx)
	s.Require().NoError(err)

	existing := s.table.NewRecord(map[string]interface{}{record.RecordIDName: "2", "name": "Bobby"})
	carol := s.table.NewRecord(map[string]interface{}{"name": "Carol"})
	dave := s.table.NewRecord(map[string]interface{}{"name": "Dave", "total": 99})
	input := []*record.Record{existing, carol, dave}

	saved, err := s.table.SaveRecords(s.ctx, SaveRecordsOptions{Records: input})
	s.Require().NoError(err)

	s.Equal([]*record.Record{carol, dave, existing}, saved)
	s.Equal(saved, input, "排序在原切片上进行")

	s.NotEmpty(carol.RecordID())
	s.NotEmpty(dave.RecordID())
	s.NotEqual(carol.RecordID(), dave.RecordID())
	s.Equal("2", existing.RecordID())

	last := s.platform.LastRequest()
	s.Equal(http.MethodPost, last.Method)
	rows := last.Body.([]map[string]interface{})
	s.Require().Len(rows, 3)
	s.Equal("", rows[0]["id"])
	s.Equal("Carol", rows[0]["6"])
	s.Equal("", rows[0]["7"], "缺失值以空字符串占位")
	s.NotContains(rows[1], "8", "计算字段不写入")
	s.Equal("2", rows[2]["id"])

	s.Len(s.platform.Table("app", "tbl").Records, 4)
}

func (s *TableTestSuite) TestSaveRecords_EmptySkipsRemote() {
	before := len(s.platform.Requests())

	saved, err := s.table.SaveRecords(s.ctx, SaveRecordsOptions{Records: []*record.Record{}})

	s.NoError(err)
	s.Empty(saved)
	s.Len(s.platform.Requests(), before)
}

func (s *TableTestSuite) TestSaveRecords_Individually() {
	r := s.table.NewRecord(map[string]interface{}{"name": "Erin"})

	_, err := s.table.SaveRecords(s.ctx, SaveRecordsOptions{Individually: true, Records: []*record.Record{r}, FidsToSave: []string{"name"}})
	s.Require().NoError(err)

	s.True(r.IsPersisted())
	rows := s.platform.LastRequest().Body.([]map[string]interface{})
	s.Equal([]map[string]interface{}{{"id": "", "6": "Erin"}}, rows)
}

func (s *TableTestSuite) TestSaveRecords_IndividuallyUsesFieldsLoadedLater() {
	_, err := s.table.LoadRecords(s.ctx, LoadRecordsOptions{})
	s.Require().NoError(err)
	alice := s.table.Record("1", "")
	s.Require().NotNil(alice)

	// 记录加载之后才加载字段定义，公式字段仍需排除
	_, err = s.table.LoadFields(s.ctx)
	s.Require().NoError(err)

	_, err = s.table.SaveRecords(s.ctx, SaveRecordsOptions{Individually: true, Records: []*record.Record{alice}})
	s.Require().NoError(err)

	rows := s.platform.LastRequest().Body.([]map[string]interface{})
	s.Require().Len(rows, 1)
	s.Equal(map[string]interface{}{"id": "1", "6": "Alice", "7": "done"}, rows[0])
}

func (s *TableTestSuite) TestUpsertRecord_AutoSaveUsesFieldsLoadedLater() {
	r, err := s.table.UpsertRecord(s.ctx, RecordValues(map[string]interface{}{"name": "Gina"}), false)
	s.Require().NoError(err)

	_, err = s.table.LoadFields(s.ctx)
	s.Require().NoError(err)

	_, err = s.table.UpsertRecord(s.ctx, ExistingRecord(r), true)
	s.Require().NoError(err)

	rows := s.platform.LastRequest().Body.([]map[string]interface{})
	s.Require().Len(rows, 1)
	s.NotContains(rows[0], "8", "计算字段不写入")
	s.Equal("Gina", rows[0]["6"])
}

func (s *TableTestSuite) TestSaveRecords_BulkPlaceholderForMissingColumn() {
	s.platform.AddRecord("app", "tbl", map[string]interface{}{"id": "3", "6": "Carl"})
	_, err := s.table.LoadFields(s.ctx)
	s.Require().NoError(err)
	_, err = s.table.LoadRecords(s.ctx, LoadRecordsOptions{Query: "{'6'.EX.'Carl'}"})
	s.Require().NoError(err)
	s.Require().Equal(1, s.table.NRecords())

	_, err = s.table.SaveRecords(s.ctx, SaveRecordsOptions{})
	s.Require().NoError(err)

	rows := s.platform.LastRequest().Body.([]map[string]interface{})
	s.Require().Len(rows, 1)
	s.Equal(map[string]interface{}{"id": "3", "6": "Carl", "7": ""}, rows[0])
}

func (s *TableTestSuite) TestDeleteRecord_RestoresCacheOnFailure() {
	_, err := s.table.LoadRecords(s.ctx, LoadRecordsOptions{})
	s.Require().NoError(err)
	alice := s.table.Record("1", "")
	s.Require().NotNil(alice)

	s.platform.Fail("DELETE record", http.StatusInternalServerError, "boom")
	err = s.table.DeleteRecord(s.ctx, alice)

	s.Error(err)
	s.Equal(2, s.table.NRecords())
	s.Equal(1, s.table.RecordIndex("1", ""), "失败的记录重新追加到缓存末尾")
	s.Equal("1", alice.RecordID())
	s.Len(s.platform.Table("app", "tbl").Records, 2)
}

func (s *TableTestSuite) TestDeleteRecord() {
	_, err := s.table.LoadRecords(s.ctx, LoadRecordsOptions{})
	s.Require().NoError(err)

	s.Require().NoError(s.table.DeleteRecord(s.ctx, s.table.Record("1", "")))

	s.Equal(1, s.table.NRecords())
	s.Nil(s.table.Record("1", ""))
	s.Len(s.platform.Table("app", "tbl").Records, 1)
}

func (s *TableTestSuite) TestDeleteRecord_UnsavedIsLocalOnly() {
	r, err := s.table.UpsertRecord(s.ctx, RecordValues(map[string]interface{}{"name": "Draft"}), false)
	s.Require().NoError(err)
	before := len(s.platform.Requests())

	s.Require().NoError(s.table.DeleteRecord(s.ctx, r))

	s.Zero(s.table.NRecords())
	s.Len(s.platform.Requests(), before)
}

func (s *TableTestSuite) TestDeleteRecords_BulkNotImplemented() {
	_, err := s.table.LoadRecords(s.ctx, LoadRecordsOptions{})
	s.Require().NoError(err)
	before := len(s.platform.Requests())

	result, err := s.table.DeleteRecords(s.ctx, DeleteRecordsOptions{})

	s.True(errors.Is(err, ErrBulkDeleteNotImplemented))
	s.Zero(result.NumberDeleted)
	s.Equal(2, s.table.NRecords())
	s.Len(s.platform.Requests(), before)
}

func (s *TableTestSuite) TestDeleteRecords_Individually() {
	_, err := s.table.LoadRecords(s.ctx, LoadRecordsOptions{})
	s.Require().NoError(err)

	result, err := s.table.DeleteRecords(s.ctx, DeleteRecordsOptions{Individually: true})
	s.Require().NoError(err)

	s.Equal(2, result.NumberDeleted)
	s.Zero(s.table.NRecords())
	s.Empty(s.platform.Table("app", "tbl").Records)
}

func (s *TableTestSuite) TestUpsertRecord_AppliesDefaults() {
	_, err := s.table.LoadFields(s.ctx)
	s.Require().NoError(err)

	tests := []struct {
		name       string
		values     map[string]interface{}
		wantStatus interface{}
	}{
		{"未传值时使用默认值", map[string]interface{}{"name": "Eve"}, "open"},
		{"nil不覆盖默认值", map[string]interface{}{"name": "Eve", "status": nil}, "open"},
		{"显式值覆盖默认值", map[string]interface{}{"name": "Eve", "status": "closed"}, "closed"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			r, err := s.table.UpsertRecord(s.ctx, RecordValues(tt.values), false)
			s.Require().NoError(err)
			s.Equal(tt.wantStatus, r.Get("status"))
			s.Equal("Eve", r.Get("name"))
		})
	}
	s.Equal(3, s.table.NRecords())
}

func (s *TableTestSuite) TestUpsertRecord_ExistingByRecordID() {
	_, err := s.table.LoadRecords(s.ctx, LoadRecordsOptions{})
	s.Require().NoError(err)
	alice := s.table.Record("1", "")

	r, err := s.table.UpsertRecord(s.ctx, RecordValues(map[string]interface{}{record.RecordIDName: 1, "name": "Alicia"}), true)
	s.Require().NoError(err)

	s.Same(alice, r)
	s.Equal(2, s.table.NRecords())
	s.Equal("Alicia", s.platform.Table("app", "tbl").Records[0]["6"])
}

func (s *TableTestSuite) TestUpsertRecord_AdoptsDetachedRecord() {
	detached := s.table.NewRecord(map[string]interface{}{"name": "Frank"})

	r, err := s.table.UpsertRecord(s.ctx, ExistingRecord(detached), true)
	s.Require().NoError(err)

	s.Same(detached, r)
	s.Equal(1, s.table.NRecords())
	s.True(r.IsPersisted())
}

// ==================== 快照 ====================

func (s *TableTestSuite) TestSnapshotRoundTrip() {
	_, err := s.table.LoadSchema(s.ctx)
	s.Require().NoError(err)
	_, err = s.table.LoadRecords(s.ctx, LoadRecordsOptions{})
	s.Require().NoError(err)

	encoded, err := json.Marshal(s.table.Snapshot())
	s.Require().NoError(err)
	var snapshot Snapshot
	s.Require().NoError(json.Unmarshal(encoded, &snapshot))

	restored := s.newTable("")
	restored.Restore(&snapshot)

	s.Equal("tbl", restored.TableID())
	s.Equal("Orders", restored.Get("name"))
	s.Equal(s.table.Fids().Pairs(), restored.Fids().Pairs())
	s.Len(restored.Fields(), 3)
	s.True(restored.Field("8").IsComputed())
	s.Equal(2, restored.NRecords())
	s.Equal("Bob", restored.Record("2", "").Get("name"))
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestNew_RequiresConnection(t *testing.T) {
	_, err := New(Options{ApplicationID: "app"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "创建HighSystems客户端失败")
}

func TestTable_AttributeAliases(t *testing.T) {
	tbl, err := New(Options{Connection: &client.Config{BaseURL: "http://localhost"}})
	require.NoError(t, err)

	tbl.Set("appId", "app").Set("tableId", "tbl")

	assert.Equal(t, "app", tbl.ApplicationID())
	assert.Equal(t, "app", tbl.Get("applicationId"))
	assert.Equal(t, "tbl", tbl.Get("id"))
	assert.Equal(t, "tbl", tbl.Data()["id"])
	assert.Equal(t, record.RecordIDName, tbl.FieldName("id"))
	assert.NotEmpty(t, tbl.InstanceID())
}

func TestSortNewFirst_FalsyRecordIDs(t *testing.T) {
	tbl, err := New(Options{Connection: &client.Config{BaseURL: "http://localhost"}, ApplicationID: "app", TableID: "tbl"})
	require.NoError(t, err)

	saved := tbl.NewRecord(map[string]interface{}{record.RecordIDName: "2"})
	blank := tbl.NewRecord(map[string]interface{}{record.RecordIDName: ""})
	zero := tbl.NewRecord(map[string]interface{}{record.RecordIDName: 0})
	unset := tbl.NewRecord(nil)
	records := []*record.Record{saved, blank, zero, unset}

	sortNewFirst(records)

	assert.Equal(t, []*record.Record{blank, zero, unset, saved}, records)
}
