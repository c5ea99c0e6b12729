/*
 * @module testutil/fake_platform
 * @description 内存版HighSystems REST服务，用于客户端和表代理测试
 * @architecture 测试基础设施 - httptest + chi路由模拟远程平台
 * @stateFlow 启动服务 -> 预置数据 -> 执行测试 -> 关闭服务
 * @rules 行为与远程平台接口保持一致，支持按路由注入失败
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render, net/http/httptest
 * @refs client/highsystems.go
 */

package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/spf13/cast"
)

// RequestLog 记录收到的请求
type RequestLog struct {
	Method string
	Path   string
	Query  string
	Body   interface{}
}

// failure 注入的失败响应
type failure struct {
	status  int
	message string
}

// FakeTable 内存中的表
type FakeTable struct {
	Attributes map[string]interface{}
	Fields     []map[string]interface{}
	Records    []map[string]interface{}
}

// FakePlatform 模拟HighSystems REST API
type FakePlatform struct {
	Server *httptest.Server

	mu       sync.Mutex
	tables   map[string]*FakeTable // key: appid/tableid
	failures map[string]failure    // key: METHOD 路由名
	requests []RequestLog
	nextID   int
}

// NewFakePlatform 启动模拟平台
func NewFakePlatform() *FakePlatform {
	p := &FakePlatform{
		tables:   map[string]*FakeTable{},
		failures: map[string]failure{},
		nextID:   1000,
	}

	r := chi.NewRouter()
	r.Use(p.recordRequest)
	r.Route("/applications/{appid}/tables", func(r chi.Router) {
		r.Post("/", p.postTable)
		r.Route("/{tableid}", func(r chi.Router) {
			r.Get("/", p.getTable)
			r.Put("/", p.putTable)
			r.Delete("/", p.deleteTable)

			r.Get("/fields", p.getFields)
			r.Post("/fields", p.postField)
			r.Get("/fields/{fid}", p.getField)
			r.Put("/fields/{fid}", p.putField)
			r.Delete("/fields/{fid}", p.deleteField)

			r.Get("/records", p.getRecords)
			r.Post("/records", p.upsertRecords)
			r.Delete("/records/{recordid}", p.deleteRecord)
		})
	})

	p.Server = httptest.NewServer(r)
	return p
}

// URL 服务地址
func (p *FakePlatform) URL() string {
	return p.Server.URL
}

// Close 关闭服务
func (p *FakePlatform) Close() {
	p.Server.Close()
}

// AddTable 预置表数据
func (p *FakePlatform) AddTable(appID, tableID string, attributes map[string]interface{}) *FakeTable {
	p.mu.Lock()
	defer p.mu.Unlock()

	if attributes == nil {
		attributes = map[string]interface{}{}
	}
	attributes["id"] = tableID
	t := &FakeTable{Attributes: attributes}
	p.tables[appID+"/"+tableID] = t
	return t
}

// Table 返回内存表
func (p *FakePlatform) Table(appID, tableID string) *FakeTable {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tables[appID+"/"+tableID]
}

// AddField 预置字段
func (p *FakePlatform) AddField(appID, tableID string, field map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.tables[appID+"/"+tableID]
	t.Fields = append(t.Fields, field)
}

// AddRecord 预置记录，键为字段ID
func (p *FakePlatform) AddRecord(appID, tableID string, row map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.tables[appID+"/"+tableID]
	t.Records = append(t.Records, row)
}

// Fail 使指定路由返回错误，route 形如 "DELETE record"
func (p *FakePlatform) Fail(route string, status int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[route] = failure{status: status, message: message}
}

// Recover 取消失败注入
func (p *FakePlatform) Recover(route string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failures, route)
}

// Requests 返回收到的请求
func (p *FakePlatform) Requests() []RequestLog {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RequestLog, len(p.requests))
	copy(out, p.requests)
	return out
}

// LastRequest 返回最后一个请求
func (p *FakePlatform) LastRequest() RequestLog {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return RequestLog{}
	}
	return p.requests[len(p.requests)-1]
}

func (p *FakePlatform) recordRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.requests = append(p.requests, RequestLog{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery})
		p.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// setLastBody 补充最后一个请求的请求体
func (p *FakePlatform) setLastBody(body interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) > 0 {
		p.requests[len(p.requests)-1].Body = body
	}
}

// failed 检查失败注入，已处理时返回true
func (p *FakePlatform) failed(w http.ResponseWriter, r *http.Request, route string) bool {
	p.mu.Lock()
	f, ok := p.failures[route]
	p.mu.Unlock()
	if !ok {
		return false
	}
	render.Status(r, f.status)
	render.JSON(w, r, map[string]string{"message": f.message})
	return true
}

func (p *FakePlatform) lookup(w http.ResponseWriter, r *http.Request) (*FakeTable, bool) {
	key := chi.URLParam(r, "appid") + "/" + chi.URLParam(r, "tableid")
	p.mu.Lock()
	t, ok := p.tables[key]
	p.mu.Unlock()
	if !ok {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"message": "table not found"})
	}
	return t, ok
}

func (p *FakePlatform) newID() string {
	p.nextID++
	return strconv.Itoa(p.nextID)
}

func (p *FakePlatform) getTable(w http.ResponseWriter, r *http.Request) {
	if p.failed(w, r, "GET table") {
		return
	}
	t, ok := p.lookup(w, r)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	render.JSON(w, r, t.Attributes)
}

func (p *FakePlatform) postTable(w http.ResponseWriter, r *http.Request) {
	if p.failed(w, r, "POST table") {
		return
	}
	var body map[string]interface{}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	p.setLastBody(body)

	p.mu.Lock()
	defer p.mu.Unlock()
	tableID := "t" + p.newID()
	attributes := cloneMap(body)
	attributes["id"] = tableID
	p.tables[chi.URLParam(r, "appid")+"/"+tableID] = &FakeTable{Attributes: attributes}
	render.JSON(w, r, attributes)
}

func (p *FakePlatform) putTable(w http.ResponseWriter, r *http.Request) {
	if p.failed(w, r, "PUT table") {
		return
	}
	t, ok := p.lookup(w, r)
	if !ok {
		return
	}
	var body map[string]interface{}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	p.setLastBody(body)

	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range body {
		t.Attributes[k] = v
	}
	render.JSON(w, r, t.Attributes)
}

func (p *FakePlatform) deleteTable(w http.ResponseWriter, r *http.Request) {
	if p.failed(w, r, "DELETE table") {
		return
	}
	if _, ok := p.lookup(w, r); !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tables, chi.URLParam(r, "appid")+"/"+chi.URLParam(r, "tableid"))
	render.JSON(w, r, map[string]interface{}{"deleted": true})
}

func (p *FakePlatform) getFields(w http.ResponseWriter, r *http.Request) {
	if p.failed(w, r, "GET fields") {
		return
	}
	t, ok := p.lookup(w, r)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fields := t.Fields
	if fields == nil {
		fields = []map[string]interface{}{}
	}
	render.JSON(w, r, fields)
}

func (p *FakePlatform) findField(t *FakeTable, fid string) map[string]interface{} {
	for _, f := range t.Fields {
		if cast.ToString(f["id"]) == fid {
			return f
		}
	}
	return nil
}

func (p *FakePlatform) getField(w http.ResponseWriter, r *http.Request) {
	if p.failed(w, r, "GET field") {
		return
	}
	t, ok := p.lookup(w, r)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.findField(t, chi.URLParam(r, "fid"))
	if f == nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"message": "field not found"})
		return
	}
	render.JSON(w, r, f)
}

func (p *FakePlatform) postField(w http.ResponseWriter, r *http.Request) {
	if p.failed(w, r, "POST field") {
		return
	}
	t, ok := p.lookup(w, r)
	if !ok {
		return
	}
	var body map[string]interface{}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	p.setLastBody(body)

	p.mu.Lock()
	defer p.mu.Unlock()
	f := cloneMap(body)
	f["id"] = p.newID()
	t.Fields = append(t.Fields, f)
	render.JSON(w, r, f)
}

func (p *FakePlatform) putField(w http.ResponseWriter, r *http.Request) {
	if p.failed(w, r, "PUT field") {
		return
	}
	t, ok := p.lookup(w, r)
	if !ok {
		return
	}
	var body map[string]interface{}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	p.setLastBody(body)

	p.mu.Lock()
	defer p.mu.Unlock()
	fid := chi.URLParam(r, "fid")
	f := p.findField(t, fid)
	if f == nil {
		f = map[string]interface{}{"id": fid}
		t.Fields = append(t.Fields, f)
	}
	for k, v := range body {
		f[k] = v
	}
	render.JSON(w, r, f)
}

func (p *FakePlatform) deleteField(w http.ResponseWriter, r *http.Request) {
	if p.failed(w, r, "DELETE field") {
		return
	}
	t, ok := p.lookup(w, r)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fid := chi.URLParam(r, "fid")
	kept := t.Fields[:0]
	for _, f := range t.Fields {
		if cast.ToString(f["id"]) != fid {
			kept = append(kept, f)
		}
	}
	t.Fields = kept
	w.WriteHeader(http.StatusNoContent)
}

// getRecords 支持 query 形如 {'fid'.EX.'value'}，多个条件以 AND 连接
func (p *FakePlatform) getRecords(w http.ResponseWriter, r *http.Request) {
	if p.failed(w, r, "GET records") {
		return
	}
	t, ok := p.lookup(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("query")
	var columns []string
	if c := r.URL.Query().Get("columns"); c != "" {
		columns = strings.Split(c, ".")
	}
	conditions, err := parseQuery(query)
	if err != nil {
		badRequest(w, r, err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	rows := make([]map[string]interface{}, 0, len(t.Records))
	for _, rec := range t.Records {
		if !matches(rec, conditions) {
			continue
		}
		row := map[string]interface{}{}
		if len(columns) == 0 {
			for k, v := range rec {
				row[k] = v
			}
		} else {
			for _, c := range columns {
				row[c] = rec[c]
			}
		}
		rows = append(rows, row)
	}

	if sortFid := r.URL.Query().Get("sort"); sortFid != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			return cast.ToString(rows[i][sortFid]) < cast.ToString(rows[j][sortFid])
		})
	}
	if limit := cast.ToInt(r.URL.Query().Get("limit")); limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}

	render.JSON(w, r, rows)
}

// upsertRecords 主键字段为 id；id 为空时新增
func (p *FakePlatform) upsertRecords(w http.ResponseWriter, r *http.Request) {
	if p.failed(w, r, "POST records") {
		return
	}
	t, ok := p.lookup(w, r)
	if !ok {
		return
	}
	var body []map[string]interface{}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	p.setLastBody(body)

	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, len(body))
	for i, row := range body {
		row = cloneMap(row)
		id := cast.ToString(row["id"])
		existing := p.findRecord(t, id)
		if id == "" || existing == nil {
			if id == "" {
				id = p.newID()
			}
			row["id"] = id
			t.Records = append(t.Records, row)
		} else {
			for k, v := range row {
				existing[k] = v
			}
		}
		ids[i] = id
	}
	render.JSON(w, r, ids)
}

func (p *FakePlatform) findRecord(t *FakeTable, id string) map[string]interface{} {
	for _, rec := range t.Records {
		if cast.ToString(rec["id"]) == id {
			return rec
		}
	}
	return nil
}

func (p *FakePlatform) deleteRecord(w http.ResponseWriter, r *http.Request) {
	if p.failed(w, r, "DELETE record") {
		return
	}
	t, ok := p.lookup(w, r)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := chi.URLParam(r, "recordid")
	if p.findRecord(t, id) == nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"message": "record not found"})
		return
	}
	kept := t.Records[:0]
	for _, rec := range t.Records {
		if cast.ToString(rec["id"]) != id {
			kept = append(kept, rec)
		}
	}
	t.Records = kept
	w.WriteHeader(http.StatusNoContent)
}

type condition struct {
	fid   string
	value string
}

func parseQuery(query string) ([]condition, error) {
	if query == "" {
		return nil, nil
	}
	var conditions []condition
	for _, part := range strings.Split(query, "AND") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "{")
		part = strings.TrimSuffix(part, "}")
		pieces := strings.Split(part, ".EX.")
		if len(pieces) != 2 {
			return nil, fmt.Errorf("unsupported query: %s", query)
		}
		conditions = append(conditions, condition{
			fid:   strings.Trim(pieces[0], "'"),
			value: strings.Trim(pieces[1], "'"),
		})
	}
	return conditions, nil
}

func matches(rec map[string]interface{}, conditions []condition) bool {
	for _, c := range conditions {
		if cast.ToString(rec[c.fid]) != c.value {
			return false
		}
	}
	return true
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, map[string]string{"message": err.Error()})
}
