/*
 * @module client/highsystems_test
 * @description HighSystems REST客户端测试
 * @architecture 测试架构 - httptest模拟远程服务
 * @stateFlow 启动模拟服务 -> 发送请求 -> 验证路径/参数/响应
 * @rules 不依赖真实服务
 * @dependencies testing, net/http/httptest, github.com/stretchr/testify, github.com/prometheus/client_golang
 */

package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*captured = capturedRequest{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return server, captured
}

func TestNew(t *testing.T) {
	t.Run("按实例名拼接地址", func(t *testing.T) {
		c, err := New(Config{Instance: "demo"})
		require.NoError(t, err)
		assert.Equal(t, "https://demo.highsystems.io/api/rest/v1", c.BaseURL())
	})

	t.Run("base_url优先", func(t *testing.T) {
		c, err := New(Config{Instance: "demo", BaseURL: "http://localhost:8080/"})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080", c.BaseURL())
	})

	t.Run("缺少地址", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})
}

func TestClient_GetRecords(t *testing.T) {
	server, captured := newTestServer(t, http.StatusOK, `[{"id":"1","6":"Alice"}]`)
	c, err := New(Config{BaseURL: server.URL, UserToken: "secret"})
	require.NoError(t, err)

	records, err := c.GetRecords(context.Background(), GetRecordsRequest{
		ApplicationID: "app",
		TableID:       "tbl",
		Query:         "{'6'.EX.'Alice'}",
		Columns:       []string{"id", "6"},
		Limit:         10,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, captured.Method)
	assert.Equal(t, "/applications/app/tables/tbl/records", captured.Path)
	assert.Equal(t, "Bearer secret", captured.Auth)
	assert.Contains(t, captured.Query, "columns=id.6")
	assert.Contains(t, captured.Query, "limit=10")
	require.Len(t, records, 1)
	assert.Equal(t, "Alice", records[0]["6"])
}

func TestClient_UpsertRecords(t *testing.T) {
	server, captured := newTestServer(t, http.StatusOK, `[101, "102"]`)
	c, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	ids, err := c.UpsertRecords(context.Background(), "app", "tbl", []map[string]interface{}{
		{"id": "", "6": "Alice"},
		{"id": "102", "6": "Bob"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"101", "102"}, ids)
	assert.Equal(t, http.MethodPost, captured.Method)

	var sent []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(captured.Body), &sent))
	assert.Len(t, sent, 2)
	assert.Empty(t, captured.Auth)
}

func TestClient_UpsertRecords_LargeNumericIDs(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `[9007199254740993, 12345678901234567890]`)
	c, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	ids, err := c.UpsertRecords(context.Background(), "app", "tbl", []map[string]interface{}{{"id": ""}, {"id": ""}})
	require.NoError(t, err)

	assert.Equal(t, []string{"9007199254740993", "12345678901234567890"}, ids)
}

func TestClient_PathEscaping(t *testing.T) {
	server, captured := newTestServer(t, http.StatusNoContent, "")
	c, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	require.NoError(t, c.DeleteRecord(context.Background(), "app", "tbl", "a/b"))
	assert.Equal(t, "/applications/app/tables/tbl/records/a%2Fb", captured.Path)
}

func TestClient_APIError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		notFound bool
	}{
		{"message字段", http.StatusBadRequest, `{"message":"invalid query"}`, "invalid query", false},
		{"error字段", http.StatusNotFound, `{"error":"no such table"}`, "no such table", true},
		{"非JSON响应", http.StatusBadGateway, `bad gateway`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, tt.status, tt.body)
			c, err := New(Config{BaseURL: server.URL})
			require.NoError(t, err)

			_, err = c.GetTable(context.Background(), "app", "tbl")
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, tt.body, apiErr.Body)
			assert.Equal(t, tt.notFound, IsNotFound(err))
		})
	}
}

func TestClient_Metrics(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `[]`)
	reg := prometheus.NewRegistry()

	c, err := New(Config{BaseURL: server.URL, Registerer: reg})
	require.NoError(t, err)
	// 共用注册器时复用已注册指标
	other, err := New(Config{BaseURL: server.URL, Registerer: reg})
	require.NoError(t, err)

	_, err = c.GetFields(context.Background(), "app", "tbl")
	require.NoError(t, err)
	_, err = other.GetFields(context.Background(), "app", "tbl")
	require.NoError(t, err)

	metric := &dto.Metric{}
	require.NoError(t, c.metrics.requests.WithLabelValues("getFields", "200").Write(metric))
	assert.Equal(t, float64(2), metric.GetCounter().GetValue())

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "highsystems_client_requests_total")
	assert.Contains(t, names, "highsystems_client_request_duration_seconds")
}

func TestClient_Tables(t *testing.T) {
	server, captured := newTestServer(t, http.StatusOK, `{"id":"tbl","name":"Orders"}`)
	c, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)

	result, err := c.PostTable(context.Background(), "app", map[string]interface{}{"name": "Orders"})
	require.NoError(t, err)
	assert.Equal(t, "/applications/app/tables", captured.Path)
	assert.Equal(t, "Orders", result["name"])

	_, err = c.PutTable(context.Background(), "app", "tbl", map[string]interface{}{"name": "Orders"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, captured.Method)
	assert.Equal(t, "/applications/app/tables/tbl", captured.Path)
}
