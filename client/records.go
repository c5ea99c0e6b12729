package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// ColumnSeparator 查询列ID的分隔符
const ColumnSeparator = "."

// GetRecordsRequest 查询记录请求
type GetRecordsRequest struct {
	ApplicationID string
	TableID       string
	Query         string   // 过滤条件
	Columns       []string // 返回的字段ID
	Sort          string
	Limit         int
	Offset        int
}

// values 构建查询参数
func (r GetRecordsRequest) values() url.Values {
	values := url.Values{}
	if r.Query != "" {
		values.Set("query", r.Query)
	}
	if len(r.Columns) > 0 {
		values.Set("columns", strings.Join(r.Columns, ColumnSeparator))
	}
	if r.Sort != "" {
		values.Set("sort", r.Sort)
	}
	if r.Limit > 0 {
		values.Set("limit", strconv.Itoa(r.Limit))
	}
	if r.Offset > 0 {
		values.Set("offset", strconv.Itoa(r.Offset))
	}
	return values
}

// ==================== Record 相关方法 ====================

// GetRecords 查询记录，返回以字段ID为键的行数据
func (c *Client) GetRecords(ctx context.Context, req GetRecordsRequest) ([]map[string]interface{}, error) {
	var records []map[string]interface{}
	path := tablePath(req.ApplicationID, req.TableID, "records")
	if err := c.doJSON(ctx, "getRecords", http.MethodGet, path, req.values(), nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// UpsertRecords 批量新增或更新记录，返回与输入顺序一致的记录ID
func (c *Client) UpsertRecords(ctx context.Context, appID, tableID string, data []map[string]interface{}) ([]string, error) {
	respBody, err := c.makeRequest(ctx, "upsertRecords", http.MethodPost, tablePath(appID, tableID, "records"), nil, data)
	if err != nil {
		return nil, err
	}

	// 记录ID可能超过float64的精度范围，按原始数字文本解析
	var ids []interface{}
	if len(bytes.TrimSpace(respBody)) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(respBody))
		decoder.UseNumber()
		if err := decoder.Decode(&ids); err != nil {
			return nil, fmt.Errorf("解析响应失败: %w", err)
		}
	}

	results := make([]string, len(ids))
	for i, id := range ids {
		if n, ok := id.(json.Number); ok {
			results[i] = n.String()
			continue
		}
		s, err := cast.ToStringE(id)
		if err != nil {
			return nil, fmt.Errorf("解析记录ID失败: %w", err)
		}
		results[i] = s
	}
	return results, nil
}

// DeleteRecord 删除单条记录
func (c *Client) DeleteRecord(ctx context.Context, appID, tableID, recordID string) error {
	return c.doJSON(ctx, "deleteRecord", http.MethodDelete, tablePath(appID, tableID, "records", recordID), nil, nil, nil)
}
