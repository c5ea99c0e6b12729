package client

import (
	"context"
	"net/http"
)

// ==================== Field 相关方法 ====================

// GetFields 获取表的所有字段
func (c *Client) GetFields(ctx context.Context, appID, tableID string) ([]map[string]interface{}, error) {
	var fields []map[string]interface{}
	if err := c.doJSON(ctx, "getFields", http.MethodGet, tablePath(appID, tableID, "fields"), nil, nil, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// GetField 根据字段ID获取字段
func (c *Client) GetField(ctx context.Context, appID, tableID, fid string) (map[string]interface{}, error) {
	var field map[string]interface{}
	if err := c.doJSON(ctx, "getField", http.MethodGet, tablePath(appID, tableID, "fields", fid), nil, nil, &field); err != nil {
		return nil, err
	}
	return ensureMap(field), nil
}

// PostField 创建新字段
func (c *Client) PostField(ctx context.Context, appID, tableID string, data map[string]interface{}) (map[string]interface{}, error) {
	var field map[string]interface{}
	if err := c.doJSON(ctx, "postField", http.MethodPost, tablePath(appID, tableID, "fields"), nil, data, &field); err != nil {
		return nil, err
	}
	return ensureMap(field), nil
}

// PutField 更新字段
func (c *Client) PutField(ctx context.Context, appID, tableID, fid string, data map[string]interface{}) (map[string]interface{}, error) {
	var field map[string]interface{}
	if err := c.doJSON(ctx, "putField", http.MethodPut, tablePath(appID, tableID, "fields", fid), nil, data, &field); err != nil {
		return nil, err
	}
	return ensureMap(field), nil
}

// DeleteField 删除字段
func (c *Client) DeleteField(ctx context.Context, appID, tableID, fid string) error {
	return c.doJSON(ctx, "deleteField", http.MethodDelete, tablePath(appID, tableID, "fields", fid), nil, nil, nil)
}
