package client

import (
	"context"
	"net/http"
)

// ==================== Table 相关方法 ====================

// GetTable 获取表属性
func (c *Client) GetTable(ctx context.Context, appID, tableID string) (map[string]interface{}, error) {
	var table map[string]interface{}
	if err := c.doJSON(ctx, "getTable", http.MethodGet, tablePath(appID, tableID), nil, nil, &table); err != nil {
		return nil, err
	}
	return ensureMap(table), nil
}

// PostTable 创建新表
func (c *Client) PostTable(ctx context.Context, appID string, data map[string]interface{}) (map[string]interface{}, error) {
	var table map[string]interface{}
	if err := c.doJSON(ctx, "postTable", http.MethodPost, tablePath(appID, ""), nil, data, &table); err != nil {
		return nil, err
	}
	return ensureMap(table), nil
}

// PutTable 更新表属性
func (c *Client) PutTable(ctx context.Context, appID, tableID string, data map[string]interface{}) (map[string]interface{}, error) {
	var table map[string]interface{}
	if err := c.doJSON(ctx, "putTable", http.MethodPut, tablePath(appID, tableID), nil, data, &table); err != nil {
		return nil, err
	}
	return ensureMap(table), nil
}

// DeleteTable 删除表
func (c *Client) DeleteTable(ctx context.Context, appID, tableID string) (map[string]interface{}, error) {
	var result map[string]interface{}
	if err := c.doJSON(ctx, "deleteTable", http.MethodDelete, tablePath(appID, tableID), nil, nil, &result); err != nil {
		return nil, err
	}
	return ensureMap(result), nil
}

func ensureMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
