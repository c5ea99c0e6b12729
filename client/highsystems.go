/*
 * @module client/highsystems
 * @description HighSystems REST API客户端，提供表、字段、记录的远程CRUD调用
 * @architecture 客户端架构 - REST API客户端
 * @stateFlow 构建请求 -> 认证 -> API调用 -> 响应处理
 * @rules 所有远程错误原样返回调用方，不做重试
 * @dependencies net/http, encoding/json, log/slog, github.com/prometheus/client_golang
 * @refs table/table.go
 */

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// DefaultDomain 实例默认域名
	DefaultDomain = "highsystems.io"
	// APIPrefix REST API路径前缀
	APIPrefix = "/api/rest/v1"
	// DefaultTimeout 默认HTTP超时时间
	DefaultTimeout = 30 * time.Second
)

// Config HighSystems客户端配置
type Config struct {
	Instance  string        `json:"instance"`   // 实例名，拼接为 https://<instance>.highsystems.io
	BaseURL   string        `json:"base_url"`   // 完整服务地址，设置后优先于Instance
	UserToken string        `json:"user_token"` // 用户Token
	UserAgent string        `json:"user_agent"` // 自定义User-Agent
	Timeout   time.Duration `json:"timeout"`    // HTTP超时时间

	HTTPClient *http.Client          `json:"-"`
	Registerer prometheus.Registerer `json:"-"` // 指标注册器，为空时不注册
	Logger     *slog.Logger          `json:"-"`
}

// Client HighSystems REST客户端
type Client struct {
	baseURL    string
	userToken  string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *clientMetrics
}

// APIError 远程API返回的错误
type APIError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Body       string `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API错误 [%d]: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP错误 [%d]: %s", e.StatusCode, e.Body)
}

// IsNotFound 判断错误是否为远程404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// errorResponse 错误响应体
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// New 创建新的HighSystems客户端
func New(config Config) (*Client, error) {
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		if config.Instance == "" {
			return nil, errors.New("必须配置instance或base_url")
		}
		baseURL = fmt.Sprintf("https://%s.%s%s", config.Instance, DefaultDomain, APIPrefix)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := newClientMetrics(config.Registerer)
	if err != nil {
		return nil, err
	}

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = "hstable-service/1.0"
	}

	return &Client{
		baseURL:    baseURL,
		userToken:  config.UserToken,
		userAgent:  userAgent,
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// BaseURL 返回客户端使用的服务地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// makeRequest 发送HTTP请求并返回响应体
func (c *Client) makeRequest(ctx context.Context, operation, method, path string, query url.Values, body interface{}) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.userToken)
	}

	c.logger.Debug("HighSystems请求开始", "operation", operation, "method", method, "url", fullURL)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observe(operation, "error", time.Since(start))
		c.logger.Error("HighSystems请求失败", "operation", operation, "error", err)
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.observe(operation, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			apiErr.Message = errResp.Message
			if apiErr.Message == "" {
				apiErr.Message = errResp.Error
			}
		}
		c.logger.Error("HighSystems返回错误状态", "operation", operation, "status", resp.StatusCode, "message", apiErr.Message)
		return nil, apiErr
	}

	c.logger.Debug("HighSystems请求完成", "operation", operation, "status", resp.StatusCode, "bytes", len(respBody))
	return respBody, nil
}

// doJSON 发送请求并将响应解析到out
func (c *Client) doJSON(ctx context.Context, operation, method, path string, query url.Values, body, out interface{}) error {
	respBody, err := c.makeRequest(ctx, operation, method, path, query, body)
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	return nil
}

// tablePath 构建表资源路径
func tablePath(appID, tableID string, parts ...string) string {
	segments := []string{"applications", url.PathEscape(appID), "tables"}
	if tableID != "" {
		segments = append(segments, url.PathEscape(tableID))
	}
	for _, part := range parts {
		segments = append(segments, url.PathEscape(part))
	}
	return "/" + strings.Join(segments, "/")
}
