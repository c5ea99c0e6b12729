/*
 * @module api/controllers/health_controller
 * @description 健康检查控制器，提供服务健康状态检查
 * @architecture MVC架构 - 控制器层
 * @stateFlow HTTP请求处理流程
 * @rules 存活检查始终返回ok；就绪检查要求表结构已加载
 * @dependencies net/http, github.com/go-chi/render
 * @refs service/table_service.go
 */

package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// ServiceName 服务名称
const ServiceName = "hstable-service"

// Version 服务版本
var Version = "1.0.0"

// ReadyChecker 就绪检查
type ReadyChecker interface {
	Ready() error
}

// HealthController 健康检查控制器
type HealthController struct {
	checker ReadyChecker
}

// NewHealthController 创建健康检查控制器实例，checker 为空时始终就绪
func NewHealthController(checker ReadyChecker) *HealthController {
	return &HealthController{checker: checker}
}

// HealthResponse 健康检查响应结构
type HealthResponse struct {
	Status    string    `json:"status" example:"ok"`
	Timestamp time.Time `json:"timestamp" example:"2024-01-01T00:00:00Z"`
	Version   string    `json:"version" example:"1.0.0"`
	Service   string    `json:"service" example:"hstable-service"`
	Error     string    `json:"error,omitempty"`
}

// Health 健康检查
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   Version,
		Service:   ServiceName,
	})
}

// Ready 就绪检查，未就绪时返回503
func (c *HealthController) Ready(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   Version,
		Service:   ServiceName,
	}

	if c.checker != nil {
		if err := c.checker.Ready(); err != nil {
			response.Status = "not_ready"
			response.Error = err.Error()
			render.Status(r, http.StatusServiceUnavailable)
		}
	}

	render.JSON(w, r, response)
}
