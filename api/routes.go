/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @stateFlow 无状态HTTP请求处理
 * @rules 统一错误处理和响应格式；数据表接口只读
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers/table_controller.go
 */

package api

import (
	"hstable-service/api/controllers"
	"hstable-service/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r chi.Router, svc *service.TableService) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 健康检查
	healthController := controllers.NewHealthController(svc)
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 数据表
	r.Route("/table", func(r chi.Router) {
		tableController := controllers.NewTableController(svc)
		r.Get("/", tableController.GetSchema)
		r.Get("/records", tableController.GetRecords)
		r.Get("/records.csv", tableController.ExportCSV)
	})
}
