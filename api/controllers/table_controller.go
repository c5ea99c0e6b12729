/*
 * @module api/controllers/table_controller
 * @description 数据表只读接口：表结构、记录查询与CSV导出
 * @architecture MVC架构 - 控制器层
 * @stateFlow 解析查询参数 -> 调用表代理服务 -> 输出JSON/CSV
 * @rules 远程平台错误映射为502，参数错误映射为400
 * @dependencies github.com/go-chi/render, github.com/spf13/cast
 * @refs service/table_service.go, api/routes.go
 */

package controllers

import (
	"context"
	"errors"
	"hstable-service/client"
	"hstable-service/service"
	"hstable-service/table"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/spf13/cast"
)

// TableService 控制器依赖的表代理服务
type TableService interface {
	Schema(ctx context.Context) (*service.SchemaView, error)
	Records(ctx context.Context, q service.RecordsQuery) ([]map[string]interface{}, error)
	ExportCSV(ctx context.Context, q service.RecordsQuery, encoding string) ([]byte, error)
}

// TableController 数据表控制器
type TableController struct {
	service TableService
}

// NewTableController 创建数据表控制器
func NewTableController(svc TableService) *TableController {
	return &TableController{service: svc}
}

// GetSchema 获取表结构
// @Summary 获取表结构
// @Tags 数据表
// @Produce json
// @Success 200 {object} APIResponse
// @Router /table [get]
func (c *TableController) GetSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := c.service.Schema(r.Context())
	if err != nil {
		c.renderServiceError(w, r, "获取表结构失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("获取表结构成功", schema))
}

// GetRecords 查询记录
// @Summary 查询记录
// @Tags 数据表
// @Produce json
// @Param fids query string false "字段名，逗号分隔"
// @Param query query string false "过滤条件"
// @Param sort query string false "排序字段ID"
// @Param limit query int false "返回条数"
// @Success 200 {object} ListResponse
// @Router /table/records [get]
func (c *TableController) GetRecords(w http.ResponseWriter, r *http.Request) {
	q, err := parseRecordsQuery(r)
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "参数错误", err)
		return
	}

	records, err := c.service.Records(r.Context(), q)
	if err != nil {
		c.renderServiceError(w, r, "查询记录失败", err)
		return
	}

	render.JSON(w, r, &ListResponse{Status: 0, Msg: "查询记录成功", Data: records, Total: len(records)})
}

// ExportCSV 导出CSV
// @Summary 导出CSV
// @Tags 数据表
// @Produce text/csv
// @Param fids query string false "字段名，逗号分隔"
// @Param query query string false "过滤条件"
// @Param encoding query string false "输出编码 utf-8/gbk"
// @Router /table/records.csv [get]
func (c *TableController) ExportCSV(w http.ResponseWriter, r *http.Request) {
	q, err := parseRecordsQuery(r)
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "参数错误", err)
		return
	}

	encoding := strings.ToLower(r.URL.Query().Get("encoding"))
	if encoding == "" {
		encoding = table.EncodingUTF8
	}
	if encoding != table.EncodingUTF8 && encoding != table.EncodingGBK {
		renderError(w, r, http.StatusBadRequest, "不支持的编码", errors.New(encoding))
		return
	}

	data, err := c.service.ExportCSV(r.Context(), q, encoding)
	if err != nil {
		c.renderServiceError(w, r, "导出CSV失败", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset="+encoding)
	w.Header().Set("Content-Disposition", `attachment; filename="records.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("写入CSV响应失败", "error", err)
	}
}

func (c *TableController) renderServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := http.StatusInternalServerError
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	slog.Error(msg, "status", status, "error", err)
	renderError(w, r, status, msg, err)
}

func parseRecordsQuery(r *http.Request) (service.RecordsQuery, error) {
	values := r.URL.Query()
	q := service.RecordsQuery{
		Query: values.Get("query"),
		Sort:  values.Get("sort"),
	}

	if fids := values.Get("fids"); fids != "" {
		for _, name := range strings.Split(fids, ",") {
			if name = strings.TrimSpace(name); name != "" {
				q.Fids = append(q.Fids, name)
			}
		}
	}

	if limit := values.Get("limit"); limit != "" {
		n, err := cast.ToIntE(limit)
		if err != nil || n < 0 {
			return q, errors.New("limit 必须为非负整数")
		}
		q.Limit = n
	}

	return q, nil
}
