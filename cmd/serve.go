package cmd

import (
	"context"
	"errors"
	"hstable-service/api"
	"hstable-service/service"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	daprd "github.com/dapr/go-sdk/service/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func (a *app) newServeCmd() *cobra.Command {
	var skipWarm bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动HTTP服务",
		Long:  "启动只读HTTP服务，提供表结构、记录查询、CSV导出以及 /metrics 指标接口。",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(contextOrBackground(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, cleanup, err := a.buildService(ctx, prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}
			defer cleanup()

			if !skipWarm {
				// 预热失败时仍然启动，/ready 返回未就绪，首次请求时重试
				if err := svc.Warm(ctx); err != nil {
					a.logger.Warn("表结构预热失败", "error", err)
				}
			}

			mux := newMux(a.cfg.Server.BaseContext, svc)
			addr := ":" + strconv.Itoa(a.cfg.Server.Port)
			s := daprd.NewServiceWithMux(addr, mux)

			go func() {
				<-ctx.Done()
				a.logger.Info("正在停止HTTP服务")
				if err := s.GracefulStop(); err != nil {
					a.logger.Error("停止HTTP服务失败", "error", err)
				}
			}()

			a.logger.Info("HTTP服务启动", "addr", addr, "base_context", a.cfg.Server.BaseContext,
				"application_id", a.cfg.Table.ApplicationID, "table_id", a.cfg.Table.TableID)
			if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipWarm, "skip-warm", false, "启动时不预热表结构")
	return cmd
}

// newMux 构建路由，baseContext 非空时所有路由挂载在该路径下
func newMux(baseContext string, svc *service.TableService) *chi.Mux {
	mux := chi.NewRouter()

	if baseContext != "" {
		mux.Route(baseContext, func(r chi.Router) {
			api.InitRoute(r, svc)
			r.Handle("/metrics", promhttp.Handler())
		})
	} else {
		api.InitRoute(mux, svc)
		mux.Handle("/metrics", promhttp.Handler())
	}

	return mux
}

// contextOrBackground cobra 在未设置上下文时返回nil
func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
