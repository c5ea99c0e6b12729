/*
 * @module cmd/root
 * @description 命令行入口，加载配置并构建表代理服务
 * @architecture 命令行层 - cobra命令树
 * @stateFlow 解析参数 -> 加载配置 -> 命令行覆盖 -> 初始化日志 -> 执行子命令
 * @rules 命令行参数优先于环境变量，环境变量优先于配置文件
 * @dependencies github.com/spf13/cobra, github.com/spf13/pflag
 * @refs config/config.go, service/table_service.go
 */

package cmd

import (
	"context"
	"fmt"
	"hstable-service/cache"
	"hstable-service/config"
	"hstable-service/logger"
	"hstable-service/service"
	"hstable-service/table"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// app 命令执行期间共享的状态
type app struct {
	configPath string
	overrides  overrides

	cfg    *config.Config
	logger *slog.Logger
}

// overrides 命令行覆盖项，空值表示不覆盖
type overrides struct {
	instance  string
	baseURL   string
	token     string
	appID     string
	tableID   string
	logLevel  string
	logFormat string
	redisAddr string
	fids      map[string]string
}

// NewRootCmd 创建根命令
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "hstable",
		Short:         "HighSystems数据表代理",
		Long:          "HighSystems数据表代理：查询记录、导出CSV，并以HTTP服务方式提供只读访问。",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "配置文件路径（默认依次尝试 config.yaml、config.yml）")
	flags.StringVar(&a.overrides.instance, "instance", "", "HighSystems实例名")
	flags.StringVar(&a.overrides.baseURL, "base-url", "", "HighSystems服务地址，优先于实例名")
	flags.StringVar(&a.overrides.token, "token", "", "用户Token")
	flags.StringVar(&a.overrides.appID, "app-id", "", "应用ID")
	flags.StringVar(&a.overrides.tableID, "table-id", "", "表ID")
	flags.StringVar(&a.overrides.logLevel, "log-level", "", "日志级别 debug/info/warn/error")
	flags.StringVar(&a.overrides.logFormat, "log-format", "", "日志格式 json/text")
	flags.StringVar(&a.overrides.redisAddr, "redis-addr", "", "快照缓存Redis地址")
	flags.StringToStringVar(&a.overrides.fids, "fid", nil, "字段名映射，形如 name=6，可重复")
	root.SetGlobalNormalizationFunc(normalizeFlagName)

	root.AddCommand(
		a.newServeCmd(),
		a.newExportCmd(),
		a.newSchemaCmd(),
	)

	return root
}

// Execute 执行根命令
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}

// normalizeFlagName 兼容下划线写法，如 --table_id
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.overrides.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(a.logger)
	return nil
}

func (o overrides) apply(cfg *config.Config) {
	set := func(value string, target *string) {
		if value != "" {
			*target = value
		}
	}

	set(o.instance, &cfg.HighSystems.Instance)
	set(o.baseURL, &cfg.HighSystems.BaseURL)
	set(o.token, &cfg.HighSystems.UserToken)
	set(o.appID, &cfg.Table.ApplicationID)
	set(o.tableID, &cfg.Table.TableID)
	set(o.logLevel, &cfg.Logging.Level)
	set(o.logFormat, &cfg.Logging.Format)
	set(o.redisAddr, &cfg.Cache.Addr)

	for name, fid := range o.fids {
		cfg.Table.Fids[name] = fid
	}
}

// buildService 创建表代理服务，配置了Redis时启用快照缓存。
// 返回的 cleanup 用于关闭缓存连接
func (a *app) buildService(ctx context.Context, reg prometheus.Registerer) (*service.TableService, func(), error) {
	clientConfig := a.cfg.ClientConfig()
	clientConfig.Registerer = reg
	clientConfig.Logger = a.logger

	tbl, err := table.New(table.Options{
		Connection:    &clientConfig,
		ApplicationID: a.cfg.Table.ApplicationID,
		TableID:       a.cfg.Table.TableID,
		Fids:          a.cfg.Table.Fids,
		Logger:        a.logger,
	})
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var store service.SnapshotStore
	if a.cfg.Cache.Addr != "" {
		redisStore, err := cache.NewRedisStore(ctx, cache.Options{
			Addr:     a.cfg.Cache.Addr,
			Password: a.cfg.Cache.Password,
			DB:       a.cfg.Cache.DB,
			TTL:      a.cfg.Cache.TTL,
		})
		if err != nil {
			a.logger.Warn("快照缓存不可用，直接访问远程平台", "addr", a.cfg.Cache.Addr, "error", err)
		} else {
			store = redisStore
			cleanup = func() {
				if err := redisStore.Close(); err != nil {
					a.logger.Warn("关闭Redis连接失败", "error", err)
				}
			}
		}
	}

	return service.NewTableService(tbl, store, a.logger), cleanup, nil
}
