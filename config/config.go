/*
 * @module config/config
 * @description 服务配置加载，支持YAML文件与环境变量覆盖
 * @architecture 配置层
 * @stateFlow 默认配置 -> 文件配置 -> 环境变量覆盖 -> 验证
 * @rules 环境变量优先于配置文件；验证错误一次性汇总返回
 * @dependencies gopkg.in/yaml.v3, github.com/spf13/cast
 * @refs cmd/root.go
 */

package config

import (
	"errors"
	"fmt"
	"hstable-service/client"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "HS_"

// DefaultConfigPaths 未指定配置文件时依次尝试的路径
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

// Config 服务配置
type Config struct {
	HighSystems HighSystemsConfig `json:"highsystems" yaml:"highsystems"`
	Table       TableConfig       `json:"table" yaml:"table"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
	Cache       CacheConfig       `json:"cache" yaml:"cache"`
	Server      ServerConfig      `json:"server" yaml:"server"`
}

// HighSystemsConfig 远程平台连接配置
type HighSystemsConfig struct {
	Instance  string        `json:"instance" yaml:"instance"`
	BaseURL   string        `json:"base_url" yaml:"base_url"`
	UserToken string        `json:"user_token" yaml:"user_token"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

// TableConfig 代理的数据表
type TableConfig struct {
	ApplicationID string            `json:"application_id" yaml:"application_id"`
	TableID       string            `json:"table_id" yaml:"table_id"`
	Fids          map[string]string `json:"fids" yaml:"fids"` // 字段名 -> 字段ID
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// CacheConfig 快照缓存配置，Addr为空时不启用
type CacheConfig struct {
	Addr     string        `json:"addr" yaml:"addr"`
	Password string        `json:"password" yaml:"password"`
	DB       int           `json:"db" yaml:"db"`
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Port        int    `json:"port" yaml:"port"`
	BaseContext string `json:"base_context" yaml:"base_context"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		HighSystems: HighSystemsConfig{Timeout: client.DefaultTimeout},
		Table:       TableConfig{Fids: map[string]string{}},
		Logging:     LoggingConfig{Level: "info", Format: "json"},
		Cache:       CacheConfig{TTL: 10 * time.Minute},
		Server:      ServerConfig{Port: 8080},
	}
}

// Load 加载配置。path 为空时依次尝试默认路径，都不存在时只使用默认值与环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range DefaultConfigPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("不支持的配置文件格式: %s", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	if c.Table.Fids == nil {
		c.Table.Fids = map[string]string{}
	}
	return nil
}

// ApplyEnv 应用环境变量覆盖，lookup 通常为 os.LookupEnv
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, target *string) {
		if v, ok := lookup(key); ok && v != "" {
			*target = v
		}
	}

	str(EnvPrefix+"INSTANCE", &c.HighSystems.Instance)
	str(EnvPrefix+"BASE_URL", &c.HighSystems.BaseURL)
	str(EnvPrefix+"USER_TOKEN", &c.HighSystems.UserToken)
	str(EnvPrefix+"APPLICATION_ID", &c.Table.ApplicationID)
	str(EnvPrefix+"TABLE_ID", &c.Table.TableID)
	str(EnvPrefix+"LOG_LEVEL", &c.Logging.Level)
	str(EnvPrefix+"REDIS_ADDR", &c.Cache.Addr)
	str("BASE_CONTEXT", &c.Server.BaseContext)

	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok {
		if d, err := cast.ToDurationE(v); err == nil && d > 0 {
			c.HighSystems.Timeout = d
		}
	}
	if v, ok := lookup("LISTEN_PORT"); ok {
		if port, err := cast.ToIntE(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate 验证配置，返回所有错误
func (c *Config) Validate() error {
	var errs []error

	if c.HighSystems.Instance == "" && c.HighSystems.BaseURL == "" {
		errs = append(errs, errors.New("highsystems.instance 与 highsystems.base_url 不能同时为空"))
	}
	if c.Table.ApplicationID == "" {
		errs = append(errs, errors.New("table.application_id 不能为空"))
	}
	if c.Table.TableID == "" {
		errs = append(errs, errors.New("table.table_id 不能为空"))
	}
	for name, fid := range c.Table.Fids {
		if fid == "" {
			errs = append(errs, fmt.Errorf("table.fids.%s 的字段ID不能为空", name))
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("服务器端口无效: %d", c.Server.Port))
	}
	if c.Cache.DB < 0 {
		errs = append(errs, fmt.Errorf("cache.db 无效: %d", c.Cache.DB))
	}

	if len(errs) > 0 {
		return fmt.Errorf("配置验证失败: %w", errors.Join(errs...))
	}
	return nil
}

// ClientConfig 转换为HighSystems客户端配置
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		Instance:  c.HighSystems.Instance,
		BaseURL:   c.HighSystems.BaseURL,
		UserToken: c.HighSystems.UserToken,
		Timeout:   c.HighSystems.Timeout,
	}
}
