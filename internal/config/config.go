// Package config 负责加载 YAML 配置并套用默认值。
package config

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"candlevault/internal/market"
)

// Config 是进程级配置根节点。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Provider ProviderConfig `mapstructure:"provider"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
}

type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
	HTTPAddr string `mapstructure:"http_addr"`
}

type CacheConfig struct {
	Dir              string         `mapstructure:"dir"`
	MaxMemoryEntries int            `mapstructure:"max_memory_entries"`
	TTLMinutes       map[string]int `mapstructure:"ttl_minutes"`
}

type ProviderConfig struct {
	// Source 取值 sample / binance / rest
	Source        string   `mapstructure:"source"`
	BaseURL       string   `mapstructure:"base_url"`
	Symbols       []string `mapstructure:"symbols"`
	WarmIntervals []string `mapstructure:"warm_intervals"`
	FetchLimit    int      `mapstructure:"fetch_limit"`
	Strict        bool     `mapstructure:"strict"`
}

type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path 不能为空")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败 (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回不依赖配置文件的可运行默认配置。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8080"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = "data/cache"
	}
	if c.Cache.MaxMemoryEntries <= 0 {
		c.Cache.MaxMemoryEntries = 64
	}
	if c.Provider.Source == "" {
		c.Provider.Source = "sample"
	}
	if len(c.Provider.Symbols) == 0 {
		c.Provider.Symbols = []string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD"}
	}
	if len(c.Provider.WarmIntervals) == 0 {
		c.Provider.WarmIntervals = []string{"5m", "1h"}
	}
	if c.Provider.FetchLimit <= 0 {
		c.Provider.FetchLimit = 500
	}
	if c.Archive.Dir == "" {
		c.Archive.Dir = "data/archive"
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Provider.Source) {
	case "sample", "binance", "rest":
	default:
		return fmt.Errorf("不支持的数据源: %s", c.Provider.Source)
	}
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("不支持的日志级别: %s", c.App.LogLevel)
	}
	if _, err := c.CacheTTL(); err != nil {
		return err
	}
	if _, err := c.Intervals(); err != nil {
		return err
	}
	return nil
}

// CacheTTL 把配置里的周期字符串转换成强类型 TTL 表；表为空返回 nil，
// 由缓存层落回各周期默认值。
func (c *Config) CacheTTL() (map[market.Interval]int, error) {
	if len(c.Cache.TTLMinutes) == 0 {
		return nil, nil
	}
	out := make(map[market.Interval]int, len(c.Cache.TTLMinutes))
	for code, minutes := range c.Cache.TTLMinutes {
		iv, err := market.ParseInterval(code)
		if err != nil {
			return nil, fmt.Errorf("cache.ttl_minutes: %w", err)
		}
		if minutes < 0 {
			return nil, fmt.Errorf("cache.ttl_minutes[%s] 不能为负", code)
		}
		out[iv] = minutes
	}
	return out, nil
}

// Intervals 返回预热用的强类型周期列表。
func (c *Config) Intervals() ([]market.Interval, error) {
	out := make([]market.Interval, 0, len(c.Provider.WarmIntervals))
	for _, code := range c.Provider.WarmIntervals {
		iv, err := market.ParseInterval(code)
		if err != nil {
			return nil, fmt.Errorf("provider.warm_intervals: %w", err)
		}
		out = append(out, iv)
	}
	return out, nil
}
