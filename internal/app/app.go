// Package app 负责应用级编排：初始化依赖→预热缓存→启动 HTTP 服务。
package app

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"candlevault/internal/archive"
	"candlevault/internal/cache"
	"candlevault/internal/config"
	"candlevault/internal/logger"
	"candlevault/internal/provider"
	"candlevault/internal/service"
	apihttp "candlevault/internal/transport/http"
)

type App struct {
	cfg     *config.Config
	market  *service.MarketData
	server  *apihttp.Server
	archive *archive.Store // 可为 nil
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	ttl, err := cfg.CacheTTL()
	if err != nil {
		return nil, err
	}
	tiered, err := cache.New(cache.Config{
		Dir:              cfg.Cache.Dir,
		MaxMemoryEntries: cfg.Cache.MaxMemoryEntries,
		TTLMinutes:       ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化缓存失败: %w", err)
	}

	src, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	var store *archive.Store
	var archiver service.Archiver
	if cfg.Archive.Enabled {
		store, err = archive.NewStore(cfg.Archive.Dir)
		if err != nil {
			return nil, fmt.Errorf("初始化归档失败: %w", err)
		}
		archiver = store
	}

	market := service.NewMarketData(tiered, src, archiver, service.Options{
		FetchLimit: cfg.Provider.FetchLimit,
		Strict:     cfg.Provider.Strict,
	})

	server, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:   cfg.App.HTTPAddr,
		Market: market,
	})
	if err != nil {
		return nil, err
	}

	return &App{cfg: cfg, market: market, server: server, archive: store}, nil
}

func buildProvider(cfg *config.Config) (provider.Provider, error) {
	switch strings.ToLower(cfg.Provider.Source) {
	case "sample":
		return provider.NewSampleProvider(0), nil
	case "binance":
		return provider.NewBinanceProvider(cfg.Provider.BaseURL), nil
	case "rest":
		return provider.NewRESTProvider(cfg.Provider.BaseURL), nil
	default:
		return nil, fmt.Errorf("不支持的数据源: %s", cfg.Provider.Source)
	}
}

// Run 预热缓存并启动 HTTP 服务，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.archive != nil {
		defer a.archive.Close()
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Infof("HTTP 服务监听 %s", a.server.Addr())
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		intervals, err := a.cfg.Intervals()
		if err != nil {
			return err
		}
		// 预热失败不拖垮进程，首个请求会再回源
		if err := a.market.Warmup(ctx, a.cfg.Provider.Symbols, intervals); err != nil {
			logger.Warnf("缓存预热未全部完成: %v", err)
		}
		return nil
	})

	return group.Wait()
}

// Market 暴露底层服务实例，测试与脚本用。
func (a *App) Market() *service.MarketData {
	if a == nil {
		return nil
	}
	return a.market
}
