// Package cache 实现两级 K 线缓存：有界内存层 + 每键一文件的磁盘层。
// 内存层是磁盘层的加速视图，磁盘层是被逐出数据的事实来源。
// 过期检查全部在读取路径上惰性完成，没有后台清理线程。
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"candlevault/internal/logger"
	"candlevault/internal/market"
)

// ErrDurableWrite 标记磁盘层写入失败。此时内存层可能已持有磁盘层没有的数据。
var ErrDurableWrite = errors.New("cache: durable write failed")

const (
	fileExt           = ".json"
	defaultTTLMinutes = 60
	defaultMaxEntries = 100
)

// Config 在构造期一次性给定，运行期不再变更。
type Config struct {
	// Dir 是磁盘层目录，空值用 data/cache。
	Dir string
	// MaxMemoryEntries 是内存层容量上限，<=0 用默认 100。
	MaxMemoryEntries int
	// TTLMinutes 按周期给定新鲜度窗口；nil 用各周期默认值，
	// 非 nil 时缺失的周期回退 60 分钟。0 是合法值，表示立即过期。
	TTLMinutes map[market.Interval]int
}

type memoryEntry struct {
	series     *market.Series
	insertedAt time.Time
}

// TieredCache 持有共享可变状态（内存层 map），单锁覆盖
// 读取-检查-回填与逐出-插入两个复合序列。
type TieredCache struct {
	dir        string
	maxEntries int
	ttl        map[market.Interval]int

	mu     sync.Mutex
	memory map[string]memoryEntry

	// 测试替换时钟用
	now func() time.Time
}

func New(cfg Config) (*TieredCache, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		dir = filepath.Join("data", "cache")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建缓存目录失败: %w", err)
	}
	maxEntries := cfg.MaxMemoryEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	c := &TieredCache{
		dir:        dir,
		maxEntries: maxEntries,
		ttl:        cfg.TTLMinutes,
		memory:     make(map[string]memoryEntry),
		now:        time.Now,
	}
	logger.Infof("[cache] 初始化 dir=%s 内存容量=%d", dir, maxEntries)
	return c, nil
}

// Key 生成确定性的缓存键：大写 symbol + 周期代码，经 PathEscape
// 保证可安全用作文件名且跨进程稳定、无碰撞。
func Key(symbol string, interval market.Interval) string {
	return url.PathEscape(strings.ToUpper(strings.TrimSpace(symbol))) + "_" + interval.String()
}

// Get 查询缓存。miss 用 (nil, false) 表达，永远不返回错误：
// 磁盘层的读取/反序列化失败一律当作 miss 处理并删除脏文件（自愈）。
// forceRefresh 为 true 时直接 miss，让调用方走一次新鲜拉取。
func (c *TieredCache) Get(symbol string, interval market.Interval, forceRefresh bool) (*market.Series, bool) {
	if forceRefresh {
		return nil, false
	}
	key := Key(symbol, interval)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.memory[key]; ok {
		if !c.expired(entry.insertedAt, interval) {
			logger.Debugf("[cache] 内存命中 %s", key)
			return entry.series.Clone(), true
		}
		delete(c.memory, key)
		logger.Debugf("[cache] 内存条目过期 %s", key)
	}

	series, ok := c.readFile(key, interval)
	if !ok {
		logger.Debugf("[cache] miss %s", key)
		return nil, false
	}
	// 磁盘命中回填内存层，算一次新写入，可能触发对其他键的逐出
	c.storeInMemory(key, series)
	logger.Debugf("[cache] 磁盘命中 %s", key)
	return series.Clone(), true
}

// Set 以 (symbol, interval) 为键覆盖写入两层。磁盘写入同步完成，
// 失败作为硬错误上抛且不自动重试。
func (c *TieredCache) Set(series *market.Series) error {
	if series == nil {
		return fmt.Errorf("cache: series 为空")
	}
	key := Key(series.Symbol, series.Interval)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.storeInMemory(key, series.Clone())
	if err := c.writeFile(key, series); err != nil {
		return err
	}
	logger.Debugf("[cache] 写入 %s 条数=%d", key, series.Len())
	return nil
}

// Invalidate 从两层删除条目，条目不存在时为 no-op。
func (c *TieredCache) Invalidate(symbol string, interval market.Interval) {
	key := Key(symbol, interval)

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.memory, key)
	if err := os.Remove(c.filePath(key)); err != nil && !os.IsNotExist(err) {
		logger.Warnf("[cache] 删除缓存文件 %s 失败: %v", key, err)
	}
	logger.Debugf("[cache] 失效 %s", key)
}

// Clear 清空内存层并删除磁盘层的全部条目文件。
func (c *TieredCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.memory = make(map[string]memoryEntry)
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	var firstErr error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	logger.Infof("[cache] 已清空全部缓存")
	return firstErr
}

// Stats 汇总两层的当前规模。
type Stats struct {
	MemoryEntries    int    `json:"memory_entries"`
	FileEntries      int    `json:"file_entries"`
	Dir              string `json:"dir"`
	MaxMemoryEntries int    `json:"max_memory_entries"`
}

func (c *TieredCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	fileCount := 0
	if entries, err := os.ReadDir(c.dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), fileExt) {
				fileCount++
			}
		}
	}
	return Stats{
		MemoryEntries:    len(c.memory),
		FileEntries:      fileCount,
		Dir:              c.dir,
		MaxMemoryEntries: c.maxEntries,
	}
}

// storeInMemory 需在持锁状态下调用。容量已满时逐出 insertedAt 最老的条目
// （严格按最后写入时间，读取不刷新新鲜度）。
func (c *TieredCache) storeInMemory(key string, series *market.Series) {
	if len(c.memory) >= c.maxEntries {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range c.memory {
			if oldestKey == "" || e.insertedAt.Before(oldestAt) {
				oldestKey = k
				oldestAt = e.insertedAt
			}
		}
		if oldestKey != "" {
			delete(c.memory, oldestKey)
			logger.Debugf("[cache] 内存层已满，逐出 %s", oldestKey)
		}
	}
	c.memory[key] = memoryEntry{series: series, insertedAt: c.now()}
}

func (c *TieredCache) readFile(key string, interval market.Interval) (*market.Series, bool) {
	path := c.filePath(key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.expired(info.ModTime(), interval) {
		_ = os.Remove(path)
		logger.Debugf("[cache] 磁盘条目过期 %s", key)
		return nil, false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warnf("[cache] 读缓存文件 %s 失败: %v，按 miss 处理", key, err)
		_ = os.Remove(path)
		return nil, false
	}
	var series market.Series
	if err := json.Unmarshal(raw, &series); err != nil {
		logger.Warnf("[cache] 缓存文件 %s 损坏: %v，已删除", key, err)
		_ = os.Remove(path)
		return nil, false
	}
	return &series, true
}

func (c *TieredCache) writeFile(key string, series *market.Series) error {
	raw, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("%w: 序列化 %s: %v", ErrDurableWrite, key, err)
	}
	if err := os.WriteFile(c.filePath(key), raw, 0o644); err != nil {
		return fmt.Errorf("%w: 写入 %s: %v", ErrDurableWrite, key, err)
	}
	return nil
}

func (c *TieredCache) filePath(key string) string {
	return filepath.Join(c.dir, key+fileExt)
}

func (c *TieredCache) ttlFor(interval market.Interval) time.Duration {
	minutes := defaultTTLMinutes
	if c.ttl == nil {
		minutes = interval.DefaultTTLMinutes()
	} else if v, ok := c.ttl[interval]; ok {
		minutes = v
	}
	return time.Duration(minutes) * time.Minute
}

func (c *TieredCache) expired(at time.Time, interval market.Interval) bool {
	return c.now().Sub(at) > c.ttlFor(interval)
}
