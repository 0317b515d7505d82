// Package cache 提供搜索结果的进程内缓存。
//
// 精确匹配键（查询文本 + 范围开关 + 结果上限），TTL 在查询时惰性
// 判定，容量满时按 createdAt 淘汰全局最旧的条目。只缓存完整组装
// 好的结果集，条目写入后只读，不做内容触发的失效。
package cache

import (
	"sync"
	"time"

	"mailsearch/backend/internal/domain"
)

// ResultCache 搜索结果缓存。
type ResultCache struct {
	mu      sync.RWMutex
	entries map[domain.CacheKey]*entry
	maxSize int
	ttl     time.Duration
}

type entry struct {
	records   []domain.EmailRecord
	createdAt time.Time
}

// NewResultCache 创建结果缓存。
//
// 参数:
//   - maxSize: 最大条目数
//   - ttl: 条目存活时间
func NewResultCache(maxSize int, ttl time.Duration) *ResultCache {
	return &ResultCache{
		entries: map[domain.CacheKey]*entry{},
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get 查询缓存。过期条目在此处惰性删除。
func (c *ResultCache) Get(key domain.CacheKey) ([]domain.EmailRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(e.createdAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.records, true
}

// Put 写入完整结果集。容量已满时先淘汰 createdAt 最小的条目。
func (c *ResultCache) Put(key domain.CacheKey, records []domain.EmailRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[key] = &entry{records: records, createdAt: time.Now()}
}

// Len 当前条目数。
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// PurgeExpired 清理所有过期条目，返回清理数量。由定时任务调用。
func (c *ResultCache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	purged := 0
	for key, e := range c.entries {
		if time.Since(e.createdAt) >= c.ttl {
			delete(c.entries, key)
			purged++
		}
	}
	return purged
}

func (c *ResultCache) evictOldestLocked() {
	var oldestKey domain.CacheKey
	var oldest time.Time
	first := true
	for key, e := range c.entries {
		if first || e.createdAt.Before(oldest) {
			oldestKey, oldest = key, e.createdAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
