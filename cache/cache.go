// Package cache 提供带容量上限与访问过期的泛型 LRU 缓存
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache 通用泛型缓存，超出容量时驱逐最久未使用的条目
type Cache[K comparable, V any] struct {
	name   string
	config Config

	items   map[K]*entry[K, V]
	lruList *list.List // 最近使用的在前

	mu    sync.Mutex
	stats Stats
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	accessedAt time.Time
	element    *list.Element
}

// Config 缓存配置
type Config struct {
	Name string

	// MaxSize 最大条目数，0 表示无限制
	MaxSize int

	// TTL 基于访问时间的过期时间，0 表示永不过期
	TTL time.Duration
}

// Stats 缓存统计信息
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// New 创建新的缓存实例
func New[K comparable, V any](config Config) *Cache[K, V] {
	if config.Name == "" {
		config.Name = "unnamed"
	}

	return &Cache[K, V]{
		name:    config.Name,
		config:  config,
		items:   make(map[K]*entry[K, V]),
		lruList: list.New(),
	}
}

// Name 返回缓存名称
func (c *Cache[K, V]) Name() string {
	return c.name
}

// Get 获取缓存值，过期条目视为未命中并被移除
func (c *Cache[K, V]) Get(key K) (value V, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.items[key]
	if !exists {
		c.stats.Misses++
		return value, false
	}

	if c.config.TTL > 0 && time.Since(e.accessedAt) >= c.config.TTL {
		c.removeLocked(e)
		c.stats.Misses++
		return value, false
	}

	e.accessedAt = time.Now()
	c.lruList.MoveToFront(e.element)
	c.stats.Hits++

	return e.value, true
}

// Set 设置缓存值
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if e, exists := c.items[key]; exists {
		e.value = value
		e.accessedAt = now
		c.lruList.MoveToFront(e.element)
		return
	}

	if c.config.MaxSize > 0 && len(c.items) >= c.config.MaxSize {
		if oldest := c.lruList.Back(); oldest != nil {
			c.removeLocked(oldest.Value.(*entry[K, V]))
			c.stats.Evictions++
		}
	}

	e := &entry[K, V]{key: key, value: value, accessedAt: now}
	e.element = c.lruList.PushFront(e)
	c.items[key] = e
}

// Delete 删除缓存条目，返回是否存在
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.items[key]
	if !exists {
		return false
	}
	c.removeLocked(e)
	return true
}

// Clear 清空所有缓存
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*entry[K, V])
	c.lruList = list.New()
}

// Stats 获取统计信息副本
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = len(c.items)
	return stats
}

// Size 获取当前条目数
func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[K, V]) removeLocked(e *entry[K, V]) {
	if e.element != nil {
		c.lruList.Remove(e.element)
	}
	delete(c.items, e.key)
}
