package source

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// ImageCacher は、画像をキャッシュするためのインターフェースです。
type ImageCacher interface {
	// Get は、指定されたキーに紐づくアイテムを取得します。
	Get(key string) (any, bool)
	// Set は、指定されたキーと値、有効期限でアイテムを保存します。
	Set(key string, value any, d time.Duration)
}

// MemoryCache は件数上限付きの LRU に有効期限を組み合わせたキャッシュです。
type MemoryCache struct {
	cache *lru.Cache
	mu    sync.Mutex
	now   func() time.Time
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// NewMemoryCache は最大 maxEntries 件を保持する MemoryCache を生成します。
func NewMemoryCache(maxEntries int) (*MemoryCache, error) {
	cache, err := lru.New(maxEntries)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{cache: cache, now: time.Now}, nil
}

func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	val, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	entry := val.(cacheEntry)
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		c.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Set は値を保存します。d が 0 以下なら期限なしで保持します。
func (c *MemoryCache) Set(key string, value any, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := cacheEntry{value: value}
	if d > 0 {
		entry.expiresAt = c.now().Add(d)
	}
	c.cache.Add(key, entry)
}
