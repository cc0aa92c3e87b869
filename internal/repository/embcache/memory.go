package embcache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/snapvalue/snapvalue/internal/domain"
)

// MemoryCache is a bounded in-process embedding cache. The LRU bound keeps a
// long-running process from growing without limit as listings churn.
type MemoryCache struct {
	entries    *lru.Cache[string, [][]float32]
	fullCrops  domain.CropSet
	cacheTotal *prometheus.CounterVec
}

// NewMemory creates an in-memory cache holding up to capacity
// (key, crop-set) entries. fullCrops is the richest crop set the pipeline
// uses; single-fraction lookups that prefix it fall back to its entries.
// cacheTotal is a counter vec with label "result", may be nil.
func NewMemory(capacity int, fullCrops domain.CropSet, cacheTotal *prometheus.CounterVec) (*MemoryCache, error) {
	entries, err := lru.New[string, [][]float32](capacity)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{entries: entries, fullCrops: fullCrops, cacheTotal: cacheTotal}, nil
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string, crops domain.CropSet) ([][]float32, bool) {
	if vecs, ok := c.entries.Get(entryKey(key, crops)); ok {
		c.inc("hit")
		return vecs, true
	}

	if crops.PrefixOf(c.fullCrops) {
		if vecs, ok := c.entries.Get(entryKey(key, c.fullCrops)); ok && len(vecs) >= len(crops) {
			c.inc("hit_prefix")
			return vecs[:len(crops)], true
		}
	}

	c.inc("miss")
	return nil, false
}

// Put implements Cache.
func (c *MemoryCache) Put(_ context.Context, key string, crops domain.CropSet, vectors [][]float32) {
	if key == "" || len(vectors) == 0 {
		return
	}
	c.entries.Add(entryKey(key, crops), vectors)
}

func (c *MemoryCache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func entryKey(key string, crops domain.CropSet) string {
	return key + "|" + crops.Signature()
}
