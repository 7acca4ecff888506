package entity

import "time"

// CacheEntry is the value stored behind a fingerprint key in the Cache Layer.
type CacheEntry struct {
	Price     float64   `json:"price"`
	Source    Source    `json:"source"`
	Timestamp string    `json:"timestamp"`
	CachedAt  time.Time `json:"cachedAt"`
}

// NewCacheEntry stamps the current time as CachedAt.
func NewCacheEntry(price float64, source Source, timestamp string) *CacheEntry {
	return &CacheEntry{
		Price:     price,
		Source:    source,
		Timestamp: timestamp,
		CachedAt:  time.Now().UTC(),
	}
}
