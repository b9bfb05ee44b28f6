package jobservice

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultInfoTTL      = time.Hour
	infoCleanupInterval = 10 * time.Minute
)

// infoCache keeps video info per source URL so repeated lookups skip the
// service.
type infoCache struct {
	cache *gocache.Cache
}

func newInfoCache(ttl time.Duration) *infoCache {
	if ttl <= 0 {
		ttl = DefaultInfoTTL
	}
	return &infoCache{cache: gocache.New(ttl, infoCleanupInterval)}
}

func (c *infoCache) get(url string) (*VideoInfo, bool) {
	if item, found := c.cache.Get(url); found {
		if info, ok := item.(*VideoInfo); ok {
			return info, true
		}
	}
	return nil, false
}

func (c *infoCache) set(url string, info *VideoInfo) {
	c.cache.Set(url, info, gocache.DefaultExpiration)
}
