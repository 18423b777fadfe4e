package matching

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/arbminer/arbminer/internal/domain"
)

const defaultCacheSize = 512

// MatchCache holds per-run lookup caches so repeated identifiers and
// queries inside one run never hit the network twice. It lives for
// the duration of a run and is never persisted.
type MatchCache struct {
	identifier *lru.Cache[string, []domain.Listing]
	keyword    *lru.Cache[string, []domain.Listing]
}

// NewMatchCache creates a cache with the given capacity per lookup
// kind. size <= 0 uses a sensible default.
func NewMatchCache(size int) *MatchCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	identifier, _ := lru.New[string, []domain.Listing](size)
	keyword, _ := lru.New[string, []domain.Listing](size)
	return &MatchCache{identifier: identifier, keyword: keyword}
}

func (c *MatchCache) getIdentifier(key string) ([]domain.Listing, bool) {
	if c == nil {
		return nil, false
	}
	return c.identifier.Get(key)
}

func (c *MatchCache) putIdentifier(key string, listings []domain.Listing) {
	if c == nil {
		return
	}
	c.identifier.Add(key, listings)
}

func (c *MatchCache) getKeyword(key string) ([]domain.Listing, bool) {
	if c == nil {
		return nil, false
	}
	return c.keyword.Get(key)
}

func (c *MatchCache) putKeyword(key string, listings []domain.Listing) {
	if c == nil {
		return
	}
	c.keyword.Add(key, listings)
}
