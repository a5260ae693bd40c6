package tmpl

import (
	"github.com/conneroisu/mixpaths/internal/cache"
	"github.com/conneroisu/mixpaths/internal/entry"
)

type cacheKey struct {
	src    string
	delims entry.Delimiters
}

// Cache holds the templates compiled during a pass. Entries sharing a source
// and delimiters share one compiled template.
type Cache struct {
	memo *cache.Memo[cacheKey, *Template]
}

// NewCache creates an empty template cache.
func NewCache() *Cache {
	return &Cache{memo: cache.New[cacheKey, *Template]()}
}

// Get returns the compiled template of e, reading its source on a miss.
func (c *Cache) Get(e entry.Entry) (*Template, error) {
	key := cacheKey{src: e.Src, delims: e.Options.Delimiters}

	return c.memo.GetOrCompute(key, func() (*Template, error) {
		return Compile(e.Src, e.Options.Delimiters)
	})
}

// InvalidateAll drops every compiled template.
func (c *Cache) InvalidateAll() {
	c.memo.InvalidateAll()
}

// Stats returns the hit/miss counters of the cache.
func (c *Cache) Stats() cache.Stats {
	return c.memo.Stats()
}
