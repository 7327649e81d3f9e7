package albion

import (
	"sort"
	"strings"

	"github.com/patrickmn/go-cache"
)

// PriceCache holds picked prices for the lifetime of the process.
//
// Keys are composed as endpoint|city|qualitySet|itemId where endpoint is the
// endpoint base URL, city the preferred city of the lookup and qualitySet the
// sorted comma separated qualities ("*" when unrestricted). Nothing expires;
// entries go away only through Invalidate.
type PriceCache struct {
	store *cache.Cache
}

// NewPriceCache creates an empty cache.
func NewPriceCache() *PriceCache {
	return &PriceCache{store: cache.New(cache.NoExpiration, 0)}
}

// CacheKey composes the key for one item lookup.
func CacheKey(endpoint Endpoint, city string, qualities []int, itemID string) string {
	return CacheKeyPrefix(endpoint, city) + qualitySetKey(qualities) + "|" + itemID
}

// CacheKeyPrefix is the key prefix shared by every entry of an endpoint and
// preferred city. An empty city gives the endpoint-wide prefix. Known cities
// are keyed by their canonical spelling.
func CacheKeyPrefix(endpoint Endpoint, city string) string {
	city = CanonicalCity(city)
	if city == "" {
		return endpoint.String() + "|"
	}
	return endpoint.String() + "|" + city + "|"
}

// HasPrefix is a predicate for Invalidate.
func HasPrefix(prefix string) func(string) bool {
	return func(key string) bool { return strings.HasPrefix(key, prefix) }
}

func qualitySetKey(qualities []int) string {
	if len(qualities) == 0 {
		return "*"
	}
	sorted := append([]int(nil), qualities...)
	sort.Ints(sorted)

	deduped := sorted[:0]
	for i, q := range sorted {
		if i > 0 && q == sorted[i-1] {
			continue
		}
		deduped = append(deduped, q)
	}
	return joinInts(deduped)
}

// Get returns the cached pick for key.
func (c *PriceCache) Get(key string) (PickedPrice, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return PickedPrice{}, false
	}
	p, ok := v.(PickedPrice)
	return p, ok
}

// Put stores a pick under key.
func (c *PriceCache) Put(key string, p PickedPrice) {
	c.store.Set(key, p, cache.NoExpiration)
}

// Invalidate removes every entry when pred is nil, otherwise only the keys
// pred matches. It returns how many entries were removed.
func (c *PriceCache) Invalidate(pred func(key string) bool) int {
	if pred == nil {
		n := c.store.ItemCount()
		c.store.Flush()
		return n
	}

	removed := 0
	for key := range c.store.Items() {
		if pred(key) {
			c.store.Delete(key)
			removed++
		}
	}
	return removed
}

// Len is the number of cached entries.
func (c *PriceCache) Len() int {
	return c.store.ItemCount()
}

// Keys lists the cached keys in sorted order.
func (c *PriceCache) Keys() []string {
	items := c.store.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
