package albion

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"
)

const (
	// DefaultChunkSize keeps the id list inside the upstream URL and row limits.
	DefaultChunkSize = 150

	defaultCourtesyMin = 150 * time.Millisecond
	defaultCourtesyMax = 350 * time.Millisecond
)

// PickedPrice is the resolver's verdict for one item. CityUsed is empty when
// no usable price existed, and Price is 0 in that case.
type PickedPrice struct {
	Price       float64 `json:"price"`
	CityUsed    string  `json:"city_used,omitempty"`
	QualityUsed *int    `json:"quality_used,omitempty"`
}

// HasPrice reports whether a usable quote was found.
func (p PickedPrice) HasPrice() bool {
	return p.CityUsed != ""
}

// BulkPrices is the result of one FetchBulkPrices call.
type BulkPrices struct {
	Prices map[string]float64     `json:"prices"`
	Picked map[string]PickedPrice `json:"picked"`
}

func newBulkPrices(capacity int) *BulkPrices {
	return &BulkPrices{
		Prices: make(map[string]float64, capacity),
		Picked: make(map[string]PickedPrice, capacity),
	}
}

func (b *BulkPrices) put(id string, p PickedPrice) {
	b.Prices[id] = p.Price
	b.Picked[id] = p
}

// FetchOptions narrows a lookup.
type FetchOptions struct {
	// Qualities restricts rows that carry a quality; rows without one pass.
	Qualities []int
}

// Resolver resolves bulk item prices with a chunked, cached, sequential
// lookup. It is safe for concurrent use; lookups that miss the cache are
// serialized so chunk results land in the cache in request order.
type Resolver struct {
	client      *PriceClient
	cache       *PriceCache
	chunkSize   int
	courtesyMin time.Duration
	courtesyMax time.Duration
	logger      *log.Logger

	onChunk func(done, total int)
	onRows  func(rows []PriceRow)

	pause func(ctx context.Context, d time.Duration) error
	sem   chan struct{}
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithChunkSize sets how many ids go into one request.
func WithChunkSize(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// WithCourtesyDelay sets the random pause range between chunk requests.
func WithCourtesyDelay(min, max time.Duration) ResolverOption {
	return func(r *Resolver) {
		if max < min {
			max = min
		}
		r.courtesyMin, r.courtesyMax = min, max
	}
}

// WithLogger replaces the default [Resolver] logger.
func WithLogger(l *log.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithChunkHook is called after every chunk, successful or not.
func WithChunkHook(fn func(done, total int)) ResolverOption {
	return func(r *Resolver) { r.onChunk = fn }
}

// WithRowsHook receives the normalized rows of every successful chunk before
// the quality filter is applied.
func WithRowsHook(fn func(rows []PriceRow)) ResolverOption {
	return func(r *Resolver) { r.onRows = fn }
}

// NewResolver wires a client and a cache. A nil cache gets a fresh one.
func NewResolver(client *PriceClient, cache *PriceCache, opts ...ResolverOption) *Resolver {
	if cache == nil {
		cache = NewPriceCache()
	}
	r := &Resolver{
		client:      client,
		cache:       cache,
		chunkSize:   DefaultChunkSize,
		courtesyMin: defaultCourtesyMin,
		courtesyMax: defaultCourtesyMax,
		logger:      log.New(os.Stderr, "[Resolver] ", log.LstdFlags),
		pause:       sleepContext,
		sem:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache exposes the resolver's cache.
func (r *Resolver) Cache() *PriceCache {
	return r.cache
}

// Invalidate drops cached picks; see PriceCache.Invalidate.
func (r *Resolver) Invalidate(pred func(key string) bool) int {
	n := r.cache.Invalidate(pred)
	r.logger.Printf("cache invalidated: %d entries removed", n)
	return n
}

// FetchBulkPrices returns one picked price per distinct id. Ids in chunks that
// failed after retries come back as {0, ""} and are not cached. Only
// cancellation of ctx aborts the whole call.
func (r *Resolver) FetchBulkPrices(ctx context.Context, endpoint Endpoint, preferredCity string, itemIDs []string, opts FetchOptions) (*BulkPrices, error) {
	preferredCity = CanonicalCity(preferredCity)
	ids := dedupe(itemIDs)
	out := newBulkPrices(len(ids))

	misses := r.partition(ids, endpoint, preferredCity, opts, out)
	if len(misses) == 0 {
		return out, nil
	}

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.sem }()

	// another caller may have filled these while we waited
	misses = r.partition(misses, endpoint, preferredCity, opts, out)
	if len(misses) == 0 {
		return out, nil
	}

	cities := cityQueryList(preferredCity)
	chunks := chunkIDs(misses, r.chunkSize)
	failed := 0

	for i, chunk := range chunks {
		raw, err := r.client.fetchChunk(ctx, endpoint, chunk, cities, preferredCity, opts.Qualities)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			failed++
			r.logger.Printf("❌ chunk %d/%d (%d ids) failed: %v", i+1, len(chunks), len(chunk), err)
			for _, id := range chunk {
				out.put(id, PickedPrice{})
			}
		} else {
			rows := raw.rows(preferredCity)
			if r.onRows != nil {
				r.onRows(rows)
			}
			rows = filterByQuality(rows, opts.Qualities)

			grouped := groupByItem(rows)
			for _, id := range chunk {
				picked := PickPrice(grouped[id], preferredCity)
				r.cache.Put(CacheKey(endpoint, preferredCity, opts.Qualities, id), picked)
				out.put(id, picked)
			}
		}

		if r.onChunk != nil {
			r.onChunk(i+1, len(chunks))
		}

		if i < len(chunks)-1 {
			if err := r.pause(ctx, r.courtesyDelay()); err != nil {
				return nil, err
			}
		}
	}

	if failed > 0 {
		r.logger.Printf("⚠️  %d/%d chunks unresolved for %s (%s)", failed, len(chunks), endpoint, preferredCity)
	} else {
		r.logger.Printf("✓ resolved %d ids in %d chunks from %s (%s)", len(misses), len(chunks), endpoint, preferredCity)
	}
	return out, nil
}

// partition fills out with cache hits and returns the ids still missing.
func (r *Resolver) partition(ids []string, endpoint Endpoint, city string, opts FetchOptions, out *BulkPrices) []string {
	var misses []string
	for _, id := range ids {
		if p, ok := r.cache.Get(CacheKey(endpoint, city, opts.Qualities, id)); ok {
			out.put(id, p)
			continue
		}
		misses = append(misses, id)
	}
	return misses
}

func (r *Resolver) courtesyDelay() time.Duration {
	spread := r.courtesyMax - r.courtesyMin
	if spread <= 0 {
		return r.courtesyMin
	}
	return r.courtesyMin + time.Duration(rand.Int63n(int64(spread)))
}

// PickPrice applies the selection rule to the rows of a single item:
// the cheapest positive quote in preferredCity, else the cheapest positive
// quote anywhere, else no price.
func PickPrice(rows []PriceRow, preferredCity string) PickedPrice {
	var best *PriceRow
	for i := range rows {
		row := &rows[i]
		if !usable(row) || !strings.EqualFold(row.City, preferredCity) {
			continue
		}
		if best == nil || row.SellPriceMin < best.SellPriceMin {
			best = row
		}
	}

	if best == nil {
		for i := range rows {
			row := &rows[i]
			if !usable(row) {
				continue
			}
			if best == nil || row.SellPriceMin < best.SellPriceMin {
				best = row
			}
		}
	}

	if best == nil {
		return PickedPrice{}
	}
	return PickedPrice{
		Price:       best.SellPriceMin,
		CityUsed:    best.City,
		QualityUsed: best.Quality,
	}
}

// a quote without a city cannot be reported as picked
func usable(row *PriceRow) bool {
	return row.SellPriceMin > 0 && row.City != ""
}

func filterByQuality(rows []PriceRow, qualities []int) []PriceRow {
	if len(qualities) == 0 {
		return rows
	}
	allowed := make(map[int]bool, len(qualities))
	for _, q := range qualities {
		allowed[q] = true
	}

	out := rows[:0:0]
	for _, row := range rows {
		if row.Quality != nil && !allowed[*row.Quality] {
			continue
		}
		out = append(out, row)
	}
	return out
}

func groupByItem(rows []PriceRow) map[string][]PriceRow {
	grouped := make(map[string][]PriceRow)
	for _, row := range rows {
		grouped[row.ItemID] = append(grouped[row.ItemID], row)
	}
	return grouped
}

// cityQueryList is the preferred city first, then every other known city.
func cityQueryList(preferred string) []string {
	cities := make([]string, 0, len(Cities)+1)
	if preferred != "" {
		cities = append(cities, preferred)
	}
	for _, c := range Cities {
		if strings.EqualFold(c, preferred) {
			continue
		}
		cities = append(cities, c)
	}
	return cities
}

func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
