package collector

import (
	"sort"
	"sync"

	"github.com/navid-fn/radar-history/internal/models"
)

// sampleCache holds under-threshold batches per symbol until the job ends.
type sampleCache struct {
	mu      sync.Mutex
	batches map[string][][]models.Candle
}

func newSampleCache() *sampleCache {
	return &sampleCache{batches: make(map[string][][]models.Candle)}
}

func (c *sampleCache) add(symbol string, batch []models.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches[symbol] = append(c.batches[symbol], batch)
}

func (c *sampleCache) remove(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.batches, symbol)
}

func (c *sampleCache) symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.batches))
	for s := range c.batches {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// merged concatenates every batch of symbol, sorted and deduplicated by date.
func (c *sampleCache) merged(symbol string) []models.Candle {
	c.mu.Lock()
	defer c.mu.Unlock()
	var all []models.Candle
	for _, b := range c.batches[symbol] {
		all = append(all, b...)
	}
	return SortCandles(all)
}
