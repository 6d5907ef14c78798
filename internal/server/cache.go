package server

import (
	"bytes"
	"html/template"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pageCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "countrysync_page_cache_hits_total",
		Help: "Summary page renders served from the cache.",
	})
	pageCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "countrysync_page_cache_misses_total",
		Help: "Summary page renders that ran goldmark.",
	})
)

// pageCache holds goldmark output keyed by its markdown source. The key is
// the content itself, so a changed store yields a different key and no entry
// can go stale.
type pageCache struct {
	lru *expirable.LRU[string, template.HTML]
}

func newPageCache(size int, ttl time.Duration) *pageCache {
	return &pageCache{lru: expirable.NewLRU[string, template.HTML](size, nil, ttl)}
}

// Render returns the HTML for source, converting it on a miss.
func (c *pageCache) Render(source string) (template.HTML, error) {
	if html, ok := c.lru.Get(source); ok {
		pageCacheHitsTotal.Inc()
		return html, nil
	}
	pageCacheMissesTotal.Inc()

	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	html := template.HTML(buf.String()) //nolint: gosec
	c.lru.Add(source, html)
	return html, nil
}
