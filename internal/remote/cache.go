// Package remote es la primitiva con la que las vistas obtienen datos de la
// API: cache por key con vencimiento, una sola request en vuelo por Query,
// cancelación y descarte de resultados viejos.
package remote

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/partnerportal/internal/metrics"
)

// DefaultCacheDuration es la validez de una entrada si el Query no indica otra.
const DefaultCacheDuration = 5 * time.Minute

// Entry es un valor cacheado con su momento de guardado.
type Entry struct {
	Value    any
	StoredAt time.Time
}

// Valid: la entrada sirve mientras now - StoredAt < maxAge.
func (e Entry) Valid(now time.Time, maxAge time.Duration) bool {
	return now.Sub(e.StoredAt) < maxAge
}

// CacheOptions para NewCache. Todo opcional.
type CacheOptions struct {
	// Now inyectable para tests; nil => time.Now.
	Now     func() time.Time
	Metrics *metrics.Metrics
}

// Cache es el store de entradas compartido por los Query de un proceso.
// Se construye explícitamente y se inyecta: no hay instancia global.
// Las entradas no expiran solas; la validez se evalúa en cada Get contra
// el maxAge del llamador.
type Cache struct {
	c       *gocache.Cache
	now     func() time.Time
	metrics *metrics.Metrics
}

func NewCache(o CacheOptions) *Cache {
	now := o.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		c:       gocache.New(gocache.NoExpiration, 0),
		now:     now,
		metrics: o.Metrics,
	}
}

// Get devuelve la entrada si existe y sigue válida para maxAge.
func (c *Cache) Get(key string, maxAge time.Duration) (Entry, bool) {
	v, ok := c.c.Get(key)
	if !ok {
		c.metrics.CacheLookup("miss")
		return Entry{}, false
	}
	e, ok := v.(Entry)
	if !ok || !e.Valid(c.now(), maxAge) {
		c.metrics.CacheLookup("stale")
		return Entry{}, false
	}
	c.metrics.CacheLookup("hit")
	return e, true
}

// Set guarda v con StoredAt = now.
func (c *Cache) Set(key string, v any) {
	c.c.Set(key, Entry{Value: v, StoredAt: c.now()}, gocache.NoExpiration)
}

func (c *Cache) Delete(key string) { c.c.Delete(key) }

// Purge borra todo (logout).
func (c *Cache) Purge() { c.c.Flush() }

func (c *Cache) Len() int { return c.c.ItemCount() }
