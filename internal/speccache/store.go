// File path: internal/speccache/store.go
package speccache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gridline-eng/permitpack/internal/bom"
	"github.com/gridline-eng/permitpack/internal/common"
	"github.com/gridline-eng/permitpack/internal/common/telemetry"
	"github.com/gridline-eng/permitpack/internal/discovery"
	"github.com/gridline-eng/permitpack/internal/sqlite"
)

// Cache is the fallback spec store consulted when live discovery finds
// nothing. Entries are keyed by the normalized manufacturer and part number
// and never expire; a fresh accept for the same identity overwrites.
type Cache struct {
	catalog *sqlite.Store
	hot     *lruCache
}

// New wraps the catalog with an in-memory LRU front. Size comes from
// PERMITPACK_CACHE_LRU_SIZE when set.
func New(catalog *sqlite.Store) (*Cache, error) {
	size := 256
	if raw := strings.TrimSpace(os.Getenv("PERMITPACK_CACHE_LRU_SIZE")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse PERMITPACK_CACHE_LRU_SIZE: %w", err)
		}
		if value > 0 {
			size = value
		}
	}
	return &Cache{catalog: catalog, hot: newLRUCache(size)}, nil
}

// Get returns the cached spec for an identity. The returned spec carries
// SourceCache so reports can distinguish cache fills from live resolutions.
func (c *Cache) Get(ctx context.Context, identity bom.Identity) (discovery.ValidatedSpec, bool, error) {
	if c == nil {
		return discovery.ValidatedSpec{}, false, nil
	}
	key := identity.Key()
	if spec, ok := c.hot.Get(key); ok {
		telemetry.RecordCacheLookup(true)
		return spec, true, nil
	}
	if c.catalog == nil {
		telemetry.RecordCacheLookup(false)
		return discovery.ValidatedSpec{}, false, nil
	}
	row, err := c.catalog.SpecForIdentity(ctx, identity.Manufacturer, identity.PartNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			telemetry.RecordCacheLookup(false)
			return discovery.ValidatedSpec{}, false, nil
		}
		return discovery.ValidatedSpec{}, false, fmt.Errorf("spec cache lookup: %w", err)
	}
	spec := discovery.ValidatedSpec{
		Identity:    identity,
		URL:         row.URL,
		Title:       row.Title,
		Confidence:  row.Confidence,
		Pages:       row.Pages,
		Source:      discovery.SourceCache,
		ValidatedAt: row.UpdatedAt,
	}
	c.hot.Set(key, spec)
	telemetry.RecordCacheLookup(true)
	return spec, true, nil
}

// Put records a freshly validated spec. Only live accepts reach here: cache
// fills are never written back, which keeps repeated runs idempotent.
func (c *Cache) Put(ctx context.Context, spec discovery.ValidatedSpec) error {
	if c == nil {
		return nil
	}
	if spec.Source != discovery.SourceLive {
		return nil
	}
	if strings.TrimSpace(spec.URL) == "" {
		return errors.New("spec url required")
	}
	identity := spec.Identity
	if c.catalog != nil {
		err := c.catalog.UpsertSpec(ctx, sqlite.SpecCacheRow{
			Manufacturer: identity.Manufacturer,
			PartNumber:   identity.PartNumber,
			URL:          spec.URL,
			Title:        spec.Title,
			Confidence:   spec.Confidence,
			Pages:        spec.Pages,
		})
		if err != nil {
			return fmt.Errorf("persist spec cache entry: %w", err)
		}
	}
	cached := spec
	cached.Source = discovery.SourceCache
	c.hot.Set(identity.Key(), cached)
	common.Logger().Debug("speccache: entry stored", "identity", identity.Key(), "url", spec.URL)
	return nil
}

// Len reports the number of persisted identities.
func (c *Cache) Len(ctx context.Context) (int, error) {
	if c == nil || c.catalog == nil {
		return 0, nil
	}
	return c.catalog.SpecCount(ctx)
}

// Purge drops the in-memory front. Persisted entries are unaffected.
func (c *Cache) Purge() {
	if c == nil {
		return
	}
	c.hot.Purge()
}
