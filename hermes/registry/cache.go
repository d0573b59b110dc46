// Package registry keeps a local, periodically refreshed snapshot of the
// Eureka registry and answers instance lookups from it.
package registry

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/SoftKiwiGames/hermes/hermes/ctxlog"
	"github.com/SoftKiwiGames/hermes/hermes/rest"
)

// Source fetches the full instance list, normally the rest.Client.
type Source interface {
	FetchAll(ctx context.Context) ([]rest.Instance, error)
}

type Cache struct {
	source   Source
	interval time.Duration
	upOnly   bool

	mu   sync.RWMutex
	apps map[string][]rest.Instance
}

// NewCache builds an empty cache. When upOnly is set, lookups only return
// instances whose status is UP.
func NewCache(source Source, interval time.Duration, upOnly bool) *Cache {
	return &Cache{
		source:   source,
		interval: interval,
		upOnly:   upOnly,
		apps:     make(map[string][]rest.Instance),
	}
}

// Refresh fetches the registry once and swaps the snapshot in atomically.
// On failure the previous snapshot is kept.
func (c *Cache) Refresh(ctx context.Context) error {
	instances, err := c.source.FetchAll(ctx)
	if err != nil {
		return err
	}

	grouped := groupByApp(instances)

	c.mu.Lock()
	c.apps = grouped
	c.mu.Unlock()

	return nil
}

// Run refreshes immediately, then keeps refreshing on the configured
// interval until the context is cancelled. Fetch failures are logged and
// the loop carries on with the last good snapshot.
func (c *Cache) Run(ctx context.Context) {
	log := ctxlog.FromContext(ctx)

	if err := c.Refresh(ctx); err != nil {
		log.Warn("failed to fetch registry", "error", err)
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				log.Warn("failed to fetch registry", "error", err)
			}
		}
	}
}

// Lookup returns a random healthy instance of the app, or nil when the app
// is unknown or has no eligible instances.
func (c *Cache) Lookup(app string) *rest.Instance {
	c.mu.RLock()
	instances := c.apps[app]
	c.mu.RUnlock()

	var eligible []rest.Instance
	for _, inst := range instances {
		if c.upOnly && inst.Status != rest.StatusUp {
			continue
		}
		eligible = append(eligible, inst)
	}
	if len(eligible) == 0 {
		return nil
	}

	picked := eligible[rand.Intn(len(eligible))]
	return &picked
}

// Apps returns the known app names, sorted.
func (c *Cache) Apps() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.apps))
	for name := range c.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the current registry grouped by app.
func (c *Cache) Snapshot() map[string][]rest.Instance {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]rest.Instance, len(c.apps))
	for app, instances := range c.apps {
		out[app] = append([]rest.Instance(nil), instances...)
	}
	return out
}

func groupByApp(instances []rest.Instance) map[string][]rest.Instance {
	grouped := make(map[string][]rest.Instance)
	for _, inst := range instances {
		grouped[inst.App] = append(grouped[inst.App], inst)
	}
	return grouped
}
