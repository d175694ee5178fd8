// Package catalog is the default collaborators.ClassCatalog /
// collaborators.ServiceContainer implementation: explicit registration by
// name instead of reflective discovery. Callers register initializers and
// analyzers once, typically in an init() func of their own package.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/siteforge/pipeline/collaborators"
	"github.com/siteforge/pipeline/models"
)

// Catalog is a concurrency-safe registry of named initializers and
// analyzers. It implements both collaborators.ServiceContainer and
// collaborators.ClassCatalog.
type Catalog struct {
	mu           sync.RWMutex
	initializers map[string]collaborators.Initializer
	analyzers    map[string]models.Analyzer
}

// New creates an empty Catalog.
func New() *Catalog {
	return &Catalog{
		initializers: make(map[string]collaborators.Initializer),
		analyzers:    make(map[string]models.Analyzer),
	}
}

// RegisterInitializer adds an initializer under name. A later call with the
// same name replaces the earlier one.
func (c *Catalog) RegisterInitializer(name string, init collaborators.Initializer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initializers[name] = init
}

// RegisterAnalyzer adds an analyzer under name.
func (c *Catalog) RegisterAnalyzer(name string, analyzer models.Analyzer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analyzers[name] = analyzer
}

// Initializers returns every registered initializer in name order, for
// deterministic construction-time execution.
func (c *Catalog) Initializers() []collaborators.Initializer {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.initializers))
	for name := range c.initializers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]collaborators.Initializer, 0, len(names))
	for _, name := range names {
		out = append(out, c.initializers[name])
	}
	return out
}

// Analyzers returns every registered analyzer, in name order. It
// implements collaborators.ServiceContainer; use Select to narrow this set
// down to the names activated by the Analyzers configuration key.
func (c *Catalog) Analyzers() []models.Analyzer {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.analyzers))
	for name := range c.analyzers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.Analyzer, 0, len(names))
	for _, name := range names {
		out = append(out, c.analyzers[name])
	}
	return out
}

// Select returns the analyzers named in activate, in the order given.
// "All" activates every registered analyzer, matching the Analyzers
// configuration key's "All" entry.
func (c *Catalog) Select(activate []string) ([]models.Analyzer, error) {
	if len(activate) == 1 && activate[0] == "All" {
		return c.Analyzers(), nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Analyzer, 0, len(activate))
	for _, name := range activate {
		a, ok := c.analyzers[name]
		if !ok {
			return nil, fmt.Errorf("catalog: unknown analyzer %q", name)
		}
		out = append(out, a)
	}
	return out, nil
}

// Discover lists registered names for kind ("initializer" or "analyzer"),
// implementing collaborators.ClassCatalog without reflection.
func (c *Catalog) Discover(kind string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var names []string
	switch kind {
	case "initializer":
		for name := range c.initializers {
			names = append(names, name)
		}
	case "analyzer":
		for name := range c.analyzers {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
