package catalog

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// LimitEntry holds the four ceilings for one model. All four must be
// positive; a zero ceiling would deny every request.
type LimitEntry struct {
	// RequestsPerMinute caps completed requests in the minute window.
	RequestsPerMinute int64 `yaml:"requests_per_minute"`

	// RequestsPerDay caps completed requests in the day window.
	RequestsPerDay int64 `yaml:"requests_per_day"`

	// TokensPerMinute caps token consumption in the minute window.
	TokensPerMinute int64 `yaml:"tokens_per_minute"`

	// TokensPerDay caps token consumption in the day window.
	TokensPerDay int64 `yaml:"tokens_per_day"`
}

// Validate checks that all four ceilings are positive.
func (e LimitEntry) Validate() error {
	if e.RequestsPerMinute <= 0 {
		return fmt.Errorf("%w: requests_per_minute must be positive", ErrInvalidEntry)
	}
	if e.RequestsPerDay <= 0 {
		return fmt.Errorf("%w: requests_per_day must be positive", ErrInvalidEntry)
	}
	if e.TokensPerMinute <= 0 {
		return fmt.Errorf("%w: tokens_per_minute must be positive", ErrInvalidEntry)
	}
	if e.TokensPerDay <= 0 {
		return fmt.Errorf("%w: tokens_per_day must be positive", ErrInvalidEntry)
	}
	return nil
}

// DefaultEntry is the entry applied to model ids the catalog does not know.
// The values are deliberately conservative so an unknown model cannot burn
// through a day's quota before anyone notices the configuration miss.
var DefaultEntry = LimitEntry{
	RequestsPerMinute: 30,
	RequestsPerDay:    14400,
	TokensPerMinute:   6000,
	TokensPerDay:      500000,
}

// builtinEntries is the catalog shipped with the binary, used when no
// catalog file is configured.
var builtinEntries = map[string]LimitEntry{
	"gemini-2.0-flash": {
		RequestsPerMinute: 30,
		RequestsPerDay:    14400,
		TokensPerMinute:   1000000,
		TokensPerDay:      8000000,
	},
	"gemini-2.0-flash-lite": {
		RequestsPerMinute: 60,
		RequestsPerDay:    28800,
		TokensPerMinute:   1000000,
		TokensPerDay:      8000000,
	},
	"gemini-2.5-pro": {
		RequestsPerMinute: 10,
		RequestsPerDay:    2000,
		TokensPerMinute:   250000,
		TokensPerDay:      2000000,
	},
}

// Catalog maps model ids to their limit entries. Lookup is deterministic
// and side-effect-free; the table can be replaced atomically at runtime,
// which is how live reload works.
type Catalog struct {
	mu           sync.RWMutex
	entries      map[string]LimitEntry
	defaultEntry LimitEntry
}

// New creates a catalog from the given table and default entry.
// Every entry, including the default, is validated.
func New(entries map[string]LimitEntry, defaultEntry LimitEntry) (*Catalog, error) {
	if err := defaultEntry.Validate(); err != nil {
		return nil, fmt.Errorf("default entry: %w", err)
	}
	for id, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entry %q: %w", id, err)
		}
	}

	c := &Catalog{
		entries:      make(map[string]LimitEntry, len(entries)),
		defaultEntry: defaultEntry,
	}
	for id, e := range entries {
		c.entries[id] = e
	}
	return c, nil
}

// Default returns a catalog with the built-in table and default entry.
func Default() *Catalog {
	c, err := New(builtinEntries, DefaultEntry)
	if err != nil {
		// The built-in table is validated by tests; this cannot happen
		// at runtime.
		panic(err)
	}
	return c
}

// Lookup returns the entry for the given model id. If the id is unknown
// the default entry is returned with found=false; the caller decides how
// to surface the configuration miss (typically a log warning). Lookup
// never fails.
func (c *Catalog) Lookup(modelID string) (entry LimitEntry, found bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.entries[modelID]; ok {
		return e, true
	}
	return c.defaultEntry, false
}

// DefaultLimits returns the catalog's default entry.
func (c *Catalog) DefaultLimits() LimitEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultEntry
}

// Models returns the configured model ids in sorted order.
func (c *Catalog) Models() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Replace atomically swaps the catalog's table and default entry.
// The replacement is validated first; on error the current table is kept.
func (c *Catalog) Replace(entries map[string]LimitEntry, defaultEntry LimitEntry) error {
	replacement, err := New(entries, defaultEntry)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = replacement.entries
	c.defaultEntry = replacement.defaultEntry
	return nil
}

// File is the on-disk catalog document.
type File struct {
	// Default is the entry applied to unknown model ids.
	Default LimitEntry `yaml:"default"`

	// Models maps model ids to their limit entries.
	Models map[string]LimitEntry `yaml:"models"`
}

// LoadFile reads a catalog document from a YAML file. A missing default
// section falls back to DefaultEntry.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %q: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %q: %w", path, err)
	}

	if (f.Default == LimitEntry{}) {
		f.Default = DefaultEntry
	}

	return New(f.Models, f.Default)
}
