// Package catalog loads authored learning units from YAML files.
package catalog

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-tracker/internal/unit"
)

// Catalog holds the authored units indexed by document key.
type Catalog struct {
	rootDir string
	units   map[string]unit.Unit
	mu      sync.RWMutex
}

// New loads every unit under rootDir. A missing directory yields an empty
// catalog.
func New(rootDir string) (*Catalog, error) {
	c := &Catalog{
		rootDir: rootDir,
		units:   make(map[string]unit.Unit),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the unit stored under a document key.
func (c *Catalog) Get(key string) (unit.Unit, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.units[key]
	return u, ok
}

// Lookup returns the unit of the given kind at ref.
func (c *Catalog) Lookup(kind unit.Kind, ref unit.Ref) (unit.Unit, bool) {
	return c.Get(ref.DocumentKey(kind))
}

// All returns every unit ordered by key.
func (c *Catalog) All() []unit.Unit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]unit.Unit, 0, len(c.units))
	for _, u := range c.units {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b unit.Unit) int {
		return strings.Compare(a.Key(), b.Key())
	})
	return out
}

// Len returns the number of loaded units.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.units)
}

// Reload rereads the catalog directory and replaces the loaded set.
func (c *Catalog) Reload() error {
	units := make(map[string]unit.Unit)

	if _, err := os.Stat(c.rootDir); err != nil {
		if os.IsNotExist(err) {
			slog.Warn("catalog directory not found", "path", c.rootDir)
			c.swap(units)
			return nil
		}
		return fmt.Errorf("loading catalog: %w", err)
	}

	err := filepath.WalkDir(c.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
			return nil
		}

		u, err := loadUnit(path)
		if err != nil {
			slog.Warn("skipping invalid unit file", "path", path, "error", err)
			return nil
		}
		if prev, dup := units[u.Key()]; dup {
			slog.Warn("duplicate unit key in catalog", "key", u.Key(), "path", path, "kept", prev.Title)
			return nil
		}
		units[u.Key()] = u
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	c.swap(units)
	slog.Info("catalog loaded", "path", c.rootDir, "units", len(units))
	return nil
}

func (c *Catalog) swap(units map[string]unit.Unit) {
	c.mu.Lock()
	c.units = units
	c.mu.Unlock()
}

func loadUnit(path string) (unit.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return unit.Unit{}, err
	}

	var u unit.Unit
	if err := yaml.Unmarshal(data, &u); err != nil {
		return unit.Unit{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := unit.ValidateSchema(u); err != nil {
		return unit.Unit{}, err
	}
	return u, nil
}
