package modules

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// CatalogEntry is the built-in definition of a module
type CatalogEntry struct {
	Name        string    `yaml:"name"`
	DisplayName string    `yaml:"display_name"`
	Description string    `yaml:"description"`
	Category    string    `yaml:"category"`
	Icon        string    `yaml:"icon"`
	Pages       []PageDef `yaml:"pages"`
}

type catalogFile struct {
	Modules []CatalogEntry `yaml:"modules"`
}

// Catalog holds the default metadata and page sets keyed by module name.
// It is safe for concurrent use and can be swapped at runtime by a
// CatalogWatcher.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]CatalogEntry
}

// DefaultCatalog returns the catalog bundled with the binary
func DefaultCatalog() *Catalog {
	entries, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("modules: invalid embedded catalog: %v", err))
	}
	return &Catalog{entries: entries}
}

// LoadCatalog returns the bundled catalog with the entries of the YAML
// file at path layered on top. Entries in the file replace bundled entries
// of the same name.
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}
	if err := c.Reload(path); err != nil {
		return nil, err
	}
	return c, nil
}

// ParseCatalog decodes and validates a catalog document
func ParseCatalog(data []byte) (map[string]CatalogEntry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	entries := make(map[string]CatalogEntry, len(file.Modules))
	for _, e := range file.Modules {
		if !namePattern.MatchString(e.Name) {
			return nil, fmt.Errorf("invalid module name %q in catalog", e.Name)
		}
		if _, dup := entries[e.Name]; dup {
			return nil, fmt.Errorf("module %q listed twice in catalog", e.Name)
		}
		pages, err := normalizePages(e.Name, e.Pages)
		if err != nil {
			return nil, err
		}
		e.Pages = pages
		entries[e.Name] = e
	}
	return entries, nil
}

// Reload re-reads the override file at path and merges it over the
// bundled entries. The catalog is left untouched when the file is invalid.
func (c *Catalog) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	overrides, err := ParseCatalog(data)
	if err != nil {
		return err
	}

	merged, _ := ParseCatalog(defaultCatalog)
	for name, e := range overrides {
		merged[name] = e
	}

	c.mu.Lock()
	c.entries = merged
	c.mu.Unlock()
	return nil
}

// Lookup returns the entry for name
func (c *Catalog) Lookup(name string) (CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return CatalogEntry{}, false
	}
	e.Pages = append([]PageDef(nil), e.Pages...)
	return e, true
}

// DefaultPages returns the default page set for name, or nil when the
// catalog does not know the module
func (c *Catalog) DefaultPages(name string) []PageDef {
	e, ok := c.Lookup(name)
	if !ok {
		return nil
	}
	return e.Pages
}

// Names lists the catalog's module names in order
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalizePages validates defs and fills in route paths
func normalizePages(module string, defs []PageDef) ([]PageDef, error) {
	seen := make(map[string]bool, len(defs))
	out := make([]PageDef, 0, len(defs))
	for _, d := range defs {
		if !namePattern.MatchString(d.Name) {
			return nil, fmt.Errorf("invalid page name %q for module %s", d.Name, module)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("page %q listed twice for module %s", d.Name, module)
		}
		seen[d.Name] = true

		if d.DisplayName == "" {
			d.DisplayName = d.Name
		}
		if d.RoutePath == "" {
			d.RoutePath = "/" + module + "/" + d.Name
		}
		out = append(out, d)
	}
	return out, nil
}
