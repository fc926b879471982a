// Package catalog loads the static market definitions: which markets exist,
// which resources each one lists, and every listing's base price and trend.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/rewired-gh/imperium/internal/models"
)

//go:embed markets.yaml
var builtin []byte

//go:embed catalog.schema.json
var schemaJSON []byte

const schemaURL = "catalog.schema.json"

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
})

// Catalog is an immutable, validated set of market definitions.
type Catalog struct {
	markets map[string]models.MarketDef
	order   []string
}

type file struct {
	Markets []models.MarketDef `yaml:"markets"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file. An empty path returns the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes catalog YAML, checks it against the catalog schema and
// validates the resulting definitions.
func Parse(raw []byte) (*Catalog, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(f.Markets)
}

// validateDocument round-trips the YAML tree through JSON so the schema sees
// plain JSON values.
func validateDocument(doc any) error {
	schema, err := compileSchema()
	if err != nil {
		return fmt.Errorf("catalog schema: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert catalog: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("failed to convert catalog: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	return nil
}

// New builds a catalog from definitions, rejecting duplicates and invalid listings.
func New(defs []models.MarketDef) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("catalog must define at least one market")
	}
	c := &Catalog{markets: make(map[string]models.MarketDef, len(defs))}
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("market %q: %w", def.ID, err)
		}
		if _, dup := c.markets[def.ID]; dup {
			return nil, fmt.Errorf("duplicate market %q", def.ID)
		}
		resources := make(map[string]models.ResourceListing, len(def.Resources))
		for id, l := range def.Resources {
			resources[id] = l
		}
		def.Resources = resources
		c.markets[def.ID] = def
		c.order = append(c.order, def.ID)
	}
	sort.Strings(c.order)
	return c, nil
}

// MarketIDs returns all market ids in sorted order.
func (c *Catalog) MarketIDs() []string {
	return append([]string(nil), c.order...)
}

// Market returns the definition of a market.
func (c *Catalog) Market(id string) (models.MarketDef, bool) {
	m, ok := c.markets[id]
	return m, ok
}

// Listing returns the listing of resource at market.
func (c *Catalog) Listing(marketID, resource string) (models.ResourceListing, bool) {
	m, ok := c.markets[marketID]
	if !ok {
		return models.ResourceListing{}, false
	}
	l, ok := m.Resources[resource]
	return l, ok
}

// ResourceIDs returns the resources listed at a market in sorted order.
func (c *Catalog) ResourceIDs(marketID string) []string {
	m, ok := c.markets[marketID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(m.Resources))
	for id := range m.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
