package pricing

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/quoteflow-backend/internal/platform/logger"
)

//go:embed catalog.yaml
var catalogFS embed.FS

// CatalogItem is a priced line with a low/high band.
type CatalogItem struct {
	ItemKey     string  `yaml:"item_key" json:"item_key"`
	Name        string  `yaml:"name" json:"name"`
	DefaultSpec string  `yaml:"default_spec" json:"default_spec"`
	Unit        string  `yaml:"unit" json:"unit"`
	Low         float64 `yaml:"low" json:"low"`
	High        float64 `yaml:"high" json:"high"`
}

// Modifiers are carried with the catalog but not applied when pricing.
type Modifiers struct {
	RobotCount struct {
		Multiplier float64 `yaml:"multiplier" json:"multiplier"`
	} `yaml:"robot_count" json:"robot_count"`
	VisionAddon struct {
		Add float64 `yaml:"add" json:"add"`
	} `yaml:"vision_addon" json:"vision_addon"`
	SafetyComplexity map[string]float64 `yaml:"safety_complexity" json:"safety_complexity"`
}

type Catalog struct {
	Version   int           `yaml:"version" json:"version"`
	Currency  string        `yaml:"currency" json:"currency"`
	Items     []CatalogItem `yaml:"items" json:"items"`
	Modifiers Modifiers     `yaml:"modifiers" json:"modifiers"`
	Source    string        `yaml:"-" json:"source"`

	byKey map[string]CatalogItem
}

// Item returns the entry for key. The first entry wins on duplicate keys.
func (c *Catalog) Item(key string) (CatalogItem, bool) {
	it, ok := c.byKey[key]
	return it, ok
}

func (c *Catalog) index() {
	c.byKey = make(map[string]CatalogItem, len(c.Items))
	for _, it := range c.Items {
		if _, exists := c.byKey[it.ItemKey]; exists {
			continue
		}
		c.byKey[it.ItemKey] = it
	}
}

// LoadCatalog reads the catalog at path (YAML or JSON). An empty path uses the
// bundled catalog. Any failure to read or validate the file logs a warning and
// falls back to the bundled catalog, so LoadCatalog always returns a usable value.
func LoadCatalog(path string, log *logger.Logger) *Catalog {
	if path = strings.TrimSpace(path); path != "" {
		c, err := readCatalogFile(path)
		if err == nil {
			return c
		}
		if log != nil {
			log.Warn("pricing: catalog load failed; using built-in catalog", "path", path, "error", err)
		}
	}
	c, err := parseCatalog(mustEmbedded(), "builtin")
	if err != nil {
		// The bundled file is covered by tests; this only trips on a bad edit.
		panic(fmt.Sprintf("pricing: built-in catalog invalid: %v", err))
	}
	return c
}

func readCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseCatalog(data, path)
}

func mustEmbedded() []byte {
	data, err := catalogFS.ReadFile("catalog.yaml")
	if err != nil {
		panic(err)
	}
	return data
}

func parseCatalog(data []byte, source string) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if err := validateCatalog(&c); err != nil {
		return nil, err
	}
	c.Source = source
	c.index()
	return &c, nil
}

func validateCatalog(c *Catalog) error {
	if len(c.Items) == 0 {
		return errors.New("no items defined")
	}
	for i, it := range c.Items {
		if strings.TrimSpace(it.ItemKey) == "" {
			return fmt.Errorf("item %d: item_key is required", i)
		}
		if it.Low < 0 || it.High < it.Low {
			return fmt.Errorf("item %s: invalid price band [%v, %v]", it.ItemKey, it.Low, it.High)
		}
	}
	return nil
}
