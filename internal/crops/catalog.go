// Package crops holds the golden-rules storage catalog: per-crop optimal
// temperature and humidity bands with handling notes. The catalog ships
// embedded in the binary and can optionally be mirrored to PostgreSQL for
// deployments that manage rules centrally.
package crops

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"coldtrace/internal/types"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is an immutable, name-indexed set of crop storage rules.
// Lookups are case-insensitive.
type Catalog struct {
	crops []types.Crop
	index map[string]int
}

// ParseCatalog decodes and validates a YAML rule catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Crops []types.Crop `yaml:"crops"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.NewAppError(types.ErrCodeCatalogInvalid, "failed to decode crop catalog", err)
	}
	return NewCatalog(doc.Crops)
}

// NewCatalog builds a catalog from already-decoded rules, rejecting
// malformed or duplicate entries.
func NewCatalog(rules []types.Crop) (*Catalog, error) {
	c := &Catalog{
		crops: make([]types.Crop, 0, len(rules)),
		index: make(map[string]int, len(rules)),
	}
	for _, rule := range rules {
		if err := validateRule(rule); err != nil {
			return nil, err
		}
		key := normalizeName(rule.Name)
		if _, exists := c.index[key]; exists {
			return nil, types.NewAppError(types.ErrCodeCatalogInvalid,
				fmt.Sprintf("duplicate crop entry %q", rule.Name), nil)
		}
		c.index[key] = len(c.crops)
		c.crops = append(c.crops, rule)
	}
	return c, nil
}

// Default parses the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// Get returns the rule for a crop name, matched case-insensitively.
func (c *Catalog) Get(name string) (types.Crop, bool) {
	i, ok := c.index[normalizeName(name)]
	if !ok {
		return types.Crop{}, false
	}
	return c.crops[i], true
}

// All returns a copy of the catalog in declaration order.
func (c *Catalog) All() []types.Crop {
	out := make([]types.Crop, len(c.crops))
	copy(out, c.crops)
	return out
}

// Names returns the crop names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.crops))
	for i, crop := range c.crops {
		names[i] = crop.Name
	}
	return names
}

// Len reports the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.crops)
}

// DocID derives the stable knowledge-base document ID for a crop rule,
// e.g. "Mango (Alphonso)" becomes "rule_mango_(alphonso)".
func DocID(crop types.Crop) string {
	return "rule_" + strings.ReplaceAll(strings.ToLower(crop.Name), " ", "_")
}

// RuleText renders a rule as the sentence form stored in the knowledge
// base and quoted in narratives.
func RuleText(crop types.Crop) string {
	return fmt.Sprintf(
		"Crop: %s. Category: %s. Optimal Temperature: %g°C to %g°C. Optimal Humidity: %g%% to %g%%. Storage Notes: %s",
		crop.Name, crop.Category,
		crop.TempMinC, crop.TempMaxC,
		crop.HumidityMin, crop.HumidityMax,
		crop.Notes,
	)
}

func validateRule(rule types.Crop) error {
	if strings.TrimSpace(rule.Name) == "" {
		return types.NewAppError(types.ErrCodeCatalogInvalid, "crop entry missing name", nil)
	}
	if rule.Category == "" {
		return types.NewAppError(types.ErrCodeCatalogInvalid,
			fmt.Sprintf("crop %q missing category", rule.Name), nil)
	}
	if rule.TempMinC > rule.TempMaxC {
		return types.NewAppError(types.ErrCodeCatalogInvalid,
			fmt.Sprintf("crop %q: temp_min %g exceeds temp_max %g", rule.Name, rule.TempMinC, rule.TempMaxC), nil)
	}
	if rule.HumidityMin > rule.HumidityMax {
		return types.NewAppError(types.ErrCodeCatalogInvalid,
			fmt.Sprintf("crop %q: humidity_min %g exceeds humidity_max %g", rule.Name, rule.HumidityMin, rule.HumidityMax), nil)
	}
	if rule.HumidityMin < 0 || rule.HumidityMax > 100 {
		return types.NewAppError(types.ErrCodeCatalogInvalid,
			fmt.Sprintf("crop %q: humidity band %g-%g outside 0-100", rule.Name, rule.HumidityMin, rule.HumidityMax), nil)
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
