package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog lists the data sources and asset classes a deployment works with.
// Order is significant in both lists.
type Catalog struct {
	AssetClasses []string         `yaml:"asset_classes"`
	Sources      []DataSourceSpec `yaml:"sources"`
}

// DefaultCatalog returns the built-in providers and asset classes.
func DefaultCatalog() Catalog {
	classes := make([]string, 0, len(defaultAssetClasses))
	for _, ac := range defaultAssetClasses {
		classes = append(classes, string(ac))
	}
	return Catalog{
		AssetClasses: classes,
		Sources:      DefaultSources(),
	}
}

// LoadCatalog reads a YAML catalog file. Sections left empty in the file fall
// back to the built-in defaults.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read file: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return Catalog{}, fmt.Errorf("parse YAML: %w", err)
	}

	def := DefaultCatalog()
	if len(cat.AssetClasses) == 0 {
		cat.AssetClasses = def.AssetClasses
	}
	if len(cat.Sources) == 0 {
		cat.Sources = def.Sources
	}
	return cat, nil
}
