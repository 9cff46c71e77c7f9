package config

import (
	"fmt"
	"strings"
)

// AssetClass identifies a market segment AODE can collect data for.
type AssetClass string

const (
	AssetClassCrypto     AssetClass = "cryptocurrency"
	AssetClassEquity     AssetClass = "equity"
	AssetClassForex      AssetClass = "forex"
	AssetClassCommodity  AssetClass = "commodity"
	AssetClassDerivative AssetClass = "derivative"
)

var allAssetClasses = []AssetClass{
	AssetClassCrypto,
	AssetClassEquity,
	AssetClassForex,
	AssetClassCommodity,
	AssetClassDerivative,
}

var defaultAssetClasses = []AssetClass{
	AssetClassCrypto,
	AssetClassEquity,
	AssetClassForex,
}

// AllAssetClasses returns every known asset class in declaration order.
func AllAssetClasses() []AssetClass {
	return append([]AssetClass(nil), allAssetClasses...)
}

// DefaultAssetClasses returns the asset classes enabled when nothing overrides them.
func DefaultAssetClasses() []AssetClass {
	return append([]AssetClass(nil), defaultAssetClasses...)
}

// ParseAssetClass maps a case-insensitive name onto a known AssetClass.
func ParseAssetClass(raw string) (AssetClass, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for _, ac := range allAssetClasses {
		if string(ac) == name {
			return ac, nil
		}
	}
	return "", fmt.Errorf("unknown asset class %q", raw)
}

func (a AssetClass) String() string {
	return string(a)
}

// parseAssetClasses parses a comma-separated list, dropping duplicates while
// keeping the first occurrence's position.
func parseAssetClasses(raw []string) ([]AssetClass, error) {
	seen := make(map[AssetClass]struct{}, len(raw))
	out := make([]AssetClass, 0, len(raw))
	for _, part := range raw {
		if strings.TrimSpace(part) == "" {
			continue
		}
		ac, err := ParseAssetClass(part)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[ac]; dup {
			continue
		}
		seen[ac] = struct{}{}
		out = append(out, ac)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no asset classes provided")
	}
	return out, nil
}
