package market

import (
	"fmt"
	"os"
	"sort"

	"challenge-desk-go/internal/config"
	"gopkg.in/yaml.v3"
)

// Registry is the static list of domestic symbols and their reference prices.
// Any symbol not in the registry is routed to the international source.
type Registry struct {
	listings map[string]config.SymbolListing
}

// NewRegistry indexes listings by normalized symbol.
func NewRegistry(listings []config.SymbolListing) *Registry {
	r := &Registry{listings: make(map[string]config.SymbolListing, len(listings))}
	for _, l := range listings {
		l.Symbol = NormalizeSymbol(l.Symbol)
		if l.Symbol == "" {
			continue
		}
		r.listings[l.Symbol] = l
	}
	return r
}

// IsDomestic reports whether symbol is a registered domestic listing.
func (r *Registry) IsDomestic(symbol string) bool {
	_, ok := r.listings[NormalizeSymbol(symbol)]
	return ok
}

// Lookup returns the listing for symbol.
func (r *Registry) Lookup(symbol string) (config.SymbolListing, bool) {
	l, ok := r.listings[NormalizeSymbol(symbol)]
	return l, ok
}

// Symbols returns the registered symbols in sorted order.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.listings))
	for s := range r.listings {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type registryFile struct {
	Symbols []config.SymbolListing `yaml:"symbols"`
}

// LoadRegistry reads listings from a YAML file of the form
//
//	symbols:
//	  - symbol: IAM
//	    name: Itissalat Al-Maghrib
//	    base_price: 12.21
func LoadRegistry(path string) ([]config.SymbolListing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse registry file %s: %w", path, err)
	}
	for i, l := range f.Symbols {
		if NormalizeSymbol(l.Symbol) == "" {
			return nil, fmt.Errorf("registry entry %d has no symbol", i)
		}
		if l.BasePrice <= 0 {
			return nil, fmt.Errorf("registry entry %s has non-positive base price %v", l.Symbol, l.BasePrice)
		}
	}
	return f.Symbols, nil
}
