// Package economy provides the tick-synchronous double-auction market:
// orders, per-pair order books, clearing, and settlement dispatch.
package economy

import (
	"cmp"
	"fmt"
	"slices"
)

// Good identifies a tradeable commodity or a settlement currency.
// Goods are opaque to the market; equality is the only operation it needs.
type Good string

// Pair keys one order book: a commodity priced in a currency.
type Pair struct {
	Commodity Good `json:"commodity"`
	Currency  Good `json:"currency"`
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.Commodity, p.Currency)
}

// GoodSpec describes one good in a catalog.
type GoodSpec struct {
	ID         Good    `json:"id" yaml:"id"`
	BaseValue  float64 `json:"base_value" yaml:"base_value"` // Reference price of one unit
	IsCurrency bool    `json:"is_currency" yaml:"is_currency"`
	Perishable bool    `json:"perishable" yaml:"perishable"`
}

// Catalog is the owned set of goods known to a simulation.
// Built once at setup and passed to whatever needs lookups.
type Catalog struct {
	goods map[Good]GoodSpec
}

// NewCatalog builds a catalog from specs. Duplicate IDs are an error.
func NewCatalog(specs []GoodSpec) (*Catalog, error) {
	c := &Catalog{goods: make(map[Good]GoodSpec, len(specs))}
	for _, s := range specs {
		if s.ID == "" {
			return nil, fmt.Errorf("catalog: good with empty id")
		}
		if _, dup := c.goods[s.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate good %q", s.ID)
		}
		c.goods[s.ID] = s
	}
	return c, nil
}

// Get returns the definition of id.
func (c *Catalog) Get(id Good) (GoodSpec, bool) {
	s, ok := c.goods[id]
	return s, ok
}

// BaseValue returns the reference price of id, or 0 when unknown.
func (c *Catalog) BaseValue(id Good) float64 {
	return c.goods[id].BaseValue
}

// DefaultCurrency returns the first currency in ID order.
func (c *Catalog) DefaultCurrency() (Good, bool) {
	for _, s := range c.All() {
		if s.IsCurrency {
			return s.ID, true
		}
	}
	return "", false
}

// All returns every good sorted by ID.
func (c *Catalog) All() []GoodSpec {
	out := make([]GoodSpec, 0, len(c.goods))
	for _, s := range c.goods {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b GoodSpec) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
