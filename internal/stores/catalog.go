package stores

import (
	"fmt"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/shopping-optimizer/internal/cart"
	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/geo"
)

// Catalog is the read-only set of stores known to the service.
type Catalog struct {
	stores []Store
	byID   map[string]Store
	prices PriceTable
}

type catalogFile struct {
	Stores []Store                     `koanf:"stores"`
	Prices map[string]map[string]int64 `koanf:"prices"`
}

// NewCatalog validates stores and indexes them by id.
func NewCatalog(list []Store, prices PriceTable) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]Store, len(list)), prices: PriceTable{}}
	for _, s := range list {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate store %q: %w", s.ID, common.ErrInvalidInput)
		}
		c.byID[s.ID] = s
		c.stores = append(c.stores, s)
	}
	for storeID, row := range prices {
		norm := make(map[string]int64, len(row))
		for name, price := range row {
			norm[cart.Key(name)] = price
		}
		c.prices[storeID] = norm
	}
	return c, nil
}

// LoadCatalog reads a JSON catalog file of the form
// {"stores":[...], "prices":{"<storeId>":{"<item name>":price}}}.
// An empty path yields the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	k := koanf.NewWithConf(koanf.Conf{Delim: "::"})
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return nil, fmt.Errorf("load store catalog %s: %w", path, err)
	}
	var raw catalogFile
	if err := k.UnmarshalWithConf("", &raw, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode store catalog %s: %w", path, err)
	}
	if len(raw.Stores) == 0 {
		return nil, fmt.Errorf("store catalog %s has no stores: %w", path, common.ErrInvalidInput)
	}
	return NewCatalog(raw.Stores, raw.Prices)
}

// DefaultCatalog returns three neighbourhood stores with ordinary delivery rules.
func DefaultCatalog() *Catalog {
	c, _ := NewCatalog([]Store{
		{
			ID:       "fresh-market",
			Name:     "Fresh Market",
			Location: geo.Point{Lat: -6.2000, Lng: 106.8166},
			Policy:   &DeliveryPolicy{MinOrderAmount: 50000, FreeDeliveryThreshold: 150000, FlatFee: 10000},
		},
		{
			ID:       "green-grocer",
			Name:     "Green Grocer",
			Location: geo.Point{Lat: -6.2088, Lng: 106.8456},
			Policy:   &DeliveryPolicy{MinOrderAmount: 75000, FreeDeliveryThreshold: 200000, FlatFee: 12000},
		},
		{
			ID:       "corner-pantry",
			Name:     "Corner Pantry",
			Location: geo.Point{Lat: -6.1944, Lng: 106.8229},
			Policy:   PickupOnly(0),
		},
	}, nil)
	return c
}

// All returns stores in catalog order.
func (c *Catalog) All() []Store {
	out := make([]Store, len(c.stores))
	copy(out, c.stores)
	return out
}

// Get looks a store up by id.
func (c *Catalog) Get(id string) (Store, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Select returns the stores for ids in the given order. An empty ids list
// selects the whole catalog. Unknown ids are an input error.
func (c *Catalog) Select(ids []string) ([]Store, error) {
	if len(ids) == 0 {
		return c.All(), nil
	}
	out := make([]Store, 0, len(ids))
	for _, id := range ids {
		s, ok := c.byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown store %q: %w", id, common.ErrInvalidInput)
		}
		out = append(out, s)
	}
	return out, nil
}

// Prices exposes the catalog price table for the Cheapest policy.
func (c *Catalog) Prices() PriceTable {
	return c.prices
}

// IDs returns all store ids sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
