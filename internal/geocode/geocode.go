// Package geocode resolves free-form addresses into coordinates.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/geo"
)

// ErrEmptyQuery is returned for a blank search string.
var ErrEmptyQuery = fmt.Errorf("geocode: empty query: %w", common.ErrInvalidInput)

// Place is one geocoding match.
type Place struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	DisplayName string  `json:"displayName"`
}

// Point returns the place's coordinates.
func (p Place) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lng: p.Lng}
}

// Client searches places by free-form query, best match first.
type Client interface {
	Search(ctx context.Context, query string) ([]Place, error)
}

// Resolve returns the best match for query. A query with no matches is
// reported as invalid input.
func Resolve(ctx context.Context, c Client, query string) (geo.Point, error) {
	if c == nil {
		return geo.Point{}, errors.New("geocode: client not configured")
	}
	if strings.TrimSpace(query) == "" {
		return geo.Point{}, ErrEmptyQuery
	}
	places, err := c.Search(ctx, query)
	if err != nil {
		return geo.Point{}, err
	}
	if len(places) == 0 {
		return geo.Point{}, fmt.Errorf("geocode: no match for %q: %w", query, common.ErrInvalidInput)
	}
	return places[0].Point(), nil
}
