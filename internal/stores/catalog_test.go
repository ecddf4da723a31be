package stores_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shopping-optimizer/internal/common"
	"github.com/noah-isme/shopping-optimizer/internal/stores"
)

const catalogJSON = `{
  "stores": [
    {"id": "north", "name": "North", "location": {"lat": 1.5, "lng": 2.5},
     "deliveryPolicy": {"minOrderAmount": 500, "freeDeliveryThreshold": 1000, "flatFee": 50}},
    {"id": "south", "name": "South", "location": {"lat": -1, "lng": -2}}
  ],
  "prices": {"north": {"Whole Milk 1.5L": 95}}
}`

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stores.json")
	require.NoError(t, os.WriteFile(path, []byte(catalogJSON), 0o600))

	c, err := stores.LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"north", "south"}, c.IDs())

	north, ok := c.Get("north")
	require.True(t, ok)
	require.NotNil(t, north.Policy)
	assert.Equal(t, int64(500), north.Policy.MinOrderAmount)
	assert.Equal(t, 1.5, north.Location.Lat)

	south, _ := c.Get("south")
	assert.Nil(t, south.Policy)

	price, ok := c.Prices().UnitPrice("north", "whole milk 1.5l")
	require.True(t, ok)
	assert.Equal(t, int64(95), price)
}

func TestLoadCatalogErrors(t *testing.T) {
	_, err := stores.LoadCatalog(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"stores": []}`), 0o600))
	_, err = stores.LoadCatalog(path)
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestDefaultCatalogAndSelect(t *testing.T) {
	c, err := stores.LoadCatalog("")
	require.NoError(t, err)
	require.Len(t, c.All(), 3)

	pantry, ok := c.Get("corner-pantry")
	require.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), pantry.Policy.MinOrderAmount)

	picked, err := c.Select([]string{"green-grocer", "fresh-market"})
	require.NoError(t, err)
	assert.Equal(t, "green-grocer", picked[0].ID)

	_, err = c.Select([]string{"nowhere"})
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	_, err := stores.NewCatalog(candidates()[:1:1], nil)
	require.NoError(t, err)
	_, err = stores.NewCatalog(append(candidates(), candidates()[0]), nil)
	require.ErrorIs(t, err, common.ErrInvalidInput)
}
