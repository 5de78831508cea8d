package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/units"
)

func TestCollect(t *testing.T) {
	e := config.Entry{
		"type":           "BlackBodyTarget",
		"comment":        "a sun-like star",
		"temp":           map[string]any{"val": 5778, "val_unit": "K"},
		"mag":            "10 mag",
		"band":           "U",
		"obstruction":    0.1,
		"pixel_geometry": map[string]any{"val": []any{1024, 512}, "val_unit": "pix"},
		"reflectance":    "data/mirror.csv",
		"size":           1,
		"size_unit":      "arcsec",
	}
	got := e.Collect()

	assert.NotContains(t, got, "type")
	assert.NotContains(t, got, "comment")
	assert.NotContains(t, got, "size_unit")
	assert.Equal(t, "U", got["band"])
	assert.Equal(t, 0.1, got["obstruction"])
	assert.Equal(t, "data/mirror.csv", got["reflectance"])

	temp, ok := got["temp"].(units.Quantity)
	require.True(t, ok, "temp should be a quantity, got %T", got["temp"])
	assert.Equal(t, 5778., temp.MustTo(units.Kelvin))

	mag, ok := got["mag"].(units.Quantity)
	require.True(t, ok)
	assert.True(t, mag.Unit.Equivalent(units.Mag))

	geom, ok := got["pixel_geometry"].(units.Array)
	require.True(t, ok)
	assert.Equal(t, []float64{1024, 512}, geom.Values)

	size, ok := got["size"].(units.Quantity)
	require.True(t, ok)
	assert.InDelta(t, 1, size.MustTo(units.Arcsec), 1e-12)
}

func TestCheckSelection(t *testing.T) {
	e := config.Entry{"shape": "cirle"}
	err := e.CheckSelection("shape", []string{"square", "circle"})
	require.Error(t, err)
	assert.Equal(t, "shape: Value 'cirle' not allowed for parameter 'shape'. Did you mean 'circle'?", err.Error())
	assert.NoError(t, config.Entry{"shape": "circle"}.CheckSelection("shape", []string{"square", "circle"}))
}

func TestCheckQuantityOrFile(t *testing.T) {
	assert.NoError(t, config.Entry{"exp": "0.1 s"}.CheckQuantityOrFile("exp", units.Second))
	assert.NoError(t, config.Entry{"exp": "testdata/times.csv"}.CheckQuantityOrFile("exp", units.Second))
	assert.Error(t, config.Entry{"exp": "testdata/none.csv"}.CheckQuantityOrFile("exp", units.Second))
	assert.NoError(t, config.Entry{"qe": 0.9}.CheckFloatOrFile("qe"))
}

func TestList(t *testing.T) {
	single := config.Entry{"optical_component": map[string]any{"type": "Mirror"}}
	assert.Len(t, single.List("optical_component"), 1)
	many := config.Entry{"optical_component": []any{
		map[string]any{"type": "Mirror"},
		map[string]any{"type": "Lens"},
	}}
	l := many.List("optical_component")
	require.Len(t, l, 2)
	assert.Equal(t, "Lens", l[1].Type())
	assert.Empty(t, config.Entry{}.List("optical_component"))
}

func TestLocate(t *testing.T) {
	err := config.Locate(config.Errorf("temp", "bad"), "astroscene -> target")
	assert.Equal(t, "astroscene -> target -> temp: bad", err.Error())
	assert.Nil(t, config.Locate(nil, "common"))
}
