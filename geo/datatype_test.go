package geo

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatLonRoundTrip(t *testing.T) {
	dt := LatLon()
	require.NotNil(t, dt)
	assert.Equal(t, 2, dt.NumDimensions())
	assert.Equal(t, "latitude#longitude", dt.Header())
	assert.Equal(t, "latitude#longitude#time", LatLonTime().Header())

	for _, p := range []Point{{47.12345, 8.54321}, {-33.86785, 151.20732}, {0, 0}, {-90, -180}, {90, 180}} {
		lit, err := dt.Literal(p)
		require.NoError(t, err)
		require.Len(t, lit, dt.Codec().LiteralLength())

		back, err := dt.PointFromLiteral(lit)
		require.NoError(t, err)
		for i := range p {
			assert.InDelta(t, p[i], back[i], 1e-5)
		}
	}
}

func TestNegativeValuesSortFirst(t *testing.T) {
	dt, err := NewDatatype("urn:x", Field{ValueType: ValueLong, ServiceMapping: MappingTime})
	require.NoError(t, err)

	var prev []byte
	for _, v := range []float64{-1e12, -5, -1, 0, 1, 7, 1e12} {
		lit, err := dt.Literal(Point{v})
		require.NoError(t, err)
		if prev != nil {
			assert.Equalf(t, -1, bytes.Compare(prev, lit), "value %v", v)
		}
		prev = lit
	}
}

func TestMinValueShift(t *testing.T) {
	minVal := int64(-100)
	f := Field{ValueType: ValueLong, MinValue: &minVal, ServiceMapping: MappingCustom, CustomName: "depth"}

	u, err := f.toUnsigned(-100)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), u)
	u, err = f.toUnsigned(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(105), u)
	assert.Equal(t, 5.0, f.fromUnsigned(105))

	_, err = f.toUnsigned(-101)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestConversionErrors(t *testing.T) {
	long := Field{ValueType: ValueLong, ServiceMapping: MappingTime}
	_, err := long.toUnsigned(1.5)
	assert.ErrorIs(t, err, ErrLiteral)
	_, err = long.toUnsigned(math.NaN())
	assert.ErrorIs(t, err, ErrOverflow)
	_, err = long.toUnsigned(math.Inf(1))
	assert.ErrorIs(t, err, ErrOverflow)

	dbl := Field{ValueType: ValueDouble, Multiplier: 1e15, ServiceMapping: MappingLatitude}
	_, err = dbl.toUnsigned(1e5)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = LatLon().ToCoordinates(Point{1})
	assert.ErrorIs(t, err, ErrDimensions)
}

func TestParseAndFormatLiteral(t *testing.T) {
	dt := LatLonTime()
	p, err := dt.ParseLiteral("47.1#8.7#1443700000")
	require.NoError(t, err)
	assert.Equal(t, Point{47.1, 8.7, 1443700000}, p)
	assert.Equal(t, "47.1#8.7#1443700000", dt.FormatLiteral(p))

	_, err = dt.ParseLiteral("47.1#8.7")
	assert.ErrorIs(t, err, ErrLiteral)
	_, err = dt.ParseLiteral("47.1#north#1")
	assert.ErrorIs(t, err, ErrLiteral)
}

func TestCornersOrder(t *testing.T) {
	dt := LatLon()
	min, max, err := dt.Corners(Box{Low: Point{-1, -1}, High: Point{1, 1}})
	require.NoError(t, err)
	assert.Equal(t, -1, bytes.Compare(min, max))
}

const sampleConfig = `{
  "datatypes": [
    {
      "uri": "urn:geo:lat-lon-depth",
      "fields": [
        {"valueType": "DOUBLE", "multiplier": 100000, "serviceMapping": "LATITUDE"},
        {"valueType": "DOUBLE", "multiplier": 100000, "serviceMapping": "LONGITUDE"},
        {"valueType": "LONG", "minValue": 0, "serviceMapping": "CUSTOM", "customServiceMapping": "depth"}
      ]
    }
  ]
}`

func TestLoadDatatypes(t *testing.T) {
	dts, err := LoadDatatypes(strings.NewReader(sampleConfig))
	require.NoError(t, err)
	dt := dts["urn:geo:lat-lon-depth"]
	require.NotNil(t, dt)
	assert.Equal(t, 3, dt.NumDimensions())
	require.NotNil(t, dt.Fields[2].MinValue)
	assert.Equal(t, int64(0), *dt.Fields[2].MinValue)
	assert.Equal(t, "latitude#longitude#depth", dt.Header())

	path := filepath.Join(t.TempDir(), "datatypes.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))
	fromFile, err := LoadDatatypesFile(path)
	require.NoError(t, err)
	assert.Len(t, fromFile, 1)
}

func TestLoadDatatypesInvalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{`},
		{"unknown field", `{"datatypes":[{"uri":"u","fields":[],"extra":1}]}`},
		{"no fields", `{"datatypes":[{"uri":"u","fields":[]}]}`},
		{"missing uri", `{"datatypes":[{"fields":[{"valueType":"LONG","serviceMapping":"TIME"}]}]}`},
		{"bad value type", `{"datatypes":[{"uri":"u","fields":[{"valueType":"STRING","serviceMapping":"TIME"}]}]}`},
		{"bad mapping", `{"datatypes":[{"uri":"u","fields":[{"valueType":"LONG","serviceMapping":"DEPTH"}]}]}`},
		{"custom without name", `{"datatypes":[{"uri":"u","fields":[{"valueType":"LONG","serviceMapping":"CUSTOM"}]}]}`},
		{"duplicate uri", `{"datatypes":[
			{"uri":"u","fields":[{"valueType":"LONG","serviceMapping":"TIME"}]},
			{"uri":"u","fields":[{"valueType":"LONG","serviceMapping":"TIME"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDatatypes(strings.NewReader(tt.json))
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestBuiltinDatatypes(t *testing.T) {
	all := BuiltinDatatypes()
	assert.Len(t, all, 2)
	assert.Equal(t, 3, all[LatLonTimeURI].NumDimensions())
}
