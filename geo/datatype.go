package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

var ErrConfig = errors.New("geo: invalid datatype configuration")

type ValueType string

const (
	ValueLong   ValueType = "LONG"
	ValueDouble ValueType = "DOUBLE"
)

// ServiceMapping tells query front ends which role a field plays.
type ServiceMapping string

const (
	MappingLatitude    ServiceMapping = "LATITUDE"
	MappingLongitude   ServiceMapping = "LONGITUDE"
	MappingTime        ServiceMapping = "TIME"
	MappingCoordSystem ServiceMapping = "COORD_SYSTEM"
	MappingCustom      ServiceMapping = "CUSTOM"
)

// LiteralSeparator separates field values in a literal, "47.1#8.7".
const LiteralSeparator = "#"

// Field describes one dimension of a datatype. Values are scaled by
// Multiplier and stored as 64-bit integers. With MinValue set the stored
// value is the offset from it; otherwise the sign bit is flipped so that
// negative values sort first.
type Field struct {
	ValueType      ValueType      `json:"valueType"`
	Multiplier     int64          `json:"multiplier,omitempty"`
	MinValue       *int64         `json:"minValue,omitempty"`
	ServiceMapping ServiceMapping `json:"serviceMapping"`
	CustomName     string         `json:"customServiceMapping,omitempty"`
}

// Name is the custom mapping name of a CUSTOM field and the lower-case
// mapping otherwise.
func (f Field) Name() string {
	if f.ServiceMapping == MappingCustom {
		return f.CustomName
	}
	return strings.ToLower(string(f.ServiceMapping))
}

func (f Field) multiplier() int64 {
	if f.Multiplier == 0 {
		return 1
	}
	return f.Multiplier
}

// Datatype is a named layout of fields encoded into one z-order literal.
type Datatype struct {
	URI    string  `json:"uri"`
	Fields []Field `json:"fields"`

	codec *MortonCodec
}

// Point holds one value per field of a datatype.
type Point []float64

// Box is an axis-aligned query region, inclusive on both corners.
type Box struct {
	Low  Point
	High Point
}

// NewDatatype validates fields and returns a ready datatype.
func NewDatatype(uri string, fields ...Field) (*Datatype, error) {
	dt := &Datatype{URI: uri, Fields: fields}
	if err := dt.init(); err != nil {
		return nil, err
	}
	return dt, nil
}

func (dt *Datatype) init() error {
	if dt.URI == "" {
		return fmt.Errorf("%w: missing uri", ErrConfig)
	}
	if len(dt.Fields) == 0 {
		return fmt.Errorf("%w: %s has no fields", ErrConfig, dt.URI)
	}
	for i, f := range dt.Fields {
		switch f.ValueType {
		case ValueLong, ValueDouble:
		default:
			return fmt.Errorf("%w: %s field %d: value type %q", ErrConfig, dt.URI, i, f.ValueType)
		}
		if f.Multiplier < 0 {
			return fmt.Errorf("%w: %s field %d: negative multiplier", ErrConfig, dt.URI, i)
		}
		switch f.ServiceMapping {
		case MappingLatitude, MappingLongitude, MappingTime, MappingCoordSystem:
		case MappingCustom:
			if f.CustomName == "" {
				return fmt.Errorf("%w: %s field %d: custom mapping without name", ErrConfig, dt.URI, i)
			}
		default:
			return fmt.Errorf("%w: %s field %d: service mapping %q", ErrConfig, dt.URI, i, f.ServiceMapping)
		}
	}
	codec, err := NewMortonCodec(len(dt.Fields), 64)
	if err != nil {
		return err
	}
	dt.codec = codec
	return nil
}

func (dt *Datatype) Codec() *MortonCodec { return dt.codec }

func (dt *Datatype) NumDimensions() int { return len(dt.Fields) }

// Header names the fields in literal order, "latitude#longitude".
func (dt *Datatype) Header() string {
	names := make([]string, len(dt.Fields))
	for i, f := range dt.Fields {
		names[i] = f.Name()
	}
	return strings.Join(names, LiteralSeparator)
}

// ToCoordinates converts p into unsigned coordinates.
func (dt *Datatype) ToCoordinates(p Point) ([]uint64, error) {
	if len(p) != len(dt.Fields) {
		return nil, fmt.Errorf("%w: %s expects %d values, got %d", ErrDimensions, dt.URI, len(dt.Fields), len(p))
	}
	out := make([]uint64, len(p))
	for i, f := range dt.Fields {
		u, err := f.toUnsigned(p[i])
		if err != nil {
			return nil, fmt.Errorf("geo: %s field %d: %w", dt.URI, i, err)
		}
		out[i] = u
	}
	return out, nil
}

// FromCoordinates converts unsigned coordinates back into a point.
func (dt *Datatype) FromCoordinates(coords []uint64) (Point, error) {
	if len(coords) != len(dt.Fields) {
		return nil, fmt.Errorf("%w: %s expects %d values, got %d", ErrDimensions, dt.URI, len(dt.Fields), len(coords))
	}
	p := make(Point, len(coords))
	for i, f := range dt.Fields {
		p[i] = f.fromUnsigned(coords[i])
	}
	return p, nil
}

// Literal encodes p into its stored z-order literal.
func (dt *Datatype) Literal(p Point) ([]byte, error) {
	coords, err := dt.ToCoordinates(p)
	if err != nil {
		return nil, err
	}
	z, err := dt.codec.ToInterleaved(coords)
	if err != nil {
		return nil, err
	}
	return dt.codec.LiteralFromInterleaved(z), nil
}

// PointFromLiteral decodes a stored z-order literal.
func (dt *Datatype) PointFromLiteral(lit []byte) (Point, error) {
	z, err := dt.codec.InterleavedFromLiteral(lit)
	if err != nil {
		return nil, err
	}
	coords, err := dt.codec.FromInterleaved(z)
	if err != nil {
		return nil, err
	}
	return dt.FromCoordinates(coords)
}

// Corners returns the unsigned interleaved keys of the box corners.
func (dt *Datatype) Corners(b Box) (min, max []byte, err error) {
	lo, err := dt.ToCoordinates(b.Low)
	if err != nil {
		return nil, nil, err
	}
	hi, err := dt.ToCoordinates(b.High)
	if err != nil {
		return nil, nil, err
	}
	if min, err = dt.codec.ToInterleaved(lo); err != nil {
		return nil, nil, err
	}
	if max, err = dt.codec.ToInterleaved(hi); err != nil {
		return nil, nil, err
	}
	return min, max, nil
}

// ParseLiteral parses a "#"-separated literal such as "47.1#8.7#1443700000".
func (dt *Datatype) ParseLiteral(s string) (Point, error) {
	parts := strings.Split(s, LiteralSeparator)
	if len(parts) != len(dt.Fields) {
		return nil, fmt.Errorf("%w: %q has %d components, %s expects %d",
			ErrLiteral, s, len(parts), dt.URI, len(dt.Fields))
	}
	p := make(Point, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q component %d: %v", ErrLiteral, s, i, err)
		}
		p[i] = v
	}
	return p, nil
}

// FormatLiteral renders p in the form accepted by ParseLiteral.
func (dt *Datatype) FormatLiteral(p Point) string {
	parts := make([]string, len(p))
	for i, v := range p {
		if i < len(dt.Fields) && dt.Fields[i].ValueType == ValueLong && dt.Fields[i].multiplier() == 1 {
			parts[i] = strconv.FormatInt(int64(v), 10)
			continue
		}
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, LiteralSeparator)
}

// ─── Value conversion ─────────────────────────────────────────────────────────

const signBit = uint64(1) << 63

func (f Field) toUnsigned(v float64) (uint64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %v", ErrOverflow, v)
	}
	if f.ValueType == ValueLong && v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrLiteral, v)
	}
	scaled := math.Round(v * float64(f.multiplier()))
	if scaled >= math.MaxInt64 || scaled < math.MinInt64 {
		return 0, fmt.Errorf("%w: %v scaled by %d", ErrOverflow, v, f.multiplier())
	}
	x := int64(scaled)
	if f.MinValue == nil {
		return uint64(x) ^ signBit, nil
	}
	if x < *f.MinValue {
		return 0, fmt.Errorf("%w: %v below minimum %d", ErrOverflow, v, *f.MinValue)
	}
	return uint64(x - *f.MinValue), nil
}

func (f Field) fromUnsigned(u uint64) float64 {
	var x int64
	if f.MinValue == nil {
		x = int64(u ^ signBit)
	} else {
		x = int64(u) + *f.MinValue
	}
	return float64(x) / float64(f.multiplier())
}

// ─── Configuration ────────────────────────────────────────────────────────────

// Config is the JSON document listing datatypes.
type Config struct {
	Datatypes []*Datatype `json:"datatypes"`
}

// LoadDatatypes decodes and validates a JSON datatype configuration.
func LoadDatatypes(r io.Reader) (map[string]*Datatype, error) {
	var cfg Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	out := make(map[string]*Datatype, len(cfg.Datatypes))
	for _, dt := range cfg.Datatypes {
		if dt == nil {
			return nil, fmt.Errorf("%w: null datatype", ErrConfig)
		}
		if err := dt.init(); err != nil {
			return nil, err
		}
		if _, dup := out[dt.URI]; dup {
			return nil, fmt.Errorf("%w: duplicate uri %s", ErrConfig, dt.URI)
		}
		out[dt.URI] = dt
	}
	return out, nil
}

// LoadDatatypesFile reads a configuration file with LoadDatatypes.
func LoadDatatypesFile(path string) (map[string]*Datatype, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geo: open datatype config: %w", err)
	}
	defer f.Close()
	return LoadDatatypes(f)
}

// ─── Built-in datatypes ───────────────────────────────────────────────────────

const (
	LatLonURI     = "http://www.bigdata.com/rdf/geospatial#geoSpatialLiteral"
	LatLonTimeURI = "http://www.bigdata.com/rdf/geospatial/literals/v1#lat-lon-time"
)

// LatLon is latitude and longitude with five decimal digits.
func LatLon() *Datatype {
	dt, _ := NewDatatype(LatLonURI,
		Field{ValueType: ValueDouble, Multiplier: 100000, ServiceMapping: MappingLatitude},
		Field{ValueType: ValueDouble, Multiplier: 100000, ServiceMapping: MappingLongitude},
	)
	return dt
}

// LatLonTime adds an integer timestamp to LatLon.
func LatLonTime() *Datatype {
	dt, _ := NewDatatype(LatLonTimeURI,
		Field{ValueType: ValueDouble, Multiplier: 100000, ServiceMapping: MappingLatitude},
		Field{ValueType: ValueDouble, Multiplier: 100000, ServiceMapping: MappingLongitude},
		Field{ValueType: ValueLong, ServiceMapping: MappingTime},
	)
	return dt
}

// BuiltinDatatypes returns the datatypes available without configuration.
func BuiltinDatatypes() map[string]*Datatype {
	ll, llt := LatLon(), LatLonTime()
	return map[string]*Datatype{ll.URI: ll, llt.URI: llt}
}
