package domain

import (
	"errors"
	"math"
)

// Attribute names with special handling.
const (
	FieldObjectID  = "OBJECTID"
	FieldActivity  = "Activity"
	FieldAIC       = "AIC"
	FieldLatitude  = "Latitude"
	FieldLongitude = "Longitude"
)

// RequiredFields are the attributes every source collection must carry.
var RequiredFields = []string{FieldObjectID, FieldActivity, FieldAIC}

// AdminFields are ArcGIS editing attributes the source collection carries;
// they are dropped after coordinate extraction.
var AdminFields = []string{"GlobalID", "CreationDate", "Creator", "EditDate", "Editor"}

var (
	// ErrMissingField reports a collection in which no feature carries an
	// expected attribute.
	ErrMissingField = errors.New("missing required field")
	// ErrNotPoint reports a feature whose geometry is absent or not a point.
	ErrNotPoint = errors.New("geometry is not a point")
	// ErrInvalidField reports a required attribute with an unusable value.
	ErrInvalidField = errors.New("invalid field value")
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both coordinates are finite numbers.
func (g Geo) Valid() bool {
	return !math.IsNaN(g.Lat) && !math.IsInf(g.Lat, 0) &&
		!math.IsNaN(g.Lon) && !math.IsInf(g.Lon, 0)
}

// Feature is one entry of a source feature collection before flattening.
// Point is nil when the geometry is null; GeometryType names the source
// geometry so non-point features can be reported.
type Feature struct {
	Properties   map[string]any
	GeometryType string
	Point        *Point
}

// Point is a GeoJSON position: X is longitude, Y is latitude.
type Point struct {
	X float64
	Y float64
}

// FeatureRecord is one incident after coordinate flattening. Attributes
// holds every pass-through property, including OBJECTID, Activity and AIC
// in their source form; the typed fields exist for filtering.
type FeatureRecord struct {
	ObjectID   int64
	Activity   string
	AIC        string
	Geo        Geo
	Attributes map[string]any
}

// Value returns the stored value for a column name.
func (r FeatureRecord) Value(column string) any {
	switch column {
	case FieldLatitude:
		return r.Geo.Lat
	case FieldLongitude:
		return r.Geo.Lon
	case FieldObjectID:
		return r.ObjectID
	default:
		return r.Attributes[column]
	}
}

// ColumnKind is the storage class inferred for a column.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInteger
	KindReal
)

func (k ColumnKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	default:
		return "text"
	}
}

// Column is one named, typed table column.
type Column struct {
	Name string
	Kind ColumnKind
}

// Table is a named set of records with a fixed column layout.
type Table struct {
	Name    string
	Columns []Column
	Records []FeatureRecord
}

// CoordinateList holds parallel latitude and longitude sequences for the
// density overlay.
type CoordinateList struct {
	Lats []float64
	Lons []float64
}

// Append adds one coordinate pair.
func (c *CoordinateList) Append(lat, lon float64) {
	c.Lats = append(c.Lats, lat)
	c.Lons = append(c.Lons, lon)
}

// Len returns the number of coordinate pairs.
func (c CoordinateList) Len() int {
	return len(c.Lats)
}

// Pairs zips the list into [lat, lon] pairs. The result is never nil.
func (c CoordinateList) Pairs() [][2]float64 {
	n := min(len(c.Lats), len(c.Lons))
	out := make([][2]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, [2]float64{c.Lats[i], c.Lons[i]})
	}
	return out
}
