package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Default harm subset predicate values.
const (
	HarmActivity = "SUSPECTED SELF HARM"
	HoaxAIC      = "Hoax and false alarm"
)

// maxExactInt is the largest integer a float64 carries without rounding.
const maxExactInt = 1 << 53

// HarmPredicate selects the harm subset: Activity equal to Activity and AIC
// different from ExcludeAIC.
type HarmPredicate struct {
	Activity   string
	ExcludeAIC string
}

// DefaultHarmPredicate returns the suspected self harm predicate excluding
// hoaxes and false alarms.
func DefaultHarmPredicate() HarmPredicate {
	return HarmPredicate{Activity: HarmActivity, ExcludeAIC: HoaxAIC}
}

// Match reports whether a record belongs to the harm subset.
func (p HarmPredicate) Match(r FeatureRecord) bool {
	return r.Activity == p.Activity && r.AIC != p.ExcludeAIC
}

// FilterHarmSubset returns the records matching the predicate, preserving
// input order. The result is never nil.
func FilterHarmSubset(records []FeatureRecord, p HarmPredicate) []FeatureRecord {
	out := make([]FeatureRecord, 0, len(records))
	for _, r := range records {
		if p.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// FlattenFeature derives Latitude (y) and Longitude (x) from the point
// geometry and drops administrative columns. An attribute the feature does
// not carry is treated as null.
func FlattenFeature(f Feature) (FeatureRecord, error) {
	if f.Point == nil {
		geomType := f.GeometryType
		if geomType == "" {
			geomType = "null"
		}
		return FeatureRecord{}, fmt.Errorf("%w: %s", ErrNotPoint, geomType)
	}

	objectID, err := parseObjectID(f.Properties[FieldObjectID])
	if err != nil {
		return FeatureRecord{}, err
	}

	attrs := make(map[string]any, len(f.Properties))
	for k, v := range f.Properties {
		if k == FieldLatitude || k == FieldLongitude || slices.Contains(AdminFields, k) {
			continue
		}
		attrs[k] = v
	}

	return FeatureRecord{
		ObjectID:   objectID,
		Activity:   stringValue(f.Properties[FieldActivity]),
		AIC:        stringValue(f.Properties[FieldAIC]),
		Geo:        Geo{Lat: f.Point.Y, Lon: f.Point.X},
		Attributes: attrs,
	}, nil
}

// FlattenFeatures checks the collection's columns, then flattens every
// feature, failing on the first bad one.
func FlattenFeatures(features []Feature) ([]FeatureRecord, error) {
	if err := CheckColumns(features); err != nil {
		return nil, err
	}
	records := make([]FeatureRecord, 0, len(features))
	for i, f := range features {
		r, err := FlattenFeature(f)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// CheckColumns reports the first required or administrative field that no
// feature in the collection carries. A field present on at least one
// feature is a column of the collection.
func CheckColumns(features []Feature) error {
	for _, name := range slices.Concat(RequiredFields, AdminFields) {
		present := slices.ContainsFunc(features, func(f Feature) bool {
			_, ok := f.Properties[name]
			return ok
		})
		if !present {
			return fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}
	return nil
}

// InferColumns builds the shared column layout for a set of records:
// OBJECTID first, remaining attributes by name, then Latitude and Longitude.
func InferColumns(records []FeatureRecord) []Column {
	names := map[string]struct{}{}
	for _, r := range records {
		for k := range r.Attributes {
			if k == FieldObjectID {
				continue
			}
			names[k] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	cols := make([]Column, 0, len(sorted)+3)
	cols = append(cols, Column{Name: FieldObjectID, Kind: KindInteger})
	for _, name := range sorted {
		cols = append(cols, Column{Name: name, Kind: inferKind(records, name)})
	}
	cols = append(cols,
		Column{Name: FieldLatitude, Kind: KindReal},
		Column{Name: FieldLongitude, Kind: KindReal},
	)
	return cols
}

func inferKind(records []FeatureRecord, name string) ColumnKind {
	var (
		kind ColumnKind
		seen bool
	)
	for _, r := range records {
		v, ok := r.Attributes[name]
		if !ok || v == nil {
			continue
		}
		k := valueKind(v)
		if !seen {
			kind, seen = k, true
			continue
		}
		kind = widen(kind, k)
		if kind == KindText {
			return KindText
		}
	}
	if !seen {
		return KindText
	}
	return kind
}

func valueKind(v any) ColumnKind {
	switch n := v.(type) {
	case bool, int, int32, int64:
		return KindInteger
	case float64:
		if isWhole(n) {
			return KindInteger
		}
		return KindReal
	case json.Number:
		if _, err := n.Int64(); err == nil {
			return KindInteger
		}
		if _, err := n.Float64(); err == nil {
			return KindReal
		}
		return KindText
	default:
		return KindText
	}
}

func widen(a, b ColumnKind) ColumnKind {
	if a == b {
		return a
	}
	if a != KindText && b != KindText {
		return KindReal
	}
	return KindText
}

func isWhole(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f) && math.Abs(f) <= maxExactInt
}

// parseObjectID accepts the numeric forms an OBJECTID takes in GeoJSON exports.
func parseObjectID(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		if !isWhole(n) {
			return 0, fmt.Errorf("%w: %s %v", ErrInvalidField, FieldObjectID, n)
		}
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case json.Number:
		id, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s %q", ErrInvalidField, FieldObjectID, n.String())
		}
		return id, nil
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s %q", ErrInvalidField, FieldObjectID, n)
		}
		return id, nil
	default:
		return 0, fmt.Errorf("%w: %s %v", ErrInvalidField, FieldObjectID, v)
	}
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
