// Package geojson reads incident feature collections from GeoJSON files.
package geojson

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/rnli-heatmap/internal/domain"
	"github.com/paulmach/orb"
	orbjson "github.com/paulmach/orb/geojson"
)

// Reader loads a feature collection from a file path.
// It implements pipeline.FeatureSource.
type Reader struct {
	path   string
	logger *slog.Logger
}

// NewReader creates a Reader for the GeoJSON file at path.
func NewReader(path string, logger *slog.Logger) *Reader {
	return &Reader{path: path, logger: logger}
}

// ReadFeatures reads and decodes the whole file. Point geometries are
// converted to domain points; any other geometry is passed through as a
// typed but point-less feature so flattening can reject it.
func (r *Reader) ReadFeatures(ctx context.Context) ([]domain.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read feature collection: %w", err)
	}

	features, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.path, err)
	}

	r.logger.Debug("feature collection decoded", "path", r.path, "features", len(features))
	return features, nil
}

// Decode parses GeoJSON FeatureCollection bytes into domain features.
func Decode(data []byte) ([]domain.Feature, error) {
	fc, err := orbjson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	features := make([]domain.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		features = append(features, toDomain(f))
	}
	return features, nil
}

func toDomain(f *orbjson.Feature) domain.Feature {
	props := map[string]any(f.Properties)
	if props == nil {
		props = map[string]any{}
	}

	out := domain.Feature{Properties: props}
	if f.Geometry == nil {
		return out
	}

	out.GeometryType = f.Geometry.GeoJSONType()
	if p, ok := f.Geometry.(orb.Point); ok {
		out.Point = &domain.Point{X: p.X(), Y: p.Y()}
	}
	return out
}

// Encode writes point features as a GeoJSON FeatureCollection.
func Encode(features []domain.Feature) ([]byte, error) {
	fc := orbjson.NewFeatureCollection()
	for i, f := range features {
		if f.Point == nil {
			return nil, fmt.Errorf("feature %d: %w", i, errors.New("only point features can be encoded"))
		}
		feat := orbjson.NewFeature(orb.Point{f.Point.X, f.Point.Y})
		for k, v := range f.Properties {
			feat.Properties[k] = v
		}
		fc.Append(feat)
	}
	return fc.MarshalJSON()
}
