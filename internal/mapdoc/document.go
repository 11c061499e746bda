// Package mapdoc assembles and renders the standalone HTML heat-map document.
//
// The document is a single Leaflet page: six raster basemaps, a heat layer
// over the harm subset inside its own feature group, a draw toolbar with
// GeoJSON export, and a layer control. Leaflet and its plugins load from a
// CDN; only tile URL templates and coordinates are embedded.
package mapdoc

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/rnli-heatmap/internal/config"
	"github.com/couchcryptid/rnli-heatmap/internal/domain"
)

//go:embed templates/map.html.tmpl
var templates embed.FS

var page = template.Must(template.New("map.html.tmpl").Funcs(template.FuncMap{
	"js": toJS,
}).ParseFS(templates, "templates/map.html.tmpl"))

// ErrInvalidCoordinate reports a coordinate that is not a finite number.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// HeatLayer is the density overlay. Options mirror Leaflet.heat.
type HeatLayer struct {
	Name       string
	Points     [][2]float64
	Radius     int
	Blur       int
	MinOpacity float64
	MaxZoom    int
}

// DrawControl configures the Leaflet.draw toolbar and its export button.
type DrawControl struct {
	Export       bool
	Filename     string
	Position     string
	Polyline     bool
	Polygon      bool
	Rectangle    bool
	Circle       bool
	Marker       bool
	CircleMarker bool
}

// Document is everything needed to render the map page.
type Document struct {
	Title        string
	Center       domain.Geo
	Zoom         int
	Basemaps     []TileLayer
	Heat         HeatLayer
	Draw         DrawControl
	LayerControl bool
	GeneratedAt  time.Time
}

// New builds the document for cfg over the given coordinates. It fails with
// ErrInvalidCoordinate if any coordinate is NaN or infinite.
func New(cfg *config.Config, coords domain.CoordinateList) (*Document, error) {
	center := domain.Geo{Lat: cfg.MapCenterLat, Lon: cfg.MapCenterLon}
	if !center.Valid() {
		return nil, fmt.Errorf("%w: map center %v,%v", ErrInvalidCoordinate, center.Lat, center.Lon)
	}

	points := coords.Pairs()
	for i, p := range points {
		if !(domain.Geo{Lat: p[0], Lon: p[1]}).Valid() {
			return nil, fmt.Errorf("%w: point %d (%v, %v)", ErrInvalidCoordinate, i, p[0], p[1])
		}
	}

	return &Document{
		Title:    cfg.MapTitle,
		Center:   center,
		Zoom:     cfg.MapZoom,
		Basemaps: DefaultBasemaps(),
		Heat: HeatLayer{
			Name:       "Heat Map",
			Points:     points,
			Radius:     25,
			Blur:       15,
			MinOpacity: 0.5,
			MaxZoom:    18,
		},
		Draw: DrawControl{
			Export:       true,
			Filename:     cfg.DrawExportFilename,
			Position:     "topleft",
			Polyline:     true,
			Polygon:      true,
			Rectangle:    true,
			Circle:       true,
			Marker:       true,
			CircleMarker: true,
		},
		LayerControl: true,
		GeneratedAt:  domain.Now(),
	}, nil
}

// Render writes the HTML page to w.
func (d *Document) Render(w io.Writer) error {
	for i, p := range d.Heat.Points {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return fmt.Errorf("%w: point %d", ErrInvalidCoordinate, i)
		}
	}
	view := *d
	if view.Heat.Points == nil {
		view.Heat.Points = [][2]float64{}
	}
	if err := page.Execute(w, view); err != nil {
		return fmt.Errorf("render map document: %w", err)
	}
	return nil
}

// WriteFile renders d to path, replacing any existing file. The page is
// rendered into a temporary file in the same directory and renamed into
// place, so readers never see a partial document.
func WriteFile(path string, d *Document) error {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".heatmap-*.html")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp output: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp output: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// toJS marshals v as a JavaScript literal. encoding/json escapes <, > and &,
// so the result cannot close the surrounding script element.
func toJS(v any) (template.JS, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return template.JS(b), nil
}
