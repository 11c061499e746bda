// Command validate checks a finished heat-map run end to end: the source
// feature collection, the SQLite store, the table registry, and the rendered
// document. It verifies row counts, coordinate orientation, harm subset
// membership, and document layer counts.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -source data/RNLI_Returns_of_Service.geojson \
//	  -store data/rnli_data.db \
//	  -document index.html
//
// Unset flags fall back to the same environment configuration the heatmap
// command reads.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/couchcryptid/rnli-heatmap/internal/adapter/geojson"
	"github.com/couchcryptid/rnli-heatmap/internal/adapter/sqlite"
	"github.com/couchcryptid/rnli-heatmap/internal/config"
	"github.com/couchcryptid/rnli-heatmap/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// options names every input the validator reads.
type options struct {
	source    string
	store     string
	document  string
	group     string
	allTable  string
	harmTable string
	predicate domain.HarmPredicate
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}

	opts := options{predicate: domain.HarmPredicate{Activity: cfg.HarmActivity, ExcludeAIC: cfg.HarmExcludeAIC}}
	flag.StringVar(&opts.source, "source", cfg.SourcePath, "path to the source GeoJSON feature collection")
	flag.StringVar(&opts.store, "store", cfg.StorePath, "path to the SQLite store")
	flag.StringVar(&opts.document, "document", cfg.OutputPath, "path to the rendered HTML document; empty skips the document phase")
	flag.StringVar(&opts.group, "group", cfg.StoreGroup, "logical table group")
	flag.StringVar(&opts.allTable, "all-table", cfg.AllTable, "all-data table name")
	flag.StringVar(&opts.harmTable, "harm-table", cfg.HarmTable, "harm-subset table name")
	flag.Parse()

	os.Exit(run(context.Background(), os.Stdout, opts))
}

func run(ctx context.Context, out io.Writer, opts options) int {
	fmt.Fprintln(out, "=== Heat Map Integrity Validation ===")
	fmt.Fprintln(out)

	features, err := geojson.NewReader(opts.source, slog.New(slog.NewTextHandler(io.Discard, nil))).ReadFeatures(ctx)
	if err != nil {
		fmt.Fprintf(out, "FATAL: load source: %v\n", err)
		return 1
	}
	records, err := domain.FlattenFeatures(features)
	if err != nil {
		fmt.Fprintf(out, "FATAL: flatten source: %v\n", err)
		return 1
	}

	store, err := sqlite.OpenExisting(ctx, opts.store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		fmt.Fprintf(out, "FATAL: open store: %v\n", err)
		return 1
	}
	defer store.Close()

	all, err := store.ReadRows(ctx, opts.allTable)
	if err != nil {
		fmt.Fprintf(out, "FATAL: read %s: %v\n", opts.allTable, err)
		return 1
	}
	harm, err := store.ReadRows(ctx, opts.harmTable)
	if err != nil {
		fmt.Fprintf(out, "FATAL: read %s: %v\n", opts.harmTable, err)
		return 1
	}
	registry, err := store.Tables(ctx, opts.group)
	if err != nil {
		fmt.Fprintf(out, "FATAL: read registry: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateCounts(records, all, harm, opts.predicate),
		validateCoordinates(records, all),
		validateHarmMembership(records, harm, opts.predicate),
		validateRegistry(registry, opts, len(all.Values), len(harm.Values)),
	}
	if opts.document != "" {
		phases = append(phases, validateDocument(opts.document, len(harm.Values)))
	}

	fmt.Fprintln(out)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Records: %d source, %d %s, %d %s\n",
		len(records), len(all.Values), opts.allTable, len(harm.Values), opts.harmTable)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Phases ──

func validateCounts(records []domain.FeatureRecord, all, harm sqlite.Rows, pred domain.HarmPredicate) *phase {
	p := &phase{name: "Phase 1: Row counts"}
	if len(all.Values) != len(records) {
		p.errorf("all-data rows: got %d, source has %d features", len(all.Values), len(records))
	}
	want := len(domain.FilterHarmSubset(records, pred))
	if len(harm.Values) != want {
		p.errorf("harm rows: got %d, predicate selects %d", len(harm.Values), want)
	}
	for _, admin := range domain.AdminFields {
		if columnIndex(all, admin) >= 0 {
			p.errorf("administrative column %s was not dropped", admin)
		}
	}
	return p
}

func validateCoordinates(records []domain.FeatureRecord, all sqlite.Rows) *phase {
	p := &phase{name: "Phase 2: Coordinate orientation"}
	byID := indexByObjectID(all)
	latIdx := columnIndex(all, domain.FieldLatitude)
	lonIdx := columnIndex(all, domain.FieldLongitude)
	if latIdx < 0 || lonIdx < 0 {
		p.errorf("missing Latitude/Longitude columns")
		return p
	}

	for _, r := range records {
		row, ok := byID[r.ObjectID]
		if !ok {
			p.errorf("OBJECTID %d: missing from store", r.ObjectID)
			continue
		}
		lat, latOK := row[latIdx].(float64)
		lon, lonOK := row[lonIdx].(float64)
		switch {
		case !latOK || !lonOK:
			p.errorf("OBJECTID %d: non-numeric coordinates %v, %v", r.ObjectID, row[latIdx], row[lonIdx])
		case floatEq(lat, r.Geo.Lon) && floatEq(lon, r.Geo.Lat) && !floatEq(lat, lon):
			p.errorf("OBJECTID %d: latitude and longitude swapped", r.ObjectID)
		case !floatEq(lat, r.Geo.Lat) || !floatEq(lon, r.Geo.Lon):
			p.errorf("OBJECTID %d: got (%v, %v), geometry gives (%v, %v)", r.ObjectID, lat, lon, r.Geo.Lat, r.Geo.Lon)
		}
	}
	return p
}

func validateHarmMembership(records []domain.FeatureRecord, harm sqlite.Rows, pred domain.HarmPredicate) *phase {
	p := &phase{name: "Phase 3: Harm subset membership"}

	want := map[int64]bool{}
	for _, r := range domain.FilterHarmSubset(records, pred) {
		want[r.ObjectID] = true
	}

	actIdx := columnIndex(harm, domain.FieldActivity)
	aicIdx := columnIndex(harm, domain.FieldAIC)
	got := indexByObjectID(harm)
	for id, row := range got {
		if !want[id] {
			p.errorf("OBJECTID %d: in harm table but fails the predicate", id)
		}
		if actIdx >= 0 && row[actIdx] != pred.Activity {
			p.errorf("OBJECTID %d: Activity %v", id, row[actIdx])
		}
		if aicIdx >= 0 && row[aicIdx] == pred.ExcludeAIC {
			p.errorf("OBJECTID %d: AIC %v should be excluded", id, row[aicIdx])
		}
	}
	for id := range want {
		if _, ok := got[id]; !ok {
			p.errorf("OBJECTID %d: matches the predicate but is missing from harm table", id)
		}
	}
	return p
}

func validateRegistry(registry []sqlite.TableInfo, opts options, allRows, harmRows int) *phase {
	p := &phase{name: "Phase 4: Table registry"}
	want := map[string]int{opts.allTable: allRows, opts.harmTable: harmRows}
	runIDs := map[string]bool{}

	for _, info := range registry {
		n, ok := want[info.Name]
		if !ok {
			continue
		}
		if int(info.RowCount) != n {
			p.errorf("%s: registry row_count %d, table has %d rows", info.Name, info.RowCount, n)
		}
		runIDs[info.RunID] = true
		delete(want, info.Name)
	}
	for name := range want {
		p.errorf("%s: not registered in group %s", name, opts.group)
	}
	if len(runIDs) > 1 {
		p.errorf("tables come from %d different runs", len(runIDs))
	}
	return p
}

func validateDocument(path string, harmRows int) *phase {
	p := &phase{name: "Phase 5: Map document"}
	data, err := os.ReadFile(path)
	if err != nil {
		p.errorf("read %s: %v", path, err)
		return p
	}
	html := string(data)

	if n := strings.Count(html, "L.tileLayer("); n != 6 {
		p.errorf("tile layers: got %d, want 6", n)
	}
	if n := strings.Count(html, "L.heatLayer("); n != 1 {
		p.errorf("heat layers: got %d, want 1", n)
	}
	if harmRows == 0 && !strings.Contains(html, "L.heatLayer([]") {
		p.errorf("empty harm subset but heat layer is not empty")
	}
	if !strings.Contains(html, "L.control.layers(") {
		p.errorf("layer control missing")
	}
	if !strings.Contains(html, "L.Control.Draw(") {
		p.errorf("draw control missing")
	}
	return p
}

// ── Helpers ──

func columnIndex(rows sqlite.Rows, name string) int {
	for i, c := range rows.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func indexByObjectID(rows sqlite.Rows) map[int64][]any {
	idx := columnIndex(rows, domain.FieldObjectID)
	out := make(map[int64][]any, len(rows.Values))
	if idx < 0 {
		return out
	}
	for _, row := range rows.Values {
		if id, ok := row[idx].(int64); ok {
			out[id] = row
		}
	}
	return out
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
