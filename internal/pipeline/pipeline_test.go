package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rnli-heatmap/internal/config"
	"github.com/couchcryptid/rnli-heatmap/internal/domain"
	"github.com/couchcryptid/rnli-heatmap/internal/observability"
	"github.com/couchcryptid/rnli-heatmap/internal/pipeline"
)

// --- mocks ---

type mockSource struct {
	features []domain.Feature
	err      error
}

func (m *mockSource) ReadFeatures(_ context.Context) ([]domain.Feature, error) {
	return m.features, m.err
}

type mockWriter struct {
	tables []domain.Table
	groups []string
	runIDs []string
	err    error
}

func (m *mockWriter) ReplaceTable(_ context.Context, group, runID string, t domain.Table) error {
	if m.err != nil {
		return m.err
	}
	m.tables = append(m.tables, t)
	m.groups = append(m.groups, group)
	m.runIDs = append(m.runIDs, runID)
	return nil
}

type mockPublisher struct {
	published []domain.FeatureRecord
	err       error
}

func (m *mockPublisher) PublishIncidents(_ context.Context, records []domain.FeatureRecord) error {
	m.published = append(m.published, records...)
	return m.err
}

type mockCoords struct {
	coords domain.CoordinateList
	err    error
	table  string
}

func (m *mockCoords) LoadCoordinates(_ context.Context, table string) (domain.CoordinateList, error) {
	m.table = table
	return m.coords, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTransformer() *pipeline.Transformer {
	return pipeline.NewTransformer("all_data", "harm_data", domain.DefaultHarmPredicate(), discardLogger())
}

func feature(id float64, activity, aic any, lon, lat float64) domain.Feature {
	return domain.Feature{
		GeometryType: "Point",
		Point:        &domain.Point{X: lon, Y: lat},
		Properties: map[string]any{
			"OBJECTID":     id,
			"Activity":     activity,
			"AIC":          aic,
			"Station":      "Calshot",
			"GlobalID":     "{00000000-0000-0000-0000-000000000000}",
			"CreationDate": "2023-01-04T10:00:00Z",
			"Creator":      "rnli_admin",
			"EditDate":     "2023-01-05T10:00:00Z",
			"Editor":       "rnli_admin",
		},
	}
}

// --- ingest ---

func TestIngester_Run_WritesBothTables(t *testing.T) {
	src := &mockSource{features: []domain.Feature{
		feature(1, domain.HarmActivity, "Person in danger", -1.40, 50.90),
		feature(2, domain.HarmActivity, domain.HoaxAIC, -1.30, 50.80),
		feature(3, "WALKING", "Person in danger", -1.20, 50.70),
	}}
	w := &mockWriter{}
	pub := &mockPublisher{}
	metrics := observability.NewMetricsForTesting()

	ing := pipeline.NewIngester(src, newTransformer(), w, pub, "rnli", discardLogger(), metrics)
	report, err := ing.Run(context.Background())
	require.NoError(t, err)

	_, err = uuid.Parse(report.RunID)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Harm)

	require.Len(t, w.tables, 2)
	assert.Equal(t, "all_data", w.tables[0].Name)
	assert.Equal(t, "harm_data", w.tables[1].Name)
	assert.Len(t, w.tables[0].Records, 3)
	require.Len(t, w.tables[1].Records, 1)
	assert.Equal(t, int64(1), w.tables[1].Records[0].ObjectID)
	assert.Equal(t, w.tables[0].Columns, w.tables[1].Columns)
	assert.Equal(t, []string{"rnli", "rnli"}, w.groups)
	assert.Equal(t, []string{report.RunID, report.RunID}, w.runIDs)

	require.Len(t, pub.published, 1)
	assert.Equal(t, int64(1), pub.published[0].ObjectID)

	assert.InDelta(t, 3, testutil.ToFloat64(metrics.FeaturesRead), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(metrics.RowsWritten.WithLabelValues("all_data")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RowsWritten.WithLabelValues("harm_data")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.IncidentsPublished), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.StageFailures.WithLabelValues(pipeline.StageIngest)), 0)
}

func TestIngester_Run_NilPublisher(t *testing.T) {
	src := &mockSource{features: []domain.Feature{feature(1, domain.HarmActivity, nil, 0, 0)}}
	w := &mockWriter{}

	ing := pipeline.NewIngester(src, newTransformer(), w, nil, "rnli", discardLogger(), observability.NewMetricsForTesting())
	report, err := ing.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Harm, "null AIC is kept in the harm subset")
}

func TestIngester_Run_SourceErrorWritesNothing(t *testing.T) {
	src := &mockSource{err: os.ErrNotExist}
	w := &mockWriter{}
	metrics := observability.NewMetricsForTesting()

	ing := pipeline.NewIngester(src, newTransformer(), w, nil, "rnli", discardLogger(), metrics)
	_, err := ing.Run(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, w.tables)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.StageFailures.WithLabelValues(pipeline.StageIngest)), 0)
}

func TestIngester_Run_InputErrorWritesNothing(t *testing.T) {
	bad := feature(2, domain.HarmActivity, "x", 0, 0)
	bad.Point = nil
	src := &mockSource{features: []domain.Feature{feature(1, domain.HarmActivity, "x", 0, 0), bad}}
	w := &mockWriter{}

	ing := pipeline.NewIngester(src, newTransformer(), w, nil, "rnli", discardLogger(), observability.NewMetricsForTesting())
	_, err := ing.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrNotPoint)
	assert.Contains(t, err.Error(), "feature 1")
	assert.Empty(t, w.tables)
}

func TestIngester_Run_MissingColumnWritesNothing(t *testing.T) {
	features := []domain.Feature{
		feature(1, domain.HarmActivity, "x", 0, 0),
		feature(2, "WALKING", "x", 0, 0),
	}
	for _, f := range features {
		delete(f.Properties, "EditDate")
	}
	w := &mockWriter{}

	ing := pipeline.NewIngester(&mockSource{features: features}, newTransformer(), w, nil, "rnli", discardLogger(), observability.NewMetricsForTesting())
	_, err := ing.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrMissingField)
	assert.Contains(t, err.Error(), "EditDate")
	assert.Empty(t, w.tables)
}

func TestIngester_Run_WriteErrorSkipsPublish(t *testing.T) {
	src := &mockSource{features: []domain.Feature{feature(1, domain.HarmActivity, "x", 0, 0)}}
	w := &mockWriter{err: errors.New("disk full")}
	pub := &mockPublisher{}

	ing := pipeline.NewIngester(src, newTransformer(), w, pub, "rnli", discardLogger(), observability.NewMetricsForTesting())
	_, err := ing.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write all_data")
	assert.Empty(t, pub.published)
}

func TestIngester_Run_PublishError(t *testing.T) {
	src := &mockSource{features: []domain.Feature{feature(1, domain.HarmActivity, "x", 0, 0)}}
	pub := &mockPublisher{err: errors.New("broker down")}

	ing := pipeline.NewIngester(src, newTransformer(), &mockWriter{}, pub, "rnli", discardLogger(), observability.NewMetricsForTesting())
	_, err := ing.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish incidents")
}

// --- assemble ---

func assemblerConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.OutputPath = filepath.Join(t.TempDir(), "index.html")
	return cfg
}

func TestAssembler_Run(t *testing.T) {
	cfg := assemblerConfig(t)
	var coords domain.CoordinateList
	coords.Append(50.91, -1.41)
	coords.Append(50.85, -1.29)
	src := &mockCoords{coords: coords}
	metrics := observability.NewMetricsForTesting()

	asm := pipeline.NewAssembler(src, cfg, discardLogger(), metrics)
	require.Error(t, asm.CheckReadiness(context.Background()))

	report, err := asm.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "harm_data", src.table)
	assert.Equal(t, 2, report.Points)
	assert.Equal(t, cfg.OutputPath, report.Output)
	assert.FileExists(t, cfg.OutputPath)
	require.NoError(t, asm.CheckReadiness(context.Background()))
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.HeatPoints), 0)
}

func TestAssembler_Run_LoadErrorLeavesOutput(t *testing.T) {
	cfg := assemblerConfig(t)
	require.NoError(t, os.WriteFile(cfg.OutputPath, []byte("previous"), 0o600))
	src := &mockCoords{err: errors.New("table not found")}
	metrics := observability.NewMetricsForTesting()

	_, err := pipeline.NewAssembler(src, cfg, discardLogger(), metrics).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load harm_data")

	data, err := os.ReadFile(cfg.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.StageFailures.WithLabelValues(pipeline.StageRender)), 0)
}
