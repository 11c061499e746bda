package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/rnli-heatmap/internal/config"
	"github.com/couchcryptid/rnli-heatmap/internal/domain"
	"github.com/couchcryptid/rnli-heatmap/internal/mapdoc"
	"github.com/couchcryptid/rnli-heatmap/internal/observability"
)

// Stage labels used in metrics and logs.
const (
	StageIngest = "ingest"
	StageRender = "render"
)

// FeatureSource reads the full source feature collection.
type FeatureSource interface {
	ReadFeatures(ctx context.Context) ([]domain.Feature, error)
}

// TableWriter fully replaces a table within a logical group.
type TableWriter interface {
	ReplaceTable(ctx context.Context, group, runID string, t domain.Table) error
}

// IncidentPublisher exports harm-subset records to a downstream consumer.
type IncidentPublisher interface {
	PublishIncidents(ctx context.Context, records []domain.FeatureRecord) error
}

// CoordinateSource reads the coordinate columns of a stored table.
type CoordinateSource interface {
	LoadCoordinates(ctx context.Context, table string) (domain.CoordinateList, error)
}

// IngestReport summarises one ingest run.
type IngestReport struct {
	RunID   string
	Total   int
	Harm    int
	Columns int
}

// Ingester reads the source collection, derives both tables, and replaces
// them in the store.
type Ingester struct {
	source      FeatureSource
	transformer *Transformer
	writer      TableWriter
	publisher   IncidentPublisher
	group       string
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewIngester creates an Ingester. Pass a nil publisher to skip incident export.
func NewIngester(src FeatureSource, t *Transformer, w TableWriter, pub IncidentPublisher, group string, logger *slog.Logger, metrics *observability.Metrics) *Ingester {
	return &Ingester{
		source:      src,
		transformer: t,
		writer:      w,
		publisher:   pub,
		group:       group,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run executes one ingest. Input errors abort before anything is written.
func (i *Ingester) Run(ctx context.Context) (IngestReport, error) {
	start := time.Now()
	report, err := i.run(ctx)
	i.metrics.StageDuration.WithLabelValues(StageIngest).Observe(time.Since(start).Seconds())
	if err != nil {
		i.metrics.StageFailures.WithLabelValues(StageIngest).Inc()
		return report, err
	}
	i.metrics.LastSuccess.WithLabelValues(StageIngest).Set(float64(domain.Now().Unix()))
	return report, nil
}

func (i *Ingester) run(ctx context.Context) (IngestReport, error) {
	report := IngestReport{RunID: uuid.NewString()}
	logger := i.logger.With("run_id", report.RunID)

	features, err := i.source.ReadFeatures(ctx)
	if err != nil {
		return report, fmt.Errorf("read features: %w", err)
	}
	i.metrics.FeaturesRead.Add(float64(len(features)))
	logger.Info("features read", "count", len(features))

	all, harm, err := i.transformer.Tables(features)
	if err != nil {
		return report, fmt.Errorf("transform features: %w", err)
	}
	report.Total = len(all.Records)
	report.Harm = len(harm.Records)
	report.Columns = len(all.Columns)

	for _, t := range []domain.Table{all, harm} {
		if err := i.writer.ReplaceTable(ctx, i.group, report.RunID, t); err != nil {
			return report, fmt.Errorf("write %s: %w", t.Name, err)
		}
		i.metrics.RowsWritten.WithLabelValues(t.Name).Add(float64(len(t.Records)))
		logger.Info("table replaced", "group", i.group, "table", t.Name, "rows", len(t.Records))
	}

	if i.publisher != nil {
		if err := i.publisher.PublishIncidents(ctx, harm.Records); err != nil {
			return report, fmt.Errorf("publish incidents: %w", err)
		}
		i.metrics.IncidentsPublished.Add(float64(len(harm.Records)))
		logger.Info("incidents published", "count", len(harm.Records))
	}

	logger.Info("ingest complete", "total", report.Total, "harm", report.Harm, "columns", report.Columns)
	return report, nil
}

// AssembleReport summarises one render.
type AssembleReport struct {
	Points int
	Output string
}

// Assembler reloads the harm subset and writes the map document.
type Assembler struct {
	source  CoordinateSource
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAssembler creates an Assembler rendering cfg.HarmTable to cfg.OutputPath.
func NewAssembler(src CoordinateSource, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Assembler {
	return &Assembler{source: src, cfg: cfg, logger: logger, metrics: metrics}
}

// Run loads the coordinates, builds the document, and overwrites the output file.
func (a *Assembler) Run(ctx context.Context) (AssembleReport, error) {
	start := time.Now()
	report, err := a.run(ctx)
	a.metrics.StageDuration.WithLabelValues(StageRender).Observe(time.Since(start).Seconds())
	if err != nil {
		a.metrics.StageFailures.WithLabelValues(StageRender).Inc()
		return report, err
	}
	a.metrics.LastSuccess.WithLabelValues(StageRender).Set(float64(domain.Now().Unix()))
	return report, nil
}

func (a *Assembler) run(ctx context.Context) (AssembleReport, error) {
	report := AssembleReport{Output: a.cfg.OutputPath}

	coords, err := a.source.LoadCoordinates(ctx, a.cfg.HarmTable)
	if err != nil {
		return report, fmt.Errorf("load %s: %w", a.cfg.HarmTable, err)
	}
	report.Points = coords.Len()
	if report.Points == 0 {
		a.logger.Warn("harm subset is empty, rendering empty heat layer", "table", a.cfg.HarmTable)
	}

	doc, err := mapdoc.New(a.cfg, coords)
	if err != nil {
		return report, fmt.Errorf("build map document: %w", err)
	}
	if err := mapdoc.WriteFile(a.cfg.OutputPath, doc); err != nil {
		return report, fmt.Errorf("write map document: %w", err)
	}

	a.metrics.HeatPoints.Set(float64(report.Points))
	a.logger.Info("map document written", "path", a.cfg.OutputPath, "points", report.Points, "layers", len(doc.Basemaps))
	return report, nil
}

// CheckReadiness returns nil once the map document exists on disk.
func (a *Assembler) CheckReadiness(ctx context.Context) error {
	return DocumentReadiness{Path: a.cfg.OutputPath}.CheckReadiness(ctx)
}

// DocumentReadiness reports ready once a rendered document exists at Path.
type DocumentReadiness struct {
	Path string
}

func (d DocumentReadiness) CheckReadiness(_ context.Context) error {
	info, err := os.Stat(d.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.New("map document has not been rendered yet")
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", d.Path)
	}
	return nil
}
