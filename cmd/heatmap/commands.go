package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	httpadapter "github.com/couchcryptid/rnli-heatmap/internal/adapter/http"
	"github.com/couchcryptid/rnli-heatmap/internal/adapter/geojson"
	kafkaadapter "github.com/couchcryptid/rnli-heatmap/internal/adapter/kafka"
	"github.com/couchcryptid/rnli-heatmap/internal/adapter/sqlite"
	"github.com/couchcryptid/rnli-heatmap/internal/config"
	"github.com/couchcryptid/rnli-heatmap/internal/domain"
	"github.com/couchcryptid/rnli-heatmap/internal/observability"
	"github.com/couchcryptid/rnli-heatmap/internal/pipeline"
)

// app carries the loaded configuration and shared observability into each
// subcommand.
type app struct {
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "heatmap",
		Short: "Build the RNLI self harm incident heat map",
		Long: `heatmap reads the RNLI returns of service GeoJSON export, stores every
incident and the suspected self harm subset in SQLite, and renders the
subset as a heat layer on a standalone Leaflet page.

Without a subcommand it runs ingest followed by render.`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runStages(cmd.Context(), a.ingest, a.render)
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "optional dotenv file loaded before reading the environment")

	root.AddCommand(
		&cobra.Command{
			Use:   "ingest",
			Short: "Load the source feature collection into the store",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runStages(cmd.Context(), a.ingest)
			},
		},
		&cobra.Command{
			Use:   "render",
			Short: "Render the map document from the stored harm subset",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runStages(cmd.Context(), a.render)
			},
		},
		newServeCmd(a),
		&cobra.Command{
			Use:   "config",
			Short: "Print the effective configuration as YAML",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return writeConfig(cmd.OutOrStdout(), a.cfg)
			},
		},
	)
	return root
}

func newServeCmd(a *app) *cobra.Command {
	var build bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the rendered map with health, readiness, and metrics endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if build {
				if err := a.runStages(cmd.Context(), a.ingest, a.render); err != nil {
					return err
				}
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&build, "build", false, "run ingest and render before serving")
	return cmd
}

func (a *app) setup(_ *cobra.Command, _ []string) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.logger = observability.NewLogger(cfg)
	a.metrics = observability.NewMetrics()
	slog.SetDefault(a.logger)
	return nil
}

// runStages runs each stage in order, stopping at the first error. The
// metrics textfile is written afterwards either way.
func (a *app) runStages(ctx context.Context, stages ...func(context.Context) error) error {
	defer a.flushMetrics()
	for _, stage := range stages {
		if err := stage(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) flushMetrics() {
	if a.cfg.MetricsTextfile == "" {
		return
	}
	if err := a.metrics.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
		a.logger.Error("write metrics textfile failed", "error", err, "path", a.cfg.MetricsTextfile)
	}
}

func (a *app) ingest(ctx context.Context) error {
	store, err := sqlite.Open(ctx, a.cfg.StorePath, a.logger)
	if err != nil {
		return err
	}
	defer closeWithLog(a.logger, "store", store)

	var publisher pipeline.IncidentPublisher
	if a.cfg.KafkaEnabled() {
		writer := kafkaadapter.NewWriter(a.cfg, a.logger)
		defer closeWithLog(a.logger, "kafka writer", writer)
		publisher = writer
		a.logger.Info("incident export enabled", "brokers", a.cfg.KafkaBrokers, "topic", a.cfg.KafkaTopic)
	}

	transformer := pipeline.NewTransformer(a.cfg.AllTable, a.cfg.HarmTable, domain.HarmPredicate{
		Activity:   a.cfg.HarmActivity,
		ExcludeAIC: a.cfg.HarmExcludeAIC,
	}, a.logger)
	source := geojson.NewReader(a.cfg.SourcePath, a.logger)

	ing := pipeline.NewIngester(source, transformer, store, publisher, a.cfg.StoreGroup, a.logger, a.metrics)
	_, err = ing.Run(ctx)
	return err
}

func (a *app) render(ctx context.Context) error {
	store, err := sqlite.OpenExisting(ctx, a.cfg.StorePath, a.logger)
	if err != nil {
		return err
	}
	defer closeWithLog(a.logger, "store", store)

	_, err = pipeline.NewAssembler(store, a.cfg, a.logger, a.metrics).Run(ctx)
	return err
}

func (a *app) serve(ctx context.Context) error {
	readiness := pipeline.DocumentReadiness{Path: a.cfg.OutputPath}
	srv := httpadapter.NewServer(a.cfg.HTTPAddr, a.cfg.OutputPath, readiness, a.metrics.Gatherer(), a.logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

func writeConfig(w io.Writer, cfg *config.Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	_, err = w.Write(out)
	return err
}

func closeWithLog(logger *slog.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error(name+" close error", "error", err)
	}
}
