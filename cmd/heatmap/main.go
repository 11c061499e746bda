// Command heatmap builds the RNLI incident heat map: it loads the returns of
// service feature collection into SQLite, reloads the harm subset, and writes
// a standalone Leaflet page.
//
// Usage:
//
//	heatmap            # ingest, then render
//	heatmap ingest     # source file -> store
//	heatmap render     # store -> HTML document
//	heatmap serve      # preview the document with health and metrics
//	heatmap config     # print the effective configuration
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("heatmap failed", "error", err)
		stop()
		os.Exit(1)
	}
}
