package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/streetgen/internal/db"
	"github.com/sells-group/streetgen/internal/feature"
	"github.com/sells-group/streetgen/internal/region"
	"github.com/sells-group/streetgen/internal/streets"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Run the street aggregation passes and export street records",
	Long: `Runs the three aggregation passes: assemble streets from the street stream,
bind address points from the geo-objects stream, then rewrite the street
stream with aggregated geometry. Finishes with the per-street key-value
export.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.L().With(zap.String("command", "assemble"))

		threads, _ := cmd.Flags().GetInt("threads")
		if threads <= 0 {
			threads = cfg.Generator.Threads
		}
		skipBindings, _ := cmd.Flags().GetBool("skip-bindings")

		finder, getter, cleanup, err := openRegionBackend(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		builder := streets.NewBuilder(finder, streets.WithThreads(threads))
		streetsSrc := feature.NewFileSource(cfg.Streams.Streets)

		log.Info("starting street assembly",
			zap.Int("threads", threads),
			zap.String("streets_stream", cfg.Streams.Streets),
			zap.String("geo_objects_stream", cfg.Streams.GeoObjects),
		)

		if err := builder.AssembleStreets(ctx, streetsSrc); err != nil {
			return eris.Wrap(err, "assemble")
		}

		if !skipBindings {
			bindingsSrc := feature.NewFileSource(cfg.Streams.GeoObjects)
			if err := builder.AssembleBindings(ctx, bindingsSrc); err != nil {
				return eris.Wrap(err, "assemble")
			}
		}

		// Passes 1-2 are complete here; pass 3 and the export read the
		// finalized registry.
		if err := builder.RegenerateAggregatedStreetsFeatures(ctx, streetsSrc, cfg.Streams.Streets); err != nil {
			return eris.Wrap(err, "assemble")
		}

		out, err := os.Create(cfg.Streams.StreetsKV)
		if err != nil {
			return eris.Wrapf(err, "assemble: create %s", cfg.Streams.StreetsKV)
		}
		defer func() { _ = out.Close() }()
		w := bufio.NewWriter(out)
		if err := builder.SaveStreetsKv(ctx, getter, w); err != nil {
			return eris.Wrap(err, "assemble")
		}
		if err := w.Flush(); err != nil {
			return eris.Wrapf(err, "assemble: flush %s", cfg.Streams.StreetsKV)
		}

		log.Info("street assembly complete", zap.String("kv", cfg.Streams.StreetsKV))
		return nil
	},
}

// openRegionBackend wires the configured region-ownership backend.
func openRegionBackend(ctx context.Context) (region.Finder, region.Getter, func(), error) {
	switch cfg.Region.Backend {
	case "postgis":
		pool, err := db.Connect(ctx, cfg.Region.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		finder := region.NewPostGISFinder(pool)
		return finder, finder, pool.Close, nil

	case "sqlite":
		catalog, err := region.OpenCatalog(cfg.Region.CatalogPath)
		if err != nil {
			return nil, nil, nil, err
		}
		index, err := catalog.LoadIndex(ctx)
		if err != nil {
			_ = catalog.Close()
			return nil, nil, nil, err
		}
		return index, catalog, func() { _ = catalog.Close() }, nil
	}
	return nil, nil, nil, eris.Errorf("assemble: unknown region backend %q", cfg.Region.Backend)
}

func init() {
	assembleCmd.Flags().Int("threads", 0, "worker threads (default: from config or NumCPU; 1 = deterministic)")
	assembleCmd.Flags().Bool("skip-bindings", false, "skip the address-binding pass")
	rootCmd.AddCommand(assembleCmd)
}
