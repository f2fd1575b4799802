package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/streetgen/internal/db"
	"github.com/sells-group/streetgen/internal/importer"
	"github.com/sells-group/streetgen/internal/region"
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Manage the administrative region catalog",
}

var regionsLoadCmd = &cobra.Command{
	Use:   "load <boundaries.shp>",
	Short: "Load administrative boundaries into the configured region backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log := zap.L().With(zap.String("command", "regions load"))

		fields := importer.DefaultRegionFieldMap
		if id, _ := cmd.Flags().GetString("id-field"); id != "" {
			fields.ID = id
		}
		if name, _ := cmd.Flags().GetString("name-field"); name != "" {
			fields.Name = name
		}

		rows, err := importer.ReadRegions(args[0], fields)
		if err != nil {
			return eris.Wrap(err, "regions load")
		}
		log.Info("boundaries parsed", zap.Int("regions", len(rows)))

		switch cfg.Region.Backend {
		case "postgis":
			pool, err := db.Connect(ctx, cfg.Region.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			n, err := importer.LoadRegionsPostGIS(ctx, pool, rows)
			if err != nil {
				return eris.Wrap(err, "regions load")
			}
			log.Info("regions loaded", zap.Int64("rows", n))

		case "sqlite":
			catalog, err := region.OpenCatalog(cfg.Region.CatalogPath)
			if err != nil {
				return err
			}
			defer func() { _ = catalog.Close() }()
			if err := catalog.Migrate(ctx); err != nil {
				return err
			}
			if err := importer.LoadRegionsCatalog(ctx, catalog, rows); err != nil {
				return eris.Wrap(err, "regions load")
			}

		default:
			return eris.Errorf("regions load: unknown region backend %q", cfg.Region.Backend)
		}

		return nil
	},
}

func init() {
	regionsLoadCmd.Flags().String("id-field", "", "DBF column carrying the region identity")
	regionsLoadCmd.Flags().String("name-field", "", "DBF column carrying the region name")
	regionsCmd.AddCommand(regionsLoadCmd)
	rootCmd.AddCommand(regionsCmd)
}
