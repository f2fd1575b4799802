package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/streetgen/internal/feature"
	"github.com/sells-group/streetgen/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <roads.shp>",
	Short: "Convert a roads shapefile into the raw street feature stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zap.L().With(zap.String("command", "import"))

		fields := importer.DefaultFieldMap
		if name, _ := cmd.Flags().GetString("name-field"); name != "" {
			fields.Name = name
		}
		if class, _ := cmd.Flags().GetString("class-field"); class != "" {
			fields.Class = class
		}
		if street, _ := cmd.Flags().GetString("street-field"); street != "" {
			fields.Street = street
		}

		dest, _ := cmd.Flags().GetString("out")
		if dest == "" {
			dest = cfg.Streams.Streets
		}

		collector, err := feature.NewCollector(dest)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		count, err := importer.ImportFeatures(args[0], fields, collector)
		if err != nil {
			collector.Abort()
			return eris.Wrap(err, "import")
		}
		if err := collector.Finish(); err != nil {
			return eris.Wrap(err, "import")
		}

		log.Info("feature stream imported",
			zap.String("source", args[0]),
			zap.String("dest", dest),
			zap.Int("features", count),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().String("out", "", "output stream path (default: streams.streets from config)")
	importCmd.Flags().String("name-field", "", "DBF column carrying the display name")
	importCmd.Flags().String("class-field", "", "DBF column carrying the road class")
	importCmd.Flags().String("street-field", "", "DBF column carrying the addr:street binding")
	rootCmd.AddCommand(importCmd)
}
