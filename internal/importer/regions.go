package importer

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/streetgen/internal/db"
	"github.com/sells-group/streetgen/internal/feature"
	"github.com/sells-group/streetgen/internal/region"
)

// RegionFieldMap names the DBF attributes of a boundaries shapefile.
type RegionFieldMap struct {
	ID          string // numeric region identity column; empty = record number
	Name        string
	Rank        string
	Locality    string
	Suburb      string
	Sublocality string
	Langs       map[string]string
}

// DefaultRegionFieldMap matches the admin boundaries extracts used in-house.
var DefaultRegionFieldMap = RegionFieldMap{
	ID:       "REGION_ID",
	Name:     "NAME",
	Rank:     "ADMIN_RANK",
	Locality: "LOCALITY",
	Suburb:   "SUBURB",
}

// RegionRow is one parsed boundary record.
type RegionRow struct {
	ID         uint64
	Properties region.Properties
	Ring       []shp.Point
}

// ReadRegions parses a boundaries shapefile into region rows. Only the first
// ring of each polygon is kept; holes do not affect street ownership at the
// precision this engine needs.
func ReadRegions(shpPath string, fields RegionFieldMap) ([]RegionRow, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open boundaries %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := indexFields(reader.Fields())

	var rows []RegionRow
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly.NumParts == 0 || len(poly.Points) == 0 {
			skipped++
			continue
		}

		get := func(column string) string {
			if column == "" {
				return ""
			}
			idx, ok := fieldIdx[strings.ToLower(column)]
			if !ok {
				return ""
			}
			return cleanAttr(reader.Attribute(idx))
		}

		row := RegionRow{ID: uint64(n) + 1}
		if raw := get(fields.ID); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "importer: region id %q in record %d", raw, n)
			}
			row.ID = id
		}

		props := region.Properties{Name: map[string]string{}}
		if name := get(fields.Name); name != "" {
			props.Name[feature.DefaultLang] = name
		}
		for lang, column := range fields.Langs {
			if v := get(column); v != "" {
				props.Name[feature.CanonicalLang(lang)] = v
			}
		}
		if rank := get(fields.Rank); rank != "" {
			if r, err := strconv.Atoi(rank); err == nil {
				props.Rank = r
			}
		}
		props.Address.Locality = get(fields.Locality)
		props.Address.Suburb = get(fields.Suburb)
		props.Address.Sublocality = get(fields.Sublocality)
		row.Properties = props

		end := int32(len(poly.Points))
		if poly.NumParts > 1 {
			end = poly.Parts[1]
		}
		row.Ring = poly.Points[poly.Parts[0]:end]

		rows = append(rows, row)
	}

	if skipped > 0 {
		zap.L().Debug("importer: skipped boundary records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return rows, nil
}

// LoadRegionsCatalog writes boundary rows into a local SQLite catalog.
func LoadRegionsCatalog(ctx context.Context, catalog *region.Catalog, rows []RegionRow) error {
	for _, row := range rows {
		ring := pointsToCoords(row.Ring)
		if err := catalog.Insert(ctx, row.ID, row.Properties, ring); err != nil {
			return err
		}
	}
	zap.L().Info("importer: region catalog loaded", zap.Int("regions", len(rows)))
	return nil
}

// LoadRegionsPostGIS bulk-loads boundary rows into geo.admin_regions via
// COPY. Ring geometry is shipped as WKT and converted server-side.
func LoadRegionsPostGIS(ctx context.Context, pool db.Pool, rows []RegionRow) (int64, error) {
	columns := []string{"id", "admin_rank", "properties", "geom_wkt"}
	copyRows := make([][]any, 0, len(rows))
	for _, row := range rows {
		props, err := json.Marshal(row.Properties)
		if err != nil {
			return 0, eris.Wrapf(err, "importer: encode properties of region %d", row.ID)
		}
		copyRows = append(copyRows, []any{
			int64(row.ID),
			row.Properties.Rank,
			string(props),
			ringWKT(row.Ring),
		})
	}
	n, err := db.CopyFromSchema(ctx, pool, "geo", "admin_regions_staging", columns, copyRows)
	if err != nil {
		return 0, err
	}

	promote := `
		INSERT INTO geo.admin_regions (id, admin_rank, properties, geom)
		SELECT id, admin_rank, properties::jsonb, ST_GeomFromText(geom_wkt, 4326)
		FROM geo.admin_regions_staging
		ON CONFLICT (id) DO UPDATE SET
			admin_rank = EXCLUDED.admin_rank,
			properties = EXCLUDED.properties,
			geom       = EXCLUDED.geom`
	if _, err := pool.Exec(ctx, promote); err != nil {
		return 0, eris.Wrap(err, "importer: promote staged regions")
	}
	if _, err := pool.Exec(ctx, "TRUNCATE geo.admin_regions_staging"); err != nil {
		return 0, eris.Wrap(err, "importer: truncate staging")
	}

	zap.L().Info("importer: regions loaded into PostGIS", zap.Int64("rows", n))
	return n, nil
}

func ringWKT(ring []shp.Point) string {
	var b strings.Builder
	b.WriteString("POLYGON((")
	for i, pt := range ring {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(pt.X, 'f', -1, 64))
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(pt.Y, 'f', -1, 64))
	}
	// Close the ring if the source left it open.
	if len(ring) > 0 && (ring[0] != ring[len(ring)-1]) {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(ring[0].X, 'f', -1, 64))
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(ring[0].Y, 'f', -1, 64))
	}
	b.WriteString("))")
	return b.String()
}

func pointsToCoords(points []shp.Point) []geom.Coord {
	coords := make([]geom.Coord, 0, len(points))
	for _, pt := range points {
		coords = append(coords, geom.Coord{pt.X, pt.Y})
	}
	return coords
}
