// Package importer converts source shapefiles into the raw feature streams
// and region catalogs consumed by the aggregation engine.
package importer

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/streetgen/internal/feature"
)

// FieldMap names the DBF attributes carrying feature metadata. Language
// name columns map language code to column name.
type FieldMap struct {
	Name   string            // display name column
	Class  string            // highway/place class column
	Street string            // addr:street binding column
	Langs  map[string]string // lang code -> column name
}

// DefaultFieldMap matches TIGER-style road shapefiles.
var DefaultFieldMap = FieldMap{
	Name:   "FULLNAME",
	Class:  "MTFCC",
	Street: "STREET",
}

// ImportFeatures reads a shapefile and collects one feature record per shape
// part. Native identities are derived from the record and part numbers, so
// re-imports reproduce the same identities.
func ImportFeatures(shpPath string, fields FieldMap, collector *feature.Collector) (int, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return 0, eris.Wrapf(err, "importer: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := indexFields(reader.Fields())

	var (
		count   int
		skipped int
	)
	for reader.Next() {
		n, shape := reader.Shape()
		record := n

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

		base := feature.Feature{
			Tags:   map[string]string{},
			Name:   feature.Name{},
			Street: get(fields.Street),
		}
		if name := get(fields.Name); name != "" {
			base.Name[feature.DefaultLang] = name
		}
		for lang, column := range fields.Langs {
			if v := get(column); v != "" {
				base.Name[feature.CanonicalLang(lang)] = v
			}
		}
		if class := get(fields.Class); class != "" {
			base.Tags["highway"] = class
		}

		emitted, err := emitShape(&base, record, shape, collector)
		if err != nil {
			return count, err
		}
		if emitted == 0 {
			skipped++
		}
		count += emitted
	}

	if skipped > 0 {
		zap.L().Debug("importer: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return count, nil
}

// emitShape converts one shape into features. Multi-part shapes become one
// feature per part; the native serial packs record and part numbers so split
// parts keep distinct deterministic identities.
func emitShape(base *feature.Feature, record int, shape shp.Shape, collector *feature.Collector) (int, error) {
	switch s := shape.(type) {
	case *shp.Point:
		f := base.Clone()
		f.ID = nativeSerial(record, 0)
		f.Kind = feature.KindPoint
		f.Point = geom.Coord{s.X, s.Y}
		return 1, collector.Collect(f)

	case *shp.PolyLine:
		emitted := 0
		for part, coords := range shapeParts(s.NumParts, s.Parts, s.Points) {
			if len(coords) < 2 {
				continue
			}
			f := base.Clone()
			f.ID = nativeSerial(record, part)
			f.Kind = feature.KindLine
			f.Line = coords
			if err := collector.Collect(f); err != nil {
				return emitted, err
			}
			emitted++
		}
		return emitted, nil

	case *shp.Polygon:
		emitted := 0
		for part, coords := range shapeParts(s.NumParts, s.Parts, s.Points) {
			if len(coords) < 3 {
				continue
			}
			f := base.Clone()
			f.ID = nativeSerial(record, part)
			f.Kind = feature.KindArea
			f.Area = coords
			if err := collector.Collect(f); err != nil {
				return emitted, err
			}
			emitted++
		}
		return emitted, nil
	}
	return 0, nil
}

// nativeSerial packs record and part numbers into one deterministic serial.
func nativeSerial(record, part int) feature.ID {
	return feature.NativeID(uint64(record)<<8 | uint64(part)&0xff)
}

// shapeParts splits a multi-part shape's point array into per-part slices.
func shapeParts(numParts int32, parts []int32, points []shp.Point) [][]geom.Coord {
	if numParts == 0 || len(points) == 0 {
		return nil
	}
	out := make([][]geom.Coord, 0, numParts)
	for i := int32(0); i < numParts; i++ {
		start := parts[i]
		end := int32(len(points))
		if i+1 < numParts {
			end = parts[i+1]
		}
		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			coords = append(coords, geom.Coord{points[j].X, points[j].Y})
		}
		out = append(out, coords)
	}
	return out
}

func indexFields(fields []shp.Field) map[string]int {
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		idx[strings.ToLower(name)] = i
	}
	return idx
}

func cleanAttr(v string) string {
	return strings.TrimSpace(strings.TrimRight(v, "\x00"))
}
