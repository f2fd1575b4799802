package feature

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// record is the on-disk form of one feature: a flat envelope with a GeoJSON
// geometry member, one record per line.
type record struct {
	ID       string            `json:"id"`
	Tags     map[string]string `json:"tags,omitempty"`
	Name     Name              `json:"name,omitempty"`
	Street   string            `json:"street,omitempty"`
	Geometry json.RawMessage   `json:"geometry"`
}

// Marshal encodes a feature as a single JSON line (without trailing newline).
func Marshal(f *Feature) ([]byte, error) {
	g, err := toGeom(f)
	if err != nil {
		return nil, err
	}
	rawGeom, err := geojson.Marshal(g)
	if err != nil {
		return nil, eris.Wrapf(err, "feature: encode geometry of %s", f.ID)
	}
	rec := record{
		ID:       f.ID.String(),
		Tags:     f.Tags,
		Name:     f.Name,
		Street:   f.Street,
		Geometry: rawGeom,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrapf(err, "feature: encode %s", f.ID)
	}
	return data, nil
}

// Unmarshal decodes a feature from one JSON line.
func Unmarshal(data []byte) (*Feature, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "feature: decode record")
	}
	id, err := ParseID(rec.ID)
	if err != nil {
		return nil, err
	}
	var g geom.T
	if err := geojson.Unmarshal(rec.Geometry, &g); err != nil {
		return nil, eris.Wrapf(err, "feature: decode geometry of %s", rec.ID)
	}
	f := &Feature{
		ID:     id,
		Tags:   rec.Tags,
		Name:   rec.Name,
		Street: rec.Street,
	}
	if err := fromGeom(f, g); err != nil {
		return nil, err
	}
	return f, nil
}

func toGeom(f *Feature) (geom.T, error) {
	switch f.Kind {
	case KindPoint:
		if len(f.Point) < 2 {
			return nil, eris.Errorf("feature: %s declared point without coordinates", f.ID)
		}
		return geom.NewPointFlat(geom.XY, []float64{f.Point[0], f.Point[1]}), nil
	case KindLine:
		if len(f.Line) == 0 {
			return nil, eris.Errorf("feature: %s declared line without vertices", f.ID)
		}
		return geom.NewLineStringFlat(geom.XY, flatten(f.Line)), nil
	case KindArea:
		if len(f.Area) == 0 {
			return nil, eris.Errorf("feature: %s declared area without ring", f.ID)
		}
		ring := closeRing(f.Area)
		poly := geom.NewPolygonFlat(geom.XY, flatten(ring), []int{len(ring) * 2})
		return poly, nil
	}
	return nil, eris.Errorf("feature: %s has unknown kind", f.ID)
}

func fromGeom(f *Feature, g geom.T) error {
	switch t := g.(type) {
	case *geom.Point:
		f.Kind = KindPoint
		f.Point = geom.Coord{t.X(), t.Y()}
	case *geom.LineString:
		f.Kind = KindLine
		f.Line = t.Coords()
	case *geom.Polygon:
		f.Kind = KindArea
		if t.NumLinearRings() == 0 {
			return eris.Errorf("feature: %s polygon has no rings", f.ID)
		}
		f.Area = openRing(t.LinearRing(0).Coords())
	default:
		return eris.Errorf("feature: %s has unsupported geometry %T", f.ID, g)
	}
	return nil
}

func flatten(coords []geom.Coord) []float64 {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c[0], c[1])
	}
	return flat
}

// closeRing appends the first vertex if the ring is not already closed;
// GeoJSON polygons require closed rings.
func closeRing(ring []geom.Coord) []geom.Coord {
	if len(ring) < 3 {
		return ring
	}
	first, last := ring[0], ring[len(ring)-1]
	if first[0] == last[0] && first[1] == last[1] {
		return ring
	}
	out := make([]geom.Coord, 0, len(ring)+1)
	out = append(out, ring...)
	return append(out, geom.Coord{first[0], first[1]})
}

// openRing strips a closing vertex so the in-memory ring holds each vertex once.
func openRing(ring []geom.Coord) []geom.Coord {
	if len(ring) < 2 {
		return ring
	}
	first, last := ring[0], ring[len(ring)-1]
	if first[0] == last[0] && first[1] == last[1] {
		return ring[:len(ring)-1]
	}
	return ring
}
