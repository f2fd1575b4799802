package streets

import (
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/streetgen/internal/feature"
)

// Pin is a street's representative point together with the identity of the
// source element that produced it.
type Pin struct {
	Position geom.Coord
	ID       feature.ID
}

// Geometry accumulates the geometric contributions of one street: at most one
// pin, highway line segments and area polygons keyed by contributing element
// identity, and address-binding point evidence. Identity keying guarantees a
// raw element is never double-counted across passes.
//
// Geometry is not self-synchronized; all mutation happens under the registry
// lock.
type Geometry struct {
	pin      *Pin
	lines    map[feature.ID][][]geom.Coord
	areas    map[feature.ID][]geom.Coord
	bindings map[feature.ID]geom.Coord
}

// SetPin records the street's representative point. The first accepted pin
// wins; later candidates are ignored.
func (g *Geometry) SetPin(pin Pin) {
	if g.pin == nil {
		g.pin = &pin
	}
}

// Pin returns the explicit pin, or nil if none was set.
func (g *Geometry) Pin() *Pin {
	return g.pin
}

// AddHighwayLine adds one path segment under the given identity. Further
// segments may accumulate under the same identity.
func (g *Geometry) AddHighwayLine(id feature.ID, path []geom.Coord) {
	if g.lines == nil {
		g.lines = make(map[feature.ID][][]geom.Coord)
	}
	g.lines[id] = append(g.lines[id], path)
}

// AddHighwayArea records a square's boundary polygon under the given identity.
func (g *Geometry) AddHighwayArea(id feature.ID, ring []geom.Coord) {
	if g.areas == nil {
		g.areas = make(map[feature.ID][]geom.Coord)
	}
	g.areas[id] = ring
}

// AddBinding records address-point evidence for the street.
func (g *Geometry) AddBinding(id feature.ID, pt geom.Coord) {
	if g.bindings == nil {
		g.bindings = make(map[feature.ID]geom.Coord)
	}
	g.bindings[id] = pt
}

// Lines returns the line contributions in identity order.
func (g *Geometry) Lines() []LinePart {
	ids := sortedIDs(g.lines)
	parts := make([]LinePart, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, LinePart{ID: id, Segments: g.lines[id]})
	}
	return parts
}

// Areas returns the area contributions in identity order.
func (g *Geometry) Areas() []AreaPart {
	ids := sortedIDs(g.areas)
	parts := make([]AreaPart, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, AreaPart{ID: id, Ring: g.areas[id]})
	}
	return parts
}

// LinePart is one identity's ordered path segments.
type LinePart struct {
	ID       feature.ID
	Segments [][]geom.Coord
}

// AreaPart is one identity's boundary polygon.
type AreaPart struct {
	ID   feature.ID
	Ring []geom.Coord
}

// GetOrChoosePin returns the explicit pin if set, otherwise a deterministic
// fallback derived from the accumulated geometry: the first vertex of the
// lowest-identity line, the bounds center of the lowest-identity area, or the
// lowest-identity binding point. The choice depends only on contents, never
// on insertion order.
func (g *Geometry) GetOrChoosePin() Pin {
	if g.pin != nil {
		return *g.pin
	}
	if len(g.lines) > 0 {
		id := sortedIDs(g.lines)[0]
		segments := g.lines[id]
		return Pin{Position: segments[0][0], ID: id}
	}
	if len(g.areas) > 0 {
		id := sortedIDs(g.areas)[0]
		return Pin{Position: ringCenter(g.areas[id]), ID: id}
	}
	if len(g.bindings) > 0 {
		id := sortedIDs(g.bindings)[0]
		return Pin{Position: g.bindings[id], ID: id}
	}
	return Pin{}
}

// Bbox computes the bounding box of every contribution on demand.
// Returns nil when the geometry is empty.
func (g *Geometry) Bbox() *geom.Bounds {
	b := geom.NewBounds(geom.XY)
	empty := true
	extend := func(c geom.Coord) {
		b.Extend(geom.NewPointFlat(geom.XY, []float64{c[0], c[1]}))
		empty = false
	}
	if g.pin != nil {
		extend(g.pin.Position)
	}
	for _, segments := range g.lines {
		for _, path := range segments {
			for _, c := range path {
				extend(c)
			}
		}
	}
	for _, ring := range g.areas {
		for _, c := range ring {
			extend(c)
		}
	}
	for _, pt := range g.bindings {
		extend(pt)
	}
	if empty {
		return nil
	}
	return b
}

func ringCenter(ring []geom.Coord) geom.Coord {
	b := geom.NewBounds(geom.XY)
	for _, c := range ring {
		b.Extend(geom.NewPointFlat(geom.XY, []float64{c[0], c[1]}))
	}
	return geom.Coord{(b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2}
}

func sortedIDs[V any](m map[feature.ID]V) []feature.ID {
	ids := make([]feature.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}
