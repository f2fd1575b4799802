// Package streets implements the street aggregation engine: region tracing,
// per-street geometry accumulation, the region/name street registry, the
// three aggregation passes, and the per-street key-value export.
package streets

import (
	"github.com/twpayne/go-geom"

	"github.com/sells-group/streetgen/internal/region"
)

// PathSegment is one maximal contiguous sub-path of a traced polyline fully
// owned by a single region.
type PathSegment struct {
	Path   []geom.Coord
	Region region.Ref
}

// OwnerResolver resolves the owning region of one polyline vertex. A nil
// result means no region claims the point.
type OwnerResolver func(pt geom.Coord) (*region.Ref, error)

// TraceRegions partitions a polyline into region-owned segments. Ownership is
// sampled at every vertex; a new segment starts whenever the resolved region
// changes, and vertices with no resolved owner contribute to no segment.
// The concatenation of segment paths preserves the order of the resolved
// vertices of the input.
func TraceRegions(line []geom.Coord, resolve OwnerResolver) ([]PathSegment, error) {
	var segments []PathSegment
	var current *PathSegment

	for _, pt := range line {
		owner, err := resolve(pt)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			current = nil
			continue
		}
		if current == nil || current.Region.ID != owner.ID {
			segments = append(segments, PathSegment{Region: *owner})
			current = &segments[len(segments)-1]
		}
		current.Path = append(current.Path, pt)
	}
	return segments, nil
}
