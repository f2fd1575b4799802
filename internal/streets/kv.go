package streets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/streetgen/internal/region"
)

// StreetValue is the exported per-street record consumed by downstream
// key-value and search storage.
type StreetValue struct {
	Name   map[string]string `json:"name"`
	Bbox   [4]float64        `json:"bbox"` // lon_min, lat_min, lon_max, lat_max
	Pin    [2]float64        `json:"pin"`  // lon, lat
	Region RegionValue       `json:"region"`
}

// RegionValue is the back-reference to the owning region.
type RegionValue struct {
	Dref string            `json:"dref"`
	Name map[string]string `json:"name,omitempty"`
}

// SaveStreetsKv walks the finalized registry and writes one key-value line
// per street: the chosen pin's identity, a space, and the JSON record.
// A region identity with no metadata record is a data-integrity fault.
func (b *Builder) SaveStreetsKv(ctx context.Context, regions region.Getter, w io.Writer) error {
	log := zap.L().With(zap.String("component", "streets.kv"))
	count := 0

	err := b.registry.EachRegion(func(regionID uint64, name string, h Handle) error {
		ref, err := regions.Region(ctx, regionID)
		if err != nil {
			return err
		}
		if ref == nil {
			return eris.Errorf("streets: no metadata for region %d", regionID)
		}

		street := b.registry.StreetAt(h)
		bbox := street.Geometry.Bbox()
		if bbox == nil {
			return eris.Errorf("streets: street %q in region %d has no geometry", name, regionID)
		}
		pin := street.Geometry.GetOrChoosePin()

		value := StreetValue{
			Name: street.Name,
			Bbox: [4]float64{bbox.Min(0), bbox.Min(1), bbox.Max(0), bbox.Max(1)},
			Pin:  [2]float64{pin.Position[0], pin.Position[1]},
			Region: RegionValue{
				Dref: fmt.Sprintf("%d", ref.ID),
				Name: ref.Properties.Name,
			},
		}
		data, err := json.Marshal(value)
		if err != nil {
			return eris.Wrapf(err, "streets: encode kv record for %q", name)
		}
		if _, err := fmt.Fprintf(w, "%s %s\n", pin.ID, data); err != nil {
			return eris.Wrap(err, "streets: write kv record")
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("street kv records written", zap.Int("records", count))
	return nil
}
