package streets

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/streetgen/internal/feature"
	"github.com/sells-group/streetgen/internal/region"
)

// emptyGetter has metadata for no region.
type emptyGetter struct{}

func (emptyGetter) Region(context.Context, uint64) (*region.Ref, error) {
	return nil, nil
}

func TestSaveStreetsKvMissingRegionMetadata(t *testing.T) {
	finder := &bandFinder{regions: []bandRegion{localityRegion(1, "Springfield", 0, 100)}}
	b := NewBuilder(finder)
	road := roadFeature(1, "Main St", []geom.Coord{{1, 0}, {2, 0}})
	require.NoError(t, b.AssembleStreets(context.Background(), feature.NewSliceSource(road)))

	var buf bytes.Buffer
	err := b.SaveStreetsKv(context.Background(), emptyGetter{}, &buf)
	assert.Error(t, err)
}

func TestSaveStreetsKvEmptyRegistry(t *testing.T) {
	finder := &bandFinder{}
	b := NewBuilder(finder)

	var buf bytes.Buffer
	require.NoError(t, b.SaveStreetsKv(context.Background(), finder, &buf))
	assert.Empty(t, buf.String())
}

func TestSaveStreetsKvRegionName(t *testing.T) {
	finder := &bandFinder{regions: []bandRegion{localityRegion(1, "Springfield", 0, 100)}}
	b := NewBuilder(finder)
	road := roadFeature(1, "Main St", []geom.Coord{{1, 0}, {2, 0}})
	require.NoError(t, b.AssembleStreets(context.Background(), feature.NewSliceSource(road)))

	lines := exportKv(t, b, finder)
	require.Len(t, lines, 1)
	_, value := parseKvLine(t, lines[0])
	assert.Equal(t, "Springfield", value.Region.Name[feature.DefaultLang])
	assert.Equal(t, "1", value.Region.Dref)
}
