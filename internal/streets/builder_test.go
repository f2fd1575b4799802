package streets

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/streetgen/internal/feature"
	"github.com/sells-group/streetgen/internal/region"
)

func init() {
	// Replace global logger with a no-op to keep test output clean.
	zap.ReplaceGlobals(zap.NewNop())
}

// bandFinder owns x bands per region; localities configurable per region.
type bandFinder struct {
	regions []bandRegion
}

type bandRegion struct {
	ref      region.Ref
	min, max float64
}

func (f *bandFinder) ResolveOwner(_ context.Context, pt geom.Coord, pred region.Predicate) (*region.Ref, error) {
	for _, r := range f.regions {
		if pt[0] < r.min || pt[0] >= r.max {
			continue
		}
		if pred != nil && !pred(r.ref) {
			continue
		}
		ref := r.ref
		return &ref, nil
	}
	return nil, nil
}

func (f *bandFinder) Region(_ context.Context, id uint64) (*region.Ref, error) {
	for _, r := range f.regions {
		if r.ref.ID == id {
			ref := r.ref
			return &ref, nil
		}
	}
	return nil, nil
}

func localityRegion(id uint64, locality string, min, max float64) bandRegion {
	return bandRegion{
		ref: region.Ref{
			ID: id,
			Properties: region.Properties{
				Name:    map[string]string{feature.DefaultLang: locality},
				Address: region.Address{Locality: locality},
			},
		},
		min: min,
		max: max,
	}
}

func roadFeature(serial uint64, name string, coords []geom.Coord) *feature.Feature {
	return &feature.Feature{
		ID:   feature.NativeID(serial),
		Kind: feature.KindLine,
		Tags: map[string]string{"highway": "residential"},
		Name: feature.Name{feature.DefaultLang: name},
		Line: coords,
	}
}

func exportKv(t *testing.T, b *Builder, getter region.Getter) []string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, b.SaveStreetsKv(context.Background(), getter, &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	return lines
}

func parseKvLine(t *testing.T, line string) (string, StreetValue) {
	t.Helper()
	key, rest, ok := strings.Cut(line, " ")
	require.True(t, ok)
	var value StreetValue
	require.NoError(t, json.Unmarshal([]byte(rest), &value))
	return key, value
}

func TestBuilder_SingleRegionRoad(t *testing.T) {
	finder := &bandFinder{regions: []bandRegion{localityRegion(1, "Springfield", 0, 100)}}
	b := NewBuilder(finder)

	road := roadFeature(1, "Main St", []geom.Coord{{1, 2}, {3, 8}, {5, 4}})
	src := feature.NewSliceSource(road)

	require.NoError(t, b.AssembleStreets(context.Background(), src))
	require.Equal(t, 1, b.Registry().Len())

	lines := exportKv(t, b, finder)
	require.Len(t, lines, 1)

	key, value := parseKvLine(t, lines[0])
	// No splitting happened, so the street keeps the native identity.
	assert.Equal(t, "w1", key)
	assert.Equal(t, "Main St", value.Name[feature.DefaultLang])
	assert.Equal(t, [4]float64{1, 2, 5, 8}, value.Bbox)
	// No explicit point feature: the pin falls back to the line's first vertex.
	assert.Equal(t, [2]float64{1, 2}, value.Pin)
	assert.Equal(t, "1", value.Region.Dref)
}

func TestBuilder_RoadSplitByBoundary(t *testing.T) {
	finder := &bandFinder{regions: []bandRegion{
		localityRegion(1, "Westside", 0, 5),
		localityRegion(2, "Eastside", 5, 10),
	}}
	b := NewBuilder(finder)

	road := roadFeature(1, "Main St", []geom.Coord{{1, 0}, {2, 0}, {6, 0}, {7, 0}})
	require.NoError(t, b.AssembleStreets(context.Background(), feature.NewSliceSource(road)))
	require.Equal(t, 2, b.Registry().Len())

	lines := exportKv(t, b, finder)
	require.Len(t, lines, 2)

	key1, west := parseKvLine(t, lines[0])
	key2, east := parseKvLine(t, lines[1])

	// Fragments carry surrogate identities that never collide.
	assert.True(t, strings.HasPrefix(key1, "s"))
	assert.True(t, strings.HasPrefix(key2, "s"))
	assert.NotEqual(t, key1, key2)

	assert.Equal(t, "Main St", west.Name[feature.DefaultLang])
	assert.Equal(t, "Main St", east.Name[feature.DefaultLang])
	assert.Equal(t, [4]float64{1, 0, 2, 0}, west.Bbox)
	assert.Equal(t, [4]float64{6, 0, 7, 0}, east.Bbox)
	assert.Equal(t, "1", west.Region.Dref)
	assert.Equal(t, "2", east.Region.Dref)
}

func TestBuilder_UnresolvedRoadContributesNothing(t *testing.T) {
	finder := &bandFinder{}
	b := NewBuilder(finder)

	road := roadFeature(1, "Nowhere Rd", []geom.Coord{{1, 0}, {2, 0}})
	require.NoError(t, b.AssembleStreets(context.Background(), feature.NewSliceSource(road)))
	assert.Equal(t, 0, b.Registry().Len())
}

func TestBuilder_UnnamedFeatureIgnored(t *testing.T) {
	finder := &bandFinder{regions: []bandRegion{localityRegion(1, "Springfield", 0, 100)}}
	b := NewBuilder(finder)

	road := roadFeature(1, "", []geom.Coord{{1, 0}, {2, 0}})
	road.Name = feature.Name{}
	require.NoError(t, b.AssembleStreets(context.Background(), feature.NewSliceSource(road)))
	assert.Equal(t, 0, b.Registry().Len())
}

func TestBuilder_SquarePointSetsPin(t *testing.T) {
	finder := &bandFinder{regions: []bandRegion{localityRegion(1, "Springfield", 0, 100)}}
	b := NewBuilder(finder)

	square := &feature.Feature{
		ID:    feature.NativeID(9),
		Kind:  feature.KindPoint,
		Tags:  map[string]string{"place": "square"},
		Name:  feature.Name{feature.DefaultLang: "Old Square"},
		Point: geom.Coord{4, 4},
	}
	require.NoError(t, b.AssembleStreets(context.Background(), feature.NewSliceSource(square)))

	lines := exportKv(t, b, finder)
	require.Len(t, lines, 1)
	key, value := parseKvLine(t, lines[0])
	assert.Equal(t, "w9", key)
	assert.Equal(t, [2]float64{4, 4}, value.Pin)
}

func TestBuilder_SquareAreaOwnedByCenter(t *testing.T) {
	finder := &bandFinder{regions: []bandRegion{localityRegion(1, "Springfield", 0, 100)}}
	b := NewBuilder(finder)

	square := &feature.Feature{
		ID:   feature.NativeID(4),
		Kind: feature.KindArea,
		Tags: map[string]string{"place": "square"},
		Name: feature.Name{feature.DefaultLang: "Market Square"},
		Area: []geom.Coord{{2, 2}, {6, 2}, {6, 6}, {2, 6}},
	}
	require.NoError(t, b.AssembleStreets(context.Background(), feature.NewSliceSource(square)))

	lines := exportKv(t, b, finder)
	require.Len(t, lines, 1)
	_, value := parseKvLine(t, lines[0])
	assert.Equal(t, [4]float64{2, 2, 6, 6}, value.Bbox)
}

func TestBuilder_BindingCreatesPointOnlyStreet(t *testing.T) {
	finder := &bandFinder{regions: []bandRegion{localityRegion(1, "Springfield", 0, 100)}}
	b := NewBuilder(finder)

	addr := &feature.Feature{
		ID:     feature.NativeID(7),
		Kind:   feature.KindPoint,
		Tags:   map[string]string{"building": "yes"},
		Street: "Main St",
		Point:  geom.Coord{2.5, 3.5},
	}
	require.NoError(t, b.AssembleBindings(context.Background(), feature.NewSliceSource(addr)))
	require.Equal(t, 1, b.Registry().Len())

	lines := exportKv(t, b, finder)
	require.Len(t, lines, 1)
	key, value := parseKvLine(t, lines[0])
	assert.True(t, strings.HasPrefix(key, "s"))
	assert.Equal(t, "Main St", value.Name[feature.DefaultLang])
	assert.Equal(t, [2]float64{2.5, 3.5}, value.Pin)
}

func TestBuilder_BindingRequiresLocality(t *testing.T) {
	// Region owns the point but carries no locality.
	bare := bandRegion{ref: region.Ref{ID: 1}, min: 0, max: 100}
	finder := &bandFinder{regions: []bandRegion{bare}}
	b := NewBuilder(finder)

	addr := &feature.Feature{
		ID:     feature.NativeID(7),
		Kind:   feature.KindPoint,
		Street: "Main St",
		Point:  geom.Coord{2, 3},
	}
	require.NoError(t, b.AssembleBindings(context.Background(), feature.NewSliceSource(addr)))
	assert.Equal(t, 0, b.Registry().Len())
}

func TestBuilder_LineTracingAcceptsBareRegion(t *testing.T) {
	// Tracing does not require locality resolution, unlike points and areas.
	bare := bandRegion{ref: region.Ref{ID: 1}, min: 0, max: 100}
	finder := &bandFinder{regions: []bandRegion{bare}}
	b := NewBuilder(finder)

	road := roadFeature(1, "Main St", []geom.Coord{{1, 0}, {2, 0}})
	require.NoError(t, b.AssembleStreets(context.Background(), feature.NewSliceSource(road)))
	assert.Equal(t, 1, b.Registry().Len())
}

func TestBuilder_SuburbNeverOwnsStreets(t *testing.T) {
	suburb := bandRegion{
		ref: region.Ref{ID: 1, Properties: region.Properties{
			Address: region.Address{Suburb: "Northside", Locality: "Springfield"},
		}},
		min: 0, max: 100,
	}
	finder := &bandFinder{regions: []bandRegion{suburb}}
	b := NewBuilder(finder)

	road := roadFeature(1, "Main St", []geom.Coord{{1, 0}, {2, 0}})
	require.NoError(t, b.AssembleStreets(context.Background(), feature.NewSliceSource(road)))
	assert.Equal(t, 0, b.Registry().Len())
}

func TestBuilder_MergesNamesAcrossElements(t *testing.T) {
	finder := &bandFinder{regions: []bandRegion{localityRegion(1, "Springfield", 0, 100)}}

	first := roadFeature(1, "Main St", []geom.Coord{{1, 0}, {2, 0}})
	first.Name["de"] = "Hauptstrasse"
	second := roadFeature(2, "Main St", []geom.Coord{{3, 0}, {4, 0}})
	second.Name["en"] = "Main Street"

	// Either processing order produces the same merged name map.
	for _, order := range [][]*feature.Feature{{first, second}, {second, first}} {
		b := NewBuilder(finder)
		require.NoError(t, b.AssembleStreets(context.Background(), feature.NewSliceSource(order...)))
		require.Equal(t, 1, b.Registry().Len())

		street := b.Registry().StreetAt(0)
		assert.Equal(t, "Main St", street.Name.Default())
		assert.Equal(t, "Hauptstrasse", street.Name["de"])
		assert.Equal(t, "Main Street", street.Name["en"])
	}
}

func TestBuilder_ParallelMatchesSequential(t *testing.T) {
	finder := &bandFinder{regions: []bandRegion{
		localityRegion(1, "Westside", 0, 5),
		localityRegion(2, "Eastside", 5, 10),
	}}

	var features []*feature.Feature
	for i := uint64(1); i <= 40; i++ {
		x := float64(i % 9)
		features = append(features, roadFeature(i, "Main St", []geom.Coord{{x, float64(i)}, {x, float64(i) + 1}}))
	}

	run := func(threads int) []string {
		b := NewBuilder(finder, WithThreads(threads))
		require.NoError(t, b.AssembleStreets(context.Background(), feature.NewSliceSource(features...)))
		return exportKv(t, b, finder)
	}

	// Every road stays inside one region, so no surrogate identities are
	// minted and the export is fully deterministic regardless of scheduling.
	assert.Equal(t, run(1), run(4))
}

func writeStream(t *testing.T, path string, features ...*feature.Feature) {
	t.Helper()
	collector, err := feature.NewCollector(path)
	require.NoError(t, err)
	for _, f := range features {
		require.NoError(t, collector.Collect(f))
	}
	require.NoError(t, collector.Finish())
}

func readStream(t *testing.T, path string) []*feature.Feature {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = file.Close() }()

	var out []*feature.Feature
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		f, err := feature.Unmarshal(scanner.Bytes())
		require.NoError(t, err)
		out = append(out, f)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestBuilder_RegenerateRewritesAggregatedStreet(t *testing.T) {
	dir := t.TempDir()
	streamPath := filepath.Join(dir, "streets.tmp.jsonl")

	roadA := roadFeature(1, "Main St", []geom.Coord{{1, 0}, {2, 0}})
	roadB := roadFeature(2, "Main St", []geom.Coord{{3, 0}, {4, 0}})
	writeStream(t, streamPath, roadA, roadB)

	finder := &bandFinder{regions: []bandRegion{localityRegion(1, "Springfield", 0, 100)}}
	b := NewBuilder(finder)
	src := feature.NewFileSource(streamPath)
	require.NoError(t, b.AssembleStreets(context.Background(), src))

	require.NoError(t, b.RegenerateAggregatedStreetsFeatures(context.Background(), src, streamPath))

	out := readStream(t, streamPath)
	// Two raw fragments collapse into one street: two line segments emitted
	// under the merged name, both carrying the chosen pin identity.
	require.Len(t, out, 2)
	for _, f := range out {
		assert.Equal(t, feature.KindLine, f.Kind)
		assert.Equal(t, "Main St", f.Name.Default())
		assert.Equal(t, feature.NativeID(1), f.ID)
	}
}

func TestBuilder_RegeneratePassesThroughUnaggregated(t *testing.T) {
	dir := t.TempDir()
	streamPath := filepath.Join(dir, "streets.tmp.jsonl")

	road := roadFeature(1, "Main St", []geom.Coord{{1, 0}, {2, 0}})
	stray := &feature.Feature{
		ID:    feature.NativeID(99),
		Kind:  feature.KindPoint,
		Tags:  map[string]string{"amenity": "cafe"},
		Point: geom.Coord{1, 1},
	}
	writeStream(t, streamPath, road, stray)

	finder := &bandFinder{regions: []bandRegion{localityRegion(1, "Springfield", 0, 100)}}
	b := NewBuilder(finder)
	src := feature.NewFileSource(streamPath)
	require.NoError(t, b.AssembleStreets(context.Background(), src))
	require.NoError(t, b.RegenerateAggregatedStreetsFeatures(context.Background(), src, streamPath))

	out := readStream(t, streamPath)
	require.Len(t, out, 2)

	var foundStray bool
	for _, f := range out {
		if f.ID == feature.NativeID(99) {
			foundStray = true
			assert.Equal(t, "cafe", f.Tag("amenity"))
		}
	}
	assert.True(t, foundStray)
}

func TestBuilder_RegenerateIdempotent(t *testing.T) {
	dir := t.TempDir()
	streamPath := filepath.Join(dir, "streets.tmp.jsonl")

	roadA := roadFeature(1, "Main St", []geom.Coord{{1, 0}, {2, 0}})
	roadB := roadFeature(2, "Elm St", []geom.Coord{{3, 1}, {4, 1}})
	writeStream(t, streamPath, roadA, roadB)

	finder := &bandFinder{regions: []bandRegion{localityRegion(1, "Springfield", 0, 100)}}
	b := NewBuilder(finder)
	src := feature.NewFileSource(streamPath)
	require.NoError(t, b.AssembleStreets(context.Background(), src))

	require.NoError(t, b.RegenerateAggregatedStreetsFeatures(context.Background(), src, streamPath))
	first, err := os.ReadFile(streamPath)
	require.NoError(t, err)

	require.NoError(t, b.RegenerateAggregatedStreetsFeatures(context.Background(), src, streamPath))
	second, err := os.ReadFile(streamPath)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuilder_PinReplacesFragmentIdentity(t *testing.T) {
	dir := t.TempDir()
	streamPath := filepath.Join(dir, "streets.tmp.jsonl")

	road := roadFeature(1, "Main St", []geom.Coord{{1, 0}, {2, 0}})
	pinPoint := &feature.Feature{
		ID:    feature.NativeID(5),
		Kind:  feature.KindPoint,
		Tags:  map[string]string{"place": "square"},
		Name:  feature.Name{feature.DefaultLang: "Main St"},
		Point: geom.Coord{1.5, 0.5},
	}
	writeStream(t, streamPath, road, pinPoint)

	finder := &bandFinder{regions: []bandRegion{localityRegion(1, "Springfield", 0, 100)}}
	b := NewBuilder(finder)
	src := feature.NewFileSource(streamPath)
	require.NoError(t, b.AssembleStreets(context.Background(), src))
	require.NoError(t, b.RegenerateAggregatedStreetsFeatures(context.Background(), src, streamPath))

	out := readStream(t, streamPath)
	// One point feature at the explicit pin plus the line segment, all under
	// the pin's identity.
	require.Len(t, out, 2)
	var sawPin bool
	for _, f := range out {
		assert.Equal(t, feature.NativeID(5), f.ID)
		if f.Kind == feature.KindPoint {
			sawPin = true
			assert.Equal(t, geom.Coord{1.5, 0.5}, f.Point)
		}
	}
	assert.True(t, sawPin)
}
