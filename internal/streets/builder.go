package streets

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/streetgen/internal/feature"
	"github.com/sells-group/streetgen/internal/region"
)

// Builder drives the three aggregation passes over external feature streams.
// Classification, region resolution, and tracing run in the workers without
// shared state; every registry mutation happens as one atomic unit under the
// registry lock.
type Builder struct {
	finder   region.Finder
	classify Classifier
	registry *Registry
	threads  int
}

// Option configures a Builder.
type Option func(*Builder)

// WithThreads sets the worker pool size. 1 forces deterministic
// single-threaded processing.
func WithThreads(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.threads = n
		}
	}
}

// WithClassifier replaces the default street classifier.
func WithClassifier(c Classifier) Option {
	return func(b *Builder) { b.classify = c }
}

// NewBuilder creates a Builder over an empty registry.
func NewBuilder(finder region.Finder, opts ...Option) *Builder {
	b := &Builder{
		finder:   finder,
		classify: IsStreetFeature,
		registry: NewRegistry(),
		threads:  1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Registry exposes the registry for the read-only stages. Valid only after
// the assembly passes have completed.
func (b *Builder) Registry() *Registry {
	return b.registry
}

// AssembleStreets is pass 1: ingest named roads and squares, tracing lines
// across region boundaries and inserting every fragment into the registry.
func (b *Builder) AssembleStreets(ctx context.Context, src feature.Source) error {
	log := zap.L().With(zap.String("component", "streets.builder"))
	log.Info("assembling streets", zap.Int("threads", b.threads))

	err := src.ForEachParallel(ctx, b.threads, func(f *feature.Feature) error {
		if !b.classify(f) {
			return nil
		}
		return b.addStreet(ctx, f)
	})
	if err != nil {
		return eris.Wrap(err, "streets: assemble streets")
	}

	log.Info("streets assembled", zap.Int("streets", b.registry.Len()))
	return nil
}

// AssembleBindings is pass 2: ingest features that carry a street-name
// attribute without being streets themselves, binding them as point evidence.
func (b *Builder) AssembleBindings(ctx context.Context, src feature.Source) error {
	log := zap.L().With(zap.String("component", "streets.builder"))
	log.Info("assembling address bindings", zap.Int("threads", b.threads))

	err := src.ForEachParallel(ctx, b.threads, func(f *feature.Feature) error {
		if f.Street == "" || b.classify(f) {
			return nil
		}
		name := feature.Name{feature.DefaultLang: f.Street}
		return b.addStreetBinding(ctx, f.Street, f, name)
	})
	if err != nil {
		return eris.Wrap(err, "streets: assemble bindings")
	}

	log.Info("address bindings assembled", zap.Int("streets", b.registry.Len()))
	return nil
}

func (b *Builder) addStreet(ctx context.Context, f *feature.Feature) error {
	switch {
	case f.IsArea():
		return b.addStreetArea(ctx, f)
	case f.IsPoint():
		return b.addStreetPoint(ctx, f)
	case f.IsLine():
		return b.addStreetHighway(ctx, f)
	}
	return eris.Errorf("streets: feature %s has no geometry kind", f.ID)
}

func (b *Builder) addStreetHighway(ctx context.Context, f *feature.Feature) error {
	pred := region.StreetAdministrator(false)
	segments, err := TraceRegions(f.Line, func(pt geom.Coord) (*region.Ref, error) {
		return b.finder.ResolveOwner(ctx, pt, pred)
	})
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		zap.L().Debug("streets: highway has no owning region", zap.String("id", f.ID.String()))
		return nil
	}

	b.registry.Update(func(tx *Tx) {
		for _, segment := range segments {
			h := tx.InsertStreet(segment.Region.ID, f.Name.Default(), f.Name)
			id := f.ID
			if len(segments) > 1 {
				id = tx.NextSurrogateID()
				tx.BindFeature(id, h)
			}
			tx.Street(h).Geometry.AddHighwayLine(id, segment.Path)
			tx.BindFeature(f.ID, h)
		}
	})
	return nil
}

func (b *Builder) addStreetArea(ctx context.Context, f *feature.Feature) error {
	center, err := f.Center()
	if err != nil {
		return err
	}
	owner, err := b.finder.ResolveOwner(ctx, center, region.StreetAdministrator(true))
	if err != nil {
		return err
	}
	if owner == nil {
		return nil
	}

	b.registry.Update(func(tx *Tx) {
		h := tx.InsertStreet(owner.ID, f.Name.Default(), f.Name)
		tx.Street(h).Geometry.AddHighwayArea(f.ID, f.Area)
		tx.BindFeature(f.ID, h)
	})
	return nil
}

func (b *Builder) addStreetPoint(ctx context.Context, f *feature.Feature) error {
	pt, err := f.KeyPoint()
	if err != nil {
		return err
	}
	owner, err := b.finder.ResolveOwner(ctx, pt, region.StreetAdministrator(true))
	if err != nil {
		return err
	}
	if owner == nil {
		return nil
	}

	b.registry.Update(func(tx *Tx) {
		h := tx.InsertStreet(owner.ID, f.Name.Default(), f.Name)
		tx.Street(h).Geometry.SetPin(Pin{Position: pt, ID: f.ID})
		tx.BindFeature(f.ID, h)
	})
	return nil
}

func (b *Builder) addStreetBinding(ctx context.Context, streetName string, f *feature.Feature, langs feature.Name) error {
	pt, err := f.KeyPoint()
	if err != nil {
		return err
	}
	owner, err := b.finder.ResolveOwner(ctx, pt, region.StreetAdministrator(true))
	if err != nil {
		return err
	}
	if owner == nil {
		return nil
	}

	b.registry.Update(func(tx *Tx) {
		h := tx.InsertStreet(owner.ID, streetName, langs)
		tx.Street(h).Geometry.AddBinding(tx.NextSurrogateID(), pt)
	})
	return nil
}

// RegenerateAggregatedStreetsFeatures is pass 3: rewrite the street feature
// stream, replacing raw fragments with the finalized aggregated geometry of
// their street. The first fragment observed for a street triggers emission;
// later fragments of the same street are dropped. The rewritten stream only
// becomes visible at dest once fully written.
func (b *Builder) RegenerateAggregatedStreetsFeatures(ctx context.Context, src feature.Source, dest string) error {
	log := zap.L().With(zap.String("component", "streets.builder"))

	collector, err := feature.NewCollector(dest)
	if err != nil {
		return eris.Wrap(err, "streets: regenerate")
	}

	processed := make(map[Handle]bool)
	err = src.ForEach(ctx, func(f *feature.Feature) error {
		h, ok := b.registry.Lookup(f.ID)
		if !ok {
			// Not part of any aggregated street; leave the record as-is.
			return collector.Collect(f)
		}
		if processed[h] {
			return nil
		}
		processed[h] = true
		return writeAggregatedStreet(f, b.registry.StreetAt(h), collector)
	})
	if err != nil {
		collector.Abort()
		return eris.Wrap(err, "streets: regenerate")
	}
	if err := collector.Finish(); err != nil {
		return eris.Wrap(err, "streets: regenerate")
	}

	log.Info("aggregated street features regenerated",
		zap.Int("streets", len(processed)),
		zap.Int("features", collector.Count()),
		zap.String("path", dest),
	)
	return nil
}

// writeAggregatedStreet emits the finalized street geometry in place of the
// raw fragment that triggered it: the pin point if one exists, then one area
// feature per area part and one line feature per segment, all under the
// street's merged name and the chosen pin's identity.
func writeAggregatedStreet(f *feature.Feature, street *Street, collector *feature.Collector) error {
	pin := street.Geometry.GetOrChoosePin()

	template := f.Clone()
	template.Name = street.Name.Clone()
	template.ID = pin.ID
	template.Point, template.Line, template.Area = nil, nil, nil

	if explicit := street.Geometry.Pin(); explicit != nil {
		out := template.Clone()
		out.Kind = feature.KindPoint
		out.Point = explicit.Position
		if err := collector.Collect(out); err != nil {
			return err
		}
	}

	for _, area := range street.Geometry.Areas() {
		out := template.Clone()
		out.Kind = feature.KindArea
		out.Area = area.Ring
		if err := collector.Collect(out); err != nil {
			return err
		}
	}

	for _, line := range street.Geometry.Lines() {
		for _, segment := range line.Segments {
			out := template.Clone()
			out.Kind = feature.KindLine
			out.Line = segment
			if err := collector.Collect(out); err != nil {
				return err
			}
		}
	}
	return nil
}
