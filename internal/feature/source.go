package feature

import (
	"bufio"
	"context"
	"os"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Source is a re-iterable stream of feature records. Implementations must
// support being iterated more than once; the aggregation passes read the
// street stream twice.
type Source interface {
	// ForEach visits every feature sequentially.
	ForEach(ctx context.Context, fn func(f *Feature) error) error
	// ForEachParallel visits every feature from a bounded worker pool.
	// threads <= 1 degrades to sequential iteration for determinism.
	ForEachParallel(ctx context.Context, threads int, fn func(f *Feature) error) error
}

// SliceSource is an in-memory Source.
type SliceSource struct {
	Features []*Feature
}

// NewSliceSource wraps features in a Source.
func NewSliceSource(features ...*Feature) *SliceSource {
	return &SliceSource{Features: features}
}

func (s *SliceSource) ForEach(ctx context.Context, fn func(f *Feature) error) error {
	for _, f := range s.Features {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *SliceSource) ForEachParallel(ctx context.Context, threads int, fn func(f *Feature) error) error {
	if threads <= 1 {
		return s.ForEach(ctx, fn)
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for _, f := range s.Features {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			return fn(f)
		})
	}
	return g.Wait()
}

// FileSource reads newline-delimited feature records from a file. Each
// iteration reopens the file, so the stream is producible any number of times.
type FileSource struct {
	path string
}

// NewFileSource creates a Source over a feature stream file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the backing file path.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) ForEach(ctx context.Context, fn func(f *Feature) error) error {
	return s.scan(ctx, func(f *Feature) error { return fn(f) })
}

func (s *FileSource) ForEachParallel(ctx context.Context, threads int, fn func(f *Feature) error) error {
	if threads <= 1 {
		return s.ForEach(ctx, fn)
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	err := s.scan(gCtx, func(f *Feature) error {
		g.Go(func() error { return fn(f) })
		return gCtx.Err()
	})
	if waitErr := g.Wait(); waitErr != nil {
		return waitErr
	}
	return err
}

func (s *FileSource) scan(ctx context.Context, fn func(f *Feature) error) error {
	file, err := os.Open(s.path)
	if err != nil {
		return eris.Wrapf(err, "feature: open stream %s", s.path)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		f, err := Unmarshal(line)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return eris.Wrapf(err, "feature: read stream %s", s.path)
	}
	return nil
}

// maxRecordSize bounds one serialized feature; long motorways need room.
const maxRecordSize = 16 * 1024 * 1024
