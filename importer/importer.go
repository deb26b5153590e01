// Package importer loads voxel sources from disk into detached chunks.
//
// Problems with a source are logged as warnings and produce an empty chunk
// map; the matching sentinel error is returned for callers that care.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/voxelsplace/boxfish/voxel"
)

var (
	ErrEmptyPath = errors.New("importer: empty path")
	ErrNotFound  = errors.New("importer: file not found")
	ErrNoFormat  = errors.New("importer: no format for file")
	ErrParse     = errors.New("importer: parse failed")
)

// Importer is a builder for one import. Create it, optionally override the
// format, colour mapping or file system, then Build.
type Importer[T any] struct {
	path   string
	ext    string
	fsys   fs.FS
	data   []byte
	format Format[T]
	colors ColorImporter[T]
	log    *slog.Logger
	err    error
}

// Create prepares an import of path, picking the format from the file
// extension in registry. A nil registry means DefaultRegistry.
func Create[T any](path string, registry *Registry[T], log *slog.Logger) *Importer[T] {
	if log == nil {
		log = slog.Default()
	}
	if registry == nil {
		registry = DefaultRegistry[T]()
	}
	imp := &Importer[T]{path: path, ext: extension(path), log: log}
	if path == "" {
		log.Warn("import path is empty")
		imp.err = ErrEmptyPath
		return imp
	}
	if f, ok := registry.Lookup(imp.ext); ok {
		imp.format = f
	} else {
		log.Warn("no importer registered for extension", "path", path, "extension", imp.ext)
	}
	return imp
}

// WithFormat forces the format, whatever the extension.
func (imp *Importer[T]) WithFormat(f Format[T]) *Importer[T] {
	imp.format = f
	return imp
}

// WithColorImporter sets how palette colours become voxels. Palette based
// formats fail without one.
func (imp *Importer[T]) WithColorImporter(c ColorImporter[T]) *Importer[T] {
	imp.colors = c
	return imp
}

// WithFS reads the path from fsys instead of the OS file system.
func (imp *Importer[T]) WithFS(fsys fs.FS) *Importer[T] {
	imp.fsys = fsys
	return imp
}

// WithData parses data instead of reading the path. The path still picks
// the format.
func (imp *Importer[T]) WithData(data []byte) *Importer[T] {
	imp.data = data
	return imp
}

func (imp *Importer[T]) Path() string { return imp.path }

// Extension returns the lower case extension of the path, with the dot.
func (imp *Importer[T]) Extension() string { return imp.ext }

// Color maps a colour through the colour importer.
func (imp *Importer[T]) Color(c Color) (T, error) {
	if imp.colors == nil {
		var zero T
		return zero, fmt.Errorf("no color importer set for %s", imp.path)
	}
	return imp.colors(c), nil
}

// Palette maps every DefaultPalette entry through the colour importer.
// Index 0 maps to the zero voxel.
func (imp *Importer[T]) Palette() ([PaletteSize]T, error) {
	var out [PaletteSize]T
	for i := 1; i < PaletteSize; i++ {
		v, err := imp.Color(DefaultPalette[i])
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

// Build reads and parses the source. It always returns a non-nil map.
func (imp *Importer[T]) Build(ctx context.Context) (map[voxel.ChunkKey]*voxel.Chunk[T], error) {
	empty := make(map[voxel.ChunkKey]*voxel.Chunk[T])
	if imp.err != nil {
		return empty, imp.err
	}
	if imp.format == nil {
		return empty, fmt.Errorf("%w: %s", ErrNoFormat, imp.path)
	}
	data, err := imp.read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			imp.log.Warn("import file does not exist", "path", imp.path)
			return empty, fmt.Errorf("%w: %s", ErrNotFound, imp.path)
		}
		imp.log.Warn("import file could not be read", "path", imp.path, "error", err)
		return empty, err
	}
	if err := ctx.Err(); err != nil {
		return empty, err
	}
	chunks, err := imp.format.Parse(ctx, data, imp)
	if err != nil {
		if ctx.Err() != nil {
			return empty, ctx.Err()
		}
		imp.log.Warn("import parse failed", "path", imp.path, "error", err)
		return empty, fmt.Errorf("%w: %s: %w", ErrParse, imp.path, err)
	}
	if chunks == nil {
		imp.log.Warn("import produced no result", "path", imp.path)
		return empty, fmt.Errorf("%w: %s: no result", ErrParse, imp.path)
	}
	imp.log.Debug("import parsed", "path", imp.path, "chunks", len(chunks))
	return chunks, nil
}

// Result is delivered by BuildAsync.
type Result[T any] struct {
	Chunks map[voxel.ChunkKey]*voxel.Chunk[T]
	Err    error
}

// BuildAsync runs Build on a new goroutine. The channel yields one Result
// and is then closed.
func (imp *Importer[T]) BuildAsync(ctx context.Context) <-chan Result[T] {
	out := make(chan Result[T], 1)
	go func() {
		defer close(out)
		chunks, err := imp.Build(ctx)
		out <- Result[T]{Chunks: chunks, Err: err}
	}()
	return out
}

func (imp *Importer[T]) read() ([]byte, error) {
	if imp.data != nil {
		return imp.data, nil
	}
	if imp.fsys != nil {
		return fs.ReadFile(imp.fsys, imp.path)
	}
	return os.ReadFile(imp.path)
}
