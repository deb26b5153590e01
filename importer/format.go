package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/voxelsplace/boxfish/snapshot"
	"github.com/voxelsplace/boxfish/voxel"
)

// Format parses one file format into detached chunks.
type Format[T any] interface {
	// Extensions lists the lower case file extensions, with the dot.
	Extensions() []string
	Parse(ctx context.Context, data []byte, imp *Importer[T]) (map[voxel.ChunkKey]*voxel.Chunk[T], error)
}

// Registry maps file extensions to formats.
type Registry[T any] struct {
	mu      sync.RWMutex
	formats map[string]Format[T]
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{formats: make(map[string]Format[T])}
}

// DefaultRegistry registers every built-in format.
func DefaultRegistry[T any]() *Registry[T] {
	r := NewRegistry[T]()
	r.Register(VOPL[T]{})
	r.Register(VOPLPack[T]{})
	r.Register(RLE[T]{})
	r.Register(Snapshot[T]{})
	return r
}

// Register adds f under each of its extensions, replacing earlier formats.
func (r *Registry[T]) Register(f Format[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range f.Extensions() {
		r.formats[strings.ToLower(ext)] = f
	}
}

func (r *Registry[T]) Lookup(ext string) (Format[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formats[strings.ToLower(ext)]
	return f, ok
}

// extension returns the lower case extension of path, with the dot.
func extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// Snapshot imports files written by the snapshot package.
type Snapshot[T any] struct{}

func (Snapshot[T]) Extensions() []string { return []string{".bxsnap"} }

func (Snapshot[T]) Parse(_ context.Context, data []byte, _ *Importer[T]) (map[voxel.ChunkKey]*voxel.Chunk[T], error) {
	chunks, err := snapshot.Decode[T](data)
	if err != nil {
		return nil, fmt.Errorf("bxsnap: %w", err)
	}
	return chunks, nil
}
