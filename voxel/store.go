package voxel

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Store maps chunk keys to chunks and is the volume's source of truth.
//
// Structural changes (insert, remove, replace) go through the store's lock
// and come from the owning goroutine. Lookups take the read lock and may run
// from any number of rebuild workers.
type Store[T any] struct {
	valid func(T) bool
	log   *slog.Logger

	mu     sync.RWMutex
	chunks map[ChunkKey]*Chunk[T]
}

// NewStore creates an empty store. valid decides whether a voxel counts as
// present for the chunks' Empty hint; it may be nil.
func NewStore[T any](valid func(T) bool, log *slog.Logger) *Store[T] {
	if log == nil {
		log = slog.Default()
	}
	return &Store[T]{
		valid:  valid,
		log:    log,
		chunks: make(map[ChunkKey]*Chunk[T]),
	}
}

// Get returns the chunk stored under key without side effects.
func (s *Store[T]) Get(key ChunkKey) (*Chunk[T], bool) {
	s.mu.RLock()
	c, ok := s.chunks[key]
	s.mu.RUnlock()
	return c, ok
}

// GetOrCreate returns the chunk under key, inserting an empty one if absent.
func (s *Store[T]) GetOrCreate(key ChunkKey) *Chunk[T] {
	if c, ok := s.Get(key); ok {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.chunks[key]; ok {
		return existing
	}
	c := NewChunk[T](key)
	c.store.Store(s)
	s.chunks[key] = c
	return c
}

// Locate resolves a global position to its chunk and local offset. When hint
// is the chunk that contains g the map lookup is skipped; any other hint,
// including nil, falls back to the lookup.
func (s *Store[T]) Locate(g Vec3i, hint *Chunk[T]) (*Chunk[T], Vec3i, bool) {
	key, local := ToChunkSpace(g)
	if hint != nil && hint.key == key && hint.store.Load() == s {
		return hint, local, true
	}
	c, ok := s.Get(key)
	return c, local, ok
}

// Set writes a voxel at a global position. Writes into chunks that do not
// exist are dropped and reported as false; Set never allocates chunks and
// never schedules meshing.
func (s *Store[T]) Set(g Vec3i, v T, hint *Chunk[T]) bool {
	c, local, ok := s.Locate(g, hint)
	if !ok {
		s.log.Debug("voxel write outside allocated chunks dropped", "position", g)
		return false
	}
	c.Set(local.X, local.Y, local.Z, v)
	return true
}

// Voxel reads the voxel at a global position.
func (s *Store[T]) Voxel(g Vec3i, hint *Chunk[T]) (T, bool) {
	c, local, ok := s.Locate(g, hint)
	if !ok {
		var zero T
		return zero, false
	}
	return c.Get(local.X, local.Y, local.Z), true
}

// IsValid applies the store's validity predicate. Without one every voxel is valid.
func (s *Store[T]) IsValid(v T) bool {
	return s.valid == nil || s.valid(v)
}

// Remove drops the chunk under key and detaches it.
func (s *Store[T]) Remove(key ChunkKey) (*Chunk[T], bool) {
	s.mu.Lock()
	c, ok := s.chunks[key]
	if ok {
		delete(s.chunks, key)
	}
	s.mu.Unlock()
	if ok {
		c.store.Store(nil)
	}
	return c, ok
}

// Len returns the number of chunks.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Keys returns all chunk keys in a stable order.
func (s *Store[T]) Keys() []ChunkKey {
	s.mu.RLock()
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	slices.SortFunc(keys, compareKeys)
	return keys
}

// Chunks returns all chunks ordered like Keys.
func (s *Store[T]) Chunks() []*Chunk[T] {
	s.mu.RLock()
	out := make([]*Chunk[T], 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, c)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Chunk[T]) int { return compareKeys(a.key, b.key) })
	return out
}

// Populate inserts chunks produced elsewhere (importers, decoders),
// overwriting chunks with the same key. The chunks are attached to this
// store and their Empty hints recomputed. The map's keys win over the
// chunks' own keys. It returns the keys written, in stable order. A
// cancelled ctx leaves the store untouched.
func (s *Store[T]) Populate(ctx context.Context, chunks map[ChunkKey]*Chunk[T]) ([]ChunkKey, error) {
	keys := make([]ChunkKey, 0, len(chunks))
	for k := range chunks {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	for _, k := range keys {
		c := chunks[k]
		c.key = k
		c.store.Store(s)
		if old, ok := s.chunks[k]; ok && old != c {
			old.store.Store(nil)
		}
		s.chunks[k] = c
	}
	s.mu.Unlock()

	for _, k := range keys {
		chunks[k].RecheckEmpty()
	}
	return keys, nil
}

// Replace swaps the whole content of the store for chunks and returns the
// keys that were present before and are gone now.
func (s *Store[T]) Replace(chunks map[ChunkKey]*Chunk[T]) []ChunkKey {
	next := make(map[ChunkKey]*Chunk[T], len(chunks))
	for k, c := range chunks {
		c.key = k
		c.store.Store(s)
		next[k] = c
	}

	s.mu.Lock()
	var gone []ChunkKey
	for k, old := range s.chunks {
		if _, ok := next[k]; !ok {
			gone = append(gone, k)
		}
		if next[k] != old {
			old.store.Store(nil)
		}
	}
	s.chunks = next
	s.mu.Unlock()

	for _, c := range next {
		c.RecheckEmpty()
	}
	slices.SortFunc(gone, compareKeys)
	return gone
}

// Clear drops every chunk.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	for _, c := range s.chunks {
		c.store.Store(nil)
	}
	s.chunks = make(map[ChunkKey]*Chunk[T])
	s.mu.Unlock()
}

func compareKeys(a, b ChunkKey) int {
	switch {
	case a == b:
		return 0
	case a.Less(b):
		return -1
	default:
		return 1
	}
}
