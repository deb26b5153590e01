package voxel

import "sync/atomic"

// Chunk owns a ChunkSize³ block of raw voxel values. Values are stored as
// given, including invalid or empty sentinels; validity is decided by the
// owning store's predicate.
//
// Voxel writes are not synchronized. A single goroutine owns writes while
// rebuild workers read concurrently; a reader may observe a partially
// applied batch of writes, which the next rebuild corrects.
type Chunk[T any] struct {
	key   ChunkKey
	store atomic.Pointer[Store[T]] // back-reference for neighbor lookups only
	empty atomic.Bool

	voxels [ChunkVolume]T
}

// NewChunk allocates a detached chunk whose voxels all hold the zero value.
// It joins a store through Store.Populate or Store.Replace.
func NewChunk[T any](key ChunkKey) *Chunk[T] {
	c := &Chunk[T]{key: key}
	c.empty.Store(true)
	return c
}

func (c *Chunk[T]) Key() ChunkKey { return c.key }

// Store returns the store the chunk belongs to, or nil for a detached chunk.
func (c *Chunk[T]) Store() *Store[T] { return c.store.Load() }

// Get returns the voxel at a local position. Positions outside
// [0, ChunkSize) panic like any out of range index.
func (c *Chunk[T]) Get(x, y, z int) T {
	return c.voxels[Index(x, y, z)]
}

// Set writes the voxel at a local position.
func (c *Chunk[T]) Set(x, y, z int, v T) {
	c.voxels[Index(x, y, z)] = v
	if c.empty.Load() && c.counts(v) {
		c.empty.Store(false)
	}
}

// Fill overwrites every voxel with v.
func (c *Chunk[T]) Fill(v T) {
	for i := range c.voxels {
		c.voxels[i] = v
	}
	c.empty.Store(!c.counts(v))
}

// Voxels exposes the backing array in Index order.
func (c *Chunk[T]) Voxels() *[ChunkVolume]T { return &c.voxels }

// Empty is a hint that no valid voxel has been written since the chunk was
// created or last rechecked. Meshing may skip empty chunks.
func (c *Chunk[T]) Empty() bool { return c.empty.Load() }

// RecheckEmpty rescans the voxels with the store's validity predicate and
// updates the Empty hint. Detached chunks are left untouched.
func (c *Chunk[T]) RecheckEmpty() bool {
	s := c.store.Load()
	if s == nil || s.valid == nil {
		return c.empty.Load()
	}
	empty := true
	for i := range c.voxels {
		if s.valid(c.voxels[i]) {
			empty = false
			break
		}
	}
	c.empty.Store(empty)
	return empty
}

// counts reports whether writing v may make the chunk non-empty. Without a
// predicate every write counts.
func (c *Chunk[T]) counts(v T) bool {
	s := c.store.Load()
	if s == nil || s.valid == nil {
		return true
	}
	return s.valid(v)
}

// Query is the result of resolving a position relative to a chunk.
type Query[T any] struct {
	Chunk *Chunk[T]
	Local Vec3i
	Voxel T
	Found bool
}

// RelativeQuery resolves a position given in this chunk's local space, which
// may lie outside [0, ChunkSize), against the owning store.
func (c *Chunk[T]) RelativeQuery(x, y, z int) Query[T] {
	if InBounds(x, y, z) {
		return Query[T]{Chunk: c, Local: Vec3i{x, y, z}, Voxel: c.Get(x, y, z), Found: true}
	}
	s := c.store.Load()
	if s == nil {
		return Query[T]{}
	}
	g := ToGlobalSpace(c.key, Vec3i{x, y, z})
	target, local, ok := s.Locate(g, c)
	if !ok {
		return Query[T]{Local: local}
	}
	return Query[T]{Chunk: target, Local: local, Voxel: target.Get(local.X, local.Y, local.Z), Found: true}
}
