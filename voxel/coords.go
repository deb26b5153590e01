package voxel

import "fmt"

const (
	// ChunkSize is the edge length of a chunk in voxels. Must stay a power of two.
	ChunkSize = 16
	// ChunkVolume is the number of voxels held by one chunk.
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize

	chunkShift = 4
	chunkMask  = ChunkSize - 1
)

// Vec3i is an integer position, either in global voxel space or local to a chunk.
type Vec3i struct {
	X, Y, Z int
}

func (v Vec3i) Add(o Vec3i) Vec3i {
	return Vec3i{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3i) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}

// ChunkKey identifies a chunk in chunk-grid space.
type ChunkKey struct {
	X, Y, Z int
}

func (k ChunkKey) Add(dx, dy, dz int) ChunkKey {
	return ChunkKey{k.X + dx, k.Y + dy, k.Z + dz}
}

// Less orders keys by Z, then Y, then X.
func (k ChunkKey) Less(o ChunkKey) bool {
	if k.Z != o.Z {
		return k.Z < o.Z
	}
	if k.Y != o.Y {
		return k.Y < o.Y
	}
	return k.X < o.X
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("[%d,%d,%d]", k.X, k.Y, k.Z)
}

// Origin returns the global voxel position of the chunk's (0,0,0) voxel.
func (k ChunkKey) Origin() Vec3i {
	return Vec3i{k.X * ChunkSize, k.Y * ChunkSize, k.Z * ChunkSize}
}

// ToChunkSpace splits a global voxel position into its chunk key and the
// local offset inside that chunk. Negative coordinates floor toward -inf.
func ToChunkSpace(g Vec3i) (ChunkKey, Vec3i) {
	key := ChunkKey{g.X >> chunkShift, g.Y >> chunkShift, g.Z >> chunkShift}
	local := Vec3i{g.X & chunkMask, g.Y & chunkMask, g.Z & chunkMask}
	return key, local
}

// ToGlobalSpace is the inverse of ToChunkSpace for locals in [0, ChunkSize).
func ToGlobalSpace(key ChunkKey, local Vec3i) Vec3i {
	return key.Origin().Add(local)
}

// InBounds reports whether the local position addresses a voxel of a chunk.
func InBounds(x, y, z int) bool {
	return uint(x) < ChunkSize && uint(y) < ChunkSize && uint(z) < ChunkSize
}

// Index returns the linear array index for a local position: x + y*16 + z*256.
func Index(x, y, z int) int {
	return x | y<<chunkShift | z<<(2*chunkShift)
}

// LocalFromIndex is the inverse of Index.
func LocalFromIndex(i int) Vec3i {
	return Vec3i{i & chunkMask, (i >> chunkShift) & chunkMask, i >> (2 * chunkShift)}
}
