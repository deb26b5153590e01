package mesh

import "github.com/voxelsplace/boxfish/voxel"

// sampler reads voxels around the voxel being meshed. Positions are local
// to chunk and may step one voxel past its edges.
type sampler[T any] struct {
	chunk *voxel.Chunk[T]
	near  [7]*voxel.Chunk[T]
	n     int
}

// reset loads the neighbor set for the voxel at (x, y, z). Voxels away from
// every edge only ever sample their own chunk.
func (s *sampler[T]) reset(x, y, z int) {
	s.n = 0
	if interior(x) && interior(y) && interior(z) {
		return
	}
	for c := range s.chunk.Neighbors(x, y, z, false) {
		if s.n == len(s.near) {
			break
		}
		s.near[s.n] = c
		s.n++
	}
}

func (s *sampler[T]) at(x, y, z int) (T, bool) {
	if voxel.InBounds(x, y, z) {
		return s.chunk.Get(x, y, z), true
	}
	key, local := voxel.ToChunkSpace(voxel.ToGlobalSpace(s.chunk.Key(), voxel.Vec3i{X: x, Y: y, Z: z}))
	for _, c := range s.near[:s.n] {
		if c.Key() == key {
			return c.Get(local.X, local.Y, local.Z), true
		}
	}
	var zero T
	return zero, false
}

func interior(v int) bool { return v > 0 && v < voxel.ChunkSize-1 }
