package mesh

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/voxelsplace/boxfish/voxel"
)

// ErrIncompletePolicy is returned by NewBuilder when a required callback is missing.
var ErrIncompletePolicy = errors.New("mesh: policy needs IsValid and CreateVertex")

// Policy supplies the voxel semantics the builder needs.
type Policy[T, V any] struct {
	// IsValid reports whether a voxel is present.
	IsValid func(T) bool
	// IsOpaque is optional. Without it no voxel is opaque.
	IsOpaque func(T) bool
	// CreateVertex builds vertex vertexIndex (0-3) of a visible face of the
	// voxel at the local position pos. ao is 3 for a fully lit corner and 0
	// for a fully occluded one.
	CreateVertex func(pos voxel.Vec3i, vertexIndex int, face Face, ao int, v T) V
}

// Mesh is the output of a chunk build: four vertices per visible face.
type Mesh[V any] struct {
	Key      voxel.ChunkKey
	Vertices []V
	Faces    int
	// Min and Max bound the emitted voxels in chunk-local voxel units.
	Min, Max mgl32.Vec3
}

func (m Mesh[V]) Empty() bool { return m.Faces == 0 }

// Builder turns chunk voxels into a Mesh. It holds no per-build state and
// may be shared across goroutines.
type Builder[T, V any] struct {
	policy Policy[T, V]
}

func NewBuilder[T, V any](p Policy[T, V]) (*Builder[T, V], error) {
	if p.IsValid == nil || p.CreateVertex == nil {
		return nil, ErrIncompletePolicy
	}
	return &Builder[T, V]{policy: p}, nil
}

// Build meshes c. Lookups past the chunk edge only consult the chunks
// c.Neighbors yields for the voxel being meshed; anything else counts as
// absent. A panicking policy callback is reported as an error.
func (b *Builder[T, V]) Build(ctx context.Context, c *voxel.Chunk[T]) (m Mesh[V], err error) {
	if c == nil {
		return m, nil
	}
	m.Key = c.Key()
	if c.Empty() {
		return m, nil
	}

	defer func() {
		if r := recover(); r != nil {
			m = Mesh[V]{Key: c.Key()}
			err = fmt.Errorf("mesh: chunk %v: policy panic: %v", c.Key(), r)
		}
	}()

	s := sampler[T]{chunk: c}
	first := true
	for x := 0; x < voxel.ChunkSize; x++ {
		if err := ctx.Err(); err != nil {
			return Mesh[V]{Key: c.Key()}, err
		}
		for y := 0; y < voxel.ChunkSize; y++ {
			for z := 0; z < voxel.ChunkSize; z++ {
				cur := c.Get(x, y, z)
				if !b.policy.IsValid(cur) {
					continue
				}
				s.reset(x, y, z)
				pos := voxel.Vec3i{X: x, Y: y, Z: z}
				emitted := false
				for f := Face(0); f < FaceCount; f++ {
					if !b.visible(&s, pos, f, cur) {
						continue
					}
					for i := 0; i < 4; i++ {
						m.Vertices = append(m.Vertices, b.policy.CreateVertex(pos, i, f, b.occlusion(&s, pos, f, i), cur))
					}
					m.Faces++
					emitted = true
				}
				if emitted {
					lo := mgl32.Vec3{float32(x), float32(y), float32(z)}
					hi := lo.Add(mgl32.Vec3{1, 1, 1})
					if first {
						m.Min, m.Max = lo, hi
						first = false
					} else {
						m.Min = minVec(m.Min, lo)
						m.Max = maxVec(m.Max, hi)
					}
				}
			}
		}
	}
	return m, nil
}

func (b *Builder[T, V]) visible(s *sampler[T], pos voxel.Vec3i, f Face, cur T) bool {
	n := f.Normal()
	adj, ok := s.at(pos.X+n[0], pos.Y+n[1], pos.Z+n[2])
	if !ok || !b.policy.IsValid(adj) {
		return true
	}
	if b.policy.IsOpaque == nil {
		return false
	}
	return b.policy.IsOpaque(cur) && !b.policy.IsOpaque(adj)
}

// occlusion samples the two side voxels and the diagonal voxel around
// vertex i in the layer in front of face f.
func (b *Builder[T, V]) occlusion(s *sampler[T], pos voxel.Vec3i, f Face, i int) int {
	spec := faces[f]
	front := [3]int{pos.X + spec.normal[0], pos.Y + spec.normal[1], pos.Z + spec.normal[2]}

	var du, dv [3]int
	du[spec.u] = corners[f][i][0]*2 - 1
	dv[spec.v] = corners[f][i][1]*2 - 1

	count := 0
	for _, d := range [3][3]int{
		du,
		dv,
		{du[0] + dv[0], du[1] + dv[1], du[2] + dv[2]},
	} {
		if v, ok := s.at(front[0]+d[0], front[1]+d[1], front[2]+d[2]); ok && b.policy.IsValid(v) {
			count++
		}
	}
	return 3 - count
}

func minVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2])}
}

func maxVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])}
}
