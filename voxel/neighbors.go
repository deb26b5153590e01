package voxel

import "iter"

// faceSteps lists the six face directions in resolution order.
var faceSteps = [6]struct {
	axis, sign int
}{
	{0, +1}, {0, -1},
	{1, +1}, {1, -1},
	{2, +1}, {2, -1},
}

// Neighbors yields the chunks that voxel lookups around the local position
// (x, y, z) may touch: this chunk first when includeSelf is set, then each
// existing face neighbor whose shared face the voxel lies on (+X, -X, +Y,
// -Y, +Z, -Z), then the single corner chunk picked from the per-axis
// boundary signs.
//
// The corner is not deduplicated. A voxel that sits on the boundary of one
// axis only gets its face neighbor yielded a second time.
func (c *Chunk[T]) Neighbors(x, y, z int, includeSelf bool) iter.Seq[*Chunk[T]] {
	return func(yield func(*Chunk[T]) bool) {
		if includeSelf && !yield(c) {
			return
		}
		s := c.store.Load()
		if s == nil {
			return
		}
		pos := [3]int{x, y, z}
		for _, step := range faceSteps {
			if !onBoundary(pos[step.axis], step.sign) {
				continue
			}
			var d [3]int
			d[step.axis] = step.sign
			n, ok := s.Get(c.key.Add(d[0], d[1], d[2]))
			if ok && !yield(n) {
				return
			}
		}

		dx, dy, dz := boundarySign(x), boundarySign(y), boundarySign(z)
		if dx == 0 && dy == 0 && dz == 0 {
			return
		}
		if n, ok := s.Get(c.key.Add(dx, dy, dz)); ok {
			yield(n)
		}
	}
}

func onBoundary(v, sign int) bool {
	if sign > 0 {
		return v == ChunkSize-1
	}
	return v == 0
}

func boundarySign(v int) int {
	switch {
	case v <= 0:
		return -1
	case v >= ChunkSize-1:
		return 1
	default:
		return 0
	}
}
