// Package terrain generates demo content: heightmap chunks and random noise
// chunks of components.Voxel.
package terrain

import (
	"context"
	"encoding/binary"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
	"github.com/voxelsplace/boxfish/components"
	"github.com/voxelsplace/boxfish/importer"
	"github.com/voxelsplace/boxfish/voxel"
)

// frequency is the number of voxels between lattice points of the height noise.
const frequency = 24

// Generator produces deterministic terrain from a seed. Heightmaps grow
// along +Z from the bottom of chunks at z = 0.
type Generator struct {
	Seed uint64
	// Height caps the column height in voxels; values outside
	// [1, ChunkSize] are clamped.
	Height int
}

// New returns a generator with full chunk height.
func New(seed uint64) *Generator {
	return &Generator{Seed: seed, Height: voxel.ChunkSize}
}

func (g *Generator) maxHeight() int {
	return min(max(g.Height, 1), voxel.ChunkSize)
}

// HeightAt returns the column height at a global (x, y) position, between 1
// and the generator's Height.
func (g *Generator) HeightAt(x, y int) int {
	n := g.sample(float64(x)/frequency, float64(y)/frequency)
	top := g.maxHeight()
	h := int(n*n*float64(top)) + 1
	return min(max(h, 1), top)
}

// Chunk builds the detached heightmap chunk at key. Only the z = 0 layer of
// chunks holds terrain; other keys come back empty. The top voxel of each
// column is grass, the rest dirt.
func (g *Generator) Chunk(key voxel.ChunkKey) *voxel.Chunk[components.Voxel] {
	c := voxel.NewChunk[components.Voxel](key)
	if key.Z != 0 {
		return c
	}
	white := color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	grass := components.NewVoxel(white, components.TextureGrass)
	dirt := components.NewVoxel(white, components.TextureDirt)
	origin := key.Origin()
	for x := 0; x < voxel.ChunkSize; x++ {
		for y := 0; y < voxel.ChunkSize; y++ {
			h := g.HeightAt(origin.X+x, origin.Y+y)
			for z := 0; z < h; z++ {
				v := dirt
				if z == h-1 {
					v = grass
				}
				c.Set(x, y, z, v)
			}
		}
	}
	return c
}

// Populate fills store with a (2·radius)² grid of heightmap chunks around
// the origin at z = 0 and returns the keys written.
func (g *Generator) Populate(ctx context.Context, store *voxel.Store[components.Voxel], radius int) ([]voxel.ChunkKey, error) {
	chunks := make(map[voxel.ChunkKey]*voxel.Chunk[components.Voxel], 4*radius*radius)
	for x := -radius; x < radius; x++ {
		for y := -radius; y < radius; y++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			key := voxel.ChunkKey{X: x, Y: y}
			chunks[key] = g.Chunk(key)
		}
	}
	return store.Populate(ctx, chunks)
}

// Noise builds a detached chunk with percentage (0-100) of its voxels set to
// random non-empty colours of importer.DefaultPalette.
func (g *Generator) Noise(key voxel.ChunkKey, percentage float64) *voxel.Chunk[components.Voxel] {
	percentage = min(max(percentage, 0), 100)
	want := int(float64(voxel.ChunkVolume)*percentage/100 + 0.5)

	r := rand.New(rand.NewPCG(g.Seed, g.hash(key.X, key.Y, key.Z)))
	idx := make([]int, voxel.ChunkVolume)
	for i := range idx {
		idx[i] = i
	}
	// partial Fisher-Yates over the first want slots
	for i := 0; i < want; i++ {
		j := i + r.IntN(voxel.ChunkVolume-i)
		idx[i], idx[j] = idx[j], idx[i]
	}

	c := voxel.NewChunk[components.Voxel](key)
	for _, i := range idx[:want] {
		p := voxel.LocalFromIndex(i)
		c.Set(p.X, p.Y, p.Z, components.NewVoxel(importer.DefaultPalette[1+r.IntN(importer.PaletteSize-1)], 0))
	}
	return c
}

// sample is smoothed value noise in [0, 1).
func (g *Generator) sample(x, y float64) float64 {
	x0, y0 := math.Floor(x), math.Floor(y)
	ix, iy := int(x0), int(y0)
	tx, ty := smooth(x-x0), smooth(y-y0)

	a := g.lattice(ix, iy)
	b := g.lattice(ix+1, iy)
	c := g.lattice(ix, iy+1)
	d := g.lattice(ix+1, iy+1)
	return lerp(lerp(a, b, tx), lerp(c, d, tx), ty)
}

func (g *Generator) lattice(x, y int) float64 {
	return float64(g.hash(x, y, 0)>>11) / (1 << 53)
}

func (g *Generator) hash(x, y, z int) uint64 {
	var buf [32]byte
	binary.LittleEndian.PutUint64(buf[0:], g.Seed)
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(x)))
	binary.LittleEndian.PutUint64(buf[16:], uint64(int64(y)))
	binary.LittleEndian.PutUint64(buf[24:], uint64(int64(z)))
	return xxhash.Sum64(buf[:])
}

func smooth(t float64) float64 { return t * t * (3 - 2*t) }

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
