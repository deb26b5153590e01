package terrain

import (
	"context"
	"testing"

	"github.com/voxelsplace/boxfish/components"
	"github.com/voxelsplace/boxfish/voxel"
)

func TestChunkColumns(t *testing.T) {
	g := &Generator{Seed: 7, Height: 10}
	key := voxel.ChunkKey{X: -2, Y: 3}
	c := g.Chunk(key)
	origin := key.Origin()
	for x := 0; x < voxel.ChunkSize; x++ {
		for y := 0; y < voxel.ChunkSize; y++ {
			h := g.HeightAt(origin.X+x, origin.Y+y)
			if h < 1 || h > 10 {
				t.Fatalf("height %d out of range", h)
			}
			for z := 0; z < voxel.ChunkSize; z++ {
				v := c.Get(x, y, z)
				switch {
				case z < h-1:
					if !v.Valid || v.Texture != components.TextureDirt {
						t.Fatalf("(%d,%d,%d) want dirt, got %+v", x, y, z, v)
					}
				case z == h-1:
					if !v.Valid || v.Texture != components.TextureGrass {
						t.Fatalf("(%d,%d,%d) want grass, got %+v", x, y, z, v)
					}
				default:
					if v.Valid {
						t.Fatalf("(%d,%d,%d) above ground is %+v", x, y, z, v)
					}
				}
			}
		}
	}
}

func TestDeterministic(t *testing.T) {
	a, b := New(42), New(42)
	key := voxel.ChunkKey{X: 1, Y: 1}
	if *a.Chunk(key).Voxels() != *b.Chunk(key).Voxels() {
		t.Fatal("same seed produced different chunks")
	}
	if *a.Noise(key, 30).Voxels() != *b.Noise(key, 30).Voxels() {
		t.Fatal("same seed produced different noise")
	}
}

func TestOffLayerEmpty(t *testing.T) {
	if c := New(1).Chunk(voxel.ChunkKey{Z: 1}); !c.Empty() {
		t.Fatal("chunk above z=0 should be empty")
	}
}

func TestPopulate(t *testing.T) {
	store := voxel.NewStore[components.Voxel](components.IsValid, nil)
	keys, err := New(3).Populate(context.Background(), store, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 16 || store.Len() != 16 {
		t.Fatalf("keys %d store %d", len(keys), store.Len())
	}
	for _, k := range keys {
		if k.X < -2 || k.X >= 2 || k.Y < -2 || k.Y >= 2 || k.Z != 0 {
			t.Fatalf("unexpected key %v", k)
		}
		c, _ := store.Get(k)
		if c.Empty() || c.Store() != store {
			t.Fatalf("chunk %v not attached or empty", k)
		}
	}
}

func TestNoiseFill(t *testing.T) {
	g := New(9)
	for _, tc := range []struct {
		pct  float64
		want int
	}{
		{0, 0},
		{-5, 0},
		{50, voxel.ChunkVolume / 2},
		{100, voxel.ChunkVolume},
		{250, voxel.ChunkVolume},
	} {
		c := g.Noise(voxel.ChunkKey{}, tc.pct)
		n := 0
		for _, v := range c.Voxels() {
			if v.Valid {
				n++
			}
		}
		if n != tc.want {
			t.Errorf("%v%%: %d voxels, want %d", tc.pct, n, tc.want)
		}
	}
}
