package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/voxelsplace/boxfish/voxel"
)

// ParseRLE expands a "count,color,count,color,..." run list, optionally
// wrapped in brackets, into a grid. Runs fill X first, then Z, then Y, and
// must cover the chunk exactly.
func ParseRLE(s string) (*Grid, error) {
	s = strings.Trim(strings.TrimSpace(s), "[] \n")
	if s == "" {
		return nil, fmt.Errorf("empty rle input")
	}
	var nums []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("rle value %q: %w", p, err)
		}
		nums = append(nums, n)
	}
	if len(nums)%2 != 0 {
		return nil, fmt.Errorf("rle has an odd number of values")
	}

	g := new(Grid)
	pos := 0
	for i := 0; i < len(nums); i += 2 {
		count, color := nums[i], nums[i+1]
		if count < 0 || color < 0 || color >= PaletteSize {
			return nil, fmt.Errorf("rle run %d: count %d color %d", i/2, count, color)
		}
		if pos+count > voxel.ChunkVolume {
			return nil, fmt.Errorf("rle covers more than %d voxels", voxel.ChunkVolume)
		}
		for j := pos; j < pos+count; j++ {
			x, z, y := j%voxel.ChunkSize, j/voxel.ChunkSize%voxel.ChunkSize, j/(voxel.ChunkSize*voxel.ChunkSize)
			g[voxel.Index(x, y, z)] = uint8(color)
		}
		pos += count
	}
	if pos != voxel.ChunkVolume {
		return nil, fmt.Errorf("rle covers %d voxels, want %d", pos, voxel.ChunkVolume)
	}
	return g, nil
}

// RLE imports a text run-length file as a single chunk at key (0,0,0).
type RLE[T any] struct{}

func (RLE[T]) Extensions() []string { return []string{".rle"} }

func (RLE[T]) Parse(_ context.Context, data []byte, imp *Importer[T]) (map[voxel.ChunkKey]*voxel.Chunk[T], error) {
	g, err := ParseRLE(string(data))
	if err != nil {
		return nil, err
	}
	palette, err := imp.Palette()
	if err != nil {
		return nil, err
	}
	c, err := gridChunk(voxel.ChunkKey{}, g, &palette)
	if err != nil {
		return nil, err
	}
	return map[voxel.ChunkKey]*voxel.Chunk[T]{{}: c}, nil
}
