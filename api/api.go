// Package api holds the byte level conversions shared by the command line
// tool and the WebAssembly build.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/voxelsplace/boxfish/components"
	"github.com/voxelsplace/boxfish/glb"
	"github.com/voxelsplace/boxfish/importer"
	"github.com/voxelsplace/boxfish/snapshot"
	"github.com/voxelsplace/boxfish/terrain"
	"github.com/voxelsplace/boxfish/volume"
	"github.com/voxelsplace/boxfish/voxel"
)

// ErrNoVoxels is returned when a conversion produced no chunks.
var ErrNoVoxels = errors.New("api: no voxels")

// ImportToSnapshot parses data as the format picked by name's extension and
// encodes the chunks as a snapshot.
func ImportToSnapshot(ctx context.Context, name string, data []byte, comp snapshot.Compression, log *slog.Logger) ([]byte, error) {
	chunks, err := importer.Create[components.Voxel](name, nil, log).
		WithData(data).
		WithColorImporter(components.ColorImporter).
		Build(ctx)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoVoxels
	}
	keys := slices.SortedFunc(maps.Keys(chunks), compareKeys)
	ordered := make([]*voxel.Chunk[components.Voxel], len(keys))
	for i, k := range keys {
		ordered[i] = chunks[k]
	}
	return snapshot.EncodeChunks(ordered, snapshot.Options{Compression: comp})
}

// SnapshotToGLB meshes every chunk of a snapshot with the default atlas and
// returns the binary glTF scene.
func SnapshotToGLB(ctx context.Context, data []byte, opts volume.Options) ([]byte, error) {
	atlas := components.DefaultAtlas()
	scene := glb.NewScene(components.Attributes(atlas), opts.Scale)
	v, err := volume.New[components.Voxel, components.Vertex](components.Policy(atlas), scene, opts)
	if err != nil {
		return nil, err
	}
	defer v.Close(context.WithoutCancel(ctx))

	if err := v.Deserialize(data); err != nil {
		return nil, err
	}
	v.GenerateMeshes()
	if err := v.Wait(ctx); err != nil {
		return nil, err
	}
	return scene.Bytes()
}

// ImportToGLB converts an importable file straight to a glTF scene.
func ImportToGLB(ctx context.Context, name string, data []byte, opts volume.Options) ([]byte, error) {
	snap, err := ImportToSnapshot(ctx, name, data, snapshot.CompressionNone, opts.Logger)
	if err != nil {
		return nil, err
	}
	return SnapshotToGLB(ctx, snap, opts)
}

// GenerateSnapshot builds a heightmap terrain of (2·radius)² chunks and
// encodes it.
func GenerateSnapshot(ctx context.Context, seed uint64, radius, height int, comp snapshot.Compression) ([]byte, error) {
	if radius < 1 {
		return nil, fmt.Errorf("api: radius must be at least 1, got %d", radius)
	}
	store := voxel.NewStore[components.Voxel](components.IsValid, nil)
	gen := &terrain.Generator{Seed: seed, Height: height}
	if _, err := gen.Populate(ctx, store, radius); err != nil {
		return nil, err
	}
	return snapshot.Encode(store, snapshot.Options{Compression: comp})
}

// NoiseSnapshot fills (2·radius)² chunks at z = 0 with percentage random
// voxels each and encodes them.
func NoiseSnapshot(ctx context.Context, seed uint64, radius int, percentage float64, comp snapshot.Compression) ([]byte, error) {
	if radius < 1 {
		return nil, fmt.Errorf("api: radius must be at least 1, got %d", radius)
	}
	gen := terrain.New(seed)
	chunks := make(map[voxel.ChunkKey]*voxel.Chunk[components.Voxel])
	for x := -radius; x < radius; x++ {
		for y := -radius; y < radius; y++ {
			key := voxel.ChunkKey{X: x, Y: y}
			chunks[key] = gen.Noise(key, percentage)
		}
	}
	store := voxel.NewStore[components.Voxel](components.IsValid, nil)
	if _, err := store.Populate(ctx, chunks); err != nil {
		return nil, err
	}
	return snapshot.Encode(store, snapshot.Options{Compression: comp})
}

// RLEToVOPL converts a run-length string such as "256,1,3840,0" to .vopl bytes.
func RLEToVOPL(rle string) ([]byte, error) {
	grid, err := importer.ParseRLE(rle)
	if err != nil {
		return nil, fmt.Errorf("expand rle: %w", err)
	}
	return importer.EncodeVOPL(grid), nil
}

// PackVOPLs builds a zlib compressed .voplpack from .vopl files keyed by
// entry name.
func PackVOPLs(files map[string][]byte) ([]byte, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("api: no files")
	}
	return importer.MarshalPack(files, importer.LayoutRaw, importer.PackCompZlib)
}

// UnpackVOPLPack returns the .vopl files of a pack keyed by entry name.
func UnpackVOPLPack(pack []byte) (map[string][]byte, error) {
	hdr, entries, err := importer.UnmarshalPack(pack)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		out[e.Name] = e.File(hdr)
	}
	return out, nil
}

// Stats describes a snapshot without decoding its voxels.
func Stats(data []byte) (snapshot.Info, error) {
	return snapshot.Inspect(data)
}

func compareKeys(a, b voxel.ChunkKey) int {
	switch {
	case a == b:
		return 0
	case a.Less(b):
		return -1
	}
	return 1
}
