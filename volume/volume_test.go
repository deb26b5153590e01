package volume

import (
	"bytes"
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/voxelsplace/boxfish/components"
	"github.com/voxelsplace/boxfish/glb"
	"github.com/voxelsplace/boxfish/importer"
	"github.com/voxelsplace/boxfish/snapshot"
	"github.com/voxelsplace/boxfish/voxel"
)

var red = components.NewVoxel(color.RGBA{0xFF, 0, 0, 0xFF}, 0)

type testVolume struct {
	*Volume[components.Voxel, components.Vertex]
	scene *glb.Scene[components.Vertex]
}

func newVolume(t *testing.T) testVolume {
	t.Helper()
	atlas := components.DefaultAtlas()
	scene := glb.NewScene(components.Attributes(atlas), 1)
	v, err := New[components.Voxel, components.Vertex](components.Policy(atlas), scene, Options{Workers: 2, Compression: snapshot.CompressionZstd})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = v.Close(context.Background()) })
	return testVolume{v, scene}
}

func wait(t *testing.T, v testVolume) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := v.Wait(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestNewRejectsNegativeScale(t *testing.T) {
	_, err := New[components.Voxel, components.Vertex](components.Policy(nil), glb.NewScene(components.Attributes(nil), 1), Options{Scale: -1})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSetNeedsChunk(t *testing.T) {
	v := newVolume(t)
	if v.Set(voxel.Vec3i{X: 1, Y: 1, Z: 1}, red) {
		t.Fatal("write into a missing chunk succeeded")
	}
	v.Chunk(voxel.ChunkKey{})
	if !v.Set(voxel.Vec3i{X: 1, Y: 1, Z: 1}, red) {
		t.Fatal("write failed")
	}
	if got, ok := v.Get(voxel.Vec3i{X: 1, Y: 1, Z: 1}); !ok || got != red {
		t.Fatalf("got %+v %v", got, ok)
	}
	// not meshed until asked
	if v.scene.Len() != 0 {
		t.Fatal("mesh generated without GenerateMeshes")
	}
	v.GenerateMeshes()
	wait(t, v)
	if v.scene.Len() != 1 {
		t.Fatalf("scene has %d chunks", v.scene.Len())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := newVolume(t)
	for _, k := range []voxel.ChunkKey{{}, {X: 1}, {Y: -1, Z: 2}} {
		src.Chunk(k)
	}
	src.Set(voxel.Vec3i{X: 3, Y: 4, Z: 5}, red)
	src.Set(voxel.Vec3i{X: 16, Y: 0, Z: 0}, components.NewVoxel(color.RGBA{0, 0, 0xFF, 0xFF}, components.TextureGlass))

	var buf bytes.Buffer
	if err := src.WriteSnapshot(&buf); err != nil {
		t.Fatal(err)
	}

	dst := newVolume(t)
	dst.Chunk(voxel.ChunkKey{X: 9})
	dst.Set(voxel.Vec3i{X: 144}, red)
	dst.GenerateMeshes()
	wait(t, dst)

	if err := dst.ReadSnapshot(&buf); err != nil {
		t.Fatal(err)
	}
	wait(t, dst)

	if got := dst.Store().Keys(); len(got) != 3 {
		t.Fatalf("keys %v", got)
	}
	for _, k := range src.Store().Keys() {
		a, _ := src.Store().Get(k)
		b, ok := dst.Store().Get(k)
		if !ok || *a.Voxels() != *b.Voxels() {
			t.Fatalf("chunk %v differs", k)
		}
	}
	// only the two non-empty chunks have meshes; the vanished chunk is gone
	keys := dst.scene.Keys()
	if len(keys) != 2 || keys[0] != (voxel.ChunkKey{}) || keys[1] != (voxel.ChunkKey{X: 1}) {
		t.Fatalf("scene keys %v", keys)
	}
}

func TestCorruptSnapshotLeavesVolume(t *testing.T) {
	v := newVolume(t)
	v.Chunk(voxel.ChunkKey{})
	v.Set(voxel.Vec3i{}, red)
	data, err := v.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xFF
	if err := v.Deserialize(data); err == nil {
		t.Fatal("corrupt snapshot accepted")
	}
	if got, _ := v.Get(voxel.Vec3i{}); got != red {
		t.Fatal("volume changed by a failed load")
	}
}

func TestApplyDelta(t *testing.T) {
	before := newVolume(t)
	before.Chunk(voxel.ChunkKey{})
	data, err := before.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	after := newVolume(t)
	if err := after.Deserialize(data); err != nil {
		t.Fatal(err)
	}
	after.Chunk(voxel.ChunkKey{X: 1})
	after.Set(voxel.Vec3i{X: 15, Y: 2, Z: 2}, red)
	after.Set(voxel.Vec3i{X: 17, Y: 2, Z: 2}, red)

	delta, err := after.DeltaFrom(before.Store())
	if err != nil {
		t.Fatal(err)
	}
	if err := before.ApplyDelta(delta); err != nil {
		t.Fatal(err)
	}
	wait(t, before)

	for _, p := range []voxel.Vec3i{{X: 15, Y: 2, Z: 2}, {X: 17, Y: 2, Z: 2}} {
		if got, ok := before.Get(p); !ok || got != red {
			t.Fatalf("voxel %v = %+v %v", p, got, ok)
		}
	}
	if before.scene.Len() != 2 {
		t.Fatalf("scene has %d chunks", before.scene.Len())
	}

	if err := before.ApplyDelta(delta[:len(delta)-2]); err == nil {
		t.Fatal("truncated delta accepted")
	}
}

func TestImport(t *testing.T) {
	g := new(importer.Grid)
	g[voxel.Index(0, 0, 0)] = 5
	imp := importer.Create[components.Voxel]("dot.vopl", nil, nil).
		WithData(importer.EncodeVOPL(g)).
		WithColorImporter(components.ColorImporter)

	v := newVolume(t)
	v.Chunk(voxel.ChunkKey{X: -1})
	v.Set(voxel.Vec3i{X: -1}, red)
	if err := v.Import(context.Background(), imp); err != nil {
		t.Fatal(err)
	}
	wait(t, v)

	got, _ := v.Get(voxel.Vec3i{})
	if got != components.ColorImporter(importer.DefaultPalette[5]) {
		t.Fatalf("imported voxel %+v", got)
	}
	// the existing face neighbor was re-meshed along with the import
	if v.scene.Len() != 2 {
		t.Fatalf("scene has %d chunks", v.scene.Len())
	}
}

func TestCloseRemovesMeshes(t *testing.T) {
	v := newVolume(t)
	v.Chunk(voxel.ChunkKey{})
	v.Set(voxel.Vec3i{}, red)
	v.GenerateMeshes()
	wait(t, v)
	if v.scene.Len() != 1 {
		t.Fatalf("scene has %d chunks", v.scene.Len())
	}
	if err := v.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v.scene.Len() != 0 || v.Store().Len() != 0 {
		t.Fatal("close left meshes or chunks behind")
	}
	if err := v.Deserialize(nil); err != ErrClosed {
		t.Fatalf("err = %v", err)
	}
}
