package api

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/voxelsplace/boxfish/components"
	"github.com/voxelsplace/boxfish/importer"
	"github.com/voxelsplace/boxfish/snapshot"
	"github.com/voxelsplace/boxfish/volume"
	"github.com/voxelsplace/boxfish/voxel"
)

func TestGenerateSnapshot(t *testing.T) {
	ctx := context.Background()
	data, err := GenerateSnapshot(ctx, 5, 1, 6, snapshot.CompressionZstd)
	if err != nil {
		t.Fatal(err)
	}
	info, err := Stats(data)
	if err != nil {
		t.Fatal(err)
	}
	if info.Chunks != 4 || info.Compression != snapshot.CompressionZstd {
		t.Fatalf("info %+v", info)
	}

	out, err := SnapshotToGLB(ctx, data, volume.Options{Scale: 0.5, Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out, []byte("glTF")) {
		t.Fatal("not a binary glTF")
	}

	if _, err := GenerateSnapshot(ctx, 5, 0, 6, snapshot.CompressionNone); err == nil {
		t.Fatal("radius 0 accepted")
	}
}

func TestNoiseSnapshot(t *testing.T) {
	data, err := NoiseSnapshot(context.Background(), 3, 2, 25, snapshot.CompressionZlib)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := snapshot.Decode[components.Voxel](data)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 16 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	for k, c := range chunks {
		n := 0
		for _, v := range c.Voxels() {
			if v.Valid {
				n++
			}
		}
		if n != voxel.ChunkVolume/4 {
			t.Fatalf("chunk %v has %d voxels", k, n)
		}
	}
}

func TestRLEImport(t *testing.T) {
	vopl, err := RLEToVOPL("256,1,3840,0")
	if err != nil {
		t.Fatal(err)
	}
	snap, err := ImportToSnapshot(context.Background(), "floor.vopl", vopl, snapshot.CompressionNone, nil)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := snapshot.Decode[components.Voxel](snap)
	if err != nil {
		t.Fatal(err)
	}
	c := chunks[voxel.ChunkKey{}]
	if c == nil {
		t.Fatal("chunk missing")
	}
	want := components.ColorImporter(importer.DefaultPalette[1])
	if got := c.Get(4, 0, 9); got != want {
		t.Fatalf("floor voxel %+v, want %+v", got, want)
	}
	if c.Get(4, 1, 9).Valid {
		t.Fatal("voxel above the floor is set")
	}

	if _, err := RLEToVOPL("1,2,3"); err == nil {
		t.Fatal("bad rle accepted")
	}
}

func TestImportErrors(t *testing.T) {
	ctx := context.Background()
	_, err := ImportToSnapshot(ctx, "model.unknown", []byte{1}, snapshot.CompressionNone, nil)
	if !errors.Is(err, importer.ErrNoFormat) {
		t.Fatalf("err = %v", err)
	}
	_, err = ImportToSnapshot(ctx, "model.vopl", []byte("junk"), snapshot.CompressionNone, nil)
	if !errors.Is(err, importer.ErrParse) {
		t.Fatalf("err = %v", err)
	}
}

func TestImportToGLB(t *testing.T) {
	vopl, err := RLEToVOPL("1,7,4095,0")
	if err != nil {
		t.Fatal(err)
	}
	out, err := ImportToGLB(context.Background(), "dot.vopl", vopl, volume.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out, []byte("glTF")) {
		t.Fatal("not a binary glTF")
	}
}

func TestPackRoundTrip(t *testing.T) {
	a, _ := RLEToVOPL("4096,3")
	b, _ := RLEToVOPL("100,2,3996,0")
	files := map[string][]byte{"0_0_0.vopl": a, "1_0_0.vopl": b}
	pack, err := PackVOPLs(files)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnpackVOPLPack(pack)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !bytes.Equal(got["0_0_0.vopl"], a) || !bytes.Equal(got["1_0_0.vopl"], b) {
		t.Fatal("pack round trip changed the files")
	}
	if _, err := PackVOPLs(nil); err == nil {
		t.Fatal("empty pack accepted")
	}
}
