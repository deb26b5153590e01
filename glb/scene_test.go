package glb

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/voxelsplace/boxfish/mesh"
	"github.com/voxelsplace/boxfish/rebuild"
	"github.com/voxelsplace/boxfish/voxel"
)

type vert struct {
	face  mesh.Face
	index int
	alpha float32
}

func describe(v vert) VertexInfo {
	return VertexInfo{Local: voxel.Vec3i{X: 1, Y: 2, Z: 3}, Index: v.index, Face: v.face, AO: 3, Color: [4]float32{1, 1, 1, v.alpha}}
}

func cube(alpha float32) []vert {
	var out []vert
	for f := mesh.Face(0); f < mesh.FaceCount; f++ {
		for i := 0; i < 4; i++ {
			out = append(out, vert{face: f, index: i, alpha: alpha})
		}
	}
	return out
}

func TestSceneDocument(t *testing.T) {
	ctx := context.Background()
	s := NewScene(describe, 0.5)
	key := voxel.ChunkKey{X: 1, Y: -1}
	if err := s.Rebuild(ctx, rebuild.Request[vert]{Key: key, Vertices: cube(1), Faces: 6, Position: mgl32.Vec3{8, -8, 0}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Rebuild(ctx, rebuild.Request[vert]{Key: voxel.ChunkKey{}, Vertices: cube(0.5), Faces: 6}); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 {
		t.Fatalf("len %d", s.Len())
	}

	doc, err := s.Document()
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Nodes) != 2 || len(doc.Meshes) != 2 || len(doc.Scenes[0].Nodes) != 2 {
		t.Fatalf("nodes %d meshes %d", len(doc.Nodes), len(doc.Meshes))
	}
	// Keys order puts y=-1 first.
	if doc.Nodes[0].Translation != [3]float64{8, -8, 0} {
		t.Fatalf("translation %v", doc.Nodes[0].Translation)
	}
	prim := doc.Meshes[0].Primitives[0]
	pos := doc.Accessors[prim.Attributes[gltf.POSITION]]
	if pos.Count != 24 {
		t.Fatalf("position count %d", pos.Count)
	}
	// Corner positions are (local + offset) * scale.
	if pos.Min[0] != 0.5 || pos.Max[0] != 1 || pos.Min[2] != 1.5 || pos.Max[2] != 2 {
		t.Fatalf("bounds %v %v", pos.Min, pos.Max)
	}
	if idx := doc.Accessors[*prim.Indices]; idx.Count != 36 {
		t.Fatalf("index count %d", idx.Count)
	}
	if doc.Materials[0].AlphaMode != gltf.AlphaBlend {
		t.Fatalf("alpha mode %v", doc.Materials[0].AlphaMode)
	}
}

func TestSceneRemoveAndEncode(t *testing.T) {
	ctx := context.Background()
	s := NewScene(describe, 1)
	key := voxel.ChunkKey{Z: 2}
	_ = s.Rebuild(ctx, rebuild.Request[vert]{Key: key, Vertices: cube(1), Faces: 6})
	_ = s.Rebuild(ctx, rebuild.Request[vert]{Key: voxel.ChunkKey{Z: 3}})

	doc, err := s.Document()
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Nodes) != 1 {
		t.Fatalf("empty mesh exported, nodes %d", len(doc.Nodes))
	}
	if doc.Materials[0].AlphaMode != gltf.AlphaOpaque {
		t.Fatalf("alpha mode %v", doc.Materials[0].AlphaMode)
	}

	out, err := s.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out, []byte("glTF")) {
		t.Fatalf("not a binary glTF: % x", out[:min(len(out), 4)])
	}

	_ = s.Remove(ctx, key)
	if got := s.Keys(); len(got) != 1 || got[0] != (voxel.ChunkKey{Z: 3}) {
		t.Fatalf("keys %v", got)
	}
}

func TestSceneRejectsShortStream(t *testing.T) {
	s := NewScene(describe, 1)
	_ = s.Rebuild(context.Background(), rebuild.Request[vert]{Vertices: cube(1)[:5], Faces: 6})
	if _, err := s.Document(); err == nil {
		t.Fatal("expected error")
	}
}
