// Package glb collects chunk meshes and exports them as a binary glTF scene.
package glb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/voxelsplace/boxfish/mesh"
	"github.com/voxelsplace/boxfish/rebuild"
	"github.com/voxelsplace/boxfish/voxel"
)

// VertexInfo is what the exporter needs to know about one vertex.
type VertexInfo struct {
	Local voxel.Vec3i
	Index int
	Face  mesh.Face
	AO    int
	// Color is linear RGBA in [0,1].
	Color [4]float32
}

// Describe extracts VertexInfo from a vertex.
type Describe[V any] func(V) VertexInfo

// aoShade darkens vertex colours by occlusion level, 0 (fully occluded) to 3.
var aoShade = [4]float32{0.45, 0.6, 0.8, 1}

// Scene is a rebuild.Sink that keeps the latest mesh of every chunk. It is
// safe for concurrent use.
type Scene[V any] struct {
	describe Describe[V]
	scale    float32

	mu     sync.Mutex
	chunks map[voxel.ChunkKey]rebuild.Request[V]
}

var _ rebuild.Sink[struct{}] = (*Scene[struct{}])(nil)

// NewScene returns an empty scene. scale is the world size of one voxel.
func NewScene[V any](describe Describe[V], scale float32) *Scene[V] {
	if scale <= 0 {
		scale = 1
	}
	return &Scene[V]{describe: describe, scale: scale, chunks: make(map[voxel.ChunkKey]rebuild.Request[V])}
}

func (s *Scene[V]) Rebuild(_ context.Context, req rebuild.Request[V]) error {
	s.mu.Lock()
	s.chunks[req.Key] = req
	s.mu.Unlock()
	return nil
}

func (s *Scene[V]) Remove(_ context.Context, key voxel.ChunkKey) error {
	s.mu.Lock()
	delete(s.chunks, key)
	s.mu.Unlock()
	return nil
}

// Keys lists the chunks that currently have a mesh, ordered by Z, Y, X.
func (s *Scene[V]) Keys() []voxel.ChunkKey {
	s.mu.Lock()
	keys := make([]voxel.ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	slices.SortFunc(keys, func(a, b voxel.ChunkKey) int {
		switch {
		case a == b:
			return 0
		case a.Less(b):
			return -1
		}
		return 1
	})
	return keys
}

func (s *Scene[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// Document builds a glTF document with one node per chunk.
func (s *Scene[V]) Document() (*gltf.Document, error) {
	doc := gltf.NewDocument()
	doc.Asset.Generator = "boxfish"

	material := &gltf.Material{
		Name:      "voxel",
		AlphaMode: gltf.AlphaOpaque,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float64{1, 1, 1, 1},
			MetallicFactor:  gltf.Float(0),
			RoughnessFactor: gltf.Float(1),
		},
	}
	doc.Materials = []*gltf.Material{material}

	for _, key := range s.Keys() {
		s.mu.Lock()
		req, ok := s.chunks[key]
		s.mu.Unlock()
		if !ok || req.Faces == 0 {
			continue
		}
		if len(req.Vertices) != req.Faces*4 {
			return nil, fmt.Errorf("glb: chunk %v has %d vertices for %d faces", key, len(req.Vertices), req.Faces)
		}

		positions := make([][3]float32, len(req.Vertices))
		normals := make([][3]float32, len(req.Vertices))
		colors := make([][4]float32, len(req.Vertices))
		for i, v := range req.Vertices {
			info := s.describe(v)
			off := mesh.CornerOffset(info.Face, info.Index)
			n := info.Face.Normal()
			positions[i] = [3]float32{
				float32(info.Local.X+off[0]) * s.scale,
				float32(info.Local.Y+off[1]) * s.scale,
				float32(info.Local.Z+off[2]) * s.scale,
			}
			normals[i] = [3]float32{float32(n[0]), float32(n[1]), float32(n[2])}
			shade := aoShade[min(max(info.AO, 0), 3)]
			colors[i] = [4]float32{info.Color[0] * shade, info.Color[1] * shade, info.Color[2] * shade, info.Color[3]}
			if info.Color[3] < 1 {
				material.AlphaMode = gltf.AlphaBlend
			}
		}

		prim := &gltf.Primitive{
			Attributes: map[string]int{
				gltf.POSITION: modeler.WritePosition(doc, positions),
				gltf.NORMAL:   modeler.WriteNormal(doc, normals),
				gltf.COLOR_0:  modeler.WriteColor(doc, colors),
			},
			Indices:  gltf.Index(modeler.WriteIndices(doc, mesh.QuadIndices(req.Faces))),
			Material: gltf.Index(0),
		}
		doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: "chunk " + key.String(), Primitives: []*gltf.Primitive{prim}})
		doc.Nodes = append(doc.Nodes, &gltf.Node{
			Name:        key.String(),
			Mesh:        gltf.Index(len(doc.Meshes) - 1),
			Translation: [3]float64{float64(req.Position.X()), float64(req.Position.Y()), float64(req.Position.Z())},
		})
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, len(doc.Nodes)-1)
	}
	return doc, nil
}

// Encode writes the scene to w as binary glTF.
func (s *Scene[V]) Encode(w io.Writer) error {
	doc, err := s.Document()
	if err != nil {
		return err
	}
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	return enc.Encode(doc)
}

// Bytes returns the scene as binary glTF.
func (s *Scene[V]) Bytes() ([]byte, error) {
	var out bytes.Buffer
	if err := s.Encode(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
