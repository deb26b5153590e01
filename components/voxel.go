// Package components provides a ready to use voxel and vertex pair with the
// mesh policy, importer mapping and GLB attributes that go with it.
package components

import (
	"image/color"

	"github.com/voxelsplace/boxfish/glb"
	"github.com/voxelsplace/boxfish/importer"
	"github.com/voxelsplace/boxfish/mesh"
	"github.com/voxelsplace/boxfish/voxel"
)

// Voxel is a coloured, textured voxel. The zero value is empty.
type Voxel struct {
	R, G, B uint8
	Valid   bool
	// Texture indexes the Atlas.
	Texture uint16
}

// NewVoxel returns a valid voxel. The alpha channel of c is ignored.
func NewVoxel(c color.RGBA, texture uint16) Voxel {
	return Voxel{R: c.R, G: c.G, B: c.B, Valid: true, Texture: texture}
}

func (v Voxel) Color() color.RGBA { return color.RGBA{v.R, v.G, v.B, 0xFF} }

func IsValid(v Voxel) bool { return v.Valid }

// Vertex is the packed vertex emitted for Voxel meshes.
type Vertex struct {
	X, Y, Z uint8
	Index   uint8
	Face    uint8
	AO      uint8
	Voxel   Voxel
}

func CreateVertex(pos voxel.Vec3i, vertexIndex int, face mesh.Face, ao int, v Voxel) Vertex {
	return Vertex{
		X:     uint8(pos.X),
		Y:     uint8(pos.Y),
		Z:     uint8(pos.Z),
		Index: uint8(vertexIndex),
		Face:  uint8(face),
		AO:    uint8(ao),
		Voxel: v,
	}
}

// Policy returns the mesh policy for Voxel. Opacity comes from atlas; a nil
// atlas makes every voxel non-opaque.
func Policy(atlas Atlas) mesh.Policy[Voxel, Vertex] {
	return mesh.Policy[Voxel, Vertex]{
		IsValid:      IsValid,
		IsOpaque:     atlas.Opaque,
		CreateVertex: CreateVertex,
	}
}

// ColorImporter maps imported palette colours to untextured voxels. Fully
// transparent colours become empty voxels.
func ColorImporter(c importer.Color) Voxel {
	if c.A == 0 {
		return Voxel{}
	}
	return NewVoxel(c, 0)
}

// Attributes returns the GLB vertex description for Vertex, shaded by atlas.
func Attributes(atlas Atlas) glb.Describe[Vertex] {
	return func(v Vertex) glb.VertexInfo {
		return glb.VertexInfo{
			Local: voxel.Vec3i{X: int(v.X), Y: int(v.Y), Z: int(v.Z)},
			Index: int(v.Index),
			Face:  mesh.Face(v.Face),
			AO:    int(v.AO),
			Color: atlas.Shade(v.Voxel),
		}
	}
}
