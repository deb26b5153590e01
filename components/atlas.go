package components

import "image/color"

// AtlasItem describes one texture slot.
type AtlasItem struct {
	Name   string
	Opaque bool
	// Tint multiplies the voxel colour in exports. The zero value means white.
	Tint color.RGBA
}

// Atlas maps texture ids to their description.
type Atlas map[uint16]AtlasItem

// Texture ids used by the default atlas and the terrain generator.
const (
	TextureGrass uint16 = 1
	TextureDirt  uint16 = 2
	TextureGlass uint16 = 3
	TextureWater uint16 = 4
)

func DefaultAtlas() Atlas {
	return Atlas{
		TextureGrass: {Name: "grass", Opaque: true, Tint: color.RGBA{0x6A, 0xB0, 0x4C, 0xFF}},
		TextureDirt:  {Name: "dirt", Opaque: true, Tint: color.RGBA{0x86, 0x60, 0x43, 0xFF}},
		TextureGlass: {Name: "glass", Opaque: false},
		TextureWater: {Name: "water", Opaque: false, Tint: color.RGBA{0x3F, 0x76, 0xE4, 0xFF}},
	}
}

// Opaque reports whether v's texture is opaque. Unknown textures are not.
func (a Atlas) Opaque(v Voxel) bool {
	item, ok := a[v.Texture]
	return ok && item.Opaque
}

// Shade returns v's colour tinted by its texture as linear RGBA in [0,1].
// Non-opaque textures come out half transparent.
func (a Atlas) Shade(v Voxel) [4]float32 {
	out := [4]float32{float32(v.R) / 255, float32(v.G) / 255, float32(v.B) / 255, 1}
	item, ok := a[v.Texture]
	if !ok {
		return out
	}
	if item.Tint != (color.RGBA{}) {
		out[0] *= float32(item.Tint.R) / 255
		out[1] *= float32(item.Tint.G) / 255
		out[2] *= float32(item.Tint.B) / 255
	}
	if !item.Opaque {
		out[3] = 0.5
	}
	return out
}
