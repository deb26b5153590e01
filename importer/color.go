package importer

import "image/color"

// Color is an imported voxel colour.
type Color = color.RGBA

// ColorImporter turns an imported colour into a voxel value.
type ColorImporter[T any] func(Color) T

// PaletteSize is the number of entries of DefaultPalette. Index 0 is empty.
const PaletteSize = 64

// DefaultPalette is the 64 colour palette used by .vopl, .voplpack and .rle
// sources: two bits per channel, index = r<<4 | g<<2 | b.
var DefaultPalette = func() [PaletteSize]Color {
	var p [PaletteSize]Color
	for i := range p {
		p[i] = Color{
			R: uint8(i>>4&3) * 85,
			G: uint8(i>>2&3) * 85,
			B: uint8(i&3) * 85,
			A: 0xFF,
		}
	}
	p[0].A = 0
	return p
}()
