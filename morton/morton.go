// Package morton interleaves 3D coordinates into Z-order codes. Within a
// 16³ block the code of (x, y, z) is also its rank in Z-order.
package morton

func expand3(v uint32) uint32 {
	v &= 0x3FF
	v = (v | v<<16) & 0x030000FF
	v = (v | v<<8) & 0x0300F00F
	v = (v | v<<4) & 0x030C30C3
	v = (v | v<<2) & 0x09249249
	return v
}

func compact3(v uint32) uint32 {
	v &= 0x09249249
	v = (v ^ v>>2) & 0x030C30C3
	v = (v ^ v>>4) & 0x0300F00F
	v = (v ^ v>>8) & 0x030000FF
	v = (v ^ v>>16) & 0x3FF
	return v
}

// Encode interleaves x, y and z (10 bits each), x in the lowest bit.
func Encode(x, y, z uint32) uint32 {
	return expand3(x) | expand3(y)<<1 | expand3(z)<<2
}

func Decode(code uint32) (x, y, z uint32) {
	return compact3(code), compact3(code >> 1), compact3(code >> 2)
}
