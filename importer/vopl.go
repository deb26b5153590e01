package importer

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/voxelsplace/boxfish/bitstream"
	"github.com/voxelsplace/boxfish/morton"
	"github.com/voxelsplace/boxfish/voxel"
)

// Grid holds the palette indices of one chunk in voxel.Index order.
type Grid [voxel.ChunkVolume]uint8

const (
	voplMagic   = "VOPL"
	voplVersion = 3
	voplHeader  = 16
	voplBPP     = 6

	encDense   = 0
	encSparse  = 1 // count, then (12-bit rank, color) pairs
	encSparse2 = 3 // occupancy bitmap, then the non-zero colors
	encZlib    = 0x80
)

// stream lists the grid's indices in Z-order.
func (g *Grid) stream() []uint8 {
	out := make([]uint8, voxel.ChunkVolume)
	for r := range out {
		x, y, z := morton.Decode(uint32(r))
		out[r] = g[voxel.Index(int(x), int(y), int(z))]
	}
	return out
}

func (g *Grid) setRank(r int, c uint8) {
	x, y, z := morton.Decode(uint32(r))
	g[voxel.Index(int(x), int(y), int(z))] = c
}

func encodeDense(stream []uint8, bpp uint8) []byte {
	bw := bitstream.NewWriter(len(stream) * int(bpp) / 8)
	for _, c := range stream {
		bw.Put(uint64(c), bpp)
	}
	return bw.Bytes()
}

func encodeSparse(stream []uint8, bpp uint8) []byte {
	count := 0
	for _, c := range stream {
		if c != 0 {
			count++
		}
	}
	bw := bitstream.NewWriter(2 + count*(12+int(bpp))/8)
	bw.Put(uint64(count), 16)
	for r, c := range stream {
		if c == 0 {
			continue
		}
		bw.Put(uint64(r), 12)
		bw.Put(uint64(c), bpp)
	}
	return bw.Bytes()
}

func encodeSparse2(stream []uint8, bpp uint8) []byte {
	bitmap := bitstream.NewBitmap(voxel.ChunkVolume)
	bw := bitstream.NewWriter(0)
	for r, c := range stream {
		if c == 0 {
			continue
		}
		bitmap.Set(r)
		bw.Put(uint64(c), bpp)
	}
	return append(bitmap, bw.Bytes()...)
}

func zlibCompress(b []byte) []byte {
	var buf bytes.Buffer
	zw, _ := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	_, _ = zw.Write(b)
	_ = zw.Close()
	return buf.Bytes()
}

func zlibDecompress(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// EncodeVOPL writes g as a .vopl file using the smallest encoding.
func EncodeVOPL(g *Grid) []byte {
	enc, payload := bestVOPLEncoding(g.stream(), voplBPP)
	return voplFile(enc, voplBPP, payload)
}

func bestVOPLEncoding(stream []uint8, bpp uint8) (byte, []byte) {
	candidates := []struct {
		enc     byte
		payload []byte
	}{
		{encDense, encodeDense(stream, bpp)},
		{encSparse, encodeSparse(stream, bpp)},
		{encSparse2, encodeSparse2(stream, bpp)},
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if len(c.payload) < len(best.payload) {
			best = c
		}
	}
	for _, c := range candidates {
		if zb := zlibCompress(c.payload); len(zb) < len(best.payload) {
			best.enc, best.payload = c.enc|encZlib, zb
		}
	}
	return best.enc, best.payload
}

func voplFile(enc, bpp byte, payload []byte) []byte {
	out := make([]byte, 0, voplHeader+len(payload))
	out = append(out, voplMagic...)
	out = append(out, voplVersion, enc, bpp, voxel.ChunkSize, voxel.ChunkSize, voxel.ChunkSize)
	out = binary.LittleEndian.AppendUint16(out, PaletteSize)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(payload)))
	return append(out, payload...)
}

// DecodeVOPL parses a .vopl file.
func DecodeVOPL(data []byte) (*Grid, error) {
	if len(data) < voplHeader || string(data[:4]) != voplMagic {
		return nil, fmt.Errorf("not a vopl file")
	}
	if data[4] != voplVersion {
		return nil, fmt.Errorf("unsupported vopl version %d", data[4])
	}
	enc, bpp := data[5], data[6]
	if data[7] != voxel.ChunkSize || data[8] != voxel.ChunkSize || data[9] != voxel.ChunkSize {
		return nil, fmt.Errorf("unsupported vopl size %dx%dx%d", data[7], data[8], data[9])
	}
	plen := binary.LittleEndian.Uint32(data[12:16])
	if uint64(len(data)-voplHeader) != uint64(plen) {
		return nil, fmt.Errorf("vopl payload length %d, header says %d", len(data)-voplHeader, plen)
	}
	return decodeVOPLPayload(enc, bpp, data[voplHeader:])
}

func decodeVOPLPayload(enc, bpp byte, payload []byte) (*Grid, error) {
	if bpp < 1 || bpp > 8 {
		return nil, fmt.Errorf("unsupported vopl bpp %d", bpp)
	}
	if enc&encZlib != 0 {
		var err error
		if payload, err = zlibDecompress(payload); err != nil {
			return nil, fmt.Errorf("vopl zlib: %w", err)
		}
	}
	g := new(Grid)
	switch enc &^ encZlib {
	case encDense:
		br := bitstream.NewReader(payload)
		for r := 0; r < voxel.ChunkVolume; r++ {
			c, err := br.Next(bpp)
			if err != nil {
				return nil, fmt.Errorf("vopl dense: %w", err)
			}
			g.setRank(r, uint8(c))
		}
	case encSparse:
		br := bitstream.NewReader(payload)
		n, err := br.Next(16)
		if err != nil {
			return nil, fmt.Errorf("vopl sparse: %w", err)
		}
		for i := uint64(0); i < n; i++ {
			r, err := br.Next(12)
			if err != nil {
				return nil, fmt.Errorf("vopl sparse: %w", err)
			}
			c, err := br.Next(bpp)
			if err != nil {
				return nil, fmt.Errorf("vopl sparse: %w", err)
			}
			g.setRank(int(r), uint8(c))
		}
	case encSparse2:
		if len(payload) < voxel.ChunkVolume/8 {
			return nil, fmt.Errorf("vopl sparse2: payload too short")
		}
		bitmap := bitstream.Bitmap(payload[:voxel.ChunkVolume/8])
		br := bitstream.NewReader(payload[voxel.ChunkVolume/8:])
		for r := 0; r < voxel.ChunkVolume; r++ {
			if !bitmap.Has(r) {
				continue
			}
			c, err := br.Next(bpp)
			if err != nil {
				return nil, fmt.Errorf("vopl sparse2: %w", err)
			}
			g.setRank(r, uint8(c))
		}
	default:
		return nil, fmt.Errorf("unknown vopl encoding %d", enc)
	}
	return g, nil
}

// gridChunk turns palette indices into a detached chunk.
func gridChunk[T any](key voxel.ChunkKey, g *Grid, palette *[PaletteSize]T) (*voxel.Chunk[T], error) {
	c := voxel.NewChunk[T](key)
	vs := c.Voxels()
	for i, idx := range g {
		if idx == 0 {
			continue
		}
		if int(idx) >= PaletteSize {
			return nil, fmt.Errorf("palette index %d out of range", idx)
		}
		vs[i] = palette[idx]
	}
	return c, nil
}

// VOPL imports a single .vopl chunk at key (0,0,0).
type VOPL[T any] struct{}

func (VOPL[T]) Extensions() []string { return []string{".vopl"} }

func (VOPL[T]) Parse(_ context.Context, data []byte, imp *Importer[T]) (map[voxel.ChunkKey]*voxel.Chunk[T], error) {
	g, err := DecodeVOPL(data)
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
