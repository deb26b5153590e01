package importer

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/voxelsplace/boxfish/voxel"
	"golang.org/x/sync/errgroup"
)

// PackCompression is the codec of a pack's content section.
type PackCompression uint8

const (
	PackCompNone PackCompression = 0
	PackCompZlib PackCompression = 1
	PackCompZstd PackCompression = 2
)

// PackLayout is how entries are stored in the content section.
type PackLayout uint8

const (
	// LayoutRaw stores each entry payload as one blob.
	LayoutRaw PackLayout = 0
	// LayoutCDC stores a dictionary of content defined blocks shared by all
	// entries, and each entry as a list of block references.
	LayoutCDC PackLayout = 1
)

const (
	packMagic    = "VOPLPACK"
	packVersion1 = 1
	packVersion2 = 2

	cdcTarget = 4096
	cdcMin    = 2048
	cdcMax    = 16384
)

// PackEntry is one .vopl payload inside a pack.
type PackEntry struct {
	Name    string
	Enc     uint8
	Payload []byte
}

// File rebuilds the standalone .vopl file of the entry.
func (e PackEntry) File(h PackHeader) []byte {
	return voplFile(e.Enc, h.BPP, e.Payload)
}

// PackHeader holds the .vopl header fields every entry of a pack shares.
type PackHeader struct {
	Ver     uint8
	BPP     uint8
	W, H, D uint8
	Pal     uint16
}

// MarshalPack builds a .voplpack from .vopl files keyed by entry name.
// Version 1 is written for raw layouts without zstd, version 2 otherwise.
func MarshalPack(files map[string][]byte, layout PackLayout, comp PackCompression) ([]byte, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("voplpack: no files")
	}
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	slices.Sort(names)

	var hdr PackHeader
	entries := make([]PackEntry, 0, len(files))
	for i, name := range names {
		data := files[name]
		if _, err := DecodeVOPL(data); err != nil {
			return nil, fmt.Errorf("voplpack: %s: %w", name, err)
		}
		h := PackHeader{Ver: data[4], BPP: data[6], W: data[7], H: data[8], D: data[9], Pal: binary.LittleEndian.Uint16(data[10:12])}
		if i == 0 {
			hdr = h
		} else if h != hdr {
			return nil, fmt.Errorf("voplpack: %s: header differs from the other entries", name)
		}
		entries = append(entries, PackEntry{Name: name, Enc: data[5], Payload: data[voplHeader:]})
	}

	version := uint8(packVersion2)
	if layout == LayoutRaw && comp != PackCompZstd {
		version = packVersion1
	}

	var content bytes.Buffer
	_ = binary.Write(&content, binary.LittleEndian, hdr)
	if version >= packVersion2 {
		content.WriteByte(byte(layout))
	}
	switch layout {
	case LayoutRaw:
		_ = binary.Write(&content, binary.LittleEndian, uint32(len(entries)))
		for _, e := range entries {
			writeEntryHead(&content, e)
			_ = binary.Write(&content, binary.LittleEndian, uint32(len(e.Payload)))
			content.Write(e.Payload)
		}
	case LayoutCDC:
		_ = binary.Write(&content, binary.LittleEndian, [3]uint32{cdcTarget, cdcMin, cdcMax})
		blocks, seqs := buildCDCIndex(entries, cdcTarget, cdcMin, cdcMax)
		_ = binary.Write(&content, binary.LittleEndian, uint32(len(blocks)))
		for _, b := range blocks {
			_ = binary.Write(&content, binary.LittleEndian, uint32(len(b)))
			content.Write(b)
		}
		_ = binary.Write(&content, binary.LittleEndian, uint32(len(entries)))
		for i, e := range entries {
			writeEntryHead(&content, e)
			_ = binary.Write(&content, binary.LittleEndian, uint32(len(e.Payload)))
			_ = binary.Write(&content, binary.LittleEndian, uint32(len(seqs[i])))
			for _, idx := range seqs[i] {
				_ = binary.Write(&content, binary.LittleEndian, uint32(idx))
			}
		}
	default:
		return nil, fmt.Errorf("voplpack: unsupported layout %d", layout)
	}

	body, err := compressPack(content.Bytes(), comp)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(packMagic)+2+len(body))
	out = append(out, packMagic...)
	out = append(out, version, byte(comp))
	return append(out, body...), nil
}

func writeEntryHead(w *bytes.Buffer, e PackEntry) {
	_ = binary.Write(w, binary.LittleEndian, uint16(len(e.Name)))
	w.WriteString(e.Name)
	w.WriteByte(e.Enc)
}

func compressPack(content []byte, comp PackCompression) ([]byte, error) {
	switch comp {
	case PackCompNone:
		return content, nil
	case PackCompZlib:
		return zlibCompress(content), nil
	case PackCompZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(content, nil), nil
	}
	return nil, fmt.Errorf("voplpack: unsupported compression %d", comp)
}

func decompressPack(body []byte, comp PackCompression) ([]byte, error) {
	switch comp {
	case PackCompNone:
		return body, nil
	case PackCompZlib:
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case PackCompZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(body, nil)
	}
	return nil, fmt.Errorf("voplpack: unsupported compression %d", comp)
}

// UnmarshalPack parses a .voplpack into its shared header and entries.
func UnmarshalPack(data []byte) (PackHeader, []PackEntry, error) {
	var hdr PackHeader
	if len(data) < len(packMagic)+2 || string(data[:len(packMagic)]) != packMagic {
		return hdr, nil, fmt.Errorf("not a voplpack file")
	}
	version := data[len(packMagic)]
	if version != packVersion1 && version != packVersion2 {
		return hdr, nil, fmt.Errorf("unsupported voplpack version %d", version)
	}
	content, err := decompressPack(data[len(packMagic)+2:], PackCompression(data[len(packMagic)+1]))
	if err != nil {
		return hdr, nil, err
	}

	r := bytes.NewReader(content)
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return hdr, nil, err
	}
	layout := LayoutRaw
	if version >= packVersion2 {
		b, err := r.ReadByte()
		if err != nil {
			return hdr, nil, err
		}
		layout = PackLayout(b)
	}

	switch layout {
	case LayoutRaw:
		n, err := readU32(r)
		if err != nil {
			return hdr, nil, err
		}
		if int64(n) > int64(r.Len()) {
			return hdr, nil, fmt.Errorf("voplpack: %d entries in %d bytes", n, r.Len())
		}
		entries := make([]PackEntry, n)
		for i := range entries {
			e, err := readEntryHead(r)
			if err != nil {
				return hdr, nil, err
			}
			if e.Payload, err = readBlob(r); err != nil {
				return hdr, nil, err
			}
			entries[i] = e
		}
		return hdr, entries, nil
	case LayoutCDC:
		var params [3]uint32
		if err := binary.Read(r, binary.LittleEndian, &params); err != nil {
			return hdr, nil, err
		}
		nBlocks, err := readU32(r)
		if err != nil {
			return hdr, nil, err
		}
		if int64(nBlocks) > int64(r.Len()) {
			return hdr, nil, fmt.Errorf("voplpack: %d blocks in %d bytes", nBlocks, r.Len())
		}
		blocks := make([][]byte, nBlocks)
		for i := range blocks {
			if blocks[i], err = readBlob(r); err != nil {
				return hdr, nil, err
			}
		}
		n, err := readU32(r)
		if err != nil {
			return hdr, nil, err
		}
		if int64(n) > int64(r.Len()) {
			return hdr, nil, fmt.Errorf("voplpack: %d entries in %d bytes", n, r.Len())
		}
		entries := make([]PackEntry, n)
		for i := range entries {
			e, err := readEntryHead(r)
			if err != nil {
				return hdr, nil, err
			}
			var lens [2]uint32 // raw length, sequence length
			if err := binary.Read(r, binary.LittleEndian, &lens); err != nil {
				return hdr, nil, err
			}
			var payload []byte
			for j := uint32(0); j < lens[1]; j++ {
				idx, err := readU32(r)
				if err != nil {
					return hdr, nil, err
				}
				if idx >= nBlocks {
					return hdr, nil, fmt.Errorf("voplpack: block index %d out of range", idx)
				}
				payload = append(payload, blocks[idx]...)
				if uint64(len(payload)) > uint64(lens[0]) {
					return hdr, nil, fmt.Errorf("voplpack: entry %s longer than %d bytes", e.Name, lens[0])
				}
			}
			if uint32(len(payload)) != lens[0] {
				return hdr, nil, fmt.Errorf("voplpack: entry %s has %d bytes, want %d", e.Name, len(payload), lens[0])
			}
			e.Payload = payload
			entries[i] = e
		}
		return hdr, entries, nil
	}
	return hdr, nil, fmt.Errorf("voplpack: unknown layout %d", layout)
}

func readU32(r *bytes.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readBlob(r *bytes.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if int64(n) > int64(r.Len()) {
		return nil, io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	_, err = io.ReadFull(r, b)
	return b, err
}

func readEntryHead(r *bytes.Reader) (PackEntry, error) {
	var nameLen uint16
	if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
		return PackEntry{}, err
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return PackEntry{}, err
	}
	enc, err := r.ReadByte()
	if err != nil {
		return PackEntry{}, err
	}
	return PackEntry{Name: string(name), Enc: enc}, nil
}

// buildCDCIndex cuts every payload into content defined blocks with a gear
// rolling hash and stores each distinct block once.
func buildCDCIndex(entries []PackEntry, target, minSz, maxSz int) ([][]byte, [][]int) {
	gear := make([]uint64, 256)
	seed := xxhash.Sum64String("vopl-cdc-gear-seed")
	for i := range gear {
		var b [16]byte
		binary.LittleEndian.PutUint64(b[:8], seed+uint64(i)*0x9E3779B185EBCA87)
		binary.LittleEndian.PutUint64(b[8:], ^(seed + uint64(i)*0xC2B2AE3D27D4EB4F))
		v := xxhash.Sum64(b[:])
		if v == 0 {
			v = 0x9E3779B185EBCA87
		}
		gear[i] = v
	}
	mask := uint64(1)<<uint(math.Round(math.Log2(float64(target)))) - 1

	var blocks [][]byte
	index := make(map[uint64][]int)
	add := func(b []byte) int {
		h := xxhash.Sum64(b)
		for _, idx := range index[h] {
			if bytes.Equal(blocks[idx], b) {
				return idx
			}
		}
		idx := len(blocks)
		blocks = append(blocks, bytes.Clone(b))
		index[h] = append(index[h], idx)
		return idx
	}

	seqs := make([][]int, len(entries))
	for i, e := range entries {
		data := e.Payload
		start := 0
		var h uint64
		for pos := range data {
			h = h<<1 + gear[data[pos]]
			size := pos - start + 1
			if size < minSz {
				continue
			}
			if h&mask == 0 || size >= maxSz {
				seqs[i] = append(seqs[i], add(data[start:pos+1]))
				start = pos + 1
				h = 0
			}
		}
		if start < len(data) {
			seqs[i] = append(seqs[i], add(data[start:]))
		}
	}
	return blocks, seqs
}

// ParseEntryKey reads the chunk key from an entry name like "-1_0_2.vopl".
func ParseEntryKey(name string) (voxel.ChunkKey, error) {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	parts := strings.Split(base, "_")
	if len(parts) != 3 {
		return voxel.ChunkKey{}, fmt.Errorf("entry name %q is not x_y_z", name)
	}
	var xyz [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return voxel.ChunkKey{}, fmt.Errorf("entry name %q: %w", name, err)
		}
		xyz[i] = v
	}
	return voxel.ChunkKey{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

// EntryName is the inverse of ParseEntryKey.
func EntryName(key voxel.ChunkKey) string {
	return fmt.Sprintf("%d_%d_%d.vopl", key.X, key.Y, key.Z)
}

// VOPLPack imports a pack of .vopl chunks. Entries are decoded in parallel;
// entries whose names do not encode a chunk key are skipped with a warning.
type VOPLPack[T any] struct{}

func (VOPLPack[T]) Extensions() []string { return []string{".voplpack"} }

func (VOPLPack[T]) Parse(ctx context.Context, data []byte, imp *Importer[T]) (map[voxel.ChunkKey]*voxel.Chunk[T], error) {
	hdr, entries, err := UnmarshalPack(data)
	if err != nil {
		return nil, err
	}
	if hdr.Ver != voplVersion || hdr.W != voxel.ChunkSize || hdr.H != voxel.ChunkSize || hdr.D != voxel.ChunkSize {
		return nil, fmt.Errorf("voplpack: unsupported entry header %+v", hdr)
	}
	palette, err := imp.Palette()
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	out := make(map[voxel.ChunkKey]*voxel.Chunk[T], len(entries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, e := range entries {
		key, err := ParseEntryKey(e.Name)
		if err != nil {
			imp.log.Warn("voplpack entry skipped", "entry", e.Name, "error", err)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			grid, err := decodeVOPLPayload(e.Enc, hdr.BPP, e.Payload)
			if err != nil {
				return fmt.Errorf("entry %s: %w", e.Name, err)
			}
			c, err := gridChunk(key, grid, &palette)
			if err != nil {
				return fmt.Errorf("entry %s: %w", e.Name, err)
			}
			mu.Lock()
			out[key] = c
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
