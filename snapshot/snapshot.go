// Package snapshot encodes the full content of a voxel store, and deltas
// between two stores, into compact self-checking byte containers.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/voxelsplace/boxfish/voxel"
)

const snapshotMagic = "BXSNAP"

type Options struct {
	Compression Compression
}

// Encode serializes every chunk of store. Chunks with identical content
// share one payload.
func Encode[T any](store *voxel.Store[T], opts Options) ([]byte, error) {
	return EncodeChunks(store.Chunks(), opts)
}

// EncodeChunks serializes chunks in the given order.
func EncodeChunks[T any](chunks []*voxel.Chunk[T], opts Options) ([]byte, error) {
	size, err := recordSize[T]()
	if err != nil {
		return nil, err
	}

	var payloads []encoded
	index := make(map[uint64][]int)
	refs := make([]int, len(chunks))
	for i, c := range chunks {
		records, err := chunkRecords(c, size)
		if err != nil {
			return nil, err
		}
		enc := bestEncoding(records, size)
		h := xxhash.Sum64(append([]byte{enc.encoding}, enc.payload...))
		ref := -1
		for _, j := range index[h] {
			if payloads[j].encoding == enc.encoding && bytes.Equal(payloads[j].payload, enc.payload) {
				ref = j
				break
			}
		}
		if ref < 0 {
			ref = len(payloads)
			payloads = append(payloads, encoded{enc.encoding, bytes.Clone(enc.payload)})
			index[h] = append(index[h], ref)
		}
		refs[i] = ref
	}

	content := binary.AppendUvarint(nil, uint64(size))
	content = binary.AppendUvarint(content, uint64(len(payloads)))
	for _, p := range payloads {
		content = append(content, p.encoding)
		content = binary.AppendUvarint(content, uint64(len(p.payload)))
		content = append(content, p.payload...)
	}
	content = binary.AppendUvarint(content, uint64(len(chunks)))
	for i, c := range chunks {
		k := c.Key()
		content = binary.AppendVarint(content, int64(k.X))
		content = binary.AppendVarint(content, int64(k.Y))
		content = binary.AppendVarint(content, int64(k.Z))
		content = binary.AppendUvarint(content, uint64(refs[i]))
	}
	return seal(snapshotMagic, opts.Compression, content)
}

// Write encodes store into w.
func Write[T any](w io.Writer, store *voxel.Store[T], opts Options) error {
	data, err := Encode(store, opts)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

type chunkRef struct {
	key voxel.ChunkKey
	ref int
}

type parsed struct {
	comp       Compression
	recordSize int
	payloads   []encoded
	chunks     []chunkRef
}

func parse(data []byte) (*parsed, error) {
	content, comp, err := open(snapshotMagic, data)
	if err != nil {
		return nil, err
	}
	c := &cursor{b: content}
	p := &parsed{comp: comp}

	size, err := c.count(1 << 16)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: zero record size", ErrCorrupt)
	}
	p.recordSize = size

	n, err := c.count(uint64(len(content)))
	if err != nil {
		return nil, err
	}
	p.payloads = make([]encoded, n)
	for i := range p.payloads {
		enc, err := c.readByte()
		if err != nil {
			return nil, err
		}
		l, err := c.count(uint64(len(content)))
		if err != nil {
			return nil, err
		}
		b, err := c.bytes(l)
		if err != nil {
			return nil, err
		}
		p.payloads[i] = encoded{enc, b}
	}

	n, err = c.count(uint64(len(content)))
	if err != nil {
		return nil, err
	}
	p.chunks = make([]chunkRef, n)
	for i := range p.chunks {
		var xyz [3]int64
		for a := range xyz {
			if xyz[a], err = c.varint(); err != nil {
				return nil, err
			}
		}
		ref, err := c.count(uint64(len(p.payloads)))
		if err != nil {
			return nil, err
		}
		if ref >= len(p.payloads) {
			return nil, fmt.Errorf("%w: payload reference %d out of range", ErrCorrupt, ref)
		}
		p.chunks[i] = chunkRef{voxel.ChunkKey{X: int(xyz[0]), Y: int(xyz[1]), Z: int(xyz[2])}, ref}
	}
	if err := c.done(); err != nil {
		return nil, err
	}
	return p, nil
}

// Decode parses a snapshot into detached chunks. Nothing is returned unless
// the whole snapshot is valid.
func Decode[T any](data []byte) (map[voxel.ChunkKey]*voxel.Chunk[T], error) {
	size, err := recordSize[T]()
	if err != nil {
		return nil, err
	}
	p, err := parse(data)
	if err != nil {
		return nil, err
	}
	if p.recordSize != size {
		return nil, fmt.Errorf("%w: record size %d, voxel type needs %d", ErrCorrupt, p.recordSize, size)
	}

	records := make([][]byte, len(p.payloads))
	for i, pl := range p.payloads {
		if records[i], err = decodePayload(pl.encoding, pl.payload, size); err != nil {
			return nil, err
		}
	}

	out := make(map[voxel.ChunkKey]*voxel.Chunk[T], len(p.chunks))
	for _, ref := range p.chunks {
		if _, dup := out[ref.key]; dup {
			return nil, fmt.Errorf("%w: chunk %v listed twice", ErrCorrupt, ref.key)
		}
		c := voxel.NewChunk[T](ref.key)
		if err := fillChunk(c, records[ref.ref], size); err != nil {
			return nil, err
		}
		out[ref.key] = c
	}
	return out, nil
}

// Read decodes a snapshot from r.
func Read[T any](r io.Reader) (map[voxel.ChunkKey]*voxel.Chunk[T], error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Decode[T](data)
}

// Info summarizes a snapshot without decoding voxels.
type Info struct {
	Compression Compression
	RecordSize  int
	Chunks      int
	Payloads    int
	Dense       int
	Sparse      int
	Fill        int
}

func Inspect(data []byte) (Info, error) {
	p, err := parse(data)
	if err != nil {
		return Info{}, err
	}
	info := Info{
		Compression: p.comp,
		RecordSize:  p.recordSize,
		Chunks:      len(p.chunks),
		Payloads:    len(p.payloads),
	}
	for _, pl := range p.payloads {
		switch pl.encoding {
		case encDense:
			info.Dense++
		case encSparse:
			info.Sparse++
		case encFill:
			info.Fill++
		}
	}
	return info, nil
}
