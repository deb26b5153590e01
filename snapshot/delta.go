package snapshot

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/voxelsplace/boxfish/bitstream"
	"github.com/voxelsplace/boxfish/voxel"
)

const deltaMagic = "BXDLTA"

// Change is a single voxel write addressed by chunk and local position.
type Change[T any] struct {
	Key   voxel.ChunkKey
	Local voxel.Vec3i
	Voxel T
}

// Diff lists the writes that turn before into after. Voxels of chunks that
// only exist in before are reset to the zero value; chunk removal itself is
// not expressed.
func Diff[T any](before, after *voxel.Store[T]) ([]Change[T], error) {
	size, err := recordSize[T]()
	if err != nil {
		return nil, err
	}
	zero := make([]byte, size*voxel.ChunkVolume)

	var out []Change[T]
	for _, c := range after.Chunks() {
		next, err := linearRecords(c, size)
		if err != nil {
			return nil, err
		}
		prev := zero
		if b, ok := before.Get(c.Key()); ok {
			if prev, err = linearRecords(b, size); err != nil {
				return nil, err
			}
		}
		vs := c.Voxels()
		for i := 0; i < voxel.ChunkVolume; i++ {
			if !bytes.Equal(prev[i*size:(i+1)*size], next[i*size:(i+1)*size]) {
				out = append(out, Change[T]{Key: c.Key(), Local: voxel.LocalFromIndex(i), Voxel: vs[i]})
			}
		}
	}
	for _, b := range before.Chunks() {
		if _, ok := after.Get(b.Key()); ok {
			continue
		}
		prev, err := linearRecords(b, size)
		if err != nil {
			return nil, err
		}
		var z T
		for i := 0; i < voxel.ChunkVolume; i++ {
			if !isZero(prev[i*size : (i+1)*size]) {
				out = append(out, Change[T]{Key: b.Key(), Local: voxel.LocalFromIndex(i), Voxel: z})
			}
		}
	}
	slices.SortStableFunc(out, func(a, b Change[T]) int { return compareKey(a.Key, b.Key) })
	return out, nil
}

// EncodeDelta serializes changes grouped per chunk. Local positions are
// packed as 12-bit indices. Changes to the same voxel keep their order.
func EncodeDelta[T any](changes []Change[T], opts Options) ([]byte, error) {
	size, err := recordSize[T]()
	if err != nil {
		return nil, err
	}
	sorted := slices.Clone(changes)
	slices.SortStableFunc(sorted, func(a, b Change[T]) int { return compareKey(a.Key, b.Key) })

	content := binary.AppendUvarint(nil, uint64(size))
	var groups [][]Change[T]
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j].Key == sorted[i].Key {
			j++
		}
		groups = append(groups, sorted[i:j])
		i = j
	}
	content = binary.AppendUvarint(content, uint64(len(groups)))
	for _, g := range groups {
		k := g[0].Key
		content = binary.AppendVarint(content, int64(k.X))
		content = binary.AppendVarint(content, int64(k.Y))
		content = binary.AppendVarint(content, int64(k.Z))
		content = binary.AppendUvarint(content, uint64(len(g)))

		bw := bitstream.NewWriter((len(g)*12 + 7) / 8)
		for _, ch := range g {
			l := ch.Local
			if !voxel.InBounds(l.X, l.Y, l.Z) {
				return nil, fmt.Errorf("snapshot: change at %v in chunk %v is outside the chunk", l, k)
			}
			bw.Put(uint64(voxel.Index(l.X, l.Y, l.Z)), 12)
		}
		content = append(content, bw.Bytes()...)
		for _, ch := range g {
			if content, err = binary.Append(content, binary.LittleEndian, ch.Voxel); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnsupportedVoxel, err)
			}
		}
	}
	return seal(deltaMagic, opts.Compression, content)
}

// DecodeDelta parses a delta produced by EncodeDelta.
func DecodeDelta[T any](data []byte) ([]Change[T], error) {
	size, err := recordSize[T]()
	if err != nil {
		return nil, err
	}
	content, _, err := open(deltaMagic, data)
	if err != nil {
		return nil, err
	}
	c := &cursor{b: content}
	got, err := c.count(1 << 16)
	if err != nil {
		return nil, err
	}
	if got != size {
		return nil, fmt.Errorf("%w: record size %d, voxel type needs %d", ErrCorrupt, got, size)
	}
	groups, err := c.count(uint64(len(content)))
	if err != nil {
		return nil, err
	}

	var out []Change[T]
	for range groups {
		var xyz [3]int64
		for a := range xyz {
			if xyz[a], err = c.varint(); err != nil {
				return nil, err
			}
		}
		key := voxel.ChunkKey{X: int(xyz[0]), Y: int(xyz[1]), Z: int(xyz[2])}
		n, err := c.count(uint64(len(content)))
		if err != nil {
			return nil, err
		}
		packed, err := c.bytes((n*12 + 7) / 8)
		if err != nil {
			return nil, err
		}
		records, err := c.bytes(n * size)
		if err != nil {
			return nil, err
		}
		br := bitstream.NewReader(packed)
		for i := 0; i < n; i++ {
			idx, err := br.Next(12)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			v, err := decodeRecord[T](records[i*size : (i+1)*size])
			if err != nil {
				return nil, err
			}
			out = append(out, Change[T]{Key: key, Local: voxel.LocalFromIndex(int(idx)), Voxel: v})
		}
	}
	if err := c.done(); err != nil {
		return nil, err
	}
	return out, nil
}

func linearRecords[T any](c *voxel.Chunk[T], size int) ([]byte, error) {
	vs := c.Voxels()
	out := make([]byte, 0, size*voxel.ChunkVolume)
	var err error
	for i := range vs {
		if out, err = binary.Append(out, binary.LittleEndian, vs[i]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedVoxel, err)
		}
	}
	return out, nil
}

func compareKey(a, b voxel.ChunkKey) int {
	if c := cmp.Compare(a.Z, b.Z); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Y, b.Y); c != 0 {
		return c
	}
	return cmp.Compare(a.X, b.X)
}
