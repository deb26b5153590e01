package snapshot

import (
	"bytes"
	"fmt"

	"github.com/voxelsplace/boxfish/bitstream"
	"github.com/voxelsplace/boxfish/voxel"
)

// Per chunk payload encodings. Records are always in Z-order.
const (
	encDense  = 0 // every record
	encSparse = 1 // 4096 bit occupancy bitmap, then the non-zero records
	encFill   = 2 // one record repeated over the chunk
)

const bitmapLen = voxel.ChunkVolume / 8

type encoded struct {
	encoding byte
	payload  []byte
}

func encodeDense(records []byte) []byte { return records }

func encodeSparse(records []byte, size int) []byte {
	present := bitstream.NewBitmap(voxel.ChunkVolume)
	var values []byte
	for r := 0; r < voxel.ChunkVolume; r++ {
		rec := records[r*size : (r+1)*size]
		if isZero(rec) {
			continue
		}
		present.Set(r)
		values = append(values, rec...)
	}
	return append(present, values...)
}

// encodeFill returns nil when the records are not all equal.
func encodeFill(records []byte, size int) []byte {
	first := records[:size]
	for r := 1; r < voxel.ChunkVolume; r++ {
		if !bytes.Equal(records[r*size:(r+1)*size], first) {
			return nil
		}
	}
	return first
}

// bestEncoding keeps the smallest candidate payload.
func bestEncoding(records []byte, size int) encoded {
	best := encoded{encDense, encodeDense(records)}
	if sp := encodeSparse(records, size); len(sp) < len(best.payload) {
		best = encoded{encSparse, sp}
	}
	if fill := encodeFill(records, size); fill != nil && len(fill) < len(best.payload) {
		best = encoded{encFill, fill}
	}
	return best
}

// decodePayload expands a chunk payload back into Z-order records.
func decodePayload(enc byte, payload []byte, size int) ([]byte, error) {
	total := size * voxel.ChunkVolume
	switch enc {
	case encDense:
		if len(payload) != total {
			return nil, fmt.Errorf("%w: dense payload of %d bytes", ErrCorrupt, len(payload))
		}
		return payload, nil
	case encSparse:
		if len(payload) < bitmapLen {
			return nil, fmt.Errorf("%w: sparse payload too short", ErrCorrupt)
		}
		present := bitstream.Bitmap(payload[:bitmapLen])
		values := payload[bitmapLen:]
		out := make([]byte, total)
		next := 0
		for r := 0; r < voxel.ChunkVolume; r++ {
			if !present.Has(r) {
				continue
			}
			if next+size > len(values) {
				return nil, fmt.Errorf("%w: sparse values truncated", ErrCorrupt)
			}
			copy(out[r*size:], values[next:next+size])
			next += size
		}
		if next != len(values) {
			return nil, fmt.Errorf("%w: %d unused sparse bytes", ErrCorrupt, len(values)-next)
		}
		return out, nil
	case encFill:
		if len(payload) != size {
			return nil, fmt.Errorf("%w: fill payload of %d bytes", ErrCorrupt, len(payload))
		}
		return bytes.Repeat(payload, voxel.ChunkVolume), nil
	}
	return nil, fmt.Errorf("%w: unknown chunk encoding %d", ErrCorrupt, enc)
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
