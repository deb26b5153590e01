package snapshot

import (
	"encoding/binary"
	"fmt"

	"github.com/voxelsplace/boxfish/morton"
	"github.com/voxelsplace/boxfish/voxel"
)

// recordSize returns the encoded size of one T.
func recordSize[T any]() (int, error) {
	var zero T
	n := binary.Size(zero)
	if n <= 0 {
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedVoxel, zero)
	}
	return n, nil
}

// mortonIndex maps a Z-order rank to the chunk's linear index.
var mortonIndex [voxel.ChunkVolume]uint16

func init() {
	for r := range mortonIndex {
		x, y, z := morton.Decode(uint32(r))
		mortonIndex[r] = uint16(voxel.Index(int(x), int(y), int(z)))
	}
}

// chunkRecords returns the chunk's voxels as fixed size records in Z-order.
func chunkRecords[T any](c *voxel.Chunk[T], size int) ([]byte, error) {
	vs := c.Voxels()
	out := make([]byte, 0, size*voxel.ChunkVolume)
	var err error
	for _, i := range mortonIndex {
		if out, err = binary.Append(out, binary.LittleEndian, vs[i]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedVoxel, err)
		}
	}
	return out, nil
}

// fillChunk decodes Z-order records into c.
func fillChunk[T any](c *voxel.Chunk[T], records []byte, size int) error {
	vs := c.Voxels()
	for r, i := range mortonIndex {
		if _, err := binary.Decode(records[r*size:(r+1)*size], binary.LittleEndian, &vs[i]); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	return nil
}

func decodeRecord[T any](b []byte) (T, error) {
	var v T
	if _, err := binary.Decode(b, binary.LittleEndian, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return v, nil
}
