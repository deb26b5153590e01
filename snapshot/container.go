package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrCorrupt reports input that is not a well formed snapshot or delta.
	ErrCorrupt = errors.New("snapshot: corrupt data")
	// ErrUnsupportedVoxel reports a voxel type without a fixed binary layout.
	ErrUnsupportedVoxel = errors.New("snapshot: voxel type has no fixed size layout")
)

// Compression selects the codec applied to the container content.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZlib Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZlib:
		return "zlib"
	case CompressionZstd:
		return "zstd"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ParseCompression maps "none", "zlib" or "zstd" to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "zlib":
		return CompressionZlib, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return 0, fmt.Errorf("snapshot: unknown compression %q", s)
}

const (
	magicLen       = 6
	headerLen      = magicLen + 2
	checksumLen    = 8
	currentVersion = 1
)

// maxContent bounds the decompressed size open accepts so a small hostile
// body cannot expand without limit.
var maxContent int64 = 1 << 30

// seal appends the checksum to content, compresses it and prefixes the header.
func seal(magic string, comp Compression, content []byte) ([]byte, error) {
	content = binary.LittleEndian.AppendUint64(content, xxhash.Sum64(content))

	var body []byte
	switch comp {
	case CompressionNone:
		body = content
	case CompressionZlib:
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(content); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		body = buf.Bytes()
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		body = enc.EncodeAll(content, nil)
		_ = enc.Close()
	default:
		return nil, fmt.Errorf("snapshot: unsupported compression %d", comp)
	}

	out := make([]byte, 0, headerLen+len(body))
	out = append(out, magic...)
	out = append(out, currentVersion, byte(comp))
	return append(out, body...), nil
}

// open reverses seal and verifies the checksum.
func open(magic string, data []byte) ([]byte, Compression, error) {
	if len(data) < headerLen || string(data[:magicLen]) != magic {
		return nil, 0, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if v := data[magicLen]; v != currentVersion {
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	comp := Compression(data[magicLen+1])
	body := data[headerLen:]

	var content []byte
	switch comp {
	case CompressionNone:
		content = body
	case CompressionZlib:
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		defer zr.Close()
		content, err = io.ReadAll(io.LimitReader(zr, maxContent+1))
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if int64(len(content)) > maxContent {
			return nil, 0, fmt.Errorf("%w: content exceeds %d bytes", ErrCorrupt, maxContent)
		}
	case CompressionZstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(maxContent)))
		if err != nil {
			return nil, 0, err
		}
		defer dec.Close()
		content, err = dec.DecodeAll(body, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	default:
		return nil, 0, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, comp)
	}

	if len(content) < checksumLen {
		return nil, 0, fmt.Errorf("%w: truncated", ErrCorrupt)
	}
	n := len(content) - checksumLen
	if xxhash.Sum64(content[:n]) != binary.LittleEndian.Uint64(content[n:]) {
		return nil, 0, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return content[:n], comp, nil
}

// cursor reads the varint framed content.
type cursor struct {
	b   []byte
	pos int
}

func (c *cursor) uvarint() (uint64, error) {
	v, n := binary.Uvarint(c.b[c.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad varint at %d", ErrCorrupt, c.pos)
	}
	c.pos += n
	return v, nil
}

func (c *cursor) varint() (int64, error) {
	v, n := binary.Varint(c.b[c.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad varint at %d", ErrCorrupt, c.pos)
	}
	c.pos += n
	return v, nil
}

// count reads a uvarint that must not exceed limit.
func (c *cursor) count(limit uint64) (int, error) {
	v, err := c.uvarint()
	if err != nil {
		return 0, err
	}
	if v > limit {
		return 0, fmt.Errorf("%w: count %d exceeds %d", ErrCorrupt, v, limit)
	}
	return int(v), nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if n < 0 || len(c.b)-c.pos < n {
		return nil, fmt.Errorf("%w: truncated", ErrCorrupt)
	}
	b := c.b[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) readByte() (byte, error) {
	b, err := c.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) done() error {
	if c.pos != len(c.b) {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(c.b)-c.pos)
	}
	return nil
}
