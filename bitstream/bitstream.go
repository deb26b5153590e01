// Package bitstream packs unsigned fields of up to 64 bits into bytes. Fields
// are laid out least significant bit first: the first field starts at bit 0
// of byte 0.
package bitstream

import "io"

// Writer appends fields to a growing byte slice. The zero value is ready
// to use.
type Writer struct {
	buf  []byte
	used uint8 // bits taken in the last byte, 0 when aligned
}

// NewWriter returns a writer whose buffer has room for size bytes.
func NewWriter(size int) *Writer { return &Writer{buf: make([]byte, 0, size)} }

// Put appends the low width bits of v.
func (w *Writer) Put(v uint64, width uint8) {
	for width > 0 {
		if w.used == 0 {
			w.buf = append(w.buf, 0)
		}
		n := min(8-w.used, width)
		w.buf[len(w.buf)-1] |= byte(v&(1<<n-1)) << w.used
		v >>= n
		width -= n
		w.used = (w.used + n) & 7
	}
}

// Bits returns the number of bits written.
func (w *Writer) Bits() int {
	if w.used == 0 {
		return len(w.buf) * 8
	}
	return (len(w.buf)-1)*8 + int(w.used)
}

// Bytes returns the stream. A partial last byte is zero padded.
func (w *Writer) Bytes() []byte { return w.buf }

// Reader takes fields back out of a stream in the order they were put.
type Reader struct {
	data []byte
	off  int // bit offset
}

func NewReader(b []byte) *Reader { return &Reader{data: b} }

// Next reads a width bit field. A field running past the input fails with
// io.ErrUnexpectedEOF and consumes nothing.
func (r *Reader) Next(width uint8) (uint64, error) {
	if r.off+int(width) > len(r.data)*8 {
		return 0, io.ErrUnexpectedEOF
	}
	var v uint64
	for got := uint8(0); got < width; {
		bit := uint8(r.off & 7)
		n := min(8-bit, width-got)
		v |= uint64(r.data[r.off>>3]>>bit&(1<<n-1)) << got
		got += n
		r.off += int(n)
	}
	return v, nil
}

// Consumed returns how many input bytes the fields read so far touch.
func (r *Reader) Consumed() int { return (r.off + 7) / 8 }

// Bitmap is a fixed-size set of bit flags in the same bit order as Writer.
type Bitmap []byte

// NewBitmap returns a cleared bitmap of n bits.
func NewBitmap(n int) Bitmap { return make(Bitmap, (n+7)/8) }

func (b Bitmap) Set(i int) { b[i>>3] |= 1 << (i & 7) }

func (b Bitmap) Has(i int) bool { return b[i>>3]>>(i&7)&1 != 0 }

// Count returns the number of set bits.
func (b Bitmap) Count() int {
	n := 0
	for _, c := range b {
		for ; c != 0; c &= c - 1 {
			n++
		}
	}
	return n
}
