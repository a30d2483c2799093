// Package tinycompress writes zlib streams built from stored DEFLATE
// blocks only. Any inflate implementation can read the output, while
// the encoder itself needs no Huffman tables and no sliding window, so
// it stays small enough for microcontroller builds where compress/flate
// does not fit.
package tinycompress

import (
	"hash"
	"hash/adler32"
	"io"
)

// StoredBlockMax is the largest payload one stored DEFLATE block can
// carry, fixed by its 16 bit length field.
const StoredBlockMax = 65535

// zlib header: CM=8 CINFO=7, FCHECK for compression level 0.
var streamHeader = [2]byte{0x78, 0x01}

// Writer is an io.WriteCloser producing a zlib stream. Payloads larger
// than StoredBlockMax are split across blocks as they arrive, so the
// pending buffer never grows past one block.
type Writer struct {
	w       io.Writer
	pending []byte
	adler   hash.Hash32
	started bool
	closed  bool
	err     error
}

// NewWriter returns a Writer sending its output to w. The stream is not
// complete until Close.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:     w,
		adler: adler32.New(),
	}
}

// Reset discards all state and starts a new stream on w.
func (z *Writer) Reset(w io.Writer) {
	z.w = w
	z.pending = z.pending[:0]
	z.adler.Reset()
	z.started = false
	z.closed = false
	z.err = nil
}

// Write buffers p, flushing full stored blocks as they fill. The error
// is sticky.
func (z *Writer) Write(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	if z.closed {
		z.err = io.ErrClosedPipe
		return 0, z.err
	}

	z.adler.Write(p)
	z.pending = append(z.pending, p...)

	for len(z.pending) > StoredBlockMax {
		if err := z.flushBlock(z.pending[:StoredBlockMax], false); err != nil {
			return 0, err
		}
		z.pending = z.pending[:copy(z.pending, z.pending[StoredBlockMax:])]
	}
	return len(p), nil
}

// Close writes the final block and the Adler-32 trailer. A stream with
// no data is still valid: it holds one empty final block.
func (z *Writer) Close() error {
	if z.err != nil {
		return z.err
	}
	if z.closed {
		return nil
	}
	z.closed = true

	if err := z.flushBlock(z.pending, true); err != nil {
		return err
	}
	z.pending = z.pending[:0]

	sum := z.adler.Sum32()
	trailer := [4]byte{
		byte(sum >> 24),
		byte(sum >> 16),
		byte(sum >> 8),
		byte(sum),
	}
	_, z.err = z.w.Write(trailer[:])
	return z.err
}

// flushBlock emits the stream header on first use, then one stored
// block: the final bit, the payload length and its complement in little
// endian, and the raw bytes.
func (z *Writer) flushBlock(payload []byte, final bool) error {
	if !z.started {
		z.started = true
		if _, err := z.w.Write(streamHeader[:]); err != nil {
			z.err = err
			return err
		}
	}

	n := uint16(len(payload))
	header := [5]byte{
		0,
		byte(n), byte(n >> 8),
		byte(^n), byte(^n >> 8),
	}
	if final {
		header[0] = 1
	}

	if _, err := z.w.Write(header[:]); err != nil {
		z.err = err
		return err
	}
	if len(payload) > 0 {
		if _, err := z.w.Write(payload); err != nil {
			z.err = err
			return err
		}
	}
	return nil
}

// EncodedLen reports the exact stream size for n payload bytes: the two
// header bytes, one five byte block header per block, the payload and
// the four trailer bytes.
func EncodedLen(n int) int {
	blocks := (n + StoredBlockMax - 1) / StoredBlockMax
	if blocks == 0 {
		blocks = 1
	}
	return 2 + 5*blocks + n + 4
}
