package tinycompress

import (
	"bytes"
	"compress/zlib"
	"hash/adler32"
	"io"
	"testing"
)

func encode(t *testing.T, payload []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func inflate(t *testing.T, stream []byte) []byte {
	t.Helper()

	r, err := zlib.NewReader(bytes.NewReader(stream))
	if err != nil {
		t.Fatalf("Stream rejected: %v", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("Inflate: %v", err)
	}
	return out
}

func pattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7 + i>>8)
	}
	return p
}

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("x"),
		[]byte("one stored block"),
		pattern(StoredBlockMax),
		pattern(StoredBlockMax + 1),
		pattern(2*StoredBlockMax + 17),
	}

	for _, payload := range payloads {
		stream := encode(t, payload)
		if len(stream) != EncodedLen(len(payload)) {
			t.Errorf("Payload %d: stream is %d bytes, EncodedLen says %d",
				len(payload), len(stream), EncodedLen(len(payload)))
		}
		got := inflate(t, stream)
		if !bytes.Equal(got, payload) {
			t.Errorf("Payload %d bytes: round trip returned %d bytes",
				len(payload), len(got))
		}
	}
}

func TestStreamLayout(t *testing.T) {
	payload := []byte("layout")
	stream := encode(t, payload)

	if stream[0] != 0x78 || stream[1] != 0x01 {
		t.Errorf("Unexpected stream header % x", stream[:2])
	}
	if (uint16(stream[0])<<8|uint16(stream[1]))%31 != 0 {
		t.Error("Header check bits invalid")
	}

	// One final stored block: flag, LEN, NLEN, then the raw payload.
	if stream[2] != 1 {
		t.Errorf("Expected final block flag, got %d", stream[2])
	}
	n := uint16(len(payload))
	if stream[3] != byte(n) || stream[4] != byte(n>>8) {
		t.Errorf("LEN wrong: % x", stream[3:5])
	}
	if stream[5] != byte(^n) || stream[6] != byte(^n>>8) {
		t.Errorf("NLEN wrong: % x", stream[5:7])
	}
	if !bytes.Equal(stream[7:7+len(payload)], payload) {
		t.Error("Payload not stored verbatim")
	}

	sum := adler32.Checksum(payload)
	trailer := stream[len(stream)-4:]
	got := uint32(trailer[0])<<24 | uint32(trailer[1])<<16 |
		uint32(trailer[2])<<8 | uint32(trailer[3])
	if got != sum {
		t.Errorf("Trailer checksum 0x%08X, expected 0x%08X", got, sum)
	}
}

func TestChunkedWritesMatchSingleWrite(t *testing.T) {
	payload := pattern(StoredBlockMax + 4096)
	whole := encode(t, payload)

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for off := 0; off < len(payload); off += 1000 {
		end := off + 1000
		if end > len(payload) {
			end = len(payload)
		}
		if _, err := w.Write(payload[off:end]); err != nil {
			t.Fatalf("Write at %d: %v", off, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !bytes.Equal(buf.Bytes(), whole) {
		t.Error("Chunked writes produced a different stream")
	}
}

func TestWriteAfterClose(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Write([]byte("data"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Second Close: %v", err)
	}
	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("Write after Close must fail")
	}
}

func TestReset(t *testing.T) {
	var first, second bytes.Buffer

	w := NewWriter(&first)
	w.Write([]byte("first stream"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	w.Reset(&second)
	w.Write([]byte("second"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close after Reset: %v", err)
	}

	if got := inflate(t, second.Bytes()); !bytes.Equal(got, []byte("second")) {
		t.Errorf("Reset stream decoded to %q", got)
	}
	if got := inflate(t, first.Bytes()); !bytes.Equal(got, []byte("first stream")) {
		t.Errorf("First stream decoded to %q", got)
	}
}

func TestFailingWriterPropagates(t *testing.T) {
	w := NewWriter(failWriter{})
	// The header is deferred, so the first blocks worth of data must
	// surface the sink error.
	if _, err := w.Write(pattern(StoredBlockMax + 1)); err == nil {
		t.Error("Expected sink error from Write")
	}
	if err := w.Close(); err == nil {
		t.Error("Expected sticky error from Close")
	}
}

type failWriter struct{}

func (failWriter) Write(p []byte) (int, error) {
	return 0, io.ErrShortWrite
}
