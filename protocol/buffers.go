package protocol

// InputBuffer is the read side of a link endpoint. Implementations
// expose received bytes as a contiguous slice and discard them once the
// transport has consumed them.
type InputBuffer interface {
	// Data returns the buffered bytes, oldest first.
	Data() []byte

	// Available returns the number of buffered bytes.
	Available() int

	// Pop discards n bytes from the front of the buffer.
	Pop(n int)
}

// OutputBuffer is the write side of a link endpoint. Frames are built in
// place, so implementations must allow patching a byte after the fact:
// the length field is written before the payload size is known.
type OutputBuffer interface {
	// Output appends data to the buffer.
	Output(data []byte)

	// CurPosition returns the current write position.
	CurPosition() int

	// Update overwrites the byte at an earlier position.
	Update(pos int, val byte)

	// DataSince returns the bytes written from pos to the current
	// position.
	DataSince(pos int) []byte
}

// SliceInputBuffer adapts a plain byte slice to InputBuffer.
type SliceInputBuffer struct {
	data []byte
}

// NewSliceInputBuffer wraps data without copying it.
func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte {
	return s.data
}

func (s *SliceInputBuffer) Available() int {
	return len(s.data)
}

func (s *SliceInputBuffer) Pop(n int) {
	if n > len(s.data) {
		n = len(s.data)
	}
	s.data = s.data[n:]
}

// ScratchOutput implements OutputBuffer on a fixed scratch array. It is
// allocation free, which matters on the microcontroller targets where
// frames are assembled inside the main loop.
type ScratchOutput struct {
	buf [MessageMax]byte
	pos int
}

// NewScratchOutput returns an empty scratch buffer.
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < len(s.buf) {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written so far.
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset discards the buffer contents.
func (s *ScratchOutput) Reset() {
	s.pos = 0
}

// RingBuffer is a byte ring used between a serial reader and the
// transport. One slot stays reserved, so a ring of capacity c holds at
// most c-1 bytes. It implements InputBuffer.
type RingBuffer struct {
	buf   []byte
	read  int
	write int
	size  int
}

// NewRingBuffer returns a ring holding up to capacity-1 bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		buf:  make([]byte, capacity),
		size: capacity,
	}
}

// Write appends as much of data as fits and reports how many bytes were
// taken.
func (r *RingBuffer) Write(data []byte) int {
	written := 0
	for _, b := range data {
		next := (r.write + 1) % r.size
		if next == r.read {
			break
		}
		r.buf[r.write] = b
		r.write = next
		written++
	}
	return written
}

// Read copies up to len(data) bytes out of the ring and reports how many
// were copied.
func (r *RingBuffer) Read(data []byte) int {
	n := 0
	for i := range data {
		if r.read == r.write {
			break
		}
		data[i] = r.buf[r.read]
		r.read = (r.read + 1) % r.size
		n++
	}
	return n
}

// Available returns the number of buffered bytes.
func (r *RingBuffer) Available() int {
	if r.write >= r.read {
		return r.write - r.read
	}
	return r.size - r.read + r.write
}

// Free returns how many more bytes Write can accept.
func (r *RingBuffer) Free() int {
	return r.size - r.Available() - 1
}

// Data returns the buffered bytes, oldest first. When the ring has
// wrapped the two segments are copied into a fresh contiguous slice so
// the frame scanner can index into it directly.
func (r *RingBuffer) Data() []byte {
	if r.read <= r.write {
		return r.buf[r.read:r.write]
	}
	result := make([]byte, r.Available())
	n := copy(result, r.buf[r.read:])
	copy(result[n:], r.buf[:r.write])
	return result
}

// Pop discards n bytes from the front of the ring.
func (r *RingBuffer) Pop(n int) {
	for i := 0; i < n && r.read != r.write; i++ {
		r.read = (r.read + 1) % r.size
	}
}

// IsEmpty reports whether the ring holds no bytes.
func (r *RingBuffer) IsEmpty() bool {
	return r.read == r.write
}

// Reset discards everything in the ring.
func (r *RingBuffer) Reset() {
	r.read = 0
	r.write = 0
}
