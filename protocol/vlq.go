package protocol

import "errors"

// ErrTruncated reports a value or length-prefixed field that runs past
// the end of its frame.
var ErrTruncated = errors.New("protocol: truncated field")

// EncodeVLQInt writes v in the link's variable length encoding: seven
// payload bits per byte, most significant group first, the continuation
// flag in bit 7. The decoder sign extends the first byte, so small
// negative values still fit in one byte.
func EncodeVLQInt(output OutputBuffer, v int32) {
	var enc [5]byte
	n := 0
	if !(-(1<<26) <= v && v < 3<<26) {
		enc[n] = byte(v>>28)&0x7F | 0x80
		n++
	}
	if !(-(1<<19) <= v && v < 3<<19) {
		enc[n] = byte(v>>21)&0x7F | 0x80
		n++
	}
	if !(-(1<<12) <= v && v < 3<<12) {
		enc[n] = byte(v>>14)&0x7F | 0x80
		n++
	}
	if !(-(1<<5) <= v && v < 3<<5) {
		enc[n] = byte(v>>7)&0x7F | 0x80
		n++
	}
	enc[n] = byte(v) & 0x7F
	output.Output(enc[:n+1])
}

// EncodeVLQUint writes an unsigned value in the same encoding.
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt reads one value from the front of *data, advancing the
// slice past the consumed bytes. A first byte with bits 6 and 5 both set
// decodes as a negative value.
func DecodeVLQInt(data *[]byte) (int32, error) {
	if len(*data) == 0 {
		return 0, ErrTruncated
	}
	c := uint32((*data)[0])
	*data = (*data)[1:]

	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	for c&0x80 != 0 {
		if len(*data) == 0 {
			return 0, ErrTruncated
		}
		c = uint32((*data)[0])
		*data = (*data)[1:]
		v = v<<7 | c&0x7F
	}
	return int32(v), nil
}

// DecodeVLQUint reads one value and reinterprets it as unsigned.
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// EncodeVLQBytes writes a length-prefixed byte array.
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// DecodeVLQBytes reads a length-prefixed byte array. The returned slice
// aliases the frame buffer; callers that keep it must copy.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	length, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(*data)) < length {
		return nil, ErrTruncated
	}
	result := (*data)[:length]
	*data = (*data)[length:]
	return result, nil
}

// EncodeVLQString writes a length-prefixed string.
func EncodeVLQString(output OutputBuffer, s string) {
	EncodeVLQUint(output, uint32(len(s)))
	output.Output([]byte(s))
}

// DecodeVLQString reads a length-prefixed string.
func DecodeVLQString(data *[]byte) (string, error) {
	raw, err := DecodeVLQBytes(data)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
