package protocol

import (
	"bytes"
	"testing"
)

func TestVLQKnownEncodings(t *testing.T) {
	// Wire format vectors. Values in -32..95 fit one byte; the sign of
	// small negatives rides on bits 6 and 5 of the first byte.
	testCases := []struct {
		value   int32
		encoded []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{-1, []byte{0x7F}},
		{-32, []byte{0x60}},
		{95, []byte{0x5F}},
		{96, []byte{0x80, 0x60}},
		{-33, []byte{0xFF, 0x5F}},
		{300, []byte{0x82, 0x2C}},
	}

	for _, tc := range testCases {
		output := NewScratchOutput()
		EncodeVLQInt(output, tc.value)
		if !bytes.Equal(output.Result(), tc.encoded) {
			t.Errorf("Encode(%d): expected % x, got % x", tc.value, tc.encoded, output.Result())
		}

		data := tc.encoded
		decoded, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("Decode(% x): %v", tc.encoded, err)
			continue
		}
		if decoded != tc.value {
			t.Errorf("Decode(% x): expected %d, got %d", tc.encoded, tc.value, decoded)
		}
		if len(data) != 0 {
			t.Errorf("Decode(% x): %d bytes left over", tc.encoded, len(data))
		}
	}
}

func TestVLQRoundTripInt(t *testing.T) {
	testCases := []int32{
		0, 1, -1, 127, -127, 128, -128, 255, -255,
		1000, -1000, 65535, -65535, 1000000, -1000000,
		1 << 30, -(1 << 30),
	}

	for _, expected := range testCases {
		output := NewScratchOutput()
		EncodeVLQInt(output, expected)

		data := output.Result()
		decoded, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("Failed to decode value %d: %v", expected, err)
			continue
		}
		if decoded != expected {
			t.Errorf("Round trip mismatch: expected %d, got %d", expected, decoded)
		}
		if len(data) != 0 {
			t.Errorf("Decode left %d bytes behind for value %d", len(data), expected)
		}
	}
}

func TestVLQRoundTripUint(t *testing.T) {
	testCases := []uint32{0, 1, 127, 128, 255, 1000, 65535, 1000000, 0xFFFFFFFF}

	for _, expected := range testCases {
		output := NewScratchOutput()
		EncodeVLQUint(output, expected)

		data := output.Result()
		decoded, err := DecodeVLQUint(&data)
		if err != nil {
			t.Errorf("Failed to decode value %d: %v", expected, err)
			continue
		}
		if decoded != expected {
			t.Errorf("Round trip mismatch: expected %d, got %d", expected, decoded)
		}
	}
}

func TestVLQBytes(t *testing.T) {
	testCases := [][]byte{
		{},
		{0x01},
		{0x01, 0x02, 0x03},
		{0xFF, 0xFE, 0xFD},
		make([]byte, 50),
	}

	for i, expected := range testCases {
		output := NewScratchOutput()
		EncodeVLQBytes(output, expected)

		data := output.Result()
		decoded, err := DecodeVLQBytes(&data)
		if err != nil {
			t.Errorf("Test case %d: failed to decode: %v", i, err)
			continue
		}
		if !bytes.Equal(decoded, expected) {
			t.Errorf("Test case %d: expected % x, got % x", i, expected, decoded)
		}
	}
}

func TestVLQString(t *testing.T) {
	testCases := []string{
		"",
		"hello",
		"Hello, World!",
		"Special chars: !@#$%^&*()",
	}

	for _, expected := range testCases {
		output := NewScratchOutput()
		EncodeVLQString(output, expected)

		data := output.Result()
		decoded, err := DecodeVLQString(&data)
		if err != nil {
			t.Errorf("Failed to decode string %q: %v", expected, err)
			continue
		}
		if decoded != expected {
			t.Errorf("String mismatch: expected %q, got %q", expected, decoded)
		}
	}
}

func TestVLQTruncated(t *testing.T) {
	// A continuation flag with nothing after it.
	data := []byte{0x80}
	if _, err := DecodeVLQInt(&data); err != ErrTruncated {
		t.Errorf("Expected ErrTruncated, got %v", err)
	}

	// A length prefix promising more bytes than remain.
	data = []byte{0x05, 0x01, 0x02}
	if _, err := DecodeVLQBytes(&data); err != ErrTruncated {
		t.Errorf("Expected ErrTruncated for short array, got %v", err)
	}

	// An empty slice.
	data = nil
	if _, err := DecodeVLQUint(&data); err != ErrTruncated {
		t.Errorf("Expected ErrTruncated for empty input, got %v", err)
	}
}
