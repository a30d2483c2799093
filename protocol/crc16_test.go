package protocol

import "testing"

func TestCRC16KnownValues(t *testing.T) {
	testCases := []struct {
		data     []byte
		expected uint16
	}{
		{[]byte{}, 0xFFFF},
		{[]byte{0x00}, 0x0F87},
		// The initial acknowledgement frame header.
		{[]byte{5, MessageDest}, 0x9E81},
	}

	for _, tc := range testCases {
		if got := CRC16(tc.data); got != tc.expected {
			t.Errorf("CRC16(% x): expected 0x%04X, got 0x%04X", tc.data, tc.expected, got)
		}
	}
}

func TestCRC16Consistency(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}

	if CRC16(data) != CRC16(data) {
		t.Error("CRC16 not deterministic for identical input")
	}
}

func TestCRC16Different(t *testing.T) {
	crc1 := CRC16([]byte{0x01, 0x02, 0x03})
	crc2 := CRC16([]byte{0x01, 0x02, 0x04})

	if crc1 == crc2 {
		t.Errorf("CRC collision on single bit flip: both 0x%04X", crc1)
	}
}
