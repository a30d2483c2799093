package protocol

// CRC16 computes the frame checksum used on the serial link. The
// register is seeded with 0xFFFF and bytes are folded in low bit first.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc)
		b ^= b << 4
		crc = (uint16(b)<<8 | crc>>8) ^ uint16(b)>>4 ^ uint16(b)<<3
	}
	return crc
}
