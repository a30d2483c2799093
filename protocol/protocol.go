// Package protocol implements the framed serial link between a spigot
// controller device and its host tools.
//
// Frames carry a length byte, a sequence byte, a variable length encoded
// payload, a big endian CRC16 and a trailing sync byte:
//
//	[len][seq][payload...][crc hi][crc lo][0x7e]
//
// The sequence byte keeps a four bit counter in its low nibble and the
// fixed destination code 0x10 in its high nibble. A frame with an empty
// payload is an acknowledgement; the sequence it carries is the next one
// the sender expects to receive.
package protocol

// Version identifies the firmware build reported during identification.
const Version = "0.1.0"

// Frame geometry. A frame is at least five bytes (header plus trailer)
// and never longer than MessageLengthMax on the wire. MessageMax sizes
// the scratch buffer instead, so several response frames can be batched
// before a flush.
const (
	MessageMax = 512

	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64

	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1

	MessageValueSync = 0x7E
	MessageDest      = 0x10
	MessageSeqMask   = 0x0F
)

// Frame is a parsed link frame.
type Frame struct {
	Length   uint8
	Sequence uint8
	Payload  []byte
	CRC      uint16
}

// NextSequence advances a sequence byte, wrapping the four bit counter
// and preserving the destination bits.
func NextSequence(seq uint8) uint8 {
	return (seq+1)&MessageSeqMask | MessageDest
}

// checkFrame validates the frame starting at data[0] without consuming
// it. It returns the frame length when a complete, valid frame is
// present, 0 when more bytes are needed, and -1 when the stream is
// corrupt and the caller should drop back to resynchronization.
func checkFrame(data []byte) int {
	if len(data) < MessageLengthMin {
		return 0
	}
	n := int(data[MessagePositionLen])
	if n < MessageLengthMin || n > MessageLengthMax {
		return -1
	}
	if data[MessagePositionSeq]&^uint8(MessageSeqMask) != MessageDest {
		return -1
	}
	if len(data) < n {
		return 0
	}
	if data[n-MessageTrailerSync] != MessageValueSync {
		return -1
	}
	want := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
	if CRC16(data[:n-MessageTrailerSize]) != want {
		return -1
	}
	return n
}
