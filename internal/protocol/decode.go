package protocol

import "encoding/binary"

// Parse decodes one frame. Malformed input reports ok=false rather than an
// error: truncated and garbage frames are an expected wire condition, and the
// caller only needs the success flag.
func Parse(frame []byte) (Message, bool) {
	if len(frame) < HeaderSize {
		return Message{}, false
	}
	kind, total := UnpackHeader(binary.LittleEndian.Uint16(frame[0:2]))
	if total < HeaderSize || len(frame) < total {
		return Message{}, false
	}
	rest := frame[HeaderSize:total]

	if kind.IsControl() {
		if len(rest) < 2 {
			return Message{}, false
		}
		return Message{
			Kind: kind,
			Item: ControlItem(binary.LittleEndian.Uint16(rest[0:2])),
			Body: rest[2:],
		}, true
	}

	msg := Message{Kind: kind, Item: ItemNone}
	if kind.HasSequence() {
		if len(rest) < 2 {
			return Message{}, false
		}
		msg.Sequence = binary.LittleEndian.Uint16(rest[0:2])
		rest = rest[2:]
	}
	msg.Body = rest
	return msg, true
}
