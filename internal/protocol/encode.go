package protocol

import "encoding/binary"

// PackHeader folds kind and total frame length into the 16-bit header value.
func PackHeader(kind Kind, totalLen int) uint16 {
	return uint16(kind)<<13 | uint16(totalLen)
}

// UnpackHeader recovers kind and declared total frame length.
func UnpackHeader(v uint16) (Kind, int) {
	kind := Kind(v >> 13)
	return kind, int(v - uint16(kind)<<13)
}

// EncodeControlItem builds a control-item frame: header, item code, parameters.
// The caller keeps params small enough for the 13-bit length field; device
// commands never approach it.
func EncodeControlItem(kind Kind, item ControlItem, params []byte) []byte {
	total := HeaderSize + 2 + len(params)
	buf := make([]byte, total)
	binary.LittleEndian.PutUint16(buf[0:2], PackHeader(kind, total))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(item))
	copy(buf[4:], params)
	return buf
}

// EncodeDataItem builds a data-item frame: header then parameters, no item
// code. Outbound data frames carry no sequence number; the device adds one on
// its own streamed responses.
func EncodeDataItem(kind Kind, params []byte) []byte {
	total := HeaderSize + len(params)
	buf := make([]byte, total)
	binary.LittleEndian.PutUint16(buf[0:2], PackHeader(kind, total))
	copy(buf[HeaderSize:], params)
	return buf
}
