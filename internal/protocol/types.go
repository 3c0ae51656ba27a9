package protocol

const (
	// HeaderSize is the fixed frame header length in bytes.
	HeaderSize = 2
	// MaxFrameLen is the largest total frame length the 13-bit header field can carry.
	MaxFrameLen = 1<<13 - 1
)

// Kind is the 3-bit message discriminator carried in the frame header.
type Kind uint8

const (
	KindSet Kind = 0
	KindGet Kind = 1
	KindAck Kind = 2

	KindDataItem0 Kind = 4
	KindDataItem1 Kind = 5
	KindDataItem2 Kind = 6
	KindDataItem3 Kind = 7
)

// IsControl reports whether frames of this kind address a control item.
func (k Kind) IsControl() bool {
	switch k {
	case KindSet, KindGet, KindAck:
		return true
	}
	return false
}

// HasSequence reports whether inbound frames of this kind carry a 2-byte
// sequence number between the header and the body.
func (k Kind) HasSequence() bool {
	return k >= KindDataItem0 && k <= KindDataItem3
}

func (k Kind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindGet:
		return "get"
	case KindAck:
		return "ack"
	case KindDataItem0, KindDataItem1, KindDataItem2, KindDataItem3:
		return "data_item"
	}
	return "unknown"
}

// ControlItem identifies one device setting addressed by Set/Get/Ack frames.
type ControlItem int16

const (
	// ItemNone marks frames that carry no control item (pure data frames).
	ItemNone ControlItem = -1

	ItemCurrentControlItem ControlItem = 0x0005
	ItemReceiverState      ControlItem = 0x0018
	ItemReceiverFrequency  ControlItem = 0x0020
	ItemIQOutputMode       ControlItem = 0x00B8
)

// Message is one decoded frame.
type Message struct {
	Kind     Kind
	Item     ControlItem
	Sequence uint16
	Body     []byte
}
