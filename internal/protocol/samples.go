package protocol

import (
	"errors"
	"fmt"
	"iter"
)

// ErrSampleWidth rejects sample bit widths outside the 32-bit container.
// Unlike a malformed frame this is a caller contract violation, so it
// surfaces as an error instead of an ok flag.
var ErrSampleWidth = errors.New("protocol: sample bit width out of range")

// Samples returns a lazy finite sequence of bit-packed samples decoded from
// body, least-significant bit first, each zero-extended into an int32.
// The sequence yields floor(len(body)*8/bitWidth) samples; trailing partial
// bits are dropped.
func Samples(bitWidth int, body []byte) (iter.Seq[int32], error) {
	if bitWidth < 1 || bitWidth > 32 {
		return nil, fmt.Errorf("%w: %d", ErrSampleWidth, bitWidth)
	}
	return func(yield func(int32) bool) {
		totalBits := len(body) * 8
		for pos := 0; pos+bitWidth <= totalBits; pos += bitWidth {
			var v uint32
			for i := 0; i < bitWidth; i++ {
				bit := pos + i
				if body[bit>>3]&(1<<(bit&7)) != 0 {
					v |= 1 << i
				}
			}
			if !yield(int32(v)) {
				return
			}
		}
	}, nil
}
