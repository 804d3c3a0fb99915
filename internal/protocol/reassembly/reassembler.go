package reassembly

import (
	"errors"
	"fmt"

	"github.com/danmuck/pomelogate/internal/protocol/packet"
)

const DefaultInitialSize = 64 * 1024

var ErrPacketTooLarge = errors.New("reassembly: packet too large")

// Reassembler turns an arbitrarily split byte stream into whole packets.
// It is not safe for concurrent use.
type Reassembler struct {
	buf  []byte
	r, w int

	maxBodyLen int
}

// New returns a reassembler with the given initial buffer size and body
// limit. Non-positive values fall back to DefaultInitialSize and
// packet.MaxBodyLen.
func New(initialSize, maxBodyLen int) *Reassembler {
	if initialSize <= 0 {
		initialSize = DefaultInitialSize
	}
	if maxBodyLen <= 0 || maxBodyLen > packet.MaxBodyLen {
		maxBodyLen = packet.MaxBodyLen
	}
	return &Reassembler{
		buf:        make([]byte, initialSize),
		maxBodyLen: maxBodyLen,
	}
}

// Feed appends data and returns every packet completed by it, in stream
// order. Incomplete trailing bytes stay buffered for the next call.
// Returned bodies are copies and remain valid after later calls.
func (ra *Reassembler) Feed(data []byte) ([]packet.Packet, error) {
	ra.append(data)

	var out []packet.Packet
	for {
		pending := ra.buf[ra.r:ra.w]
		if len(pending) >= packet.HeadLength {
			if n := packet.BodyLen(pending); n > ra.maxBodyLen {
				return out, fmt.Errorf("%w: %d > %d", ErrPacketTooLarge, n, ra.maxBodyLen)
			}
		}
		p, n, err := packet.Decode(pending)
		if err != nil {
			break
		}
		body := make([]byte, len(p.Body))
		copy(body, p.Body)
		out = append(out, packet.Packet{Kind: p.Kind, Body: body})
		ra.r += n
	}

	if ra.r == ra.w {
		ra.r, ra.w = 0, 0
	}
	return out, nil
}

// Buffered returns the count of received bytes not yet emitted as packets.
func (ra *Reassembler) Buffered() int {
	return ra.w - ra.r
}

// Cap returns the current buffer capacity.
func (ra *Reassembler) Cap() int {
	return len(ra.buf)
}

// Reset drops any buffered bytes and keeps the allocation.
func (ra *Reassembler) Reset() {
	ra.r, ra.w = 0, 0
}

func (ra *Reassembler) append(data []byte) {
	if len(data) == 0 {
		return
	}
	if len(ra.buf)-ra.w < len(data) && ra.r > 0 {
		copy(ra.buf, ra.buf[ra.r:ra.w])
		ra.w -= ra.r
		ra.r = 0
	}
	if len(ra.buf)-ra.w < len(data) {
		size := 2 * len(ra.buf)
		if need := ra.w + len(data); need > size {
			size = need
		}
		grown := make([]byte, size)
		copy(grown, ra.buf[:ra.w])
		ra.buf = grown
	}
	ra.w += copy(ra.buf[ra.w:], data)
}
