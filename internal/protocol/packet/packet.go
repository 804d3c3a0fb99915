package packet

import (
	"errors"
	"fmt"
	"io"
)

const (
	// HeadLength is the fixed packet header: 1 byte kind + 3 bytes length.
	HeadLength = 4
	// MaxBodyLen is the largest body a 3-byte length can describe.
	MaxBodyLen = 1<<24 - 1
)

var (
	ErrNeedMoreData = errors.New("packet: need more data")
	ErrNilInput     = errors.New("packet: nil input")
	ErrBodyTooLarge = errors.New("packet: body too large")
)

// Kind is the packet type byte.
type Kind byte

const (
	Handshake    Kind = 0x01
	HandshakeAck Kind = 0x02
	Heartbeat    Kind = 0x03
	Data         Kind = 0x04
	Kick         Kind = 0x05
)

var kindNames = map[Kind]string{
	Handshake:    "handshake",
	HandshakeAck: "handshake_ack",
	Heartbeat:    "heartbeat",
	Data:         "data",
	Kick:         "kick",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(k))
}

// Valid reports whether k is one of the five protocol packet kinds.
func (k Kind) Valid() bool {
	return k >= Handshake && k <= Kick
}

// Packet is one complete wire unit.
type Packet struct {
	Kind Kind
	Body []byte
}

// Encode writes kind, the big-endian 3-byte body length, then body.
// Callers keep len(body) within MaxBodyLen.
func Encode(kind Kind, body []byte) []byte {
	n := len(body)
	buf := make([]byte, HeadLength+n)
	buf[0] = byte(kind)
	buf[1] = byte(n >> 16)
	buf[2] = byte(n >> 8)
	buf[3] = byte(n)
	copy(buf[HeadLength:], body)
	return buf
}

// Decode parses one packet from the front of b and returns it with the
// number of bytes consumed. The returned body aliases b.
//
// ErrNeedMoreData means b holds an incomplete packet and the caller should
// wait for more input.
func Decode(b []byte) (Packet, int, error) {
	if b == nil {
		return Packet{}, 0, ErrNilInput
	}
	if len(b) < HeadLength {
		return Packet{}, 0, ErrNeedMoreData
	}
	n := BodyLen(b)
	total := HeadLength + n
	if len(b) < total {
		return Packet{}, 0, ErrNeedMoreData
	}
	return Packet{Kind: Kind(b[0]), Body: b[HeadLength:total:total]}, total, nil
}

// BodyLen reads the declared body length from a header. b must hold at
// least HeadLength bytes.
func BodyLen(b []byte) int {
	return int(b[1])<<16 | int(b[2])<<8 | int(b[3])
}

// Write encodes one packet onto w.
func Write(w io.Writer, kind Kind, body []byte) error {
	if len(body) > MaxBodyLen {
		return fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(body))
	}
	_, err := w.Write(Encode(kind, body))
	return err
}
