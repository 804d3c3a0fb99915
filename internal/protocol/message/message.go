package message

import (
	"errors"
	"fmt"
)

// Kind is the 3-bit message type carried in the flag byte.
type Kind byte

const (
	Request  Kind = 0x00
	Notify   Kind = 0x01
	Response Kind = 0x02
	Push     Kind = 0x03
)

const (
	routeCompressMask = 0x01
	kindMask          = 0x07
	gzipMask          = 0x10

	// MaxRouteLen is bounded by the 1-byte route length prefix.
	MaxRouteLen = 255
	// maxIDBytes bounds the base-128 id to 64 bits.
	maxIDBytes = 10
)

var (
	ErrEmpty        = errors.New("message: empty input")
	ErrTruncated    = errors.New("message: truncated data")
	ErrIDOverflow   = errors.New("message: id overflows 64 bits")
	ErrInvalidKind  = errors.New("message: invalid kind")
	ErrRouteTooLong = errors.New("message: route too long")
)

var kindNames = map[Kind]string{
	Request:  "request",
	Notify:   "notify",
	Response: "response",
	Push:     "push",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", byte(k))
}

// Message is one decoded application message.
type Message struct {
	ID            uint64
	Kind          Kind
	CompressRoute bool
	Route         string
	CompressGzip  bool
	Body          []byte
}

func (m Message) String() string {
	return fmt.Sprintf("kind=%s id=%d route=%q compress_route=%t gzip=%t body_len=%d",
		m.Kind, m.ID, m.Route, m.CompressRoute, m.CompressGzip, len(m.Body))
}

// HasID reports whether kind carries a message id on the wire.
func HasID(kind Kind) bool {
	return kind == Request || kind == Response
}

// Routable reports whether kind carries a route on the wire.
func Routable(kind Kind) bool {
	return kind == Request || kind == Notify || kind == Push
}

// Encode builds flag + id + route + body.
//
// A compressed route is written as the 2-byte code 0: no route dictionary
// is negotiated, so the code is a placeholder.
func Encode(id uint64, kind Kind, compressRoute bool, route string, body []byte) ([]byte, error) {
	if kind > kindMask {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, byte(kind))
	}
	if Routable(kind) && !compressRoute && len(route) > MaxRouteLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrRouteTooLong, len(route))
	}

	out := make([]byte, 0, 1+maxIDBytes+1+len(route)+len(body))
	flag := byte(kind) << 1
	if compressRoute {
		flag |= routeCompressMask
	}
	out = append(out, flag)

	if HasID(kind) {
		out = AppendID(out, id)
	}

	if Routable(kind) {
		if compressRoute {
			out = append(out, 0x00, 0x00)
		} else {
			out = append(out, byte(len(route)))
			out = append(out, route...)
		}
	}

	out = append(out, body...)
	return out, nil
}

// Decode parses one message. The returned body aliases b.
func Decode(b []byte) (Message, error) {
	if len(b) < 1 {
		return Message{}, ErrEmpty
	}
	flag := b[0]
	m := Message{
		CompressRoute: flag&routeCompressMask != 0,
		Kind:          Kind((flag >> 1) & kindMask),
		CompressGzip:  flag&gzipMask != 0,
	}
	offset := 1

	if HasID(m.Kind) {
		id, n, err := ReadID(b[offset:])
		if err != nil {
			return Message{}, err
		}
		m.ID = id
		offset += n
	}

	if Routable(m.Kind) {
		if m.CompressRoute {
			if len(b)-offset < 2 {
				return Message{}, fmt.Errorf("%w: compressed route", ErrTruncated)
			}
			offset += 2
		} else {
			if len(b)-offset < 1 {
				return Message{}, fmt.Errorf("%w: route length", ErrTruncated)
			}
			routeLen := int(b[offset])
			offset++
			if len(b)-offset < routeLen {
				return Message{}, fmt.Errorf("%w: route wants %d bytes, have %d", ErrTruncated, routeLen, len(b)-offset)
			}
			m.Route = string(b[offset : offset+routeLen])
			offset += routeLen
		}
	}

	if offset < len(b) {
		m.Body = b[offset:]
	}
	return m, nil
}
