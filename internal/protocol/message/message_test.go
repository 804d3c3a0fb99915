package message

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestRequestResponseRoundTrip(t *testing.T) {
	ids := []uint64{0, 1, 127, 128, 16384, 2_000_000_000}
	body := []byte(`{"a":1}`)
	for _, kind := range []Kind{Request, Response} {
		for _, id := range ids {
			route := "connector.entryHandler.hello"
			raw, err := Encode(id, kind, false, route, body)
			if err != nil {
				t.Fatalf("encode kind=%s id=%d: %v", kind, id, err)
			}
			got, err := Decode(raw)
			if err != nil {
				t.Fatalf("decode kind=%s id=%d: %v", kind, id, err)
			}
			if got.ID != id || got.Kind != kind || !bytes.Equal(got.Body, body) {
				t.Fatalf("round trip mismatch: %s", got)
			}
			wantRoute := route
			if kind == Response {
				wantRoute = ""
			}
			if got.Route != wantRoute {
				t.Fatalf("route mismatch kind=%s got=%q want=%q", kind, got.Route, wantRoute)
			}
		}
	}
}

func TestNotifyAndPushOmitID(t *testing.T) {
	for _, kind := range []Kind{Notify, Push} {
		raw, err := Encode(99, kind, false, "chat.say", []byte("hi"))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		want := append([]byte{byte(kind) << 1, 8}, "chat.sayhi"...)
		if !bytes.Equal(raw, want) {
			t.Fatalf("kind=%s wire=% x want=% x", kind, raw, want)
		}
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ID != 0 || got.Route != "chat.say" || string(got.Body) != "hi" {
			t.Fatalf("unexpected message: %s", got)
		}
	}
}

func TestIDWireBytes(t *testing.T) {
	cases := map[uint64][]byte{
		0:     {0x00},
		1:     {0x01},
		127:   {0x7F},
		128:   {0x80, 0x01},
		300:   {0xAC, 0x02},
		16384: {0x80, 0x80, 0x01},
	}
	for id, want := range cases {
		if got := AppendID(nil, id); !bytes.Equal(got, want) {
			t.Fatalf("id=%d got=% x want=% x", id, got, want)
		}
	}
}

func TestReadIDMaxUint64(t *testing.T) {
	raw := AppendID(nil, math.MaxUint64)
	if len(raw) != maxIDBytes {
		t.Fatalf("unexpected encoded length %d", len(raw))
	}
	got, n, err := ReadID(raw)
	if err != nil || got != math.MaxUint64 || n != maxIDBytes {
		t.Fatalf("got=%d n=%d err=%v", got, n, err)
	}
}

func TestReadIDOverflow(t *testing.T) {
	raw := bytes.Repeat([]byte{0xFF}, 11)
	if _, _, err := ReadID(raw); !errors.Is(err, ErrIDOverflow) {
		t.Fatalf("expected ErrIDOverflow, got %v", err)
	}
}

func TestCompressedRoutePlaceholder(t *testing.T) {
	raw, err := Encode(7, Request, true, "ignored.route", []byte("{}"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0x01, 0x07, 0x00, 0x00, '{', '}'}
	if !bytes.Equal(raw, want) {
		t.Fatalf("wire=% x want=% x", raw, want)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.CompressRoute || got.Route != "" || got.ID != 7 || string(got.Body) != "{}" {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestDecodeGzipFlag(t *testing.T) {
	got, err := Decode([]byte{0x10 | byte(Push)<<1, 0})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.CompressGzip || got.Kind != Push {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := Decode([]byte{byte(Request) << 1}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("missing id: expected ErrTruncated, got %v", err)
	}
	if _, err := Decode([]byte{byte(Request) << 1, 0x81}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("continued id: expected ErrTruncated, got %v", err)
	}
	if _, err := Decode([]byte{byte(Request) << 1, 0x01}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("missing route length: expected ErrTruncated, got %v", err)
	}
	if _, err := Decode([]byte{byte(Notify) << 1, 5, 'a', 'b'}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("short route: expected ErrTruncated, got %v", err)
	}
	if _, err := Decode([]byte{byte(Push)<<1 | 1, 0}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("short compressed route: expected ErrTruncated, got %v", err)
	}
}

func TestEncodeErrors(t *testing.T) {
	if _, err := Encode(1, Request, false, strings.Repeat("r", 256), nil); !errors.Is(err, ErrRouteTooLong) {
		t.Fatalf("expected ErrRouteTooLong, got %v", err)
	}
	if _, err := Encode(1, Kind(8), false, "", nil); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
	if _, err := Encode(1, Response, false, strings.Repeat("r", 300), nil); err != nil {
		t.Fatalf("response carries no route and should encode: %v", err)
	}
}

func TestEmptyBodyStaysNil(t *testing.T) {
	raw, err := Encode(3, Response, false, "", nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(raw, []byte{0x04, 0x03}) {
		t.Fatalf("wire=% x", raw)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Body != nil {
		t.Fatalf("expected nil body, got %q", got.Body)
	}
}
