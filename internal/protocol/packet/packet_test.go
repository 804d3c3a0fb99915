package packet

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	bodies := [][]byte{
		nil,
		{},
		[]byte("x"),
		[]byte(`{"code":200}`),
		bytes.Repeat([]byte{0xAB}, 70000),
	}
	for _, kind := range []Kind{Handshake, HandshakeAck, Heartbeat, Data, Kick} {
		for _, body := range bodies {
			raw := Encode(kind, body)
			got, n, err := Decode(raw)
			if err != nil {
				t.Fatalf("decode kind=%s len=%d: %v", kind, len(body), err)
			}
			if n != len(raw) {
				t.Fatalf("consumed=%d want=%d", n, len(raw))
			}
			if got.Kind != kind || !bytes.Equal(got.Body, body) {
				t.Fatalf("round trip mismatch kind=%s got=%s len=%d", kind, got.Kind, len(got.Body))
			}
		}
	}
}

func TestEncodeHeaderLayout(t *testing.T) {
	raw := Encode(Data, make([]byte, 0x010203))
	if raw[0] != 0x04 || raw[1] != 0x01 || raw[2] != 0x02 || raw[3] != 0x03 {
		t.Fatalf("unexpected header: % x", raw[:4])
	}
	if hb := Encode(Heartbeat, nil); !bytes.Equal(hb, []byte{0x03, 0, 0, 0}) {
		t.Fatalf("unexpected heartbeat packet: % x", hb)
	}
}

func TestDecodeNeedMoreData(t *testing.T) {
	raw := Encode(Data, []byte("hello"))
	for i := 0; i < len(raw); i++ {
		if _, _, err := Decode(raw[:i]); !errors.Is(err, ErrNeedMoreData) {
			t.Fatalf("prefix len=%d: expected ErrNeedMoreData, got %v", i, err)
		}
	}
}

func TestDecodeNilInput(t *testing.T) {
	if _, _, err := Decode(nil); !errors.Is(err, ErrNilInput) {
		t.Fatalf("expected ErrNilInput, got %v", err)
	}
}

func TestDecodeLeavesTrailingBytes(t *testing.T) {
	raw := append(Encode(Heartbeat, nil), Encode(Data, []byte("ab"))...)
	p, n, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Kind != Heartbeat || n != HeadLength {
		t.Fatalf("unexpected first packet kind=%s n=%d", p.Kind, n)
	}
	p, _, err = Decode(raw[n:])
	if err != nil || p.Kind != Data || string(p.Body) != "ab" {
		t.Fatalf("unexpected second packet kind=%s body=%q err=%v", p.Kind, p.Body, err)
	}
}

func TestUnknownKindIsAccepted(t *testing.T) {
	p, _, err := Decode(Encode(Kind(0x09), []byte{1}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Kind.Valid() {
		t.Fatalf("kind 0x09 should not be valid")
	}
	if p.Kind.String() != "unknown(0x09)" {
		t.Fatalf("unexpected name %q", p.Kind.String())
	}
}

func TestWriteRejectsOversizedBody(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, Data, make([]byte, MaxBodyLen+1)); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("nothing should be written on error")
	}
}
