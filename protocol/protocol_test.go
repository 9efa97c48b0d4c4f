package protocol

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

func TestEncodeDecode(t *testing.T) {
	header := Header{
		CodecType: CodecTypeBinary,
		FrameType: FrameMessage,
		Seq:       12345,
	}
	body := []byte("hello world")

	var buf bytes.Buffer
	if err := Encode(&buf, &header, body); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Len() != HeaderSize+len(body) {
		t.Fatalf("frame size: got %d, want %d", buf.Len(), HeaderSize+len(body))
	}

	got, gotBody, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.CodecType != header.CodecType || got.FrameType != header.FrameType || got.Seq != header.Seq {
		t.Errorf("header mismatch: got %+v, want %+v", got, header)
	}
	if got.BodyLen != uint32(len(body)) {
		t.Errorf("BodyLen mismatch: got %d, want %d", got.BodyLen, len(body))
	}
	if !bytes.Equal(gotBody, body) {
		t.Errorf("Body mismatch: got %s, want %s", gotBody, body)
	}
}

func TestDecodeBackToBackFrames(t *testing.T) {
	var buf bytes.Buffer
	for i := uint32(1); i <= 3; i++ {
		if err := Encode(&buf, &Header{FrameType: FrameHeartbeat, Seq: i}, nil); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}
	for i := uint32(1); i <= 3; i++ {
		h, body, err := Decode(&buf)
		if err != nil {
			t.Fatalf("Decode #%d failed: %v", i, err)
		}
		if h.Seq != i || len(body) != 0 {
			t.Errorf("frame #%d: seq=%d body=%d", i, h.Seq, len(body))
		}
	}
}

func TestDecodeRejectsBadHeaders(t *testing.T) {
	valid := Marshal(&Header{CodecType: CodecTypeBinary, FrameType: FrameMessage, Seq: 1}, []byte("x"))

	cases := []struct {
		name   string
		offset int
		value  byte
		want   error
	}{
		{"magic", 0, 0x00, ErrBadMagic},
		{"version", 3, 0xff, ErrBadVersion},
		{"codec", 4, 0x09, ErrBadCodec},
		{"frame type", 5, 0x40, ErrBadFrameType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame := append([]byte(nil), valid...)
			frame[tc.offset] = tc.value
			_, _, err := Decode(bytes.NewReader(frame))
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDecodeRejectsOversizedBody(t *testing.T) {
	frame := Marshal(&Header{FrameType: FrameMessage}, nil)
	frame[10], frame[11], frame[12], frame[13] = 0xff, 0xff, 0xff, 0xff
	_, _, err := Decode(bytes.NewReader(frame))
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestDecodeLargeBody(t *testing.T) {
	largeBody := make([]byte, 1024*1024)
	for i := range largeBody {
		largeBody[i] = byte(i % 251)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, &Header{CodecType: CodecTypeBinary, FrameType: FrameMessage, Seq: 999}, largeBody); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	_, body, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(body, largeBody) {
		t.Errorf("large body mismatch")
	}
}

func TestUnmarshalDatagram(t *testing.T) {
	frame := Marshal(&Header{CodecType: CodecTypeJSON, FrameType: FrameMessage, Seq: 77}, []byte("{}"))
	h, body, err := Unmarshal(frame)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if h.Seq != 77 || string(body) != "{}" {
		t.Errorf("got seq=%d body=%q", h.Seq, body)
	}

	if _, _, err := Unmarshal(frame[:len(frame)-1]); !errors.Is(err, ErrTruncatedFrame) {
		t.Errorf("short datagram: got %v", err)
	}
	if _, _, err := Unmarshal(frame[:5]); !errors.Is(err, ErrTruncatedFrame) {
		t.Errorf("datagram shorter than header: got %v", err)
	}
}

func TestHelloBody(t *testing.T) {
	in := Hello{NodeID: 0xdeadbeef01, Flags: FlagExternal}
	out, err := UnmarshalHello(in.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalHello failed: %v", err)
	}
	if out != in || !out.External() {
		t.Errorf("got %+v, want %+v", out, in)
	}
	if _, err := UnmarshalHello([]byte{1, 2}); err == nil {
		t.Error("expected error for short hello body")
	}
}
