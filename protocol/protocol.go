// Package protocol implements the frame protocol spoken between two nodes.
//
// Stream links are byte streams, so every frame starts with a fixed-size 14-byte
// header followed by a variable-length body. The receiver reads the header first to
// learn the body length, then reads exactly that many bytes. Datagram links carry
// exactly one frame per datagram with the same layout.
//
// Frame format:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│ft│   seq   │ bodyLen │    body ...    │
//	│ prn  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
//
// A session opens with Hello (dialer) and HelloAck (listener), both carrying the
// sender's node id and flags. Message frames carry one codec-encoded message each.
// Heartbeat frames have no body. Goodbye announces an orderly close.
package protocol

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Magic bytes: "prn" (peer rpc node).
const (
	MagicNumber byte = 0x70 // 'p'
	MagicByte2  byte = 0x72 // 'r'
	MagicByte3  byte = 0x6e // 'n'
	Version     byte = 0x01
	HeaderSize  int  = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (frameType) + 4 (seq) + 4 (bodyLen)

	// MaxBodyLen bounds a single frame so a corrupt length cannot exhaust memory.
	MaxBodyLen uint32 = 16 << 20
)

// FrameType distinguishes session control frames from message frames.
type FrameType byte

const (
	FrameHello     FrameType = 0 // Dialer → listener, opens the session
	FrameHelloAck  FrameType = 1 // Listener → dialer, accepts the session
	FrameMessage   FrameType = 2 // One encoded message
	FrameHeartbeat FrameType = 3 // KeepAlive probe (no body)
	FrameGoodbye   FrameType = 4 // Orderly close (no body)
)

func (t FrameType) String() string {
	switch t {
	case FrameHello:
		return "Hello"
	case FrameHelloAck:
		return "HelloAck"
	case FrameMessage:
		return "Message"
	case FrameHeartbeat:
		return "Heartbeat"
	case FrameGoodbye:
		return "Goodbye"
	default:
		return "Unknown"
	}
}

// Codec type constants, mirrored from codec package to avoid circular import.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

var (
	ErrBadMagic       = errors.New("protocol: invalid magic number")
	ErrBadVersion     = errors.New("protocol: unsupported version")
	ErrBadCodec       = errors.New("protocol: unsupported codec type")
	ErrBadFrameType   = errors.New("protocol: unsupported frame type")
	ErrBodyTooLarge   = errors.New("protocol: body exceeds limit")
	ErrTruncatedFrame = errors.New("protocol: truncated frame")
)

// Header represents the fixed 14-byte frame header.
type Header struct {
	CodecType byte      // Body format of Message frames: 0=JSON, 1=Binary
	FrameType FrameType // Hello, HelloAck, Message, Heartbeat or Goodbye
	Seq       uint32    // Per-sender sequence number; datagram receivers dedup on it
	BodyLen   uint32    // Body length in bytes
}

func putHeader(buf []byte, h *Header, bodyLen int) {
	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.FrameType)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], uint32(bodyLen))
}

func parseHeader(buf []byte) (*Header, error) {
	if buf[0] != MagicNumber || buf[1] != MagicByte2 || buf[2] != MagicByte3 {
		return nil, errors.Wrapf(ErrBadMagic, "%x", buf[0:3])
	}
	if buf[3] != Version {
		return nil, errors.Wrapf(ErrBadVersion, "%d", buf[3])
	}
	if buf[4] != CodecTypeJSON && buf[4] != CodecTypeBinary {
		return nil, errors.Wrapf(ErrBadCodec, "%d", buf[4])
	}
	if buf[5] > byte(FrameGoodbye) {
		return nil, errors.Wrapf(ErrBadFrameType, "%d", buf[5])
	}
	h := &Header{
		CodecType: buf[4],
		FrameType: FrameType(buf[5]),
		Seq:       binary.BigEndian.Uint32(buf[6:10]),
		BodyLen:   binary.BigEndian.Uint32(buf[10:14]),
	}
	if h.BodyLen > MaxBodyLen {
		return nil, errors.Wrapf(ErrBodyTooLarge, "%d bytes", h.BodyLen)
	}
	return h, nil
}

// Encode writes a complete frame (header + body) to w in a single Write call.
// BodyLen is taken from len(body). Callers sharing w across goroutines must
// serialize calls.
func Encode(w io.Writer, h *Header, body []byte) error {
	_, err := w.Write(Marshal(h, body))
	return err
}

// Marshal returns header and body as one frame, the form sent as a datagram.
func Marshal(h *Header, body []byte) []byte {
	buf := make([]byte, HeaderSize+len(body))
	putHeader(buf, h, len(body))
	copy(buf[HeaderSize:], body)
	return buf
}

// Decode reads a complete frame (header + body) from r.
// It validates magic number, version, codec type, frame type and body length.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}
	h, err := parseHeader(headerBuf)
	if err != nil {
		return nil, nil, err
	}
	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}
	return h, body, nil
}

// Unmarshal parses one frame from a datagram. The datagram must hold exactly one frame.
func Unmarshal(datagram []byte) (*Header, []byte, error) {
	if len(datagram) < HeaderSize {
		return nil, nil, errors.Wrapf(ErrTruncatedFrame, "%d bytes", len(datagram))
	}
	h, err := parseHeader(datagram[:HeaderSize])
	if err != nil {
		return nil, nil, err
	}
	if int(h.BodyLen) != len(datagram)-HeaderSize {
		return nil, nil, errors.Wrapf(ErrTruncatedFrame, "body %d of %d bytes", len(datagram)-HeaderSize, h.BodyLen)
	}
	return h, datagram[HeaderSize:], nil
}

// FlagExternal marks a Hello sender as an external client rather than a cluster node.
const FlagExternal byte = 1 << 0

// Hello is the body of Hello and HelloAck frames.
//
//	[node id u64 BE][flags u8]
type Hello struct {
	NodeID uint64
	Flags  byte
}

func (h Hello) External() bool { return h.Flags&FlagExternal != 0 }

func (h Hello) Marshal() []byte {
	buf := make([]byte, 9)
	binary.BigEndian.PutUint64(buf[0:8], h.NodeID)
	buf[8] = h.Flags
	return buf
}

func UnmarshalHello(body []byte) (Hello, error) {
	if len(body) != 9 {
		return Hello{}, errors.Wrapf(ErrTruncatedFrame, "hello body of %d bytes", len(body))
	}
	return Hello{NodeID: binary.BigEndian.Uint64(body[0:8]), Flags: body[8]}, nil
}
