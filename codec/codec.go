// Package codec turns messages into frame bodies and back.
//
// Both codecs are driven by a message.Factory: the type id is read first, an empty
// message of that type is constructed, and only then is the payload decoded into it.
// A frame carries the codec type it was encoded with, so peers may choose different
// codecs and still understand each other.
package codec

import (
	"node-rpc/message"

	"github.com/pkg/errors"
)

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// ParseType maps a config name ("binary", "json") to a CodecType.
func ParseType(name string) (CodecType, error) {
	switch name {
	case "binary", "":
		return CodecTypeBinary, nil
	case "json":
		return CodecTypeJSON, nil
	default:
		return 0, errors.Wrapf(ErrUnknownCodec, "%q", name)
	}
}

var (
	ErrUnknownMessage = errors.New("codec: unknown message type id")
	ErrUnknownCodec   = errors.New("codec: unknown codec type")
	ErrTrailingBytes  = errors.New("codec: trailing bytes after payload")
	ErrMalformed      = errors.New("codec: malformed body")
)

type Codec interface {
	Encode(m message.Message) ([]byte, error)
	Decode(data []byte) (message.Message, error)
	Type() CodecType // 0=JSON, 1=Binary
}

// GetCodec returns the codec for codecType backed by factory.
func GetCodec(codecType CodecType, factory *message.Factory) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{factory: factory}
	}

	return &BinaryCodec{factory: factory}
}

// Set holds one codec per CodecType and decodes bodies by the codec byte of their frame.
type Set struct {
	binary *BinaryCodec
	json   *JSONCodec
}

func NewSet(factory *message.Factory) *Set {
	return &Set{
		binary: &BinaryCodec{factory: factory},
		json:   &JSONCodec{factory: factory},
	}
}

func (s *Set) Get(t CodecType) (Codec, error) {
	switch t {
	case CodecTypeBinary:
		return s.binary, nil
	case CodecTypeJSON:
		return s.json, nil
	default:
		return nil, errors.Wrapf(ErrUnknownCodec, "type %d", t)
	}
}

func (s *Set) Decode(t CodecType, data []byte) (message.Message, error) {
	c, err := s.Get(t)
	if err != nil {
		return nil, err
	}
	return c.Decode(data)
}
