package codec

import (
	"node-rpc/message"

	"github.com/pkg/errors"
)

// BinaryCodec writes the compact wire format:
//
//	[type_id u32 LE][header_count uvarint][headers...][payload fields]
type BinaryCodec struct {
	factory *message.Factory
}

func (c *BinaryCodec) Encode(m message.Message) ([]byte, error) {
	w := message.NewWriter(64)
	w.WriteUint32(m.TypeID())
	if err := m.Serialize(w); err != nil {
		return nil, errors.Wrapf(err, "serialize %T", m)
	}
	return w.Bytes(), nil
}

func (c *BinaryCodec) Decode(data []byte) (message.Message, error) {
	r := message.NewReader(data)
	typeID := r.ReadUint32()
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	// Pick the concrete type before touching the payload
	m, err := c.factory.New(typeID)
	if err != nil {
		return nil, errors.Wrapf(ErrUnknownMessage, "type id %d", typeID)
	}
	if err := m.Deserialize(r); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "type id %d: %v", typeID, err)
	}
	if r.Remaining() != 0 {
		return nil, errors.Wrapf(ErrTrailingBytes, "type id %d: %d bytes", typeID, r.Remaining())
	}
	return m, nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}
