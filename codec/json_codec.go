package codec

import (
	"encoding/json"

	"node-rpc/message"

	"github.com/pkg/errors"
)

// JSONCodec encodes a message as a readable envelope. It is meant for debugging a
// live conversation between nodes; the binary codec remains the default.
//
//	{"type": 2019756658, "headers": [{"kind": 1, "request_id": 3}], "body": {...}}
type JSONCodec struct {
	factory *message.Factory
}

type jsonHeader struct {
	Kind      message.HeaderKind    `json:"kind"`
	RequestID int32                 `json:"request_id,omitempty"`
	Op        message.OperationType `json:"op,omitempty"`
	ServiceID uint64                `json:"service_id,omitempty"`
}

type jsonEnvelope struct {
	Type    uint32          `json:"type"`
	Headers []jsonHeader    `json:"headers,omitempty"`
	Body    json.RawMessage `json:"body"`
}

func (c *JSONCodec) Encode(m message.Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %T", m)
	}
	env := jsonEnvelope{Type: m.TypeID(), Body: body}
	for _, h := range m.Headers() {
		jh := jsonHeader{Kind: h.Kind()}
		switch h := h.(type) {
		case *message.OperationHeader:
			jh.RequestID, jh.Op = h.RequestID, h.Type
		case *message.ServiceHeader:
			jh.ServiceID = h.ServiceID
		}
		env.Headers = append(env.Headers, jh)
	}
	return json.Marshal(env)
}

func (c *JSONCodec) Decode(data []byte) (message.Message, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	m, err := c.factory.New(env.Type)
	if err != nil {
		return nil, errors.Wrapf(ErrUnknownMessage, "type id %d", env.Type)
	}
	if len(env.Body) > 0 {
		if err := json.Unmarshal(env.Body, m); err != nil {
			return nil, errors.Wrapf(ErrMalformed, "type id %d: %v", env.Type, err)
		}
	}
	for _, jh := range env.Headers {
		switch jh.Kind {
		case message.KindOperation:
			m.AttachHeader(&message.OperationHeader{RequestID: jh.RequestID, Type: jh.Op})
		case message.KindService:
			m.AttachHeader(&message.ServiceHeader{ServiceID: jh.ServiceID})
		default:
			return nil, errors.Wrapf(message.ErrUnknownHeader, "kind %d", jh.Kind)
		}
	}
	return m, nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
