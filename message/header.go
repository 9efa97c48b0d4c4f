package message

import (
	"fmt"

	"github.com/pkg/errors"
)

// HeaderKind is the one-byte tag written in front of every header payload.
type HeaderKind uint8

const (
	KindOperation HeaderKind = 1
	KindService   HeaderKind = 2
)

// Header is a small typed record attached to a message to carry routing and
// correlation metadata.
type Header interface {
	Kind() HeaderKind
	Encode(w *Writer)
	Decode(r *Reader)
}

var headerCtors = map[HeaderKind]func() Header{
	KindOperation: func() Header { return &OperationHeader{} },
	KindService:   func() Header { return &ServiceHeader{} },
}

// NewHeader returns an empty header for kind, ready for Decode.
func NewHeader(kind HeaderKind) (Header, error) {
	ctor, ok := headerCtors[kind]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownHeader, "kind %d", kind)
	}
	return ctor(), nil
}

// OperationType tells whether a message is a call or the reply to one.
type OperationType uint8

const (
	OpRequest OperationType = 0
	OpReply   OperationType = 1
)

func (t OperationType) String() string {
	if t == OpReply {
		return "Reply"
	}
	return "Request"
}

// OperationHeader correlates a request with its reply.
//
//	[RequestID i32 LE][Type u8]
type OperationHeader struct {
	RequestID int32
	Type      OperationType
}

func (*OperationHeader) Kind() HeaderKind { return KindOperation }

func (h *OperationHeader) Encode(w *Writer) {
	w.WriteInt32(h.RequestID)
	w.WriteUint8(uint8(h.Type))
}

func (h *OperationHeader) Decode(r *Reader) {
	h.RequestID = r.ReadInt32()
	h.Type = OperationType(r.ReadUint8())
}

func (h *OperationHeader) String() string {
	return fmt.Sprintf("Operation{%s #%d}", h.Type, h.RequestID)
}

// ServiceHeader addresses a request to a service instance on the receiving node.
//
//	[ServiceID u64 LE]
type ServiceHeader struct {
	ServiceID uint64
}

func (*ServiceHeader) Kind() HeaderKind { return KindService }

func (h *ServiceHeader) Encode(w *Writer) { w.WriteUint64(h.ServiceID) }

func (h *ServiceHeader) Decode(r *Reader) { h.ServiceID = r.ReadUint64() }

func (h *ServiceHeader) String() string {
	return fmt.Sprintf("Service{%d}", h.ServiceID)
}

// GetOperationHeader returns the OperationHeader attached to m.
func GetOperationHeader(m Message) (*OperationHeader, error) {
	h, ok := m.Header(KindOperation)
	if !ok {
		return nil, errors.Wrapf(ErrHeaderNotFound, "operation header on %T", m)
	}
	return h.(*OperationHeader), nil
}

// GetServiceHeader returns the ServiceHeader attached to m.
func GetServiceHeader(m Message) (*ServiceHeader, error) {
	h, ok := m.Header(KindService)
	if !ok {
		return nil, errors.Wrapf(ErrHeaderNotFound, "service header on %T", m)
	}
	return h.(*ServiceHeader), nil
}
