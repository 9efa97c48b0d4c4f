// Package message defines the typed binary records exchanged between nodes.
//
// A Message is the "envelope" for every RPC call and every reply. Each concrete
// message type has a numeric type id that is stable across processes; the id alone
// decides which Go type is used to read the payload, so it is looked up in a Factory
// before any Deserialize call happens.
//
// Wire layout produced by the binary codec:
//
//	┌──────────┬──────────────┬───────────────────────┬──────────────────────┐
//	│ type_id  │ header_count │ header...             │ payload fields ...   │
//	│ u32 (LE) │ uvarint      │ [kind u8][payload]    │ in Serialize order   │
//	└──────────┴──────────────┴───────────────────────┴──────────────────────┘
//
// Concrete messages embed Base, which owns the header list. Their Serialize must call
// Base.Serialize before writing their own fields, and Deserialize must mirror it.
package message

// Reliability is the delivery class a message asks the transport for.
type Reliability byte

const (
	Unreliable      Reliability = 0 // May be dropped or duplicated, no ordering
	Reliable        Reliability = 1 // Delivered once, any order
	ReliableOrdered Reliability = 2 // Delivered once, in send order per peer
)

func (r Reliability) String() string {
	switch r {
	case Unreliable:
		return "Unreliable"
	case Reliable:
		return "Reliable"
	case ReliableOrdered:
		return "ReliableOrdered"
	default:
		return "Reliability(?)"
	}
}

// Priority is the send priority class of a message.
type Priority byte

const (
	Low    Priority = 0
	Medium Priority = 1
	High   Priority = 2
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "Low"
	case Medium:
		return "Medium"
	case High:
		return "High"
	default:
		return "Priority(?)"
	}
}

// LockType is the concurrency class an inbound call declares relative to other calls
// on the same service instance.
//
//   - LockNone:    runs immediately, may interleave with anything.
//   - LockPartial: may run together with other Partial calls, never with a Full one.
//   - LockFull:    runs alone, in arrival order.
type LockType byte

const (
	LockNone    LockType = 0
	LockPartial LockType = 1
	LockFull    LockType = 2
)

func (l LockType) String() string {
	switch l {
	case LockNone:
		return "None"
	case LockPartial:
		return "Partial"
	case LockFull:
		return "Full"
	default:
		return "LockType(?)"
	}
}

// Message is a typed, self-describing binary record with attachable headers.
type Message interface {
	// TypeID uniquely determines the wire layout of the payload.
	TypeID() uint32
	Priority() Priority
	Reliability() Reliability
	LockType() LockType

	// AttachHeader appends h, replacing any header of the same kind.
	AttachHeader(h Header)
	// Header returns the attached header of the given kind.
	Header(kind HeaderKind) (Header, bool)
	// Headers returns the attached headers in attach order.
	Headers() []Header

	Serialize(w *Writer) error
	Deserialize(r *Reader) error
}

// Base implements header bookkeeping for concrete messages. Embed it by value.
type Base struct {
	headers []Header
}

func (b *Base) AttachHeader(h Header) {
	for i, existing := range b.headers {
		if existing.Kind() == h.Kind() {
			b.headers[i] = h
			return
		}
	}
	b.headers = append(b.headers, h)
}

func (b *Base) Header(kind HeaderKind) (Header, bool) {
	for _, h := range b.headers {
		if h.Kind() == kind {
			return h, true
		}
	}
	return nil, false
}

func (b *Base) Headers() []Header {
	return b.headers
}

// maxHeaders bounds header_count on read so a corrupt count cannot allocate unbounded memory.
const maxHeaders = 32

// Serialize writes the header block. Concrete messages call it before their own fields.
func (b *Base) Serialize(w *Writer) error {
	w.WriteUvarint(uint64(len(b.headers)))
	for _, h := range b.headers {
		w.WriteUint8(uint8(h.Kind()))
		h.Encode(w)
	}
	return w.Err()
}

// Deserialize reads the header block written by Serialize.
func (b *Base) Deserialize(r *Reader) error {
	n := r.ReadUvarint()
	if err := r.Err(); err != nil {
		return err
	}
	if n > maxHeaders {
		return r.fail(ErrTooManyHeaders)
	}
	b.headers = b.headers[:0]
	for i := uint64(0); i < n; i++ {
		kind := HeaderKind(r.ReadUint8())
		if err := r.Err(); err != nil {
			return err
		}
		h, err := NewHeader(kind)
		if err != nil {
			return r.fail(err)
		}
		h.Decode(r)
		if err := r.Err(); err != nil {
			return err
		}
		b.headers = append(b.headers, h)
	}
	return nil
}
