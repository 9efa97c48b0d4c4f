package message

import "github.com/pkg/errors"

// Factory maps type ids to constructors of empty messages. It is filled once at startup
// (normally by registry.Builder) and read concurrently afterwards without locking.
type Factory struct {
	ctors map[uint32]func() Message
}

func NewFactory() *Factory {
	return &Factory{ctors: make(map[uint32]func() Message)}
}

// Register binds id to ctor. The constructor must produce messages reporting the same id.
func (f *Factory) Register(id uint32, ctor func() Message) error {
	if _, ok := f.ctors[id]; ok {
		return errors.Wrapf(ErrDuplicateType, "type id %d", id)
	}
	if got := ctor().TypeID(); got != id {
		return errors.Wrapf(ErrTypeMismatch, "registered %d, constructor reports %d", id, got)
	}
	f.ctors[id] = ctor
	return nil
}

// New returns an empty message for id.
func (f *Factory) New(id uint32) (Message, error) {
	ctor, ok := f.ctors[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownType, "type id %d", id)
	}
	return ctor(), nil
}

func (f *Factory) Has(id uint32) bool {
	_, ok := f.ctors[id]
	return ok
}

func (f *Factory) Len() int { return len(f.ctors) }
