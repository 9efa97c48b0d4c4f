package registry

import (
	"reflect"

	"node-rpc/message"

	"github.com/pkg/errors"
)

var (
	ErrContractCollision = errors.New("registry: contract type id collision")
	ErrDuplicateContract = errors.New("registry: duplicate contract name")
	ErrMessageCollision  = errors.New("registry: message id collision")
	ErrInvalidContract   = errors.New("registry: invalid contract")
	ErrInvalidOperation  = errors.New("registry: invalid operation")
	ErrUnknownContract   = errors.New("registry: service names an unregistered contract")
	ErrDuplicateService  = errors.New("registry: duplicate service name")
	ErrInvalidService    = errors.New("registry: invalid service")
)

// Builder collects descriptions for Build. It is not safe for concurrent use.
type Builder struct {
	contracts []*ContractDescription
	services  []*ServiceDescription
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) AddContract(cs ...*ContractDescription) *Builder {
	b.contracts = append(b.contracts, cs...)
	return b
}

func (b *Builder) AddService(ss ...*ServiceDescription) *Builder {
	b.services = append(b.services, ss...)
	return b
}

// Build validates everything collected and freezes it. Contracts declared with
// TypeID 0 are indexed under TypeID(Name); the descriptions themselves are not
// modified. Any inconsistency fails the whole build.
func (b *Builder) Build() (*Registry, error) {
	r := &Registry{
		byID:           make(map[uint32]*ContractDescription),
		byName:         make(map[string]*ContractDescription),
		byRequest:      make(map[uint32]opRef),
		servicesByName: make(map[string]*ServiceDescription),
		byContract:     make(map[uint32]*ServiceDescription),
		factory:        message.NewFactory(),
	}
	layouts := make(map[uint32]reflect.Type)

	for _, c := range b.contracts {
		if c == nil || c.Name == "" {
			return nil, errors.Wrap(ErrInvalidContract, "contract without a name")
		}
		id := c.ID()
		if prev, ok := r.byID[id]; ok {
			if prev == c {
				continue
			}
			return nil, errors.Wrapf(ErrContractCollision, "%s and %s share id %d", prev.Name, c.Name, id)
		}
		if _, ok := r.byName[c.Name]; ok {
			return nil, errors.Wrapf(ErrDuplicateContract, "%s", c.Name)
		}
		for _, op := range c.Operations {
			if err := r.addOperation(c, op, layouts); err != nil {
				return nil, err
			}
		}
		r.byID[id] = c
		r.byName[c.Name] = c
		r.contracts = append(r.contracts, c)
	}

	for _, s := range b.services {
		if s == nil || s.Name == "" || s.New == nil {
			return nil, errors.Wrap(ErrInvalidService, "service needs a name and a constructor")
		}
		if s.Contract == nil || r.byID[s.Contract.ID()] != s.Contract {
			return nil, errors.Wrapf(ErrUnknownContract, "service %s", s.Name)
		}
		if _, ok := r.servicesByName[s.Name]; ok {
			return nil, errors.Wrapf(ErrDuplicateService, "%s", s.Name)
		}
		r.servicesByName[s.Name] = s
		if _, ok := r.byContract[s.Contract.ID()]; !ok {
			r.byContract[s.Contract.ID()] = s
		}
		r.services = append(r.services, s)
	}
	return r, nil
}

func (r *Registry) addOperation(c *ContractDescription, op *OperationDescription, layouts map[uint32]reflect.Type) error {
	if op == nil || op.Dispatch == nil || op.NewRequest == nil {
		return errors.Wrapf(ErrInvalidOperation, "%s: operation needs a request and a dispatch func", c.Name)
	}
	if op.HasReply && op.NewReply == nil {
		return errors.Wrapf(ErrInvalidOperation, "%s.%s: reply constructor missing", c.Name, op.Name)
	}

	if err := r.addLayout(c, op, op.RequestID, op.NewRequest, layouts); err != nil {
		return err
	}
	if prev, ok := r.byRequest[op.RequestID]; ok {
		return errors.Wrapf(ErrMessageCollision, "request id %d used by %s.%s and %s.%s",
			op.RequestID, prev.contract.Name, prev.op.Name, c.Name, op.Name)
	}
	r.byRequest[op.RequestID] = opRef{contract: c, op: op}

	if op.HasReply {
		if err := r.addLayout(c, op, op.ReplyID, op.NewReply, layouts); err != nil {
			return err
		}
	}
	return nil
}

// addLayout registers ctor under id. The same Go type may be registered under the
// same id more than once; a different type under a taken id is a collision.
func (r *Registry) addLayout(c *ContractDescription, op *OperationDescription, id uint32, ctor func() message.Message, layouts map[uint32]reflect.Type) error {
	sample := ctor()
	if sample.TypeID() != id {
		return errors.Wrapf(ErrInvalidOperation, "%s.%s: declared id %d, message reports %d",
			c.Name, op.Name, id, sample.TypeID())
	}
	typ := reflect.TypeOf(sample)
	if prev, ok := layouts[id]; ok {
		if prev != typ {
			return errors.Wrapf(ErrMessageCollision, "id %d maps to %v and %v", id, prev, typ)
		}
		return nil
	}
	layouts[id] = typ
	return r.factory.Register(id, ctor)
}
