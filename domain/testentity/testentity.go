// Package testentity is a small contract used to exercise the runtime end to end:
// a request with a scalar reply, a one-way call, and a call whose arguments and
// reply nest lists of recursive structs.
package testentity

import (
	"context"
	"sync/atomic"

	"node-rpc/future"
	"node-rpc/message"
	"node-rpc/proxy"
	"node-rpc/registry"

	"github.com/pkg/errors"
)

const contractName = "TestDomain.ITestEntity"

// Ids are derived from the fully-qualified names.
var (
	ContractID = registry.TypeID(contractName)

	SimpleRequestID       = registry.TypeID(contractName + "SimpleRequest")
	SimpleReplyID         = registry.TypeID(contractName + "SimpleReply")
	SimpleOneWayRequestID = registry.TypeID(contractName + "SimpleOneWayRequest")
	ComplexRequestID      = registry.TypeID(contractName + "ComplexRequest")
	ComplexReplyID        = registry.TypeID(contractName + "ComplexReply")
)

type ComplexData struct {
	SomeInt       int32          `json:"some_int"`
	SomeULong     uint64         `json:"some_ulong"`
	SomeString    string         `json:"some_string"`
	SomeArrString []string       `json:"some_arr_string"`
	SomeArrRec    []*ComplexData `json:"some_arr_rec"`
}

func writeComplexData(w *message.Writer, x *ComplexData) {
	w.WriteInt32(x.SomeInt)
	w.WriteUint64(x.SomeULong)
	w.WriteString(x.SomeString)
	message.WriteList(w, x.SomeArrString, func(w *message.Writer, s string) { w.WriteString(s) })
	message.WriteList(w, x.SomeArrRec, writeComplexElem)
}

func readComplexData(r *message.Reader, x *ComplexData) {
	x.SomeInt = r.ReadInt32()
	x.SomeULong = r.ReadUint64()
	x.SomeString = r.ReadString()
	x.SomeArrString = message.ReadList(r, func(r *message.Reader) string { return r.ReadString() })
	x.SomeArrRec = message.ReadList(r, readComplexElem)
}

func writeComplexElem(w *message.Writer, x *ComplexData) { message.WriteOptional(w, x, writeComplexData) }
func readComplexElem(r *message.Reader) *ComplexData     { return message.ReadOptional(r, readComplexData) }

type SimpleRequest struct {
	message.Base
	RequestID int32 `json:"request_id"`
}

func (*SimpleRequest) TypeID() uint32                   { return SimpleRequestID }
func (*SimpleRequest) Priority() message.Priority       { return message.Medium }
func (*SimpleRequest) Reliability() message.Reliability { return message.ReliableOrdered }
func (*SimpleRequest) LockType() message.LockType       { return message.LockFull }

func (m *SimpleRequest) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	w.WriteInt32(m.RequestID)
	return w.Err()
}

func (m *SimpleRequest) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.RequestID = r.ReadInt32()
	return r.Err()
}

type SimpleReply struct {
	message.Base
	RetVal int32 `json:"ret_val"`
}

func (*SimpleReply) TypeID() uint32                   { return SimpleReplyID }
func (*SimpleReply) Priority() message.Priority       { return message.Medium }
func (*SimpleReply) Reliability() message.Reliability { return message.ReliableOrdered }
func (*SimpleReply) LockType() message.LockType       { return message.LockFull }

func (m *SimpleReply) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	w.WriteInt32(m.RetVal)
	return w.Err()
}

func (m *SimpleReply) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.RetVal = r.ReadInt32()
	return r.Err()
}

// SimpleOneWayRequest may be lost on links with a datagram path.
type SimpleOneWayRequest struct {
	message.Base
}

func (*SimpleOneWayRequest) TypeID() uint32                   { return SimpleOneWayRequestID }
func (*SimpleOneWayRequest) Priority() message.Priority       { return message.Medium }
func (*SimpleOneWayRequest) Reliability() message.Reliability { return message.Unreliable }
func (*SimpleOneWayRequest) LockType() message.LockType       { return message.LockFull }

func (m *SimpleOneWayRequest) Serialize(w *message.Writer) error   { return m.Base.Serialize(w) }
func (m *SimpleOneWayRequest) Deserialize(r *message.Reader) error { return m.Base.Deserialize(r) }

type ComplexRequest struct {
	message.Base
	RequestID int32          `json:"request_id"`
	Data      *ComplexData   `json:"data"`
	Name      string         `json:"name"`
	Datas     []*ComplexData `json:"datas"`
}

func (*ComplexRequest) TypeID() uint32                   { return ComplexRequestID }
func (*ComplexRequest) Priority() message.Priority       { return message.High }
func (*ComplexRequest) Reliability() message.Reliability { return message.ReliableOrdered }
func (*ComplexRequest) LockType() message.LockType       { return message.LockFull }

func (m *ComplexRequest) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	w.WriteInt32(m.RequestID)
	message.WriteOptional(w, m.Data, writeComplexData)
	w.WriteString(m.Name)
	message.WriteList(w, m.Datas, writeComplexElem)
	return w.Err()
}

func (m *ComplexRequest) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.RequestID = r.ReadInt32()
	m.Data = message.ReadOptional(r, readComplexData)
	m.Name = r.ReadString()
	m.Datas = message.ReadList(r, readComplexElem)
	return r.Err()
}

type ComplexReply struct {
	message.Base
	RetVal *ComplexData `json:"ret_val"`
}

func (*ComplexReply) TypeID() uint32                   { return ComplexReplyID }
func (*ComplexReply) Priority() message.Priority       { return message.High }
func (*ComplexReply) Reliability() message.Reliability { return message.ReliableOrdered }
func (*ComplexReply) LockType() message.LockType       { return message.LockFull }

func (m *ComplexReply) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	message.WriteOptional(w, m.RetVal, writeComplexData)
	return w.Err()
}

func (m *ComplexReply) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.RetVal = message.ReadOptional(r, readComplexData)
	return r.Err()
}

// ITestEntity is the server side of the contract.
type ITestEntity interface {
	Simple(ctx context.Context, requestID int32) (int32, error)
	SimpleOneWay(ctx context.Context) error
	Complex(ctx context.Context, requestID int32, data *ComplexData, name string, datas []*ComplexData) (*ComplexData, error)
}

var ErrWrongImplementation = errors.New("testentity: service does not implement ITestEntity")

func entity(impl any) (ITestEntity, error) {
	e, ok := impl.(ITestEntity)
	if !ok {
		return nil, errors.Wrapf(ErrWrongImplementation, "%T", impl)
	}
	return e, nil
}

var Contract = &registry.ContractDescription{
	TypeID: ContractID,
	Name:   contractName,
	Operations: []*registry.OperationDescription{
		{
			Name:       "Simple",
			RequestID:  SimpleRequestID,
			ReplyID:    SimpleReplyID,
			HasReply:   true,
			NewRequest: func() message.Message { return &SimpleRequest{} },
			NewReply:   func() message.Message { return &SimpleReply{} },
			Dispatch: func(ctx context.Context, impl any, input message.Message) (message.Message, error) {
				e, err := entity(impl)
				if err != nil {
					return nil, err
				}
				retVal, err := e.Simple(ctx, input.(*SimpleRequest).RequestID)
				if err != nil {
					return nil, err
				}
				return &SimpleReply{RetVal: retVal}, nil
			},
		},
		{
			Name:       "SimpleOneWay",
			RequestID:  SimpleOneWayRequestID,
			NewRequest: func() message.Message { return &SimpleOneWayRequest{} },
			Dispatch: func(ctx context.Context, impl any, input message.Message) (message.Message, error) {
				e, err := entity(impl)
				if err != nil {
					return nil, err
				}
				return nil, e.SimpleOneWay(ctx)
			},
		},
		{
			Name:       "Complex",
			RequestID:  ComplexRequestID,
			ReplyID:    ComplexReplyID,
			HasReply:   true,
			NewRequest: func() message.Message { return &ComplexRequest{} },
			NewReply:   func() message.Message { return &ComplexReply{} },
			Dispatch: func(ctx context.Context, impl any, input message.Message) (message.Message, error) {
				e, err := entity(impl)
				if err != nil {
					return nil, err
				}
				msg := input.(*ComplexRequest)
				retVal, err := e.Complex(ctx, msg.RequestID, msg.Data, msg.Name, msg.Datas)
				if err != nil {
					return nil, err
				}
				return &ComplexReply{RetVal: retVal}, nil
			},
		},
	},
}

type Proxy struct {
	proxy.ServiceProxy
}

func NewProxy(target proxy.Target, serviceID uint64) *Proxy {
	p := &Proxy{}
	p.Init(serviceID, Contract, target)
	return p
}

func (p *Proxy) Simple(requestID int32) *future.Future[int32] {
	reply := proxy.Reply[*SimpleReply](p.ExecuteServiceOperation(&SimpleRequest{RequestID: requestID}))
	return future.Map(reply, func(r *SimpleReply) (int32, error) { return r.RetVal, nil })
}

func (p *Proxy) SimpleOneWay() error {
	return p.ExecuteOneWayServiceOperation(&SimpleOneWayRequest{})
}

func (p *Proxy) Complex(requestID int32, data *ComplexData, name string, datas []*ComplexData) *future.Future[*ComplexData] {
	request := &ComplexRequest{RequestID: requestID, Data: data, Name: name, Datas: datas}
	reply := proxy.Reply[*ComplexReply](p.ExecuteServiceOperation(request))
	return future.Map(reply, func(r *ComplexReply) (*ComplexData, error) { return r.RetVal, nil })
}

// TestEntity is the reference implementation of ITestEntity.
type TestEntity struct {
	counter atomic.Int32
}

func (e *TestEntity) Simple(context.Context, int32) (int32, error) { return 42, nil }

func (e *TestEntity) SimpleOneWay(context.Context) error {
	e.counter.Add(1)
	return nil
}

func (e *TestEntity) Complex(_ context.Context, requestID int32, _ *ComplexData, name string, datas []*ComplexData) (*ComplexData, error) {
	return &ComplexData{
		SomeInt:       requestID,
		SomeString:    name,
		SomeArrString: []string{"Test1", "Test2"},
		SomeArrRec:    datas,
	}, nil
}

// OneWayCalls reports how many SimpleOneWay calls were dispatched.
func (e *TestEntity) OneWayCalls() int32 { return e.counter.Load() }

// Service hosts TestEntity, created on first use.
var Service = &registry.ServiceDescription{
	Name:       "TestEntity",
	Contract:   Contract,
	AutoCreate: true,
	New:        func() any { return &TestEntity{} },
}
