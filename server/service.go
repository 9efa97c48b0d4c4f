package server

import (
	"fmt"
	"sync/atomic"
	"time"

	"node-rpc/message"
	"node-rpc/middleware"
	"node-rpc/registry"

	"github.com/sirupsen/logrus"
)

// Destroyable is implemented by service implementations that need to release
// resources when their instance is destroyed.
type Destroyable interface {
	OnDestroy()
}

// Service is one hosted instance of a ServiceDescription, addressed by ID on its node.
// All inbound operations for the instance pass through its Fiber.
type Service struct {
	ID   uint64
	Desc *registry.ServiceDescription
	Impl any

	host        *Server
	fiber       *Fiber
	log         *logrus.Entry
	autoCreated bool
	lastActive  atomic.Int64 // unix nanos of the last scheduled operation
}

func newService(host *Server, desc *registry.ServiceDescription, id uint64, autoCreated bool) *Service {
	s := &Service{
		ID:          id,
		Desc:        desc,
		Impl:        desc.New(),
		host:        host,
		fiber:       NewFiber(),
		autoCreated: autoCreated,
		log:         host.log.WithFields(logrus.Fields{"service": desc.Name, "id": id}),
	}
	s.lastActive.Store(time.Now().UnixNano())
	return s
}

func (s *Service) String() string {
	return fmt.Sprintf("%s<Id:%d>", s.Desc.Name, s.ID)
}

func (s *Service) Log() *logrus.Entry { return s.log }
func (s *Service) Fiber() *Fiber      { return s.fiber }

// Process schedules the operation carried by octx on the instance's fiber under the
// lock type its message declares. It returns without waiting for the dispatch.
func (s *Service) Process(octx *OperationContext) {
	s.lastActive.Store(time.Now().UnixNano())
	s.host.wg.Add(1)
	s.fiber.Schedule(octx.Message.LockType(), func() {
		defer s.host.wg.Done()
		s.dispatchAndReply(octx)
	})
}

// dispatchAndReply runs one operation through the middleware chain and, for
// operations with a reply, sends the tagged reply back on the source channel.
// Failures are logged and produce no reply.
func (s *Service) dispatchAndReply(octx *OperationContext) {
	m := octx.Message
	log := s.log.WithField("msg", m.TypeID())
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("dispatch panicked")
		}
	}()

	op, ok := s.Desc.Contract.Operation(m.TypeID())
	if !ok {
		log.Warn("no operation for message on this contract")
		return
	}
	log = log.WithField("op", op.Name)

	var requestID int32
	if op.HasReply {
		hdr, err := message.GetOperationHeader(m)
		if err != nil {
			log.WithError(err).Warn("request without operation header")
			return
		}
		requestID = hdr.RequestID
		log = log.WithField("request", requestID)
	}

	call := &middleware.Call{
		Service:   s.Desc.Name,
		ServiceID: s.ID,
		Operation: op,
		RequestID: requestID,
		Request:   m,
		Impl:      s.Impl,
	}
	reply, err := s.host.handler(WithOperation(octx.Context, octx), call)
	if err != nil {
		log.WithError(err).Error("dispatch failed")
		return
	}
	if !op.HasReply {
		return
	}
	if reply == nil {
		log.Error("operation produced no reply")
		return
	}

	reply.AttachHeader(&message.OperationHeader{RequestID: requestID, Type: message.OpReply})
	if err := octx.Source.Send(reply); err != nil {
		log.WithError(err).Warn("reply not sent")
	}
}

func (s *Service) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastActive.Load()))
}
