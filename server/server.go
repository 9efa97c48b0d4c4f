// Package server hosts service instances on a node and dispatches inbound operations
// to them.
//
// Request processing pipeline:
//
//	node pump → Server.Route(octx)
//	  → ServiceHeader → instance (auto-created when the service allows it)
//	    → Service.Process → Fiber admission under the message lock type
//	      → Middleware Chain → Operation.Dispatch → reply tagged OperationHeader(id, Reply)
//	        → octx.Source.Send
//
// Route never blocks: admission and dispatch happen on fiber goroutines.
package server

import (
	"sync"
	"sync/atomic"
	"time"

	"node-rpc/message"
	"node-rpc/middleware"
	"node-rpc/registry"

	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnroutable       = errors.New("server: no service to route to")
	ErrUnknownOperation = errors.New("server: unknown operation")
	ErrExternalDenied   = errors.New("server: contract refuses external connections")
	ErrServiceExists    = errors.New("server: service id already hosted")
	ErrShuttingDown     = errors.New("server: shutting down")
	ErrShutdownTimeout  = errors.New("server: timeout waiting for in-flight dispatches")
)

// Server is the service host of one node.
type Server struct {
	reg     *registry.Registry
	log     *logrus.Entry
	handler middleware.HandlerFunc // Chain(middlewares...)(middleware.Invoke), built once

	mu       deadlock.RWMutex
	services map[uint64]*Service

	wg       sync.WaitGroup // in-flight dispatches
	shutdown atomic.Bool
}

// NewServer creates an empty host. Middlewares are applied in the order given.
func NewServer(reg *registry.Registry, log *logrus.Entry, middlewares ...middleware.Middleware) *Server {
	return &Server{
		reg:      reg,
		log:      log,
		handler:  middleware.Chain(middlewares...)(middleware.Invoke),
		services: make(map[uint64]*Service),
	}
}

func (svr *Server) Registry() *registry.Registry { return svr.reg }

// CreateService hosts a new instance of desc under id.
func (svr *Server) CreateService(desc *registry.ServiceDescription, id uint64) (*Service, error) {
	if svr.shutdown.Load() {
		return nil, errors.WithStack(ErrShuttingDown)
	}
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if existing, ok := svr.services[id]; ok {
		return nil, errors.Wrapf(ErrServiceExists, "%s", existing)
	}
	s := newService(svr, desc, id, false)
	svr.services[id] = s
	s.log.Info("service created")
	return s, nil
}

// DestroyService removes the instance hosted under id. Already admitted dispatches
// run to completion.
func (svr *Server) DestroyService(id uint64) bool {
	svr.mu.Lock()
	s, ok := svr.services[id]
	delete(svr.services, id)
	svr.mu.Unlock()
	if !ok {
		return false
	}
	svr.destroyed(s)
	return true
}

func (svr *Server) destroyed(s *Service) {
	if d, ok := s.Impl.(Destroyable); ok {
		d.OnDestroy()
	}
	s.log.Info("service destroyed")
}

func (svr *Server) Service(id uint64) (*Service, bool) {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	s, ok := svr.services[id]
	return s, ok
}

func (svr *Server) Len() int {
	svr.mu.RLock()
	defer svr.mu.RUnlock()
	return len(svr.services)
}

// Route hands an inbound request to the instance named by its ServiceHeader. It
// returns an error when the message cannot be routed; such messages get no reply.
func (svr *Server) Route(octx *OperationContext) error {
	if svr.shutdown.Load() {
		return errors.WithStack(ErrShuttingDown)
	}
	m := octx.Message
	hdr, err := message.GetServiceHeader(m)
	if err != nil {
		return errors.Wrap(ErrUnroutable, err.Error())
	}

	contract, _, ok := svr.reg.Operation(m.TypeID())
	if !ok {
		return errors.Wrapf(ErrUnknownOperation, "message %d", m.TypeID())
	}
	if octx.Source != nil && octx.Source.External() && !contract.AllowExternalConnections {
		return errors.Wrapf(ErrExternalDenied, "%s", contract.Name)
	}

	s, err := svr.instanceFor(contract, hdr.ServiceID)
	if err != nil {
		return err
	}
	if s.Desc.Contract != contract {
		return errors.Wrapf(ErrUnknownOperation, "%s does not implement %s", s, contract.Name)
	}
	s.Process(octx)
	return nil
}

func (svr *Server) instanceFor(contract *registry.ContractDescription, id uint64) (*Service, error) {
	svr.mu.RLock()
	s, ok := svr.services[id]
	svr.mu.RUnlock()
	if ok {
		return s, nil
	}

	desc, ok := svr.reg.ServiceForContract(contract.ID())
	if !ok || !desc.AutoCreate {
		return nil, errors.Wrapf(ErrUnroutable, "no %s instance with id %d", contract.Name, id)
	}

	svr.mu.Lock()
	defer svr.mu.Unlock()
	if s, ok := svr.services[id]; ok {
		return s, nil
	}
	s = newService(svr, desc, id, true)
	svr.services[id] = s
	s.log.Debug("service auto-created")
	return s, nil
}

// Sweep destroys auto-created, non-persistent instances whose fiber is idle and that
// have not been addressed for longer than idle. It returns how many were destroyed.
func (svr *Server) Sweep(now time.Time, idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	var victims []*Service
	svr.mu.Lock()
	for id, s := range svr.services {
		if !s.autoCreated || s.Desc.Persistent {
			continue
		}
		if s.idleSince(now) < idle || !s.fiber.Idle() {
			continue
		}
		delete(svr.services, id)
		victims = append(victims, s)
	}
	svr.mu.Unlock()

	for _, s := range victims {
		svr.destroyed(s)
	}
	return len(victims)
}

// Shutdown stops routing and waits up to timeout for in-flight dispatches. Hosted
// instances are destroyed afterwards.
func (svr *Server) Shutdown(timeout time.Duration) error {
	if !svr.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = errors.Wrapf(ErrShutdownTimeout, "after %s", timeout)
	}

	svr.mu.Lock()
	services := svr.services
	svr.services = make(map[uint64]*Service)
	svr.mu.Unlock()
	for _, s := range services {
		svr.destroyed(s)
	}
	return err
}
