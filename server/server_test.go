package server

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"node-rpc/future"
	"node-rpc/message"
	"node-rpc/middleware"
	"node-rpc/registry"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	callID  uint32 = 100
	replyID uint32 = 101
	fireID  uint32 = 102
)

type callMsg struct {
	message.Base
	N     int32
	Lock  message.LockType
	Panic bool
	Block bool          // wait for counter.gate
	Hold  time.Duration // stay active this long
}

func (*callMsg) TypeID() uint32                   { return callID }
func (*callMsg) Priority() message.Priority       { return message.Medium }
func (*callMsg) Reliability() message.Reliability { return message.ReliableOrdered }
func (m *callMsg) LockType() message.LockType     { return m.Lock }
func (m *callMsg) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	w.WriteInt32(m.N)
	return nil
}
func (m *callMsg) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.N = r.ReadInt32()
	return r.Err()
}

type replyMsg struct{ callMsg }

func (*replyMsg) TypeID() uint32 { return replyID }

type fireMsg struct{ callMsg }

func (*fireMsg) TypeID() uint32 { return fireID }

type counter struct {
	calls     atomic.Int32
	fired     chan int32
	destroyed atomic.Bool
	gate      chan struct{}

	mu        sync.Mutex
	active    int
	maxActive int
	order     []int32
}

func (c *counter) enter(n int32) {
	c.mu.Lock()
	c.active++
	c.maxActive = max(c.maxActive, c.active)
	c.order = append(c.order, n)
	c.mu.Unlock()
}

func (c *counter) exit() {
	c.mu.Lock()
	c.active--
	c.mu.Unlock()
}

func (c *counter) snapshot() (active, maxActive int, order []int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.maxActive, append([]int32(nil), c.order...)
}

func (c *counter) OnDestroy() { c.destroyed.Store(true) }

var testContract = &registry.ContractDescription{
	TypeID: 7,
	Name:   "test.ICounter",
	Operations: []*registry.OperationDescription{
		{
			Name: "Call", RequestID: callID, ReplyID: replyID, HasReply: true,
			NewRequest: func() message.Message { return &callMsg{} },
			NewReply:   func() message.Message { return &replyMsg{} },
			Dispatch: func(ctx context.Context, impl any, req message.Message) (message.Message, error) {
				c := impl.(*counter)
				m := req.(*callMsg)
				if m.Panic {
					panic("bad request")
				}
				if _, ok := FromContext(ctx); !ok {
					return nil, errors.New("operation context missing")
				}
				c.enter(m.N)
				defer c.exit()
				if m.Block {
					<-c.gate
				}
				time.Sleep(m.Hold)
				c.calls.Add(1)
				return &replyMsg{callMsg{N: m.N * 2}}, nil
			},
		},
		{
			Name: "Fire", RequestID: fireID,
			NewRequest: func() message.Message { return &fireMsg{} },
			Dispatch: func(ctx context.Context, impl any, req message.Message) (message.Message, error) {
				impl.(*counter).fired <- req.(*fireMsg).N
				return nil, nil
			},
		},
	},
}

type fakeChannel struct {
	external bool
	sent     chan message.Message
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{sent: make(chan message.Message, 64)}
}

func (c *fakeChannel) Send(m message.Message) error {
	c.sent <- m
	return nil
}

func (c *fakeChannel) External() bool       { return c.external }
func (c *fakeChannel) RemoteNodeID() uint64 { return 99 }
func (c *fakeChannel) ExecuteOperation(message.Message) *future.Future[message.Message] {
	return future.Failed[message.Message](errors.New("not connected"))
}
func (c *fakeChannel) ExecuteOneWayOperation(message.Message) error { return nil }

func (c *fakeChannel) next(t *testing.T) message.Message {
	t.Helper()
	select {
	case m := <-c.sent:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no reply sent")
		return nil
	}
}

func (c *fakeChannel) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case m := <-c.sent:
		t.Fatalf("unexpected reply %T", m)
	case <-time.After(d):
	}
}

func newHost(t *testing.T, autoCreate, persistent bool, external bool) (*Server, *test.Hook) {
	t.Helper()
	contract := *testContract
	contract.AllowExternalConnections = external
	desc := &registry.ServiceDescription{
		Name: "Counter", Contract: &contract, AutoCreate: autoCreate, Persistent: persistent,
		New: func() any { return &counter{fired: make(chan int32, 16), gate: make(chan struct{})} },
	}
	reg, err := registry.NewBuilder().AddContract(&contract).AddService(desc).Build()
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewServer(reg, logrus.NewEntry(logger), middleware.RecoverMiddleware()), hook
}

func request(serviceID uint64, requestID int32, n int32) *callMsg {
	return lockedRequest(serviceID, requestID, n, message.LockFull)
}

func lockedRequest(serviceID uint64, requestID int32, n int32, lock message.LockType) *callMsg {
	m := &callMsg{N: n, Lock: lock}
	m.AttachHeader(&message.ServiceHeader{ServiceID: serviceID})
	m.AttachHeader(&message.OperationHeader{RequestID: requestID, Type: message.OpRequest})
	return m
}

func octx(m message.Message, ch *fakeChannel) *OperationContext {
	return &OperationContext{Context: context.Background(), Message: m, Source: ch}
}

func TestRouteDispatchesAndReplies(t *testing.T) {
	svr, _ := newHost(t, true, false, false)
	ch := newFakeChannel()

	require.NoError(t, svr.Route(octx(request(5, 77, 21), ch)))
	reply := ch.next(t)

	r, ok := reply.(*replyMsg)
	require.True(t, ok)
	assert.Equal(t, int32(42), r.N)
	op, err := message.GetOperationHeader(reply)
	require.NoError(t, err)
	assert.Equal(t, int32(77), op.RequestID)
	assert.Equal(t, message.OpReply, op.Type)
	_, err = message.GetServiceHeader(reply)
	assert.True(t, errors.Is(err, message.ErrHeaderNotFound), "replies carry no service header")

	s, ok := svr.Service(5)
	require.True(t, ok, "instance auto-created")
	assert.Equal(t, "Counter<Id:5>", s.String())
}

func TestOneWaySendsNoReply(t *testing.T) {
	svr, _ := newHost(t, true, false, false)
	ch := newFakeChannel()
	m := &fireMsg{callMsg{N: 3, Lock: message.LockFull}}
	m.AttachHeader(&message.ServiceHeader{ServiceID: 1})

	require.NoError(t, svr.Route(octx(m, ch)))
	s, _ := svr.Service(1)
	select {
	case n := <-s.Impl.(*counter).fired:
		assert.Equal(t, int32(3), n)
	case <-time.After(2 * time.Second):
		t.Fatal("one-way not dispatched")
	}
	ch.none(t, 50*time.Millisecond)
}

func TestPanicIsContainedAndNoReply(t *testing.T) {
	svr, hook := newHost(t, true, false, false)
	ch := newFakeChannel()

	bad := request(1, 1, 0)
	bad.Panic = true
	require.NoError(t, svr.Route(octx(bad, ch)))
	ch.none(t, 50*time.Millisecond)

	require.NoError(t, svr.Route(octx(request(1, 2, 1), ch)))
	reply := ch.next(t)
	op, _ := message.GetOperationHeader(reply)
	assert.Equal(t, int32(2), op.RequestID, "service keeps working after a faulty dispatch")

	var sawError bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Message == "dispatch failed" {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestRouteErrors(t *testing.T) {
	svr, _ := newHost(t, false, false, false)
	ch := newFakeChannel()

	noHeader := &callMsg{Lock: message.LockFull}
	err := svr.Route(octx(noHeader, ch))
	assert.True(t, errors.Is(err, ErrUnroutable), "got %v", err)

	err = svr.Route(octx(request(404, 1, 1), ch))
	assert.True(t, errors.Is(err, ErrUnroutable), "not auto-created: got %v", err)

	stray := &replyMsg{}
	stray.AttachHeader(&message.ServiceHeader{ServiceID: 1})
	err = svr.Route(octx(stray, ch))
	assert.True(t, errors.Is(err, ErrUnknownOperation), "got %v", err)

	ch.none(t, 20*time.Millisecond)
	assert.Equal(t, 0, svr.Len())
}

func TestExternalPolicy(t *testing.T) {
	denied, _ := newHost(t, true, false, false)
	ext := newFakeChannel()
	ext.external = true
	err := denied.Route(octx(request(1, 1, 1), ext))
	assert.True(t, errors.Is(err, ErrExternalDenied))

	allowed, _ := newHost(t, true, false, true)
	require.NoError(t, allowed.Route(octx(request(1, 1, 1), ext)))
	ext.next(t)
}

func TestCreateAndDestroyService(t *testing.T) {
	svr, _ := newHost(t, false, false, false)
	desc, _ := svr.Registry().Service("Counter")

	s, err := svr.CreateService(desc, 10)
	require.NoError(t, err)
	_, err = svr.CreateService(desc, 10)
	assert.True(t, errors.Is(err, ErrServiceExists))

	ch := newFakeChannel()
	require.NoError(t, svr.Route(octx(request(10, 1, 1), ch)))
	ch.next(t)

	assert.True(t, svr.DestroyService(10))
	assert.False(t, svr.DestroyService(10))
	assert.True(t, s.Impl.(*counter).destroyed.Load())
}

func TestSweepDestroysIdleAutoCreated(t *testing.T) {
	svr, _ := newHost(t, true, false, false)
	desc, _ := svr.Registry().Service("Counter")
	_, err := svr.CreateService(desc, 1)
	require.NoError(t, err)

	ch := newFakeChannel()
	require.NoError(t, svr.Route(octx(request(2, 1, 1), ch)))
	ch.next(t)

	assert.Equal(t, 0, svr.Sweep(time.Now(), time.Hour), "too recent")
	assert.Equal(t, 1, svr.Sweep(time.Now().Add(2*time.Hour), time.Hour))
	_, ok := svr.Service(2)
	assert.False(t, ok)
	_, ok = svr.Service(1)
	assert.True(t, ok, "explicitly created instances are kept")
}

func TestSweepKeepsPersistent(t *testing.T) {
	svr, _ := newHost(t, true, true, false)
	ch := newFakeChannel()
	require.NoError(t, svr.Route(octx(request(2, 1, 1), ch)))
	ch.next(t)
	assert.Equal(t, 0, svr.Sweep(time.Now().Add(2*time.Hour), time.Hour))
}

func TestConcurrentInboundFullCallsAreSerialized(t *testing.T) {
	svr, _ := newHost(t, true, false, false)
	ch := newFakeChannel()
	const n = 40

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := request(3, int32(i), int32(i))
			m.Hold = 200 * time.Microsecond
			assert.NoError(t, svr.Route(octx(m, ch)))
		}(i)
	}
	wg.Wait()

	seen := make(map[int32]bool)
	for i := 0; i < n; i++ {
		op, err := message.GetOperationHeader(ch.next(t))
		require.NoError(t, err)
		assert.False(t, seen[op.RequestID], "reply %d sent twice", op.RequestID)
		seen[op.RequestID] = true
	}
	s, _ := svr.Service(3)
	c := s.Impl.(*counter)
	assert.Equal(t, int32(n), c.calls.Load())
	_, maxActive, _ := c.snapshot()
	assert.Equal(t, 1, maxActive, "Full calls never overlap")
}

func TestFullCallsRunInArrivalOrder(t *testing.T) {
	svr, _ := newHost(t, true, false, false)
	ch := newFakeChannel()
	const n = 20

	for i := 0; i < n; i++ {
		m := request(4, int32(i), int32(i))
		m.Hold = 200 * time.Microsecond
		require.NoError(t, svr.Route(octx(m, ch)))
	}
	want := make([]int32, n)
	for i := range want {
		op, err := message.GetOperationHeader(ch.next(t))
		require.NoError(t, err)
		assert.Equal(t, int32(i), op.RequestID)
		want[i] = int32(i)
	}
	s, _ := svr.Service(4)
	_, maxActive, order := s.Impl.(*counter).snapshot()
	assert.Equal(t, want, order)
	assert.Equal(t, 1, maxActive)
}

func TestPartialCallsShareAndFullWaits(t *testing.T) {
	svr, _ := newHost(t, true, false, false)
	ch := newFakeChannel()

	for i, lock := range []message.LockType{message.LockPartial, message.LockPartial, message.LockFull, message.LockPartial} {
		m := lockedRequest(5, int32(i), int32(i), lock)
		m.Block = lock == message.LockPartial
		require.NoError(t, svr.Route(octx(m, ch)))
	}
	s, _ := svr.Service(5)
	c := s.Impl.(*counter)

	require.Eventually(t, func() bool {
		active, _, _ := c.snapshot()
		return active == 2
	}, 2*time.Second, time.Millisecond, "both leading Partial calls run together")
	ch.none(t, 20*time.Millisecond)
	_, _, order := c.snapshot()
	assert.Len(t, order, 2, "Full waits behind running Partial calls, later Partial waits behind Full")

	close(c.gate)
	for i := 0; i < 4; i++ {
		ch.next(t)
	}
	_, maxActive, order := c.snapshot()
	assert.Equal(t, 2, maxActive)
	assert.ElementsMatch(t, []int32{0, 1}, order[:2])
	assert.Equal(t, []int32{2, 3}, order[2:])
}

func TestNoneCallsBypassTheLane(t *testing.T) {
	svr, _ := newHost(t, true, false, false)
	ch := newFakeChannel()

	blocked := request(6, 1, 1)
	blocked.Block = true
	require.NoError(t, svr.Route(octx(blocked, ch)))
	require.NoError(t, svr.Route(octx(lockedRequest(6, 2, 2, message.LockNone), ch)))

	op, err := message.GetOperationHeader(ch.next(t))
	require.NoError(t, err)
	assert.Equal(t, int32(2), op.RequestID, "LockNone is not held up by a running Full call")

	s, _ := svr.Service(6)
	close(s.Impl.(*counter).gate)
	op, err = message.GetOperationHeader(ch.next(t))
	require.NoError(t, err)
	assert.Equal(t, int32(1), op.RequestID)
}

func TestShutdownWaitsForInFlight(t *testing.T) {
	svr, _ := newHost(t, true, false, false)
	ch := newFakeChannel()
	require.NoError(t, svr.Route(octx(request(1, 1, 1), ch)))

	require.NoError(t, svr.Shutdown(2*time.Second))
	ch.next(t)
	err := svr.Route(octx(request(1, 2, 1), ch))
	assert.True(t, errors.Is(err, ErrShuttingDown))
	assert.Equal(t, 0, svr.Len())
}
