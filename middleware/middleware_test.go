package middleware

import (
	"context"
	"testing"
	"time"

	"node-rpc/message"
	"node-rpc/registry"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okReply struct{ message.Base }

func (*okReply) TypeID() uint32                      { return 1 }
func (*okReply) Priority() message.Priority          { return message.Medium }
func (*okReply) Reliability() message.Reliability    { return message.ReliableOrdered }
func (*okReply) LockType() message.LockType          { return message.LockFull }
func (m *okReply) Serialize(w *message.Writer) error { return m.Base.Serialize(w) }
func (m *okReply) Deserialize(r *message.Reader) error {
	return m.Base.Deserialize(r)
}

// a simple handler that answers immediately
func echoHandler(ctx context.Context, call *Call) (message.Message, error) {
	return &okReply{}, nil
}

// a slow handler: sleeps 200ms or until the context ends
func slowHandler(ctx context.Context, call *Call) (message.Message, error) {
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
	}
	return &okReply{}, nil
}

func newCall() *Call {
	return &Call{
		Service:   "Arith",
		ServiceID: 3,
		Operation: &registry.OperationDescription{Name: "Add", HasReply: true},
		RequestID: 9,
	}
}

func TestLogging(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	handler := LoggingMiddleware(logrus.NewEntry(logger))(echoHandler)

	reply, err := handler(context.Background(), newCall())
	require.NoError(t, err)
	require.NotNil(t, reply)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "dispatched", entry.Message)
	assert.Equal(t, "Add", entry.Data["op"])
	assert.Equal(t, int32(9), entry.Data["request"])
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)
	reply, err := handler(context.Background(), newCall())
	require.NoError(t, err)
	assert.NotNil(t, reply)
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	start := time.Now()
	reply, err := handler(context.Background(), newCall())
	assert.Nil(t, reply)
	assert.True(t, errors.Is(err, ErrTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 190*time.Millisecond, "handler saw the deadline")
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2: the first two pass, the third is rejected
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	for i := 0; i < 2; i++ {
		_, err := handler(context.Background(), newCall())
		require.NoError(t, err, "request %d", i)
	}
	_, err := handler(context.Background(), newCall())
	assert.True(t, errors.Is(err, ErrRateLimited), "got %v", err)
}

func TestRecover(t *testing.T) {
	handler := RecoverMiddleware()(func(context.Context, *Call) (message.Message, error) {
		panic("kaboom")
	})
	reply, err := handler(context.Background(), newCall())
	assert.Nil(t, reply)
	assert.True(t, errors.Is(err, ErrPanic))
	assert.Contains(t, err.Error(), "kaboom")
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, call *Call) (message.Message, error) {
				order = append(order, name+".before")
				r, err := next(ctx, call)
				order = append(order, name+".after")
				return r, err
			}
		}
	}
	handler := Chain(mark("A"), mark("B"))(echoHandler)
	_, err := handler(context.Background(), newCall())
	require.NoError(t, err)
	assert.Equal(t, []string{"A.before", "B.before", "B.after", "A.after"}, order)
}

func TestInvokeCallsDispatch(t *testing.T) {
	call := newCall()
	call.Impl = "impl"
	call.Operation.Dispatch = func(_ context.Context, impl any, _ message.Message) (message.Message, error) {
		assert.Equal(t, "impl", impl)
		return &okReply{}, nil
	}
	reply, err := Invoke(context.Background(), call)
	require.NoError(t, err)
	assert.NotNil(t, reply)
}
