package client

import (
	"context"
	"testing"
	"time"

	"node-rpc/domain/testentity"
	"node-rpc/loadbalance"
	"node-rpc/node"
	"node-rpc/registry"
	"node-rpc/transport"
	"node-rpc/transport/mem"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNode(t *testing.T, network transport.Network, id uint64) *node.Node {
	t.Helper()
	reg, err := registry.NewBuilder().AddContract(testentity.Contract).AddService(testentity.Service).Build()
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	n, err := node.New(reg, network, node.Config{
		ID:        id,
		Transport: transport.Config{DialAttempts: 1, DialBackoff: time.Millisecond},
	}, logrus.NewEntry(logger))
	require.NoError(t, err)
	return n
}

// serve runs a listening node until the returned stop func is called.
func serve(t *testing.T, network transport.Network, id uint64, endpoint string) func() {
	t.Helper()
	n := newNode(t, network, id)
	require.NoError(t, n.Start(endpoint))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = n.Run(ctx, 5*time.Millisecond)
	}()
	stopped := false
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		<-done
		n.Stop()
	}
	t.Cleanup(stop)
	return stop
}

func TestSessionSkipsUnreachableServers(t *testing.T) {
	network := mem.New()
	stopB := serve(t, network, 10, "b")

	c := New(newNode(t, network, 1), &loadbalance.RoundRobinBalancer{}, []loadbalance.Endpoint{{Addr: "a"}, {Addr: "b"}})
	require.NoError(t, c.Start(5*time.Millisecond))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	session, err := c.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), session.RemoteNodeID())

	again, err := c.Session(ctx)
	require.NoError(t, err)
	assert.Same(t, session, again)

	v, err := node.GetProxy(session, 1, testentity.NewProxy).Simple(1).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)

	stopB()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.session == nil
	}, 3*time.Second, 5*time.Millisecond)
	_, err = c.Session(ctx)
	assert.ErrorIs(t, err, ErrNoServer)
}

func TestClosedClient(t *testing.T) {
	c := New(newNode(t, mem.New(), 1), &loadbalance.RoundRobinBalancer{}, nil)
	require.NoError(t, c.Start(time.Millisecond))
	c.Close()
	c.Close()
	_, err := c.Session(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
