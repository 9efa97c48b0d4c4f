package proxy

import (
	"testing"

	"node-rpc/future"
	"node-rpc/message"
	"node-rpc/registry"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct{ message.Base }

func (*ping) TypeID() uint32                      { return 10 }
func (*ping) Priority() message.Priority          { return message.Medium }
func (*ping) Reliability() message.Reliability    { return message.ReliableOrdered }
func (*ping) LockType() message.LockType          { return message.LockFull }
func (m *ping) Serialize(w *message.Writer) error { return m.Base.Serialize(w) }
func (m *ping) Deserialize(r *message.Reader) error {
	return m.Base.Deserialize(r)
}

type pong struct{ ping }

func (*pong) TypeID() uint32 { return 11 }

type recordingTarget struct {
	sent   []message.Message
	oneWay []message.Message
	reply  *future.Future[message.Message]
}

func (t *recordingTarget) ExecuteOperation(req message.Message) *future.Future[message.Message] {
	t.sent = append(t.sent, req)
	return t.reply
}

func (t *recordingTarget) ExecuteOneWayOperation(req message.Message) error {
	t.oneWay = append(t.oneWay, req)
	return nil
}

var contract = &registry.ContractDescription{TypeID: 1, Name: "test.IPing"}

func TestExecuteAttachesServiceHeader(t *testing.T) {
	target := &recordingTarget{reply: future.New[message.Message]()}
	var p ServiceProxy
	p.Init(42, contract, target)

	f := p.ExecuteServiceOperation(&ping{})
	require.Len(t, target.sent, 1)
	svc, err := message.GetServiceHeader(target.sent[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(42), svc.ServiceID)
	assert.Same(t, target.reply, f)

	require.NoError(t, p.ExecuteOneWayServiceOperation(&ping{}))
	require.Len(t, target.oneWay, 1)
	_, err = message.GetOperationHeader(target.oneWay[0])
	assert.True(t, errors.Is(err, message.ErrHeaderNotFound), "proxy never allocates request ids")

	assert.Equal(t, uint64(42), p.ServiceID())
	assert.Same(t, contract, p.Contract())
}

func TestUninitializedProxy(t *testing.T) {
	var p ServiceProxy
	_, err := p.ExecuteServiceOperation(&ping{}).Result()
	assert.True(t, errors.Is(err, ErrNotInitialized))
	assert.True(t, errors.Is(p.ExecuteOneWayServiceOperation(&ping{}), ErrNotInitialized))
}

func TestReplyNarrowsType(t *testing.T) {
	f := future.New[message.Message]()
	typed := Reply[*pong](f)
	f.Complete(&pong{})
	r, err := typed.Result()
	require.NoError(t, err)
	assert.Equal(t, uint32(11), r.TypeID())

	g := future.New[message.Message]()
	wrong := Reply[*pong](g)
	g.Complete(&ping{})
	_, err = wrong.Result()
	assert.True(t, errors.Is(err, ErrUnexpectedReply))
}
