package codec

import (
	"testing"

	"node-rpc/message"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoMsg struct {
	message.Base
	Text  string
	Lines []string
}

func (*echoMsg) TypeID() uint32                   { return 500 }
func (*echoMsg) Priority() message.Priority       { return message.Medium }
func (*echoMsg) Reliability() message.Reliability { return message.ReliableOrdered }
func (*echoMsg) LockType() message.LockType       { return message.LockFull }

func (m *echoMsg) Serialize(w *message.Writer) error {
	if err := m.Base.Serialize(w); err != nil {
		return err
	}
	w.WriteString(m.Text)
	message.WriteList(w, m.Lines, (*message.Writer).WriteString)
	return w.Err()
}

func (m *echoMsg) Deserialize(r *message.Reader) error {
	if err := m.Base.Deserialize(r); err != nil {
		return err
	}
	m.Text = r.ReadString()
	m.Lines = message.ReadList(r, (*message.Reader).ReadString)
	return r.Err()
}

func newFactory(t *testing.T) *message.Factory {
	f := message.NewFactory()
	require.NoError(t, f.Register(500, func() message.Message { return &echoMsg{} }))
	return f
}

func sample() *echoMsg {
	m := &echoMsg{Text: "ping", Lines: []string{}}
	m.AttachHeader(&message.OperationHeader{RequestID: 7, Type: message.OpRequest})
	m.AttachHeader(&message.ServiceHeader{ServiceID: 12})
	return m
}

func TestCodecsRoundTrip(t *testing.T) {
	f := newFactory(t)
	for _, ct := range []CodecType{CodecTypeBinary, CodecTypeJSON} {
		t.Run(ct.String(), func(t *testing.T) {
			c := GetCodec(ct, f)
			require.Equal(t, ct, c.Type())

			data, err := c.Encode(sample())
			require.NoError(t, err)

			decoded, err := c.Decode(data)
			require.NoError(t, err)
			got, ok := decoded.(*echoMsg)
			require.True(t, ok, "decoded %T", decoded)
			assert.Equal(t, "ping", got.Text)
			require.NotNil(t, got.Lines)
			assert.Len(t, got.Lines, 0)

			op, err := message.GetOperationHeader(got)
			require.NoError(t, err)
			assert.Equal(t, int32(7), op.RequestID)
			svc, err := message.GetServiceHeader(got)
			require.NoError(t, err)
			assert.Equal(t, uint64(12), svc.ServiceID)
		})
	}
}

func TestBinaryLayoutStartsWithTypeID(t *testing.T) {
	data, err := GetCodec(CodecTypeBinary, newFactory(t)).Encode(&echoMsg{Text: "x"})
	require.NoError(t, err)
	// 500 little endian, then zero headers
	assert.Equal(t, []byte{0xf4, 0x01, 0x00, 0x00, 0x00}, data[:5])
}

func TestUnknownTypeID(t *testing.T) {
	c := GetCodec(CodecTypeBinary, newFactory(t))
	_, err := c.Decode([]byte{1, 0, 0, 0, 0})
	assert.True(t, errors.Is(err, ErrUnknownMessage))

	j := GetCodec(CodecTypeJSON, newFactory(t))
	_, err = j.Decode([]byte(`{"type":1,"body":{}}`))
	assert.True(t, errors.Is(err, ErrUnknownMessage))
}

func TestMalformedAndTrailing(t *testing.T) {
	c := GetCodec(CodecTypeBinary, newFactory(t))
	_, err := c.Decode([]byte{0xf4})
	assert.True(t, errors.Is(err, ErrMalformed))

	data, err := c.Encode(&echoMsg{Text: "x"})
	require.NoError(t, err)
	_, err = c.Decode(append(data, 0xff))
	assert.True(t, errors.Is(err, ErrTrailingBytes))
}

func TestSetDispatchesByType(t *testing.T) {
	s := NewSet(newFactory(t))
	data, err := GetCodec(CodecTypeJSON, newFactory(t)).Encode(sample())
	require.NoError(t, err)

	m, err := s.Decode(CodecTypeJSON, data)
	require.NoError(t, err)
	assert.Equal(t, uint32(500), m.TypeID())

	_, err = s.Decode(CodecType(9), data)
	assert.True(t, errors.Is(err, ErrUnknownCodec))
}

func TestParseType(t *testing.T) {
	ct, err := ParseType("json")
	require.NoError(t, err)
	assert.Equal(t, CodecTypeJSON, ct)

	ct, err = ParseType("")
	require.NoError(t, err)
	assert.Equal(t, CodecTypeBinary, ct)

	_, err = ParseType("xml")
	assert.Error(t, err)
}
