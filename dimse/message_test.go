package dimse

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/pdu"
	"github.com/caio-sobreiro/dicomstore/types"
)

// fakeConn replays scripted P-DATA-TF contents and records what is sent.
type fakeConn struct {
	mu      sync.Mutex
	inbound [][]pdu.PDV
	endErr  error
	sent    []pdu.PDV
	params  *types.AssociationParameters
	aborted []byte
	states  []string
}

func (c *fakeConn) ReadPData(ctx context.Context) ([]pdu.PDV, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.inbound) == 0 {
		if c.endErr != nil {
			return nil, c.endErr
		}
		return nil, io.EOF
	}
	next := c.inbound[0]
	c.inbound = c.inbound[1:]
	return next, nil
}

func (c *fakeConn) SendPData(contextID byte, command bool, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, pdu.PDV{ContextID: contextID, Command: command, Last: true, Data: append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) Params() *types.AssociationParameters { return c.params }
func (c *fakeConn) StartProcessing()                     { c.states = append(c.states, "processing") }
func (c *fakeConn) FinishProcessing()                    { c.states = append(c.states, "ready") }

func (c *fakeConn) Abort(source, reason byte) error {
	c.aborted = []byte{source, reason}
	return nil
}

func commandPDV(t *testing.T, contextID byte, msg *types.Message) pdu.PDV {
	t.Helper()
	data, err := EncodeCommand(msg)
	require.NoError(t, err)
	return pdu.PDV{ContextID: contextID, Command: true, Last: true, Data: data}
}

func storeRQ(id uint16) *types.Message {
	return &types.Message{
		CommandField:           types.CStoreRQ,
		MessageID:              id,
		AffectedSOPClassUID:    types.CTImageStorage,
		AffectedSOPInstanceUID: "1.2.3",
		CommandDataSetType:     DataSetPresent,
	}
}

func TestReaderReassemblesFragments(t *testing.T) {
	cmd := commandPDV(t, 1, storeRQ(1))
	half := len(cmd.Data) / 2
	conn := &fakeConn{inbound: [][]pdu.PDV{
		{{ContextID: 1, Command: true, Data: cmd.Data[:half]}},
		{{ContextID: 1, Command: true, Last: true, Data: cmd.Data[half:]}, {ContextID: 1, Data: []byte{1, 2}}},
		{{ContextID: 1, Data: []byte{3}}},
		{{ContextID: 1, Last: true, Data: []byte{4, 5}}},
	}}

	msg, err := NewReader(conn).Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(1), msg.ContextID)
	assert.Equal(t, uint16(types.CStoreRQ), msg.Command.CommandField)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, msg.Data)
}

func TestReaderReturnsMessagesInOrder(t *testing.T) {
	echo := &types.Message{CommandField: types.CEchoRQ, MessageID: 1, CommandDataSetType: types.NoDataSet}
	conn := &fakeConn{inbound: [][]pdu.PDV{
		{commandPDV(t, 1, echo), commandPDV(t, 3, storeRQ(2)), {ContextID: 3, Last: true, Data: []byte{9}}},
	}}
	r := NewReader(conn)

	first, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(1), first.Command.MessageID)
	assert.Nil(t, first.Data)

	second, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(2), second.Command.MessageID)
	assert.Equal(t, byte(3), second.ContextID)
	assert.Equal(t, []byte{9}, second.Data)

	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderProtocolErrors(t *testing.T) {
	tests := []struct {
		name    string
		inbound [][]pdu.PDV
	}{
		{
			name:    "data before command",
			inbound: [][]pdu.PDV{{{ContextID: 1, Last: true, Data: []byte{1}}}},
		},
		{
			name:    "context changes mid message",
			inbound: [][]pdu.PDV{{{ContextID: 1, Command: true, Data: []byte{0}}, {ContextID: 3, Command: true, Last: true}}},
		},
		{
			name:    "undecodable command",
			inbound: [][]pdu.PDV{{{ContextID: 1, Command: true, Last: true, Data: []byte{1, 2, 3}}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(&fakeConn{inbound: tt.inbound}).Next(context.Background())
			var protoErr *dicomerrors.ProtocolError
			assert.ErrorAs(t, err, &protoErr)
		})
	}
}

func TestReaderSecondCommandWhileAwaitingData(t *testing.T) {
	conn := &fakeConn{inbound: [][]pdu.PDV{{commandPDV(t, 1, storeRQ(1)), commandPDV(t, 1, storeRQ(2))}}}
	_, err := NewReader(conn).Next(context.Background())
	var protoErr *dicomerrors.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, dicomerrors.AbortReasonUnexpectedParameter, protoErr.Reason)
}

func TestSendMessageSetsDataSetType(t *testing.T) {
	conn := &fakeConn{}
	msg := &types.Message{CommandField: types.CStoreRQ, MessageID: 4, CommandDataSetType: types.NoDataSet}
	require.NoError(t, SendMessage(conn, 5, msg, []byte{1, 2}))

	require.Len(t, conn.sent, 2)
	assert.True(t, conn.sent[0].Command)
	assert.Equal(t, byte(5), conn.sent[0].ContextID)
	assert.False(t, conn.sent[1].Command)
	assert.Equal(t, []byte{1, 2}, conn.sent[1].Data)

	decoded, err := DecodeCommand(conn.sent[0].Data)
	require.NoError(t, err)
	assert.True(t, decoded.HasDataSet())
	assert.Equal(t, uint16(types.NoDataSet), msg.CommandDataSetType, "caller's message is not modified")

	conn = &fakeConn{}
	require.NoError(t, SendMessage(conn, 1, &types.Message{CommandField: types.CEchoRSP, CommandDataSetType: DataSetPresent}, nil))
	require.Len(t, conn.sent, 1)
	decoded, err = DecodeCommand(conn.sent[0].Data)
	require.NoError(t, err)
	assert.False(t, decoded.HasDataSet())
}

// timeoutConn returns a response timeout after each scripted PDU.
type timeoutConn struct {
	fakeConn
	timedOut bool
}

func (c *timeoutConn) ReadPData(ctx context.Context) ([]pdu.PDV, error) {
	c.timedOut = !c.timedOut
	if c.timedOut {
		return nil, dicomerrors.NewResponseTimeoutError("10ms")
	}
	return c.fakeConn.ReadPData(ctx)
}

func TestReaderResumesAfterResponseTimeout(t *testing.T) {
	cmd := commandPDV(t, 1, storeRQ(7))
	half := len(cmd.Data) / 2
	conn := &timeoutConn{fakeConn: fakeConn{inbound: [][]pdu.PDV{
		{{ContextID: 1, Command: true, Data: cmd.Data[:half]}},
		{{ContextID: 1, Command: true, Last: true, Data: cmd.Data[half:]}},
		{{ContextID: 1, Last: true, Data: []byte{4, 2}}},
	}}}
	r := NewReader(conn)

	var msg *Message
	timeouts := 0
	for msg == nil {
		var err error
		msg, err = r.Next(context.Background())
		if err != nil {
			require.ErrorIs(t, err, dicomerrors.ErrResponseTimeout)
			timeouts++
			if timeouts > 1 {
				assert.True(t, r.InProgress())
			}
			require.Less(t, timeouts, 10)
		}
	}
	assert.Equal(t, 3, timeouts)
	assert.Equal(t, uint16(7), msg.Command.MessageID)
	assert.Equal(t, []byte{4, 2}, msg.Data)
	assert.False(t, r.InProgress())
}
