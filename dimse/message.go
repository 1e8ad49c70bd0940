package dimse

import (
	"context"
	"fmt"

	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/pdu"
	"github.com/caio-sobreiro/dicomstore/types"
)

// Conn carries presentation data values over an established association.
// *pdu.Layer implements it.
type Conn interface {
	ReadPData(ctx context.Context) ([]pdu.PDV, error)
	SendPData(contextID byte, command bool, data []byte) error
}

// Message is a complete DIMSE message: its command set and, when the command
// announces one, the data set bytes in the context's transfer syntax.
type Message struct {
	ContextID byte
	Command   *types.Message
	Data      []byte
}

// Reader reassembles messages from the PDVs of one association. Messages
// are returned strictly in the order they arrive. A message interrupted by
// a response timeout is resumed by the next call to Next.
type Reader struct {
	conn    Conn
	pending []pdu.PDV

	msg         *Message
	command     []byte
	data        []byte
	commandDone bool
}

// NewReader returns a reader over conn.
func NewReader(conn Conn) *Reader {
	return &Reader{conn: conn}
}

func (r *Reader) next(ctx context.Context) (pdu.PDV, error) {
	for len(r.pending) == 0 {
		pdvs, err := r.conn.ReadPData(ctx)
		if err != nil {
			return pdu.PDV{}, err
		}
		r.pending = pdvs
	}
	v := r.pending[0]
	r.pending = r.pending[1:]
	return v, nil
}

// InProgress reports whether part of a message has been read.
func (r *Reader) InProgress() bool {
	return r.msg != nil
}

func (r *Reader) reset() {
	r.msg = nil
	r.command = nil
	r.data = nil
	r.commandDone = false
}

// Next returns the next complete message. Fragments of a different
// presentation context, data before the command is complete or a second
// command while a data set is awaited are *errors.ProtocolError.
func (r *Reader) Next(ctx context.Context) (*Message, error) {
	for {
		v, err := r.next(ctx)
		if err != nil {
			return nil, err
		}
		msg, err := r.add(v)
		if err != nil {
			r.reset()
			return nil, err
		}
		if msg != nil {
			r.reset()
			return msg, nil
		}
	}
}

// add appends one fragment and returns the message it completes, if any.
func (r *Reader) add(v pdu.PDV) (*Message, error) {
	if r.msg == nil {
		r.msg = &Message{ContextID: v.ContextID}
	} else if v.ContextID != r.msg.ContextID {
		return nil, dicomerrors.NewProtocolError(dicomerrors.AbortReasonUnexpectedParameter,
			"fragment for presentation context %d while assembling a message on context %d", v.ContextID, r.msg.ContextID)
	}

	if v.Command {
		if r.commandDone {
			return nil, dicomerrors.NewProtocolError(dicomerrors.AbortReasonUnexpectedParameter,
				"command fragment while waiting for the data set of %s", types.CommandName(r.msg.Command.CommandField))
		}
		r.command = append(r.command, v.Data...)
		if !v.Last {
			return nil, nil
		}
		cmd, err := DecodeCommand(r.command)
		if err != nil {
			return nil, dicomerrors.NewProtocolError(dicomerrors.AbortReasonInvalidParameterValue, "%v", err)
		}
		r.msg.Command = cmd
		r.commandDone = true
		if !cmd.HasDataSet() {
			return r.msg, nil
		}
		return nil, nil
	}

	if !r.commandDone {
		return nil, dicomerrors.NewProtocolError(dicomerrors.AbortReasonUnexpectedParameter,
			"data set fragment on context %d before its command", v.ContextID)
	}
	r.data = append(r.data, v.Data...)
	if !v.Last {
		return nil, nil
	}
	if r.data == nil {
		r.data = []byte{}
	}
	r.msg.Data = r.data
	return r.msg, nil
}

// SendMessage sends cmd, followed by data when it is non-nil, on contextID.
// CommandDataSetType is set from the presence of data.
func SendMessage(conn Conn, contextID byte, cmd *types.Message, data []byte) error {
	c := *cmd
	if data == nil {
		c.CommandDataSetType = types.NoDataSet
	} else if c.CommandDataSetType == types.NoDataSet {
		c.CommandDataSetType = DataSetPresent
	}
	encoded, err := EncodeCommand(&c)
	if err != nil {
		return err
	}
	if err := conn.SendPData(contextID, true, encoded); err != nil {
		return fmt.Errorf("send %s command: %w", types.CommandName(c.CommandField), err)
	}
	if data == nil {
		return nil
	}
	if err := conn.SendPData(contextID, false, data); err != nil {
		return fmt.Errorf("send %s data set: %w", types.CommandName(c.CommandField), err)
	}
	return nil
}
