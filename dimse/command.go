// Package dimse encodes DIMSE command sets, reassembles messages from
// presentation data values and dispatches requests received by an acceptor.
package dimse

import (
	"encoding/binary"
	"fmt"
	"strings"

	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/types"
)

// Command group elements (PS3.7 Annex E).
const (
	elemGroupLength               = 0x0000
	elemAffectedSOPClassUID       = 0x0002
	elemRequestedSOPClassUID      = 0x0003
	elemCommandField              = 0x0100
	elemMessageID                 = 0x0110
	elemMessageIDBeingRespondedTo = 0x0120
	elemPriority                  = 0x0700
	elemCommandDataSetType        = 0x0800
	elemStatus                    = 0x0900
	elemErrorComment              = 0x0902
	elemAffectedSOPInstanceUID    = 0x1000
	elemMoveOriginatorAETitle     = 0x1030
	elemMoveOriginatorMessageID   = 0x1031
)

// DataSetPresent is a CommandDataSetType value announcing a data set.
const DataSetPresent = 0x0000

// AppendImplicitElement appends a command group element using Implicit VR
// Little Endian (no VR field).
func AppendImplicitElement(buf []byte, group, element uint16, value []byte) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, group)
	buf = binary.LittleEndian.AppendUint16(buf, element)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)))
	return append(buf, value...)
}

func appendUID(buf []byte, element uint16, uid string) []byte {
	value := []byte(uid)
	if len(value)%2 == 1 {
		value = append(value, 0x00)
	}
	return AppendImplicitElement(buf, 0x0000, element, value)
}

func appendText(buf []byte, element uint16, text string) []byte {
	value := []byte(text)
	if len(value)%2 == 1 {
		value = append(value, ' ')
	}
	return AppendImplicitElement(buf, 0x0000, element, value)
}

func appendUS(buf []byte, element uint16, v uint16) []byte {
	return AppendImplicitElement(buf, 0x0000, element, binary.LittleEndian.AppendUint16(nil, v))
}

// hasPriority reports whether the request carries (0000,0700).
func hasPriority(command uint16) bool {
	switch command {
	case types.CStoreRQ, types.CFindRQ, types.CGetRQ, types.CMoveRQ:
		return true
	}
	return false
}

// EncodeCommand encodes a command set in Implicit VR Little Endian, in
// ascending tag order, preceded by its group length.
func EncodeCommand(msg *types.Message) ([]byte, error) {
	if msg.CommandField == 0 {
		return nil, fmt.Errorf("%w: command field not set", dicomerrors.ErrInvalidMessage)
	}
	response := types.IsResponse(msg.CommandField)

	var body []byte
	if msg.AffectedSOPClassUID != "" {
		body = appendUID(body, elemAffectedSOPClassUID, msg.AffectedSOPClassUID)
	}
	if msg.RequestedSOPClassUID != "" {
		body = appendUID(body, elemRequestedSOPClassUID, msg.RequestedSOPClassUID)
	}
	body = appendUS(body, elemCommandField, msg.CommandField)
	if !response && msg.CommandField != types.CCancelRQ {
		body = appendUS(body, elemMessageID, msg.MessageID)
	}
	if response || msg.CommandField == types.CCancelRQ {
		body = appendUS(body, elemMessageIDBeingRespondedTo, msg.MessageIDBeingRespondedTo)
	}
	if !response && hasPriority(msg.CommandField) {
		body = appendUS(body, elemPriority, msg.Priority)
	}
	body = appendUS(body, elemCommandDataSetType, msg.CommandDataSetType)
	if response {
		body = appendUS(body, elemStatus, msg.Status)
		if msg.ErrorComment != "" {
			comment := msg.ErrorComment
			if len(comment) > 64 {
				comment = comment[:64]
			}
			body = appendText(body, elemErrorComment, comment)
		}
	}
	if msg.AffectedSOPInstanceUID != "" {
		body = appendUID(body, elemAffectedSOPInstanceUID, msg.AffectedSOPInstanceUID)
	}
	if msg.MoveOriginatorAETitle != "" {
		body = appendText(body, elemMoveOriginatorAETitle, msg.MoveOriginatorAETitle)
		body = appendUS(body, elemMoveOriginatorMessageID, msg.MoveOriginatorMessageID)
	}

	out := make([]byte, 0, 12+len(body))
	out = AppendImplicitElement(out, 0x0000, elemGroupLength, binary.LittleEndian.AppendUint32(nil, uint32(len(body))))
	return append(out, body...), nil
}

func trimValue(value []byte) string {
	return strings.TrimRight(string(value), "\x00 ")
}

// DecodeCommand decodes a command set. Elements outside group 0000 and
// unknown command elements are skipped. A truncated element or a missing
// command field is an ErrInvalidMessage.
func DecodeCommand(data []byte) (*types.Message, error) {
	msg := &types.Message{CommandDataSetType: types.NoDataSet}
	haveCommand := false

	for offset := 0; offset < len(data); {
		if offset+8 > len(data) {
			return nil, fmt.Errorf("%w: truncated element header at offset %d", dicomerrors.ErrInvalidMessage, offset)
		}
		group := binary.LittleEndian.Uint16(data[offset:])
		element := binary.LittleEndian.Uint16(data[offset+2:])
		length := int(binary.LittleEndian.Uint32(data[offset+4:]))
		if length < 0 || offset+8+length > len(data) {
			return nil, fmt.Errorf("%w: element (%04x,%04x) length %d exceeds command set",
				dicomerrors.ErrInvalidMessage, group, element, length)
		}
		value := data[offset+8 : offset+8+length]
		offset += 8 + length

		if group != 0x0000 {
			continue
		}
		us := func() uint16 {
			if len(value) < 2 {
				return 0
			}
			return binary.LittleEndian.Uint16(value)
		}
		switch element {
		case elemAffectedSOPClassUID:
			msg.AffectedSOPClassUID = trimValue(value)
		case elemRequestedSOPClassUID:
			msg.RequestedSOPClassUID = trimValue(value)
		case elemCommandField:
			if len(value) != 2 {
				return nil, fmt.Errorf("%w: command field has length %d", dicomerrors.ErrInvalidMessage, len(value))
			}
			msg.CommandField = us()
			haveCommand = true
		case elemMessageID:
			msg.MessageID = us()
		case elemMessageIDBeingRespondedTo:
			msg.MessageIDBeingRespondedTo = us()
		case elemPriority:
			msg.Priority = us()
		case elemCommandDataSetType:
			msg.CommandDataSetType = us()
		case elemStatus:
			msg.Status = us()
		case elemErrorComment:
			msg.ErrorComment = trimValue(value)
		case elemAffectedSOPInstanceUID:
			msg.AffectedSOPInstanceUID = trimValue(value)
		case elemMoveOriginatorAETitle:
			msg.MoveOriginatorAETitle = trimValue(value)
		case elemMoveOriginatorMessageID:
			msg.MoveOriginatorMessageID = us()
		}
	}

	if !haveCommand {
		return nil, fmt.Errorf("%w: no command field", dicomerrors.ErrInvalidMessage)
	}
	return msg, nil
}
