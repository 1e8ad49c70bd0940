// Package pdu implements the DICOM upper layer: PDU encoding and the
// association state machine shared by requestor and acceptor.
package pdu

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/types"
)

// Item types of A-ASSOCIATE variable fields (PS3.8 Section 9.3.2).
const (
	itemApplicationContext    = 0x10
	itemPresentationContextRQ = 0x20
	itemPresentationContextAC = 0x21
	itemAbstractSyntax        = 0x30
	itemTransferSyntax        = 0x40
	itemUserInformation       = 0x50
	itemMaxLength             = 0x51
	itemImplementationClass   = 0x52
	itemImplementationVersion = 0x55
)

const (
	headerLength       = 6
	associateFixedPart = 68
	protocolVersion    = 0x0001

	// maxReadLength bounds a single incoming PDU regardless of what the peer claims.
	maxReadLength = 64 << 20
)

// PDU is one protocol data unit: its type and the bytes after the 6-byte header.
type PDU struct {
	Type byte
	Data []byte
}

// ReadPDU reads one complete PDU from r.
func ReadPDU(r io.Reader) (*PDU, error) {
	header := make([]byte, headerLength)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	return readBody(r, header)
}

func readBody(r io.Reader, header []byte) (*PDU, error) {
	length := binary.BigEndian.Uint32(header[2:6])
	if length > maxReadLength {
		return nil, dicomerrors.NewProtocolError(dicomerrors.AbortReasonInvalidParameterValue,
			"PDU type 0x%02x claims %d bytes", header[0], length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read PDU body: %w", err)
	}
	return &PDU{Type: header[0], Data: data}, nil
}

// Bytes returns the PDU with its header.
func (p *PDU) Bytes() []byte {
	out := make([]byte, headerLength, headerLength+len(p.Data))
	out[0] = p.Type
	binary.BigEndian.PutUint32(out[2:6], uint32(len(p.Data)))
	return append(out, p.Data...)
}

// WritePDU writes a PDU in one call.
func WritePDU(w io.Writer, p *PDU) error {
	_, err := w.Write(p.Bytes())
	return err
}

// TypeName returns the service primitive name of a PDU type.
func TypeName(pduType byte) string {
	switch pduType {
	case types.TypeAssociateRQ:
		return "A-ASSOCIATE-RQ"
	case types.TypeAssociateAC:
		return "A-ASSOCIATE-AC"
	case types.TypeAssociateRJ:
		return "A-ASSOCIATE-RJ"
	case types.TypePDataTF:
		return "P-DATA-TF"
	case types.TypeReleaseRQ:
		return "A-RELEASE-RQ"
	case types.TypeReleaseRP:
		return "A-RELEASE-RP"
	case types.TypeAbort:
		return "A-ABORT"
	default:
		return fmt.Sprintf("PDU 0x%02x", pduType)
	}
}

func isKnownType(pduType byte) bool {
	return pduType >= types.TypeAssociateRQ && pduType <= types.TypeAbort
}

// Associate is the body of an A-ASSOCIATE-RQ or -AC PDU, which share one layout.
type Associate struct {
	CalledAETitle             string
	CallingAETitle            string
	ApplicationContext        string
	PresentationContexts      []*types.PresentationContext
	MaxPDULength              uint32
	ImplementationClassUID    string
	ImplementationVersionName string
}

func appendItem(buf []byte, itemType byte, value []byte) []byte {
	buf = append(buf, itemType, 0x00)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(value)))
	return append(buf, value...)
}

func aeTitleField(title string) []byte {
	field := []byte(fmt.Sprintf("%-16s", title))
	return field[:16]
}

// Encode returns the A-ASSOCIATE-RQ (pduType 0x01) or -AC (0x02) PDU.
func (a *Associate) Encode(pduType byte) *PDU {
	buf := make([]byte, associateFixedPart)
	binary.BigEndian.PutUint16(buf[0:2], protocolVersion)
	copy(buf[4:20], aeTitleField(a.CalledAETitle))
	copy(buf[20:36], aeTitleField(a.CallingAETitle))

	appContext := a.ApplicationContext
	if appContext == "" {
		appContext = types.ApplicationContextUID
	}
	buf = appendItem(buf, itemApplicationContext, []byte(appContext))

	for _, pc := range a.PresentationContexts {
		if pduType == types.TypeAssociateRQ {
			var sub []byte
			sub = appendItem(sub, itemAbstractSyntax, []byte(pc.AbstractSyntax))
			for _, ts := range pc.ProposedTransferSyntaxes {
				sub = appendItem(sub, itemTransferSyntax, []byte(ts))
			}
			buf = appendItem(buf, itemPresentationContextRQ, append([]byte{pc.ID, 0, 0, 0}, sub...))
			continue
		}
		var sub []byte
		if pc.Result == types.ResultAcceptance && pc.TransferSyntax != "" {
			sub = appendItem(sub, itemTransferSyntax, []byte(pc.TransferSyntax))
		}
		buf = appendItem(buf, itemPresentationContextAC, append([]byte{pc.ID, 0, pc.Result, 0}, sub...))
	}

	var user []byte
	user = appendItem(user, itemMaxLength, binary.BigEndian.AppendUint32(nil, a.MaxPDULength))
	if a.ImplementationClassUID != "" {
		user = appendItem(user, itemImplementationClass, []byte(a.ImplementationClassUID))
	}
	if a.ImplementationVersionName != "" {
		user = appendItem(user, itemImplementationVersion, []byte(a.ImplementationVersionName))
	}
	buf = appendItem(buf, itemUserInformation, user)

	return &PDU{Type: pduType, Data: buf}
}

type item struct {
	itemType byte
	value    []byte
}

func parseItems(data []byte) ([]item, error) {
	var items []item
	for off := 0; off < len(data); {
		if off+4 > len(data) {
			return nil, fmt.Errorf("truncated item header at offset %d", off)
		}
		length := int(binary.BigEndian.Uint16(data[off+2 : off+4]))
		end := off + 4 + length
		if end > len(data) {
			return nil, fmt.Errorf("item 0x%02x at offset %d exceeds its container", data[off], off)
		}
		items = append(items, item{itemType: data[off], value: data[off+4 : end]})
		off = end
	}
	return items, nil
}

func trimUID(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00 ")
}

func trimAETitle(raw []byte) string {
	s := string(raw)
	if idx := strings.IndexByte(s, 0); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// DecodeAssociate parses the body of an A-ASSOCIATE-RQ or -AC PDU.
func DecodeAssociate(p *PDU) (*Associate, error) {
	if p.Type != types.TypeAssociateRQ && p.Type != types.TypeAssociateAC {
		return nil, fmt.Errorf("%s is not an association PDU", TypeName(p.Type))
	}
	if len(p.Data) < associateFixedPart {
		return nil, dicomerrors.NewProtocolError(dicomerrors.AbortReasonInvalidParameterValue,
			"%s too short: %d bytes", TypeName(p.Type), len(p.Data))
	}

	a := &Associate{
		CalledAETitle:  trimAETitle(p.Data[4:20]),
		CallingAETitle: trimAETitle(p.Data[20:36]),
	}
	items, err := parseItems(p.Data[associateFixedPart:])
	if err != nil {
		return nil, dicomerrors.NewProtocolError(dicomerrors.AbortReasonInvalidParameterValue, "%s: %v", TypeName(p.Type), err)
	}

	for _, it := range items {
		switch it.itemType {
		case itemApplicationContext:
			a.ApplicationContext = trimUID(it.value)
		case itemPresentationContextRQ, itemPresentationContextAC:
			pc, err := decodePresentationContext(it)
			if err != nil {
				return nil, dicomerrors.NewProtocolError(dicomerrors.AbortReasonInvalidParameterValue, "%s: %v", TypeName(p.Type), err)
			}
			a.PresentationContexts = append(a.PresentationContexts, pc)
		case itemUserInformation:
			if err := a.decodeUserInformation(it.value); err != nil {
				return nil, dicomerrors.NewProtocolError(dicomerrors.AbortReasonInvalidParameterValue, "%s: %v", TypeName(p.Type), err)
			}
		}
	}
	return a, nil
}

func decodePresentationContext(it item) (*types.PresentationContext, error) {
	if len(it.value) < 4 {
		return nil, fmt.Errorf("presentation context too short: %d", len(it.value))
	}
	pc := &types.PresentationContext{ID: it.value[0]}
	if it.itemType == itemPresentationContextAC {
		pc.Result = it.value[2]
	}
	subs, err := parseItems(it.value[4:])
	if err != nil {
		return nil, fmt.Errorf("presentation context %d: %w", pc.ID, err)
	}
	for _, sub := range subs {
		switch sub.itemType {
		case itemAbstractSyntax:
			pc.AbstractSyntax = trimUID(sub.value)
		case itemTransferSyntax:
			ts := trimUID(sub.value)
			if it.itemType == itemPresentationContextAC {
				pc.TransferSyntax = ts
			} else {
				pc.ProposedTransferSyntaxes = append(pc.ProposedTransferSyntaxes, ts)
			}
		}
	}
	if it.itemType == itemPresentationContextRQ && pc.AbstractSyntax == "" {
		return nil, fmt.Errorf("presentation context %d missing abstract syntax", pc.ID)
	}
	return pc, nil
}

func (a *Associate) decodeUserInformation(data []byte) error {
	subs, err := parseItems(data)
	if err != nil {
		return fmt.Errorf("user information: %w", err)
	}
	for _, sub := range subs {
		switch sub.itemType {
		case itemMaxLength:
			if len(sub.value) == 4 {
				a.MaxPDULength = binary.BigEndian.Uint32(sub.value)
			}
		case itemImplementationClass:
			a.ImplementationClassUID = trimUID(sub.value)
		case itemImplementationVersion:
			a.ImplementationVersionName = trimAETitle(sub.value)
		}
	}
	return nil
}

// AssociateRJ is the body of an A-ASSOCIATE-RJ PDU.
type AssociateRJ struct {
	Result byte
	Source byte
	Reason byte
}

func (r *AssociateRJ) Encode() *PDU {
	return &PDU{Type: types.TypeAssociateRJ, Data: []byte{0x00, r.Result, r.Source, r.Reason}}
}

// DecodeAssociateRJ parses an A-ASSOCIATE-RJ PDU.
func DecodeAssociateRJ(p *PDU) (*AssociateRJ, error) {
	if p.Type != types.TypeAssociateRJ || len(p.Data) < 4 {
		return nil, fmt.Errorf("malformed A-ASSOCIATE-RJ")
	}
	return &AssociateRJ{Result: p.Data[1], Source: p.Data[2], Reason: p.Data[3]}, nil
}

// AsError converts the rejection into an *errors.AssociationError.
func (r *AssociateRJ) AsError() *dicomerrors.AssociationError {
	return &dicomerrors.AssociationError{
		Result: dicomerrors.AssociationRejectResult(r.Result),
		Source: dicomerrors.AssociationRejectSource(r.Source),
		Reason: dicomerrors.AssociationRejectReason(r.Reason),
		Msg:    "association rejected by peer",
	}
}

// NewAbort builds an A-ABORT PDU.
func NewAbort(source, reason byte) *PDU {
	return &PDU{Type: types.TypeAbort, Data: []byte{0x00, 0x00, source, reason}}
}

// DecodeAbort returns the source and reason of an A-ABORT PDU.
func DecodeAbort(p *PDU) *dicomerrors.AbortError {
	if len(p.Data) < 4 {
		return dicomerrors.NewAbortError(dicomerrors.AbortSourceServiceProvider, dicomerrors.AbortReasonNotSpecified)
	}
	return dicomerrors.NewAbortError(p.Data[2], p.Data[3])
}

// NewReleaseRQ builds an A-RELEASE-RQ PDU.
func NewReleaseRQ() *PDU {
	return &PDU{Type: types.TypeReleaseRQ, Data: make([]byte, 4)}
}

// NewReleaseRP builds an A-RELEASE-RP PDU.
func NewReleaseRP() *PDU {
	return &PDU{Type: types.TypeReleaseRP, Data: make([]byte, 4)}
}

// PDV is one presentation data value of a P-DATA-TF PDU.
type PDV struct {
	ContextID byte
	Command   bool
	Last      bool
	Data      []byte
}

func (v PDV) controlHeader() byte {
	var h byte
	if v.Command {
		h |= 0x01
	}
	if v.Last {
		h |= 0x02
	}
	return h
}

// EncodePData builds a P-DATA-TF PDU holding pdvs.
func EncodePData(pdvs ...PDV) *PDU {
	var buf []byte
	for _, v := range pdvs {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.Data)+2))
		buf = append(buf, v.ContextID, v.controlHeader())
		buf = append(buf, v.Data...)
	}
	return &PDU{Type: types.TypePDataTF, Data: buf}
}

// DecodePData splits a P-DATA-TF PDU into its PDVs.
func DecodePData(p *PDU) ([]PDV, error) {
	var pdvs []PDV
	for off := 0; off < len(p.Data); {
		if off+4 > len(p.Data) {
			return nil, dicomerrors.NewProtocolError(dicomerrors.AbortReasonInvalidParameterValue, "truncated PDV length at %d", off)
		}
		length := int(binary.BigEndian.Uint32(p.Data[off : off+4]))
		if length < 2 || off+4+length > len(p.Data) {
			return nil, dicomerrors.NewProtocolError(dicomerrors.AbortReasonInvalidParameterValue, "PDV at %d has invalid length %d", off, length)
		}
		body := p.Data[off+4 : off+4+length]
		pdvs = append(pdvs, PDV{
			ContextID: body[0],
			Command:   body[1]&0x01 != 0,
			Last:      body[1]&0x02 != 0,
			Data:      body[2:],
		})
		off += 4 + length
	}
	if len(pdvs) == 0 {
		return nil, dicomerrors.NewProtocolError(dicomerrors.AbortReasonInvalidParameterValue, "P-DATA-TF without PDVs")
	}
	return pdvs, nil
}
