package client

import (
	"context"
	"fmt"

	"github.com/caio-sobreiro/dicomstore/types"
)

// CStoreRequest represents a C-STORE request
type CStoreRequest struct {
	SOPClassUID    string
	SOPInstanceUID string
	// TransferSyntaxUID is the encoding of Data. The request goes out on the
	// context accepted for SOPClassUID in this transfer syntax.
	TransferSyntaxUID string
	Data              []byte
	Priority          uint16

	// Set when the store is a sub-operation of a C-MOVE.
	MoveOriginatorAETitle   string
	MoveOriginatorMessageID uint16
}

// CStoreResponse represents a C-STORE response
type CStoreResponse struct {
	Status         uint16
	MessageID      uint16
	SOPClassUID    string
	SOPInstanceUID string
	ErrorComment   string
}

// SendCStore sends a C-STORE request and waits for response
func (a *Association) SendCStore(ctx context.Context, req *CStoreRequest) (*CStoreResponse, error) {
	pc, err := a.ContextFor(req.SOPClassUID, req.TransferSyntaxUID)
	if err != nil {
		return nil, err
	}

	command := &types.Message{
		CommandField:            types.CStoreRQ,
		MessageID:               a.nextMessageID(),
		Priority:                req.Priority,
		AffectedSOPClassUID:     req.SOPClassUID,
		AffectedSOPInstanceUID:  req.SOPInstanceUID,
		MoveOriginatorAETitle:   req.MoveOriginatorAETitle,
		MoveOriginatorMessageID: req.MoveOriginatorMessageID,
	}
	data := req.Data
	if data == nil {
		data = []byte{}
	}

	a.logger.DebugContext(ctx, "Sending C-STORE-RQ",
		"message_id", command.MessageID,
		"context_id", pc.ID,
		"sop_class", req.SOPClassUID,
		"sop_instance", req.SOPInstanceUID,
		"transfer_syntax", pc.TransferSyntax,
		"data_size", len(data))

	rsp, err := a.roundTrip(ctx, pc, command, data)
	if err != nil {
		return nil, fmt.Errorf("C-STORE %s: %w", req.SOPInstanceUID, err)
	}

	return &CStoreResponse{
		Status:         rsp.Status,
		MessageID:      rsp.MessageIDBeingRespondedTo,
		SOPClassUID:    rsp.AffectedSOPClassUID,
		SOPInstanceUID: rsp.AffectedSOPInstanceUID,
		ErrorComment:   rsp.ErrorComment,
	}, nil
}
