package dimse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/interfaces"
	"github.com/caio-sobreiro/dicomstore/types"
)

// Association is the acceptor side of an established association as the
// service needs it. *pdu.Layer implements it.
type Association interface {
	Conn
	Params() *types.AssociationParameters
	StartProcessing()
	FinishProcessing()
	Abort(source, reason byte) error
}

// Service reads requests from an association one at a time and answers each
// through its handler before reading the next.
type Service struct {
	handler interfaces.ServiceHandler
	logger  *slog.Logger
}

// NewService creates a new DIMSE service with a handler
func NewService(handler interfaces.ServiceHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		handler: handler,
		logger:  logger,
	}
}

// Serve handles requests until the peer releases the association (nil is
// returned), aborts it, or violates the protocol. Protocol violations abort
// the association before Serve returns.
func (s *Service) Serve(ctx context.Context, assoc Association) error {
	params := assoc.Params()
	ctx = interfaces.WithAssociation(ctx, params)
	reader := NewReader(assoc)

	for {
		msg, err := reader.Next(ctx)
		if err != nil {
			if errors.Is(err, dicomerrors.ErrAssociationReleased) {
				return nil
			}
			var protoErr *dicomerrors.ProtocolError
			if errors.As(err, &protoErr) {
				_ = assoc.Abort(dicomerrors.AbortSourceServiceProvider, protoErr.Reason)
			}
			return err
		}

		cmd := msg.Command
		if types.IsResponse(cmd.CommandField) {
			err := dicomerrors.NewProtocolError(dicomerrors.AbortReasonUnrecognizedPDU,
				"received %s as acceptor", types.CommandName(cmd.CommandField))
			_ = assoc.Abort(dicomerrors.AbortSourceServiceProvider, dicomerrors.AbortReasonUnrecognizedPDU)
			return err
		}
		pc, ok := params.Context(msg.ContextID)
		if !ok || !pc.Accepted() {
			err := dicomerrors.NewProtocolError(dicomerrors.AbortReasonInvalidParameterValue,
				"message on presentation context %d, which was not accepted", msg.ContextID)
			_ = assoc.Abort(dicomerrors.AbortSourceServiceProvider, dicomerrors.AbortReasonInvalidParameterValue)
			return err
		}
		cmd.TransferSyntaxUID = pc.TransferSyntax

		if cmd.CommandField == types.CCancelRQ {
			s.logger.DebugContext(ctx, "Ignoring C-CANCEL-RQ",
				"message_id_being_responded_to", cmd.MessageIDBeingRespondedTo)
			continue
		}

		if err := s.handle(ctx, assoc, msg); err != nil {
			return err
		}
	}
}

func (s *Service) handle(ctx context.Context, assoc Association, msg *Message) error {
	cmd := msg.Command
	assoc.StartProcessing()
	defer assoc.FinishProcessing()

	s.logger.DebugContext(ctx, "Processing DIMSE request",
		"command", types.CommandName(cmd.CommandField),
		"context_id", msg.ContextID,
		"message_id", cmd.MessageID,
		"dataset_size", len(msg.Data))

	rsp, rspData, err := s.handler.HandleDIMSE(ctx, cmd, msg.Data)
	if err != nil {
		s.logger.ErrorContext(ctx, "Service handler failed",
			"command", types.CommandName(cmd.CommandField),
			"message_id", cmd.MessageID,
			"error", err)
		rsp = &types.Message{
			CommandField:              types.ResponseCommandFor(cmd.CommandField),
			MessageIDBeingRespondedTo: cmd.MessageID,
			AffectedSOPClassUID:       cmd.AffectedSOPClassUID,
			AffectedSOPInstanceUID:    cmd.AffectedSOPInstanceUID,
			Status:                    types.StatusProcessingFailure,
			ErrorComment:              err.Error(),
		}
		rspData = nil
	}
	if rsp == nil {
		return fmt.Errorf("handler returned no response for %s", types.CommandName(cmd.CommandField))
	}

	if err := SendMessage(assoc, msg.ContextID, rsp, rspData); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "Sent DIMSE response",
		"command", types.CommandName(rsp.CommandField),
		"message_id_being_responded_to", rsp.MessageIDBeingRespondedTo,
		"status", fmt.Sprintf("0x%04X", rsp.Status))
	return nil
}
