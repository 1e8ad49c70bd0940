// Package client implements the requestor side: associations to a remote
// SCP, C-ECHO and C-STORE, and batch sends through StorageUser.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/caio-sobreiro/dicomstore/dimse"
	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/negotiation"
	"github.com/caio-sobreiro/dicomstore/pdu"
	"github.com/caio-sobreiro/dicomstore/types"
)

// Association represents a client-side DICOM association
type Association struct {
	layer  *pdu.Layer
	reader *dimse.Reader
	params *types.AssociationParameters
	logger *slog.Logger

	mu        sync.Mutex
	messageID uint16
	// abandoned holds requests whose response timed out; a late response
	// to one of them is discarded.
	abandoned map[uint16]struct{}
}

// Config holds client configuration
type Config struct {
	CallingAETitle string
	CalledAETitle  string
	MaxPDULength   uint32
	ConnectTimeout time.Duration // Timeout for establishing connection (default: 30s)
	ReadTimeout    time.Duration // Timeout for association setup and single PDU reads (default: 60s)
	WriteTimeout   time.Duration // Timeout for write operations (default: 60s)
	DIMSETimeout   time.Duration // Wait for a response before the request fails with errors.ErrResponseTimeout (default: 60s)
	Logger         *slog.Logger  // Logger for the association (default: slog.Default())

	// AbstractSyntaxes are proposed in order, one presentation context each,
	// with the transfer syntaxes the negotiator's catalog lists for them.
	// Default: Verification only.
	AbstractSyntaxes []string
	Negotiator       *negotiation.Negotiator
}

func (c *Config) applyDefaults() {
	if c.MaxPDULength == 0 {
		c.MaxPDULength = types.DefaultMaxPDULength
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.DIMSETimeout == 0 {
		c.DIMSETimeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if len(c.AbstractSyntaxes) == 0 {
		c.AbstractSyntaxes = []string{types.VerificationSOPClass}
	}
	if c.Negotiator == nil {
		c.Negotiator = negotiation.NewNegotiator(nil, nil)
	}
}

// Connect establishes a DICOM association with a remote SCP. A rejection is
// returned as *errors.AssociationError.
func Connect(ctx context.Context, address string, config Config) (*Association, error) {
	config.applyDefaults()
	if config.CallingAETitle == "" || config.CalledAETitle == "" {
		return nil, errors.New("dicomclient: calling and called AE titles are required")
	}

	contexts, err := config.Negotiator.Propose(config.AbstractSyntaxes)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, dicomerrors.NewNetworkError("connect", err)
	}

	layer := pdu.NewLayer(conn, pdu.Config{
		AETitle:      config.CallingAETitle,
		MaxPDULength: config.MaxPDULength,
		DIMSETimeout: config.DIMSETimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		Logger:       config.Logger,
	})
	params, err := layer.Request(config.CalledAETitle, contexts)
	if err != nil {
		return nil, fmt.Errorf("associate with %s at %s: %w", config.CalledAETitle, address, err)
	}

	return &Association{
		layer:     layer,
		reader:    dimse.NewReader(layer),
		params:    params,
		logger:    layer.Logger(),
		abandoned: make(map[uint16]struct{}),
	}, nil
}

// Params returns the negotiated association parameters.
func (a *Association) Params() *types.AssociationParameters {
	return a.params
}

// ContextFor returns the accepted presentation context for sopClass whose
// transfer syntax is transferSyntax. An empty transferSyntax matches the
// first accepted context for the SOP class.
func (a *Association) ContextFor(sopClass, transferSyntax string) (*types.PresentationContext, error) {
	for _, pc := range a.params.AcceptedFor(sopClass) {
		if transferSyntax == "" || pc.TransferSyntax == transferSyntax {
			return pc, nil
		}
	}
	if transferSyntax == "" {
		return nil, fmt.Errorf("%w: SOP class %s", dicomerrors.ErrNoPresentationCtx, sopClass)
	}
	return nil, fmt.Errorf("%w: SOP class %s in %s", dicomerrors.ErrNoPresentationCtx, sopClass, transferSyntax)
}

func (a *Association) nextMessageID() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messageID++
	if a.messageID == 0 {
		a.messageID = 1
	}
	return a.messageID
}

// roundTrip sends a request and waits for the response to it.
//
// When no response starts within the DIMSE timeout the error matches
// errors.ErrResponseTimeout and the association stays usable. Cancelling
// ctx while waiting aborts the association.
func (a *Association) roundTrip(ctx context.Context, pc *types.PresentationContext, req *types.Message, data []byte) (*types.Message, error) {
	if err := dimse.SendMessage(a.layer, pc.ID, req, data); err != nil {
		return nil, err
	}
	want := types.ResponseCommandFor(req.CommandField)
	for {
		msg, err := a.reader.Next(ctx)
		if err != nil {
			var protoErr *dicomerrors.ProtocolError
			switch {
			case errors.Is(err, dicomerrors.ErrResponseTimeout):
				a.abandon(req.MessageID)
				a.logger.Warn("No response within DIMSE timeout",
					"command", types.CommandName(req.CommandField),
					"message_id", req.MessageID)
			case ctx.Err() != nil:
				_ = a.layer.Abort(dicomerrors.AbortSourceServiceUser, dicomerrors.AbortReasonNotSpecified)
			case errors.As(err, &protoErr):
				_ = a.layer.Abort(dicomerrors.AbortSourceServiceProvider, protoErr.Reason)
			}
			return nil, err
		}
		rsp := msg.Command
		if rsp.CommandField == want && a.late(rsp.MessageIDBeingRespondedTo, rsp.Status) {
			a.logger.Info("Discarding late response",
				"command", types.CommandName(rsp.CommandField),
				"message_id", rsp.MessageIDBeingRespondedTo,
				"status", fmt.Sprintf("0x%04X", rsp.Status))
			continue
		}
		if rsp.CommandField != want || rsp.MessageIDBeingRespondedTo != req.MessageID {
			err := dicomerrors.NewProtocolError(dicomerrors.AbortReasonUnexpectedParameter,
				"received %s for message %d while waiting for %s for message %d",
				types.CommandName(rsp.CommandField), rsp.MessageIDBeingRespondedTo,
				types.CommandName(want), req.MessageID)
			_ = a.layer.Abort(dicomerrors.AbortSourceServiceProvider, dicomerrors.AbortReasonUnexpectedParameter)
			return nil, err
		}
		if types.ClassifyStatus(rsp.Status) == types.StatusClassPending {
			continue
		}
		return rsp, nil
	}
}

func (a *Association) abandon(messageID uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.abandoned[messageID] = struct{}{}
}

// late reports whether messageID was abandoned. A final status forgets it;
// pending responses keep it abandoned.
func (a *Association) late(messageID, status uint16) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.abandoned[messageID]
	if ok && types.ClassifyStatus(status) != types.StatusClassPending {
		delete(a.abandoned, messageID)
	}
	return ok
}

// Release gracefully releases the association and closes the connection.
func (a *Association) Release() error {
	return a.layer.Release()
}

// Close is an alias for Release.
func (a *Association) Close() error {
	return a.Release()
}

// Abort sends an A-ABORT and closes the connection.
func (a *Association) Abort() error {
	return a.layer.Abort(dicomerrors.AbortSourceServiceUser, dicomerrors.AbortReasonNotSpecified)
}
