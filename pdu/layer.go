package pdu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caio-sobreiro/dicomstore/dicom"
	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/negotiation"
	"github.com/caio-sobreiro/dicomstore/types"
)

// State is the association state as seen by this side.
type State int

const (
	StateIdle State = iota
	StateAssociationRequested
	StateRejected
	StateReady
	StateProcessingRequest
	StateReleaseRequested
	StateAbortReceived
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAssociationRequested:
		return "association-requested"
	case StateRejected:
		return "rejected"
	case StateReady:
		return "ready"
	case StateProcessingRequest:
		return "processing-request"
	case StateReleaseRequested:
		return "release-requested"
	case StateAbortReceived:
		return "abort-received"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// unlimitedFragment is the PDV size used when the peer sets no maximum.
const unlimitedFragment = 1 << 20

// Config holds the settings of one side of an association.
type Config struct {
	AETitle      string
	MaxPDULength uint32        // advertised to the peer (default types.DefaultMaxPDULength)
	// DIMSETimeout bounds the wait for the next PDU. An acceptor logs a
	// warning and keeps waiting; a requestor, which only reads while a
	// response is due, gives up with errors.ErrResponseTimeout. 0 waits
	// without limit.
	DIMSETimeout time.Duration
	ReadTimeout  time.Duration // bound on reading one PDU once it has started, and on association setup
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Layer runs the upper layer protocol over one connection, as requestor or acceptor.
type Layer struct {
	conn   net.Conn
	cfg    Config
	logger *slog.Logger
	params *types.AssociationParameters
	// requestor is set once Request has established the association.
	requestor bool

	stateMu sync.Mutex
	state   State
	writeMu sync.Mutex
}

// NewLayer wraps conn.
func NewLayer(conn net.Conn, cfg Config) *Layer {
	if cfg.MaxPDULength == 0 {
		cfg.MaxPDULength = types.DefaultMaxPDULength
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Layer{
		conn:   conn,
		cfg:    cfg,
		logger: logger.With("remote_addr", conn.RemoteAddr().String()),
		state:  StateIdle,
	}
}

// State returns the current association state.
func (l *Layer) State() State {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.state
}

func (l *Layer) setState(s State) {
	l.stateMu.Lock()
	prev := l.state
	l.state = s
	l.stateMu.Unlock()
	if prev != s {
		l.logger.Debug("Association state changed", "from", prev.String(), "to", s.String())
	}
}

// Params returns the negotiated association, or nil before negotiation.
func (l *Layer) Params() *types.AssociationParameters {
	return l.params
}

// Logger returns the layer logger, annotated with the association ID once known.
func (l *Layer) Logger() *slog.Logger {
	return l.logger
}

// StartProcessing marks a complete request as being handled.
func (l *Layer) StartProcessing() {
	l.setState(StateProcessingRequest)
}

// FinishProcessing returns to Ready after a request was answered.
func (l *Layer) FinishProcessing() {
	if l.State() == StateProcessingRequest {
		l.setState(StateReady)
	}
}

// Close closes the connection.
func (l *Layer) Close() error {
	l.setState(StateClosed)
	return l.conn.Close()
}

func (l *Layer) write(p *PDU) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if l.cfg.WriteTimeout > 0 {
		if err := l.conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout)); err != nil {
			return dicomerrors.NewNetworkError("set write deadline", err)
		}
	}
	if err := WritePDU(l.conn, p); err != nil {
		return dicomerrors.NewNetworkError("write "+TypeName(p.Type), err)
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// readSetupPDU reads one PDU during association setup or release, where a
// timeout is fatal.
func (l *Layer) readSetupPDU() (*PDU, error) {
	deadline := time.Time{}
	if l.cfg.ReadTimeout > 0 {
		deadline = time.Now().Add(l.cfg.ReadTimeout)
	}
	if err := l.conn.SetReadDeadline(deadline); err != nil {
		return nil, dicomerrors.NewNetworkError("set read deadline", err)
	}
	p, err := ReadPDU(l.conn)
	if err != nil {
		if isTimeout(err) {
			return nil, dicomerrors.NewTimeoutError("read PDU", l.cfg.ReadTimeout.String())
		}
		return nil, err
	}
	return p, nil
}

// readDataPDU waits for the next PDU of an established association. Past
// the DIMSE timeout an acceptor logs a warning and keeps waiting while a
// requestor returns a response timeout. A PDU that has started to arrive is
// read under ReadTimeout. Cancelling ctx interrupts the wait.
func (l *Layer) readDataPDU(ctx context.Context) (*PDU, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = l.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	header := make([]byte, headerLength)
	started := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		deadline := time.Time{}
		if l.cfg.DIMSETimeout > 0 {
			deadline = time.Now().Add(l.cfg.DIMSETimeout)
		}
		if err := l.conn.SetReadDeadline(deadline); err != nil {
			return nil, dicomerrors.NewNetworkError("set read deadline", err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, err := io.ReadFull(l.conn, header[:1])
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isTimeout(err) {
			if l.requestor {
				return nil, dicomerrors.NewResponseTimeoutError(l.cfg.DIMSETimeout.String())
			}
			l.logger.Warn("DIMSE timeout waiting for next message",
				"state", l.State().String(),
				"waited", time.Since(started).Round(time.Millisecond).String())
			continue
		}
		return nil, err
	}

	deadline := time.Time{}
	if l.cfg.ReadTimeout > 0 {
		deadline = time.Now().Add(l.cfg.ReadTimeout)
	}
	if err := l.conn.SetReadDeadline(deadline); err != nil {
		return nil, dicomerrors.NewNetworkError("set read deadline", err)
	}
	if _, err := io.ReadFull(l.conn, header[1:]); err != nil {
		return nil, fmt.Errorf("read PDU header: %w", err)
	}
	return readBody(l.conn, header)
}

// Abort sends an A-ABORT and closes the connection.
func (l *Layer) Abort(source, reason byte) error {
	if l.State() == StateClosed {
		return nil
	}
	l.logger.Warn("Aborting association",
		"source", source,
		"reason", dicomerrors.AbortReasonName(reason))
	err := l.write(NewAbort(source, reason))
	_ = l.Close()
	return err
}

// abortFor answers a peer violation with the A-ABORT reason it calls for.
func (l *Layer) abortFor(err error) error {
	reason := dicomerrors.AbortReasonNotSpecified
	var protoErr *dicomerrors.ProtocolError
	if errors.As(err, &protoErr) {
		reason = protoErr.Reason
	}
	_ = l.Abort(dicomerrors.AbortSourceServiceProvider, reason)
	return err
}

func unexpected(p *PDU, state State) error {
	if !isKnownType(p.Type) {
		return dicomerrors.NewProtocolError(dicomerrors.AbortReasonUnrecognizedPDU,
			"unrecognized PDU type 0x%02x in state %s", p.Type, state)
	}
	return dicomerrors.NewProtocolError(dicomerrors.AbortReasonUnexpectedPDU,
		"unexpected %s in state %s", TypeName(p.Type), state)
}

// AcceptOptions controls how an acceptor answers an association request.
type AcceptOptions struct {
	Negotiator *negotiation.Negotiator
	// StrictCalledAETitle rejects requests whose called AE title is not ours.
	StrictCalledAETitle bool
	// Authorize may reject the association after the request has been
	// parsed and before negotiation.
	Authorize func(ctx context.Context, params *types.AssociationParameters) error
}

// Accept reads an A-ASSOCIATE-RQ and answers it with an AC or RJ. The
// returned error is an *errors.AssociationError when the request was
// rejected and an *errors.ProtocolError when it was aborted.
func (l *Layer) Accept(ctx context.Context, opts AcceptOptions) (*types.AssociationParameters, error) {
	p, err := l.readSetupPDU()
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("read association request: %w", err)
	}
	if p.Type != types.TypeAssociateRQ {
		return nil, l.abortFor(unexpected(p, StateIdle))
	}
	l.setState(StateAssociationRequested)

	rq, err := DecodeAssociate(p)
	if err != nil {
		return nil, l.abortFor(err)
	}

	params := &types.AssociationParameters{
		AssociationID:                 uuid.NewString(),
		CallingAETitle:                rq.CallingAETitle,
		CalledAETitle:                 rq.CalledAETitle,
		RemoteAddr:                    l.conn.RemoteAddr().String(),
		LocalMaxPDULength:             l.cfg.MaxPDULength,
		PeerMaxPDULength:              rq.MaxPDULength,
		PeerImplementationClassUID:    rq.ImplementationClassUID,
		PeerImplementationVersionName: rq.ImplementationVersionName,
	}
	l.params = params
	l.logger = l.logger.With("assoc_id", params.AssociationID)
	l.logger.Info("Association requested",
		"calling_ae", rq.CallingAETitle,
		"called_ae", rq.CalledAETitle,
		"proposed_contexts", len(rq.PresentationContexts),
		"peer_max_pdu", rq.MaxPDULength,
		"peer_implementation", rq.ImplementationClassUID)

	if rq.ApplicationContext != types.ApplicationContextUID {
		return params, l.reject(dicomerrors.NewAssociationError(dicomerrors.RejectSourceServiceUser,
			dicomerrors.RejectReasonApplicationContextNotSupported,
			fmt.Sprintf("application context %q not supported", rq.ApplicationContext)))
	}
	if opts.StrictCalledAETitle && rq.CalledAETitle != l.cfg.AETitle {
		return params, l.reject(dicomerrors.NewAssociationError(dicomerrors.RejectSourceServiceUser,
			dicomerrors.RejectReasonCalledAETitleNotRecognized,
			fmt.Sprintf("called AE title %q is not %q", rq.CalledAETitle, l.cfg.AETitle)))
	}
	if opts.Authorize != nil {
		if err := opts.Authorize(ctx, params); err != nil {
			var assocErr *dicomerrors.AssociationError
			if !errors.As(err, &assocErr) {
				assocErr = dicomerrors.NewAssociationError(dicomerrors.RejectSourceServiceUser,
					dicomerrors.RejectReasonNoReasonGiven, err.Error())
				assocErr.Err = err
			}
			return params, l.reject(assocErr)
		}
	}

	negotiator := opts.Negotiator
	if negotiator == nil {
		negotiator = negotiation.NewNegotiator(nil, nil)
	}
	if negotiator.Logger == nil {
		n := *negotiator
		n.Logger = l.logger
		negotiator = &n
	}
	answered, err := negotiator.Accept(rq.PresentationContexts)
	params.PresentationContexts = answered
	if err != nil {
		var assocErr *dicomerrors.AssociationError
		if errors.As(err, &assocErr) {
			return params, l.reject(assocErr)
		}
		return params, l.abortFor(err)
	}

	ac := &Associate{
		CalledAETitle:             rq.CalledAETitle,
		CallingAETitle:            rq.CallingAETitle,
		ApplicationContext:        types.ApplicationContextUID,
		PresentationContexts:      answered,
		MaxPDULength:              l.cfg.MaxPDULength,
		ImplementationClassUID:    dicom.ImplementationClassUID,
		ImplementationVersionName: dicom.ImplementationVersionName,
	}
	if err := l.write(ac.Encode(types.TypeAssociateAC)); err != nil {
		_ = l.Close()
		return params, err
	}
	l.setState(StateReady)
	l.logger.Info("Association accepted",
		"accepted_contexts", len(params.AcceptedContexts()),
		"proposed_contexts", len(answered))
	return params, nil
}

func (l *Layer) reject(assocErr *dicomerrors.AssociationError) error {
	l.logger.Warn("Rejecting association",
		"result", assocErr.Result.String(),
		"source", assocErr.Source.String(),
		"reason", assocErr.Reason.String(),
		"detail", assocErr.Msg)
	rj := &AssociateRJ{Result: byte(assocErr.Result), Source: byte(assocErr.Source), Reason: byte(assocErr.Reason)}
	if err := l.write(rj.Encode()); err != nil {
		l.logger.Warn("Failed to send A-ASSOCIATE-RJ", "error", err)
	}
	l.setState(StateRejected)
	_ = l.Close()
	return assocErr
}

// Request sends an A-ASSOCIATE-RQ proposing contexts to calledAETitle and
// waits for the answer. Accepted transfer syntaxes are written into the
// returned parameters' contexts; a rejection is an *errors.AssociationError.
func (l *Layer) Request(calledAETitle string, contexts []*types.PresentationContext) (*types.AssociationParameters, error) {
	rq := &Associate{
		CalledAETitle:             calledAETitle,
		CallingAETitle:            l.cfg.AETitle,
		ApplicationContext:        types.ApplicationContextUID,
		PresentationContexts:      contexts,
		MaxPDULength:              l.cfg.MaxPDULength,
		ImplementationClassUID:    dicom.ImplementationClassUID,
		ImplementationVersionName: dicom.ImplementationVersionName,
	}
	if err := l.write(rq.Encode(types.TypeAssociateRQ)); err != nil {
		_ = l.Close()
		return nil, err
	}
	l.setState(StateAssociationRequested)

	p, err := l.readSetupPDU()
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("read association response: %w", err)
	}

	switch p.Type {
	case types.TypeAssociateAC:
	case types.TypeAssociateRJ:
		rj, err := DecodeAssociateRJ(p)
		_ = l.Close()
		l.setState(StateRejected)
		if err != nil {
			return nil, err
		}
		return nil, rj.AsError()
	case types.TypeAbort:
		l.setState(StateAbortReceived)
		_ = l.Close()
		return nil, DecodeAbort(p)
	default:
		return nil, l.abortFor(unexpected(p, StateAssociationRequested))
	}

	ac, err := DecodeAssociate(p)
	if err != nil {
		return nil, l.abortFor(err)
	}

	params := &types.AssociationParameters{
		AssociationID:                 uuid.NewString(),
		CallingAETitle:                l.cfg.AETitle,
		CalledAETitle:                 calledAETitle,
		RemoteAddr:                    l.conn.RemoteAddr().String(),
		LocalMaxPDULength:             l.cfg.MaxPDULength,
		PeerMaxPDULength:              ac.MaxPDULength,
		PeerImplementationClassUID:    ac.ImplementationClassUID,
		PeerImplementationVersionName: ac.ImplementationVersionName,
	}
	l.params = params
	l.logger = l.logger.With("assoc_id", params.AssociationID)

	answers := make(map[byte]*types.PresentationContext, len(ac.PresentationContexts))
	for _, pc := range ac.PresentationContexts {
		answers[pc.ID] = pc
	}
	for _, proposed := range contexts {
		pc := &types.PresentationContext{
			ID:                       proposed.ID,
			AbstractSyntax:           proposed.AbstractSyntax,
			ProposedTransferSyntaxes: proposed.ProposedTransferSyntaxes,
			Result:                   types.ResultProviderRejection,
		}
		if answer, ok := answers[proposed.ID]; ok {
			pc.Result = answer.Result
			if answer.Result == types.ResultAcceptance {
				if contains(proposed.ProposedTransferSyntaxes, answer.TransferSyntax) {
					pc.TransferSyntax = answer.TransferSyntax
				} else {
					l.logger.Warn("Peer accepted a transfer syntax that was not proposed",
						"context_id", pc.ID,
						"transfer_syntax", answer.TransferSyntax)
					pc.Result = types.ResultTransferSyntaxesNotSupported
				}
			}
		}
		l.logger.Debug("Presentation context answered",
			"context_id", pc.ID,
			"abstract_syntax", pc.AbstractSyntax,
			"transfer_syntax", pc.TransferSyntax,
			"result", types.ResultName(pc.Result))
		params.PresentationContexts = append(params.PresentationContexts, pc)
	}

	l.requestor = true
	l.setState(StateReady)
	l.logger.Info("Association established",
		"called_ae", calledAETitle,
		"accepted_contexts", len(params.AcceptedContexts()),
		"peer_max_pdu", ac.MaxPDULength)
	return params, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ReadPData returns the PDVs of the next P-DATA-TF PDU. A release request is
// answered and reported as errors.ErrAssociationReleased, a received abort as
// *errors.AbortError, and a protocol violation aborts the association and
// returns *errors.ProtocolError. A response timeout leaves the association
// open.
func (l *Layer) ReadPData(ctx context.Context) ([]PDV, error) {
	p, err := l.readDataPDU(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, dicomerrors.ErrResponseTimeout) {
			return nil, err
		}
		var protoErr *dicomerrors.ProtocolError
		if errors.As(err, &protoErr) {
			return nil, l.abortFor(err)
		}
		_ = l.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			return nil, fmt.Errorf("%w: %v", dicomerrors.ErrConnectionClosed, err)
		}
		return nil, dicomerrors.NewNetworkError("read PDU", err)
	}

	switch p.Type {
	case types.TypePDataTF:
		pdvs, err := DecodePData(p)
		if err != nil {
			return nil, l.abortFor(err)
		}
		return pdvs, nil
	case types.TypeReleaseRQ:
		l.setState(StateReleaseRequested)
		if err := l.write(NewReleaseRP()); err != nil {
			l.logger.Warn("Failed to send A-RELEASE-RP", "error", err)
		}
		l.logger.Info("Association released by peer")
		_ = l.Close()
		return nil, dicomerrors.ErrAssociationReleased
	case types.TypeAbort:
		l.setState(StateAbortReceived)
		abortErr := DecodeAbort(p)
		l.logger.Warn("Association aborted by peer", "error", abortErr)
		_ = l.Close()
		return nil, abortErr
	default:
		return nil, l.abortFor(unexpected(p, l.State()))
	}
}

// MaxFragment returns the largest PDV payload the peer accepts.
func (l *Layer) MaxFragment() int {
	var peerMax uint32
	if l.params != nil {
		peerMax = l.params.PeerMaxPDULength
	}
	if peerMax == 0 {
		return unlimitedFragment
	}
	// Each P-DATA-TF carries one PDV: 4 bytes item length, context ID and control header.
	n := int(peerMax) - 6
	if n < 1 {
		n = types.DefaultMaxPDULength - 6
	}
	return n
}

// SendPData sends data as command or data set fragments of the given
// presentation context, split so no PDU exceeds the peer's maximum length.
func (l *Layer) SendPData(contextID byte, command bool, data []byte) error {
	limit := l.MaxFragment()
	for {
		n := len(data)
		if n > limit {
			n = limit
		}
		pdv := PDV{ContextID: contextID, Command: command, Last: n == len(data), Data: data[:n]}
		if err := l.write(EncodePData(pdv)); err != nil {
			return err
		}
		data = data[n:]
		if len(data) == 0 {
			return nil
		}
	}
}

// Release performs an orderly release as requestor and closes the connection.
func (l *Layer) Release() error {
	defer l.Close()
	if err := l.write(NewReleaseRQ()); err != nil {
		return err
	}
	l.setState(StateReleaseRequested)
	for {
		p, err := l.readSetupPDU()
		if err != nil {
			return fmt.Errorf("wait for A-RELEASE-RP: %w", err)
		}
		switch p.Type {
		case types.TypeReleaseRP:
			l.logger.Info("Association released")
			return nil
		case types.TypeAbort:
			l.setState(StateAbortReceived)
			return DecodeAbort(p)
		case types.TypePDataTF:
			l.logger.Debug("Discarding P-DATA-TF received during release")
		default:
			return l.abortFor(unexpected(p, StateReleaseRequested))
		}
	}
}
