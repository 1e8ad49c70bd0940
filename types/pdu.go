// Package types holds the protocol constants and value types shared by the
// upper layer, DIMSE and negotiation packages.
package types

// PDU type constants
const (
	TypeAssociateRQ = 0x01
	TypeAssociateAC = 0x02
	TypeAssociateRJ = 0x03
	TypePDataTF     = 0x04
	TypeReleaseRQ   = 0x05
	TypeReleaseRP   = 0x06
	TypeAbort       = 0x07
)

// Presentation context negotiation results (PS3.8 Section 9.3.3.2).
const (
	ResultAcceptance                   = 0x00
	ResultUserRejection                = 0x01
	ResultProviderRejection            = 0x02
	ResultAbstractSyntaxNotSupported   = 0x03
	ResultTransferSyntaxesNotSupported = 0x04
)

// DefaultMaxPDULength is the maximum PDU length advertised when none is configured.
const DefaultMaxPDULength = 16384

// PresentationContext is one abstract syntax proposed with an ordered list of
// transfer syntaxes. TransferSyntax and Result are filled in by negotiation.
type PresentationContext struct {
	ID                       byte
	AbstractSyntax           string
	ProposedTransferSyntaxes []string
	TransferSyntax           string
	Result                   byte
}

// Accepted reports whether negotiation accepted the context.
func (pc *PresentationContext) Accepted() bool {
	return pc.Result == ResultAcceptance && pc.TransferSyntax != ""
}

// ResultName returns a readable description of the negotiation result.
func ResultName(result byte) string {
	switch result {
	case ResultAcceptance:
		return "acceptance"
	case ResultUserRejection:
		return "user-rejection"
	case ResultProviderRejection:
		return "provider-rejection"
	case ResultAbstractSyntaxNotSupported:
		return "abstract-syntax-not-supported"
	case ResultTransferSyntaxesNotSupported:
		return "transfer-syntaxes-not-supported"
	default:
		return "unknown"
	}
}

// AssociationParameters holds what both sides agreed on for one association.
type AssociationParameters struct {
	AssociationID  string
	CallingAETitle string
	CalledAETitle  string
	RemoteAddr     string

	// Contexts in proposal order.
	PresentationContexts []*PresentationContext

	LocalMaxPDULength uint32
	PeerMaxPDULength  uint32

	PeerImplementationClassUID    string
	PeerImplementationVersionName string
}

// Context returns the presentation context with the given ID.
func (p *AssociationParameters) Context(id byte) (*PresentationContext, bool) {
	for _, pc := range p.PresentationContexts {
		if pc.ID == id {
			return pc, true
		}
	}
	return nil, false
}

// AcceptedContexts returns the accepted contexts in proposal order.
func (p *AssociationParameters) AcceptedContexts() []*PresentationContext {
	var out []*PresentationContext
	for _, pc := range p.PresentationContexts {
		if pc.Accepted() {
			out = append(out, pc)
		}
	}
	return out
}

// AcceptedFor returns the accepted contexts whose abstract syntax is sopClass.
func (p *AssociationParameters) AcceptedFor(sopClass string) []*PresentationContext {
	var out []*PresentationContext
	for _, pc := range p.PresentationContexts {
		if pc.AbstractSyntax == sopClass && pc.Accepted() {
			out = append(out, pc)
		}
	}
	return out
}
