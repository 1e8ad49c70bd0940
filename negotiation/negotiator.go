package negotiation

import (
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/types"
)

// maxPresentationContexts is the number of odd context IDs in 1..255.
const maxPresentationContexts = 128

// Negotiator proposes contexts from a Catalog as requestor and accepts them
// against Capabilities as acceptor. Both directions are deterministic.
type Negotiator struct {
	Catalog      *Catalog
	Capabilities *Capabilities
	Logger       *slog.Logger
}

// NewNegotiator builds a negotiator. Nil arguments fall back to a catalog
// without compression and to native-only capabilities.
func NewNegotiator(catalog *Catalog, capabilities *Capabilities) *Negotiator {
	if catalog == nil {
		catalog = NewCatalog(CompressionConfig{})
	}
	if capabilities == nil {
		capabilities = NativeCapabilities()
	}
	return &Negotiator{Catalog: catalog, Capabilities: capabilities}
}

func (n *Negotiator) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

// Propose returns one presentation context per distinct abstract syntax, in
// input order, with odd IDs starting at 1.
func (n *Negotiator) Propose(abstractSyntaxes []string) ([]*types.PresentationContext, error) {
	seen := make(map[string]bool, len(abstractSyntaxes))
	var contexts []*types.PresentationContext
	for _, uid := range abstractSyntaxes {
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		if len(contexts) == maxPresentationContexts {
			return nil, fmt.Errorf("%w: %d distinct abstract syntaxes", dicomerrors.ErrTooManyContexts, len(seen))
		}
		contexts = append(contexts, &types.PresentationContext{
			ID:                       byte(2*len(contexts) + 1),
			AbstractSyntax:           uid,
			ProposedTransferSyntaxes: n.Catalog.TransferSyntaxesFor(uid),
		})
	}
	return contexts, nil
}

// Accept decides every proposed context and returns the answered contexts in
// proposal order. For each context the first proposed transfer syntax the
// acceptor supports wins. When nothing is accepted the returned error is an
// *errors.AssociationError wrapping ErrNoAcceptablePresentationContexts.
func (n *Negotiator) Accept(proposed []*types.PresentationContext) ([]*types.PresentationContext, error) {
	answered := make([]*types.PresentationContext, 0, len(proposed))
	accepted := 0
	for _, pc := range proposed {
		out := &types.PresentationContext{
			ID:                       pc.ID,
			AbstractSyntax:           pc.AbstractSyntax,
			ProposedTransferSyntaxes: pc.ProposedTransferSyntaxes,
		}
		switch {
		case len(pc.ProposedTransferSyntaxes) == 0:
			out.Result = types.ResultProviderRejection
		case !n.Capabilities.SupportsAbstractSyntax(pc.AbstractSyntax):
			out.Result = types.ResultAbstractSyntaxNotSupported
		default:
			out.Result = types.ResultTransferSyntaxesNotSupported
			for _, ts := range pc.ProposedTransferSyntaxes {
				if n.Capabilities.Supports(pc.AbstractSyntax, ts) {
					out.TransferSyntax = ts
					out.Result = types.ResultAcceptance
					accepted++
					break
				}
			}
		}

		n.logger().Debug("Presentation context decided",
			"context_id", out.ID,
			"abstract_syntax", pc.AbstractSyntax,
			"transfer_syntax", out.TransferSyntax,
			"result", types.ResultName(out.Result))
		answered = append(answered, out)
	}

	if accepted == 0 {
		return answered, dicomerrors.NoAcceptableContexts()
	}
	return answered, nil
}

// Describe renders contexts as a table. Undecided contexts list their
// proposed transfer syntaxes, decided ones the result.
func Describe(contexts []*types.PresentationContext) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tABSTRACT SYNTAX\tTRANSFER SYNTAX\tRESULT")
	for _, pc := range contexts {
		name := pc.AbstractSyntax
		if info := types.GetSOPClassInfo(pc.AbstractSyntax); info.Category != types.CategoryUnknown {
			name = info.Name
		}
		if pc.TransferSyntax == "" && pc.Result == types.ResultAcceptance {
			for i, ts := range pc.ProposedTransferSyntaxes {
				id, abstract, result := "", "", ""
				if i == 0 {
					id, abstract, result = fmt.Sprint(pc.ID), name, "proposed"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, abstract, transferSyntaxName(ts), result)
			}
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", pc.ID, name, transferSyntaxName(pc.TransferSyntax), types.ResultName(pc.Result))
	}
	_ = w.Flush()
	return sb.String()
}

func transferSyntaxName(uid string) string {
	if uid == "" {
		return "-"
	}
	if ts, ok := types.LookupTransferSyntax(uid); ok {
		return ts.Name()
	}
	return uid
}
