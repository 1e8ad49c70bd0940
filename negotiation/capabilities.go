package negotiation

import (
	"sort"

	"github.com/caio-sobreiro/dicomstore/codec"
	"github.com/caio-sobreiro/dicomstore/types"
)

// Capabilities is what an acceptor supports: a set of transfer syntaxes and,
// optionally, an allow-list of abstract syntaxes. Without an allow-list the
// verification class and every storage SOP class are supported.
type Capabilities struct {
	transferSyntaxes map[string]struct{}
	abstractSyntaxes map[string]struct{}
}

// NewCapabilities supports transferSyntaxes for abstractSyntaxes, or for the
// default set when none are given.
func NewCapabilities(transferSyntaxes []string, abstractSyntaxes ...string) *Capabilities {
	c := &Capabilities{transferSyntaxes: make(map[string]struct{}, len(transferSyntaxes))}
	for _, uid := range transferSyntaxes {
		c.transferSyntaxes[uid] = struct{}{}
	}
	if len(abstractSyntaxes) > 0 {
		c.abstractSyntaxes = make(map[string]struct{}, len(abstractSyntaxes))
		for _, uid := range abstractSyntaxes {
			c.abstractSyntaxes[uid] = struct{}{}
		}
	}
	return c
}

// NativeCapabilities supports the uncompressed little endian syntaxes only.
func NativeCapabilities() *Capabilities {
	return NewCapabilities(nativeAcceptable())
}

// CapabilitiesFromConfig supports the native syntaxes plus every compressed
// syntax enabled in cfg. Received instances are stored as sent, so accepting
// a compressed syntax needs no codec.
func CapabilitiesFromConfig(cfg CompressionConfig) *Capabilities {
	return NewCapabilities(append(nativeAcceptable(), cfg.Enabled()...))
}

// CapabilitiesFor supports the native syntaxes plus every syntax codecs can
// encode and decode.
func CapabilitiesFor(codecs *codec.Registry) *Capabilities {
	return NewCapabilities(append(nativeAcceptable(), codecs.TransferSyntaxes()...))
}

func nativeAcceptable() []string {
	return append(types.NativeTransferSyntaxes(), types.DeflatedExplicitVRLittleEndian)
}

// SupportsAbstractSyntax reports whether uid may be negotiated at all.
func (c *Capabilities) SupportsAbstractSyntax(uid string) bool {
	if c.abstractSyntaxes != nil {
		_, ok := c.abstractSyntaxes[uid]
		return ok
	}
	return uid == types.VerificationSOPClass || types.IsStorageSOPClass(uid)
}

// Supports reports whether transferSyntax is acceptable for abstractSyntax.
// Encapsulated syntaxes are only acceptable for image storage classes.
func (c *Capabilities) Supports(abstractSyntax, transferSyntax string) bool {
	if _, ok := c.transferSyntaxes[transferSyntax]; !ok {
		return false
	}
	if types.IsEncapsulated(transferSyntax) && !types.IsImageStorageSOPClass(abstractSyntax) {
		return false
	}
	return true
}

// TransferSyntaxes returns the supported transfer syntaxes in sorted order.
func (c *Capabilities) TransferSyntaxes() []string {
	out := make([]string, 0, len(c.transferSyntaxes))
	for uid := range c.transferSyntaxes {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}
