// Package negotiation decides which presentation contexts an association
// proposes and which it accepts.
package negotiation

import (
	"github.com/caio-sobreiro/dicomstore/types"
)

// CompressionConfig enables compressed transfer syntaxes. Each flag is independent.
type CompressionConfig struct {
	JPEGLossless     bool `yaml:"jpeg_lossless" json:"jpeg_lossless"`
	JPEGLossy        bool `yaml:"jpeg_lossy" json:"jpeg_lossy"`
	JPEG2000Lossless bool `yaml:"jpeg2000_lossless" json:"jpeg2000_lossless"`
	JPEG2000Lossy    bool `yaml:"jpeg2000_lossy" json:"jpeg2000_lossy"`
	RLE              bool `yaml:"rle" json:"rle"`
}

// Enabled returns the enabled compressed transfer syntaxes, most preferred first.
func (c CompressionConfig) Enabled() []string {
	var out []string
	if c.JPEG2000Lossless {
		out = append(out, types.JPEG2000Lossless)
	}
	if c.JPEGLossless {
		out = append(out, types.JPEGLosslessSV1)
	}
	if c.RLE {
		out = append(out, types.RLELossless)
	}
	if c.JPEG2000Lossy {
		out = append(out, types.JPEG2000)
	}
	if c.JPEGLossy {
		out = append(out, types.JPEGBaseline8Bit)
	}
	return out
}

// Catalog builds the ordered transfer syntax list proposed for an abstract syntax.
type Catalog struct {
	Compression CompressionConfig
}

// NewCatalog returns a catalog for the given compression settings.
func NewCatalog(compression CompressionConfig) *Catalog {
	return &Catalog{Compression: compression}
}

// TransferSyntaxesFor returns the transfer syntaxes to propose for
// abstractSyntax. Image storage classes get the enabled compressed syntaxes
// first; every list ends with Explicit VR then Implicit VR Little Endian.
func (c *Catalog) TransferSyntaxesFor(abstractSyntax string) []string {
	var out []string
	if types.IsImageStorageSOPClass(abstractSyntax) {
		out = append(out, c.Compression.Enabled()...)
	}
	return append(out, types.NativeTransferSyntaxes()...)
}
