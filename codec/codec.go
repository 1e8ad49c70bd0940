// Package codec converts pixel data frames between native and encapsulated
// representations, one codec per transfer syntax.
package codec

import (
	"fmt"
	"sort"
	"sync"

	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/types"
)

// FrameInfo describes the native layout of a single frame.
type FrameInfo struct {
	Rows                      int
	Columns                   int
	BitsAllocated             int
	BitsStored                int
	SamplesPerPixel           int
	PlanarConfiguration       int
	PixelRepresentation       int
	PhotometricInterpretation string
}

// NativeLength returns the size of one native frame in bytes.
func (f FrameInfo) NativeLength() int {
	return f.Rows * f.Columns * f.SamplesPerPixel * (f.BitsAllocated / 8)
}

// Codec encodes and decodes single frames for one transfer syntax.
type Codec interface {
	TransferSyntaxUID() string
	// Encode compresses one native frame.
	Encode(native []byte, info FrameInfo) ([]byte, error)
	// Decode expands one compressed frame to native little endian samples.
	Decode(encoded []byte, info FrameInfo) ([]byte, error)
}

// EncodedInfo is implemented by codecs that change the pixel description of
// the frames they produce, e.g. the photometric interpretation of JPEG colour.
type EncodedInfo interface {
	EncodedFrameInfo(native FrameInfo) FrameInfo
}

// DecodedInfo is implemented by codecs whose decoded frames differ in pixel
// description from the encoded ones.
type DecodedInfo interface {
	DecodedFrameInfo(encoded FrameInfo) FrameInfo
}

// Registry maps transfer syntax UIDs to codecs. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry creates a registry holding codecs.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{codecs: make(map[string]Codec)}
	for _, c := range codecs {
		r.Register(c)
	}
	return r
}

// DefaultRegistry holds RLE and every codec go-dicom-codec provides.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewRLECodec(),
		NewJPEGBaselineCodec(),
		NewJPEGExtendedCodec(),
		NewJPEGLosslessCodec(),
		NewJPEGLosslessSV1Codec(),
		NewJPEGLSLosslessCodec(),
		NewJPEG2000LosslessCodec(),
		NewJPEG2000Codec(),
	)
}

// Register adds or replaces the codec for its transfer syntax.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.TransferSyntaxUID()] = c
}

// Lookup returns the codec registered for uid.
func (r *Registry) Lookup(uid string) (Codec, error) {
	r.mu.RLock()
	c, ok := r.codecs[uid]
	r.mu.RUnlock()
	if !ok {
		name := uid
		if ts, known := types.LookupTransferSyntax(uid); known {
			name = ts.Name()
		}
		return nil, fmt.Errorf("%w: no codec for %s", dicomerrors.ErrUnsupportedTransfer, name)
	}
	return c, nil
}

// Has reports whether a codec is registered for uid.
func (r *Registry) Has(uid string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.codecs[uid]
	return ok
}

// TransferSyntaxes returns the registered UIDs in sorted order.
func (r *Registry) TransferSyntaxes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.codecs))
	for uid := range r.codecs {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}
