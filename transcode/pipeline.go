// Package transcode converts Part 10 instances between transfer syntaxes.
package transcode

import (
	"fmt"
	"log/slog"

	"github.com/caio-sobreiro/dicomstore/codec"
	"github.com/caio-sobreiro/dicomstore/dicom"
	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/types"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger overrides the logger used by the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Pipeline converts instances using the codecs of a registry. Compressed to
// compressed conversions always go through native Explicit VR Little Endian.
type Pipeline struct {
	codecs *codec.Registry
	logger *slog.Logger
}

// NewPipeline creates a pipeline. A nil registry uses codec.DefaultRegistry.
func NewPipeline(codecs *codec.Registry, opts ...Option) *Pipeline {
	if codecs == nil {
		codecs = codec.DefaultRegistry()
	}
	p := &Pipeline{codecs: codecs}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Codecs returns the registry the pipeline encodes and decodes with.
func (p *Pipeline) Codecs() *codec.Registry {
	return p.codecs
}

// CanTranscode reports whether an instance encoded in from can be converted to to.
func (p *Pipeline) CanTranscode(from, to string) bool {
	if from == to {
		return true
	}
	src, ok := types.LookupTransferSyntax(from)
	if !ok || src.BigEndian() {
		return false
	}
	dst, ok := types.LookupTransferSyntax(to)
	if !ok || dst.BigEndian() {
		return false
	}
	if src.Encapsulated() && !p.codecs.Has(from) {
		return false
	}
	if dst.Encapsulated() && !p.codecs.Has(to) {
		return false
	}
	return true
}

// Transcode returns a copy of f encoded in transfer syntax to. The input is
// never modified; on error it is still intact. When f is already in to it
// is returned unchanged.
func (p *Pipeline) Transcode(f *dicom.File, to string) (*dicom.File, error) {
	from := f.TransferSyntaxUID()
	if from == to {
		return f, nil
	}
	src, ok := types.LookupTransferSyntax(from)
	if !ok || src.BigEndian() {
		return nil, fmt.Errorf("%w: source %s", dicomerrors.ErrUnsupportedTransfer, from)
	}
	dst, ok := types.LookupTransferSyntax(to)
	if !ok || dst.BigEndian() {
		return nil, fmt.Errorf("%w: target %s", dicomerrors.ErrUnsupportedTransfer, to)
	}

	out := f.Clone()
	ds := out.Dataset

	if !src.Encapsulated() {
		n, err := NormalizeOverlays(ds, from)
		if err != nil {
			return nil, fmt.Errorf("normalize overlays: %w", err)
		}
		if n > 0 {
			p.logger.Debug("Extracted embedded overlays", "groups", n, "sop_instance_uid", out.SOPInstanceUID())
		}
	}

	if _, hasPixels := ds.GetElement(dicom.TagPixelData); hasPixels && (src.Encapsulated() || dst.Encapsulated()) {
		if err := p.convertPixels(ds, src, dst); err != nil {
			return nil, err
		}
	}
	if dst.Lossy() {
		ds.SetString(dicom.TagLossyImageCompression, dicom.VR_CS, "01")
	}
	out.Meta.SetString(dicom.TagTransferSyntaxUID, dicom.VR_UI, to)

	p.logger.Debug("Transcoded instance",
		"sop_instance_uid", out.SOPInstanceUID(),
		"from", src.Name(),
		"to", dst.Name())
	return out, nil
}

func (p *Pipeline) convertPixels(ds *dicom.Dataset, src, dst *types.TransferSyntax) error {
	px, err := dicom.ExtractPixelData(ds, src.UID())
	if err != nil {
		return err
	}
	frames, err := px.Frames()
	if err != nil {
		return err
	}
	info := frameInfo(px)

	if src.Encapsulated() {
		dec, err := p.codecs.Lookup(src.UID())
		if err != nil {
			return err
		}
		if d, ok := dec.(codec.DecodedInfo); ok {
			info = d.DecodedFrameInfo(info)
		}
		native := make([][]byte, len(frames))
		for i, frame := range frames {
			if native[i], err = dec.Decode(frame, info); err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
		}
		frames = native
		setFrameInfo(px, info)
		px.SetNativeFrames(frames)
	}

	if dst.Encapsulated() {
		enc, err := p.codecs.Lookup(dst.UID())
		if err != nil {
			return err
		}
		encoded := make([][]byte, len(frames))
		for i, frame := range frames {
			if encoded[i], err = enc.Encode(frame, info); err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
		}
		if e, ok := enc.(codec.EncodedInfo); ok {
			info = e.EncodedFrameInfo(info)
		}
		setFrameInfo(px, info)
		px.SetEncapsulatedFrames(encoded)
	}

	px.Apply(ds)
	return nil
}

func frameInfo(px *dicom.PixelData) codec.FrameInfo {
	return codec.FrameInfo{
		Rows:                      px.Rows,
		Columns:                   px.Columns,
		BitsAllocated:             px.BitsAllocated,
		BitsStored:                px.BitsStored,
		SamplesPerPixel:           px.SamplesPerPixel,
		PlanarConfiguration:       px.PlanarConfiguration,
		PixelRepresentation:       px.PixelRepresentation,
		PhotometricInterpretation: px.PhotometricInterpretation,
	}
}

func setFrameInfo(px *dicom.PixelData, info codec.FrameInfo) {
	px.PlanarConfiguration = info.PlanarConfiguration
	px.PhotometricInterpretation = info.PhotometricInterpretation
}
