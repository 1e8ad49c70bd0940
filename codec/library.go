package codec

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"github.com/cocosip/go-dicom/pkg/dicom/parser"
	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"github.com/cocosip/go-dicom/pkg/imaging"
	dicomcodec "github.com/cocosip/go-dicom/pkg/imaging/codec"

	// Each package registers its codecs with the transcoder.
	_ "github.com/cocosip/go-dicom-codec/jpeg/baseline"
	_ "github.com/cocosip/go-dicom-codec/jpeg/extended"
	_ "github.com/cocosip/go-dicom-codec/jpeg/lossless"
	_ "github.com/cocosip/go-dicom-codec/jpeg/lossless14sv1"
	_ "github.com/cocosip/go-dicom-codec/jpeg2000/lossless"
	_ "github.com/cocosip/go-dicom-codec/jpeg2000/lossy"
	_ "github.com/cocosip/go-dicom-codec/jpegls/lossless"

	"github.com/caio-sobreiro/dicomstore/dicom"
	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/types"
)

// stagingInstanceUID identifies the throwaway instances frames travel in.
const stagingInstanceUID = "2.25.163521148253116227617428185367420263771"

// frameLimits is what a compression process can represent.
type frameLimits struct {
	bitsAllocated []int
	maxBitsStored int
	colour        bool
	signed        bool
}

func (l frameLimits) check(info FrameInfo) error {
	if info.Rows <= 0 || info.Columns <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", info.Columns, info.Rows)
	}
	if !slices.Contains(l.bitsAllocated, info.BitsAllocated) {
		return fmt.Errorf("%d bits allocated not supported", info.BitsAllocated)
	}
	stored := info.BitsStored
	if stored == 0 {
		stored = info.BitsAllocated
	}
	if stored > l.maxBitsStored {
		return fmt.Errorf("%d bits stored exceeds %d", stored, l.maxBitsStored)
	}
	switch info.SamplesPerPixel {
	case 1:
	case 3:
		if !l.colour {
			return fmt.Errorf("colour frames not supported")
		}
	default:
		return fmt.Errorf("%d samples per pixel not supported", info.SamplesPerPixel)
	}
	if info.PixelRepresentation != 0 && !l.signed {
		return fmt.Errorf("signed samples not supported")
	}
	return nil
}

// LibraryCodec adapts a go-dicom-codec transfer syntax to Codec. The library
// transcodes whole data sets, so every frame travels through a one-frame
// Part 10 file.
type LibraryCodec struct {
	uid    string
	limits frameLimits
	// colour is the photometric interpretation of encoded colour frames.
	// Empty keeps the native one.
	colour string
}

// NewJPEGBaselineCodec returns the JPEG Baseline (Process 1) codec: 8-bit
// unsigned samples, colour stored as YBR_FULL_422.
func NewJPEGBaselineCodec() *LibraryCodec {
	return &LibraryCodec{
		uid:    types.JPEGBaseline8Bit,
		limits: frameLimits{bitsAllocated: []int{8}, maxBitsStored: 8, colour: true},
		colour: "YBR_FULL_422",
	}
}

// NewJPEGExtendedCodec returns the JPEG Extended (Process 2 & 4) codec for
// monochrome frames of up to 12 bits.
func NewJPEGExtendedCodec() *LibraryCodec {
	return &LibraryCodec{
		uid:    types.JPEGExtended12Bit,
		limits: frameLimits{bitsAllocated: []int{8, 16}, maxBitsStored: 12},
	}
}

// NewJPEGLosslessCodec returns the JPEG Lossless (Process 14) codec.
func NewJPEGLosslessCodec() *LibraryCodec {
	return &LibraryCodec{
		uid:    types.JPEGLossless,
		limits: frameLimits{bitsAllocated: []int{8, 16}, maxBitsStored: 16, colour: true, signed: true},
	}
}

// NewJPEGLosslessSV1Codec returns the JPEG Lossless first-order prediction codec.
func NewJPEGLosslessSV1Codec() *LibraryCodec {
	return &LibraryCodec{
		uid:    types.JPEGLosslessSV1,
		limits: frameLimits{bitsAllocated: []int{8, 16}, maxBitsStored: 16, colour: true, signed: true},
	}
}

// NewJPEGLSLosslessCodec returns the JPEG-LS Lossless codec.
func NewJPEGLSLosslessCodec() *LibraryCodec {
	return &LibraryCodec{
		uid:    types.JPEGLSLossless,
		limits: frameLimits{bitsAllocated: []int{8, 16}, maxBitsStored: 16, colour: true, signed: true},
	}
}

// NewJPEG2000LosslessCodec returns the JPEG 2000 Lossless Only codec. Colour
// goes through the reversible component transform.
func NewJPEG2000LosslessCodec() *LibraryCodec {
	return &LibraryCodec{
		uid:    types.JPEG2000Lossless,
		limits: frameLimits{bitsAllocated: []int{8, 16}, maxBitsStored: 16, colour: true, signed: true},
		colour: "YBR_RCT",
	}
}

// NewJPEG2000Codec returns the lossy JPEG 2000 codec.
func NewJPEG2000Codec() *LibraryCodec {
	return &LibraryCodec{
		uid:    types.JPEG2000,
		limits: frameLimits{bitsAllocated: []int{8, 16}, maxBitsStored: 16, colour: true, signed: true},
		colour: "YBR_ICT",
	}
}

func (c *LibraryCodec) TransferSyntaxUID() string { return c.uid }

// EncodedFrameInfo reports the description of frames after encoding.
func (c *LibraryCodec) EncodedFrameInfo(native FrameInfo) FrameInfo {
	out := native
	if native.SamplesPerPixel == 3 && c.colour != "" {
		out.PhotometricInterpretation = c.colour
		out.PlanarConfiguration = 0
	}
	return out
}

// DecodedFrameInfo reports the description of decoded frames. Colour is
// always returned as interleaved RGB.
func (c *LibraryCodec) DecodedFrameInfo(encoded FrameInfo) FrameInfo {
	out := encoded
	if encoded.SamplesPerPixel == 3 {
		out.PhotometricInterpretation = "RGB"
		out.PlanarConfiguration = 0
	}
	return out
}

func (c *LibraryCodec) Encode(native []byte, info FrameInfo) ([]byte, error) {
	if err := c.limits.check(info); err != nil {
		return nil, dicomerrors.NewCodecError(c.uid, "encode", err)
	}
	if len(native) < info.NativeLength() {
		return nil, dicomerrors.NewCodecError(c.uid, "encode",
			fmt.Errorf("frame holds %d bytes, need %d", len(native), info.NativeLength()))
	}

	px := pixelModule(info)
	px.Native = native[:info.NativeLength()]
	src, err := stage(px, types.ExplicitVRLittleEndian)
	if err != nil {
		return nil, dicomerrors.NewCodecError(c.uid, "encode", err)
	}
	defer os.Remove(src)
	// The library names transfer syntaxes by its own values; a header-only
	// file declaring ours yields the matching one.
	dst, err := stage(nil, c.uid)
	if err != nil {
		return nil, dicomerrors.NewCodecError(c.uid, "encode", err)
	}
	defer os.Remove(dst)

	in, err := parser.ParseFile(src, parser.WithReadOption(parser.ReadAll))
	if err != nil {
		return nil, dicomerrors.NewCodecError(c.uid, "encode", err)
	}
	target, err := parser.ParseFile(dst, parser.WithReadOption(parser.ReadAll))
	if err != nil {
		return nil, dicomerrors.NewCodecError(c.uid, "encode", err)
	}
	out, err := dicomcodec.NewTranscoder(in.TransferSyntax, target.TransferSyntax).Transcode(in.Dataset)
	if err != nil {
		return nil, dicomerrors.NewCodecError(c.uid, "encode", err)
	}
	pd, err := imaging.CreatePixelData(out)
	if err != nil {
		return nil, dicomerrors.NewCodecError(c.uid, "encode", err)
	}
	frame, err := pd.GetFrame(0)
	if err != nil {
		return nil, dicomerrors.NewCodecError(c.uid, "encode", err)
	}
	return bytes.Clone(frame), nil
}

func (c *LibraryCodec) Decode(encoded []byte, info FrameInfo) ([]byte, error) {
	if err := c.limits.check(info); err != nil {
		return nil, dicomerrors.NewCodecError(c.uid, "decode", err)
	}

	px := pixelModule(info)
	px.SetEncapsulatedFrames([][]byte{encoded})
	src, err := stage(px, c.uid)
	if err != nil {
		return nil, dicomerrors.NewCodecError(c.uid, "decode", err)
	}
	defer os.Remove(src)

	in, err := parser.ParseFile(src, parser.WithReadOption(parser.ReadAll))
	if err != nil {
		return nil, dicomerrors.NewCodecError(c.uid, "decode", err)
	}
	out, err := dicomcodec.NewTranscoder(in.TransferSyntax, transfer.ExplicitVRLittleEndian).Transcode(in.Dataset)
	if err != nil {
		return nil, dicomerrors.NewCodecError(c.uid, "decode", err)
	}
	pd, err := imaging.CreatePixelData(out)
	if err != nil {
		return nil, dicomerrors.NewCodecError(c.uid, "decode", err)
	}
	frame, err := pd.GetFrame(0)
	if err != nil {
		return nil, dicomerrors.NewCodecError(c.uid, "decode", err)
	}
	decoded := c.DecodedFrameInfo(info)
	if len(frame) < decoded.NativeLength() {
		return nil, dicomerrors.NewCodecError(c.uid, "decode",
			fmt.Errorf("decoded %d bytes, frame needs %d", len(frame), decoded.NativeLength()))
	}
	return bytes.Clone(frame[:decoded.NativeLength()]), nil
}

func pixelModule(info FrameInfo) *dicom.PixelData {
	stored := info.BitsStored
	if stored == 0 {
		stored = info.BitsAllocated
	}
	return &dicom.PixelData{
		Rows:                      info.Rows,
		Columns:                   info.Columns,
		BitsAllocated:             info.BitsAllocated,
		BitsStored:                stored,
		HighBit:                   stored - 1,
		SamplesPerPixel:           info.SamplesPerPixel,
		PlanarConfiguration:       info.PlanarConfiguration,
		PixelRepresentation:       info.PixelRepresentation,
		NumberOfFrames:            1,
		PhotometricInterpretation: info.PhotometricInterpretation,
	}
}

// stage writes a Part 10 file in transferSyntaxUID holding px and returns
// its path. A nil px writes identifying attributes only.
func stage(px *dicom.PixelData, transferSyntaxUID string) (string, error) {
	ds := dicom.NewDataset()
	ds.SetString(dicom.TagSOPClassUID, dicom.VR_UI, types.SecondaryCaptureImageStorage)
	ds.SetString(dicom.TagSOPInstanceUID, dicom.VR_UI, stagingInstanceUID)
	if px != nil {
		px.Apply(ds)
	}

	f, err := os.CreateTemp("", "dicomstore-frame-*.dcm")
	if err != nil {
		return "", err
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	err = dicom.WriteFile(path, &dicom.File{
		Meta:    dicom.NewFileMeta(types.SecondaryCaptureImageStorage, stagingInstanceUID, transferSyntaxUID, ""),
		Dataset: ds,
	})
	if err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
