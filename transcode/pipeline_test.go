package transcode

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomstore/codec"
	"github.com/caio-sobreiro/dicomstore/dicom"
	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/types"
)

// recordingCodec tags encoded frames with its UID and records every call.
type recordingCodec struct {
	uid   string
	calls *[]string
}

func (c *recordingCodec) TransferSyntaxUID() string { return c.uid }

func (c *recordingCodec) Encode(native []byte, info codec.FrameInfo) ([]byte, error) {
	*c.calls = append(*c.calls, "encode "+c.uid)
	return append([]byte(c.uid+":"), native...), nil
}

func (c *recordingCodec) Decode(encoded []byte, info codec.FrameInfo) ([]byte, error) {
	*c.calls = append(*c.calls, "decode "+c.uid)
	prefix := c.uid + ":"
	if len(encoded) < len(prefix) || string(encoded[:len(prefix)]) != prefix {
		return nil, fmt.Errorf("%s cannot decode a foreign bitstream", c.uid)
	}
	return encoded[len(prefix):], nil
}

func quietPipeline(codecs *codec.Registry) *Pipeline {
	return NewPipeline(codecs, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func nativeFile(t *testing.T, bits int, pixels []byte) *dicom.File {
	t.Helper()
	ds := dicom.NewDataset()
	ds.SetString(dicom.TagSOPClassUID, dicom.VR_UI, types.CTImageStorage)
	ds.SetString(dicom.TagSOPInstanceUID, dicom.VR_UI, "1.2.3.4")
	px := &dicom.PixelData{
		Rows:                      2,
		Columns:                   4,
		BitsAllocated:             bits,
		BitsStored:                bits,
		HighBit:                   bits - 1,
		SamplesPerPixel:           1,
		NumberOfFrames:            1,
		PhotometricInterpretation: "MONOCHROME2",
		Native:                    pixels,
	}
	px.Apply(ds)
	return &dicom.File{
		Meta:    dicom.NewFileMeta(types.CTImageStorage, "1.2.3.4", types.ExplicitVRLittleEndian, "SCU"),
		Dataset: ds,
	}
}

func encoded(t *testing.T, f *dicom.File) []byte {
	t.Helper()
	b, err := f.Encode()
	require.NoError(t, err)
	return b
}

func TestTranscode_RLERoundTripIsBitIdentical(t *testing.T) {
	original := []byte{0, 1, 2, 3, 200, 201, 202, 203, 4, 4, 4, 4, 9, 8, 7, 6}
	f := nativeFile(t, 16, original)
	p := quietPipeline(codec.DefaultRegistry())

	rle, err := p.Transcode(f, types.RLELossless)
	require.NoError(t, err)
	assert.Equal(t, types.RLELossless, rle.TransferSyntaxUID())
	px, err := dicom.ExtractPixelData(rle.Dataset, types.RLELossless)
	require.NoError(t, err)
	assert.True(t, px.Encapsulated)

	back, err := p.Transcode(rle, types.ExplicitVRLittleEndian)
	require.NoError(t, err)
	px, err = dicom.ExtractPixelData(back.Dataset, types.ExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.Equal(t, original, px.Native)
	assert.Empty(t, back.Dataset.GetString(dicom.TagLossyImageCompression))
}

func TestTranscode_JPEG2000LosslessRoundTrip(t *testing.T) {
	original := make([]byte, 16)
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint16(original[i*2:], uint16(i*300))
	}
	p := quietPipeline(codec.DefaultRegistry())

	j2k, err := p.Transcode(nativeFile(t, 16, original), types.JPEG2000Lossless)
	require.NoError(t, err)
	px, err := dicom.ExtractPixelData(j2k.Dataset, types.JPEG2000Lossless)
	require.NoError(t, err)
	assert.True(t, px.Encapsulated)

	back, err := p.Transcode(j2k, types.ExplicitVRLittleEndian)
	require.NoError(t, err)
	px, err = dicom.ExtractPixelData(back.Dataset, types.ExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.Equal(t, original, px.Native)
}

func TestTranscode_CompressedToCompressedGoesThroughNative(t *testing.T) {
	var calls []string
	registry := codec.NewRegistry(
		&recordingCodec{uid: types.JPEG2000Lossless, calls: &calls},
		&recordingCodec{uid: types.JPEGLosslessSV1, calls: &calls},
	)
	p := quietPipeline(registry)

	native := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	j2k, err := p.Transcode(nativeFile(t, 8, native), types.JPEG2000Lossless)
	require.NoError(t, err)
	calls = nil

	out, err := p.Transcode(j2k, types.JPEGLosslessSV1)
	require.NoError(t, err)
	assert.Equal(t, []string{"decode " + types.JPEG2000Lossless, "encode " + types.JPEGLosslessSV1}, calls)

	px, err := dicom.ExtractPixelData(out.Dataset, types.JPEGLosslessSV1)
	require.NoError(t, err)
	frame, err := px.Frame(0)
	require.NoError(t, err)
	assert.Equal(t, append([]byte(types.JPEGLosslessSV1+":"), native...), frame)
}

func TestTranscode_UnsupportedTargetLeavesInputIntact(t *testing.T) {
	f := nativeFile(t, 8, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	before := encoded(t, f)

	_, err := quietPipeline(codec.DefaultRegistry()).Transcode(f, types.HTJ2KLossless)
	require.ErrorIs(t, err, dicomerrors.ErrUnsupportedTransfer)
	assert.Equal(t, before, encoded(t, f))

	_, err = quietPipeline(nil).Transcode(f, "1.2.3.999")
	assert.ErrorIs(t, err, dicomerrors.ErrUnsupportedTransfer)
}

func TestTranscode_CodecErrorLeavesInputIntact(t *testing.T) {
	f := nativeFile(t, 16, make([]byte, 16))
	before := encoded(t, f)

	_, err := quietPipeline(nil).Transcode(f, types.JPEGBaseline8Bit)
	var codecErr *dicomerrors.CodecError
	require.ErrorAs(t, err, &codecErr)
	assert.Equal(t, types.JPEGBaseline8Bit, codecErr.TransferSyntax)
	assert.Equal(t, before, encoded(t, f))
	assert.Equal(t, types.ExplicitVRLittleEndian, f.TransferSyntaxUID())
}

func TestTranscode_LossyTargetMarksInstance(t *testing.T) {
	pixels := make([]byte, 8)
	for i := range pixels {
		pixels[i] = 100
	}
	out, err := quietPipeline(nil).Transcode(nativeFile(t, 8, pixels), types.JPEGBaseline8Bit)
	require.NoError(t, err)
	assert.Equal(t, "01", out.Dataset.GetString(dicom.TagLossyImageCompression))
}

func TestTranscode_NativeToNativeRelabels(t *testing.T) {
	pixels := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	f := nativeFile(t, 8, pixels)

	out, err := quietPipeline(nil).Transcode(f, types.ImplicitVRLittleEndian)
	require.NoError(t, err)
	assert.Equal(t, types.ImplicitVRLittleEndian, out.TransferSyntaxUID())
	assert.Equal(t, pixels, out.Dataset.GetBytes(dicom.TagPixelData))
	assert.Equal(t, types.ExplicitVRLittleEndian, f.TransferSyntaxUID())

	same, err := quietPipeline(nil).Transcode(f, types.ExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.Same(t, f, same)
}

func TestPipeline_CanTranscode(t *testing.T) {
	p := quietPipeline(codec.DefaultRegistry())
	tests := []struct {
		from, to string
		want     bool
	}{
		{types.ExplicitVRLittleEndian, types.ExplicitVRLittleEndian, true},
		{types.ExplicitVRLittleEndian, types.ImplicitVRLittleEndian, true},
		{types.ImplicitVRLittleEndian, types.DeflatedExplicitVRLittleEndian, true},
		{types.ExplicitVRLittleEndian, types.RLELossless, true},
		{types.RLELossless, types.JPEGBaseline8Bit, true},
		{types.JPEGBaseline8Bit, types.ImplicitVRLittleEndian, true},
		{types.ExplicitVRLittleEndian, types.JPEG2000Lossless, true},
		{types.JPEG2000Lossless, types.JPEGLosslessSV1, true},
		{types.JPEGLSLossless, types.ExplicitVRLittleEndian, true},
		{types.ExplicitVRLittleEndian, types.HTJ2KLossless, false},
		{types.MPEG2MainProfile, types.ExplicitVRLittleEndian, false},
		{types.ExplicitVRBigEndian, types.ExplicitVRLittleEndian, false},
		{"1.2.3", types.ExplicitVRLittleEndian, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.CanTranscode(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func overlayFile(t *testing.T, bitPosition uint16) *dicom.File {
	t.Helper()
	pixels := make([]byte, 16)
	for i := 0; i < 8; i++ {
		v := uint16(0x0020 + i)
		if i%2 == 0 {
			v |= 1 << bitPosition
		}
		binary.LittleEndian.PutUint16(pixels[i*2:], v)
	}
	f := nativeFile(t, 16, pixels)
	ds := f.Dataset
	ds.SetUint16(dicom.TagBitsStored, 12)
	ds.SetUint16(dicom.TagHighBit, 11)
	ds.SetUint16(dicom.OverlayTag(0x6000, dicom.OverlayRows), 2)
	ds.SetUint16(dicom.OverlayTag(0x6000, dicom.OverlayColumns), 4)
	ds.SetString(dicom.OverlayTag(0x6000, dicom.OverlayType), dicom.VR_CS, "G")
	ds.SetUint16(dicom.OverlayTag(0x6000, dicom.OverlayBitsAllocated), 16)
	ds.SetUint16(dicom.OverlayTag(0x6000, dicom.OverlayBitPosition), bitPosition)
	return f
}

func TestNormalizeOverlays_ExtractsAndClearsHighBits(t *testing.T) {
	f := overlayFile(t, 15)
	ds := f.Dataset

	n, err := NormalizeOverlays(ds, types.ExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []byte{0x55, 0x00}, ds.GetBytes(dicom.OverlayTag(0x6000, dicom.OverlayData)))
	bitsAllocated, _ := ds.GetUint16(dicom.OverlayTag(0x6000, dicom.OverlayBitsAllocated))
	bitPosition, _ := ds.GetUint16(dicom.OverlayTag(0x6000, dicom.OverlayBitPosition))
	assert.Equal(t, uint16(1), bitsAllocated)
	assert.Equal(t, uint16(0), bitPosition)

	samples := ds.GetUint16s(dicom.TagPixelData)
	for i, v := range samples {
		assert.Equal(t, uint16(0x0020+i), v, "sample %d", i)
	}
}

func TestNormalizeOverlays_IsIdempotent(t *testing.T) {
	f := overlayFile(t, 15)
	_, err := NormalizeOverlays(f.Dataset, types.ExplicitVRLittleEndian)
	require.NoError(t, err)
	once := encoded(t, f)

	n, err := NormalizeOverlays(f.Dataset, types.ExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, once, encoded(t, f))
}

func TestNormalizeOverlays_KeepsBitsInsideBitsStored(t *testing.T) {
	f := overlayFile(t, 8)
	before := append([]byte(nil), f.Dataset.GetBytes(dicom.TagPixelData)...)

	n, err := NormalizeOverlays(f.Dataset, types.ExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, before, f.Dataset.GetBytes(dicom.TagPixelData))
	assert.Equal(t, []byte{0x55, 0x00}, f.Dataset.GetBytes(dicom.OverlayTag(0x6000, dicom.OverlayData)))
}

func TestNormalizeOverlays_MultiFrame(t *testing.T) {
	pixels := make([]byte, 32)
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint16(pixels[i*2:], 0x0020)
	}
	// Frame 0 marks its last sample, frame 1 its first.
	binary.LittleEndian.PutUint16(pixels[14:], 0x8020)
	binary.LittleEndian.PutUint16(pixels[16:], 0x8020)

	f := nativeFile(t, 16, pixels)
	ds := f.Dataset
	ds.SetString(dicom.TagNumberOfFrames, dicom.VR_IS, "2")
	ds.SetUint16(dicom.TagBitsStored, 12)
	ds.SetUint16(dicom.TagHighBit, 11)
	ds.SetUint16(dicom.OverlayTag(0x6000, dicom.OverlayRows), 2)
	ds.SetUint16(dicom.OverlayTag(0x6000, dicom.OverlayColumns), 4)
	ds.SetString(dicom.OverlayTag(0x6000, dicom.OverlayType), dicom.VR_CS, "G")
	ds.SetString(dicom.OverlayTag(0x6000, dicom.OverlayFrames), dicom.VR_IS, "2")
	ds.SetUint16(dicom.OverlayTag(0x6000, dicom.OverlayFrameOrigin), 1)
	ds.SetUint16(dicom.OverlayTag(0x6000, dicom.OverlayBitsAllocated), 16)
	ds.SetUint16(dicom.OverlayTag(0x6000, dicom.OverlayBitPosition), 15)

	n, err := NormalizeOverlays(ds, types.ExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	samples := ds.GetUint16s(dicom.TagPixelData)
	require.Len(t, samples, 16)
	assert.Equal(t, uint16(0x0020), samples[8], "frame 1 sample 0")
	for i, v := range samples {
		assert.Equal(t, uint16(0x0020), v, "sample %d", i)
	}
	// Bit 7 for frame 0, bit 8 (first bit of the second byte) for frame 1.
	assert.Equal(t, []byte{0x80, 0x01}, ds.GetBytes(dicom.OverlayTag(0x6000, dicom.OverlayData)))

	once := encoded(t, f)
	n, err = NormalizeOverlays(ds, types.ExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, once, encoded(t, f))
}

func TestNormalizeOverlays_FrameOriginSelectsFrames(t *testing.T) {
	pixels := make([]byte, 32)
	binary.LittleEndian.PutUint16(pixels[0:], 0x8020)
	binary.LittleEndian.PutUint16(pixels[16:], 0x8020)

	f := nativeFile(t, 16, pixels)
	ds := f.Dataset
	ds.SetString(dicom.TagNumberOfFrames, dicom.VR_IS, "2")
	ds.SetUint16(dicom.TagBitsStored, 12)
	ds.SetUint16(dicom.TagHighBit, 11)
	ds.SetUint16(dicom.OverlayTag(0x6000, dicom.OverlayFrameOrigin), 2)
	ds.SetUint16(dicom.OverlayTag(0x6000, dicom.OverlayBitsAllocated), 16)
	ds.SetUint16(dicom.OverlayTag(0x6000, dicom.OverlayBitPosition), 15)

	_, err := NormalizeOverlays(ds, types.ExplicitVRLittleEndian)
	require.NoError(t, err)

	samples := ds.GetUint16s(dicom.TagPixelData)
	assert.Equal(t, uint16(0x8020), samples[0], "frame 0 is outside the overlay")
	assert.Equal(t, uint16(0x0020), samples[8])
	assert.Equal(t, []byte{0x01, 0x00}, ds.GetBytes(dicom.OverlayTag(0x6000, dicom.OverlayData)))
}

func TestNormalizeOverlays_FramesBeyondImage(t *testing.T) {
	f := overlayFile(t, 15)
	f.Dataset.SetString(dicom.OverlayTag(0x6000, dicom.OverlayFrames), dicom.VR_IS, "3")

	_, err := NormalizeOverlays(f.Dataset, types.ExplicitVRLittleEndian)
	assert.ErrorContains(t, err, "covers frames 1-3")
}

func TestNormalizeOverlays_NothingEmbedded(t *testing.T) {
	f := nativeFile(t, 8, make([]byte, 8))
	n, err := NormalizeOverlays(f.Dataset, types.ExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.Zero(t, n)
}
