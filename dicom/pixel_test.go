package dicom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomstore/types"
)

func imageDataset(frames int, value interface{}) *Dataset {
	ds := NewDataset()
	ds.SetUint16(TagRows, 2)
	ds.SetUint16(TagColumns, 2)
	ds.SetUint16(TagBitsAllocated, 8)
	ds.SetUint16(TagBitsStored, 8)
	ds.SetUint16(TagHighBit, 7)
	ds.SetUint16(TagSamplesPerPixel, 1)
	ds.SetUint16(TagPixelRepresentation, 0)
	ds.SetString(TagPhotometricInterpretation, VR_CS, "MONOCHROME2")
	ds.SetString(TagNumberOfFrames, VR_IS, itoa(frames))
	ds.AddElement(TagPixelData, VR_OB, value)
	return ds
}

func itoa(n int) string {
	return string(rune('0' + n))
}

func TestPixelData_NativeFrames(t *testing.T) {
	ds := imageDataset(2, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	p, err := ExtractPixelData(ds, types.ExplicitVRLittleEndian)
	require.NoError(t, err)

	assert.False(t, p.Encapsulated)
	assert.Equal(t, 4, p.FrameLength())

	f, err := p.Frame(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6, 7, 8}, f)

	_, err = p.Frame(2)
	assert.Error(t, err)
}

func TestPixelData_EncapsulatedWithOffsetTable(t *testing.T) {
	ds := imageDataset(2, &EncapsulatedPixelData{
		Offsets:   []uint32{0, 12},
		Fragments: [][]byte{{1, 2, 3, 4}, {5, 6}, {7, 8}},
	})
	p, err := ExtractPixelData(ds, types.RLELossless)
	require.NoError(t, err)
	require.True(t, p.Encapsulated)

	f0, err := p.Frame(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, f0)

	f1, err := p.Frame(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6, 7, 8}, f1)
}

func TestPixelData_EncapsulatedSingleFrameConcatenates(t *testing.T) {
	ds := imageDataset(1, &EncapsulatedPixelData{Fragments: [][]byte{{1, 2}, {3, 4}}})
	p, err := ExtractPixelData(ds, types.JPEGBaseline8Bit)
	require.NoError(t, err)

	f, err := p.Frame(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, f)
}

func TestPixelData_EncapsulatedWithoutOffsetTable(t *testing.T) {
	ds := imageDataset(2, &EncapsulatedPixelData{Fragments: [][]byte{{1, 2}, {3, 4}}})
	p, err := ExtractPixelData(ds, types.RLELossless)
	require.NoError(t, err)

	f, err := p.Frame(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, f)

	ds = imageDataset(2, &EncapsulatedPixelData{Fragments: [][]byte{{1, 2}, {3, 4}, {5, 6}}})
	p, err = ExtractPixelData(ds, types.RLELossless)
	require.NoError(t, err)
	_, err = p.Frame(0)
	assert.ErrorContains(t, err, "without a basic offset table")
}

func TestPixelData_EncapsulationMustMatchTransferSyntax(t *testing.T) {
	_, err := ExtractPixelData(imageDataset(1, []byte{1, 2, 3, 4}), types.RLELossless)
	assert.Error(t, err)

	_, err = ExtractPixelData(imageDataset(1, &EncapsulatedPixelData{}), types.ExplicitVRLittleEndian)
	assert.Error(t, err)
}

func TestPixelData_SetEncapsulatedFramesAndApply(t *testing.T) {
	ds := imageDataset(2, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	p, err := ExtractPixelData(ds, types.ExplicitVRLittleEndian)
	require.NoError(t, err)

	p.SetEncapsulatedFrames([][]byte{{9, 9, 9}, {8, 8, 8, 8}})
	assert.Equal(t, []uint32{0, 12}, p.Fragments.Offsets)
	p.Apply(ds)

	back, err := ExtractPixelData(ds, types.RLELossless)
	require.NoError(t, err)
	f1, err := back.Frame(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{8, 8, 8, 8}, f1)
	assert.Equal(t, 2, back.NumberOfFrames)
}
