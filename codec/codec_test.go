package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/types"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, []string{
		types.JPEGBaseline8Bit,
		types.JPEGExtended12Bit,
		types.JPEGLossless,
		types.JPEGLosslessSV1,
		types.JPEGLSLossless,
		types.JPEG2000Lossless,
		types.JPEG2000,
		types.RLELossless,
	}, r.TransferSyntaxes())
	assert.True(t, r.Has(types.RLELossless))
	assert.True(t, r.Has(types.JPEG2000Lossless))
	assert.False(t, r.Has(types.HTJ2KLossless))

	c, err := r.Lookup(types.JPEGBaseline8Bit)
	require.NoError(t, err)
	assert.Equal(t, types.JPEGBaseline8Bit, c.TransferSyntaxUID())

	_, err = r.Lookup(types.HTJ2KLossless)
	require.ErrorIs(t, err, dicomerrors.ErrUnsupportedTransfer)
	assert.Contains(t, err.Error(), "High-Throughput JPEG 2000 Lossless")
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.TransferSyntaxes())

	first := NewJPEG2000LosslessCodec()
	second := NewJPEG2000LosslessCodec()
	r.Register(first)
	r.Register(second)
	c, err := r.Lookup(types.JPEG2000Lossless)
	require.NoError(t, err)
	assert.Same(t, second, c)
	assert.Len(t, r.TransferSyntaxes(), 1)
}

func TestFrameInfo_NativeLength(t *testing.T) {
	info := FrameInfo{Rows: 10, Columns: 20, BitsAllocated: 16, SamplesPerPixel: 3}
	assert.Equal(t, 1200, info.NativeLength())
}
