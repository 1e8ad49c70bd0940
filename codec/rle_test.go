package codec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
)

func TestPackBits_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"single", []byte{7}},
		{"run", []byte{9, 9, 9, 9, 9, 9}},
		{"literal", []byte{1, 2, 3, 4, 5}},
		{"mixed", []byte{1, 2, 2, 2, 3, 4, 5, 5, 6}},
		{"long run", bytesOf(300, 0xAA)},
		{"long literal", ramp(300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := encodePackBits(tt.data)
			dec, err := decodePackBits(enc, len(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.data, dec)
		})
	}
}

func TestPackBits_RunIsCompressed(t *testing.T) {
	enc := encodePackBits(bytesOf(10, 0x42))
	assert.Equal(t, []byte{0xF7 /* int8(-9) */, 0x42}, enc)
}

func TestDecodePackBits_NoOpAndTruncation(t *testing.T) {
	dec, err := decodePackBits([]byte{0x80, 0x01, 'a', 'b'}, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), dec)

	_, err = decodePackBits([]byte{0x05, 'a'}, 6)
	assert.Error(t, err)
}

func TestRLECodec_LosslessRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		info FrameInfo
	}{
		{"8-bit monochrome", FrameInfo{Rows: 4, Columns: 5, BitsAllocated: 8, BitsStored: 8, SamplesPerPixel: 1}},
		{"16-bit monochrome", FrameInfo{Rows: 3, Columns: 7, BitsAllocated: 16, BitsStored: 12, SamplesPerPixel: 1}},
		{"8-bit rgb interleaved", FrameInfo{Rows: 2, Columns: 3, BitsAllocated: 8, BitsStored: 8, SamplesPerPixel: 3}},
		{"8-bit rgb planar", FrameInfo{Rows: 2, Columns: 3, BitsAllocated: 8, BitsStored: 8, SamplesPerPixel: 3, PlanarConfiguration: 1}},
		{"16-bit rgb", FrameInfo{Rows: 2, Columns: 2, BitsAllocated: 16, BitsStored: 16, SamplesPerPixel: 3}},
	}

	c := NewRLECodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			native := ramp(tt.info.NativeLength())
			enc, err := c.Encode(native, tt.info)
			require.NoError(t, err)

			segments := binary.LittleEndian.Uint32(enc)
			assert.Equal(t, uint32(tt.info.SamplesPerPixel*tt.info.BitsAllocated/8), segments)
			assert.Equal(t, uint32(64), binary.LittleEndian.Uint32(enc[4:]))
			assert.Zero(t, len(enc)%2)

			dec, err := c.Decode(enc, tt.info)
			require.NoError(t, err)
			assert.Equal(t, native, dec)
		})
	}
}

func TestRLECodec_MostSignificantByteFirst(t *testing.T) {
	info := FrameInfo{Rows: 1, Columns: 2, BitsAllocated: 16, SamplesPerPixel: 1}
	enc, err := NewRLECodec().Encode([]byte{0x34, 0x12, 0x78, 0x56}, info)
	require.NoError(t, err)

	first := binary.LittleEndian.Uint32(enc[4:])
	second := binary.LittleEndian.Uint32(enc[8:])
	high, err := decodePackBits(enc[first:second], 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x56}, high)
}

func TestRLECodec_Errors(t *testing.T) {
	c := NewRLECodec()

	_, err := c.Encode(make([]byte, 4), FrameInfo{Rows: 2, Columns: 2, BitsAllocated: 12, SamplesPerPixel: 1})
	var codecErr *dicomerrors.CodecError
	require.ErrorAs(t, err, &codecErr)
	assert.Equal(t, "encode", codecErr.Op)

	_, err = c.Encode(make([]byte, 2), FrameInfo{Rows: 2, Columns: 2, BitsAllocated: 8, SamplesPerPixel: 1})
	assert.Error(t, err)

	_, err = c.Decode([]byte{1, 2, 3}, FrameInfo{Rows: 1, Columns: 1, BitsAllocated: 8, SamplesPerPixel: 1})
	assert.Error(t, err)

	header := make([]byte, 64)
	binary.LittleEndian.PutUint32(header, 2)
	_, err = c.Decode(header, FrameInfo{Rows: 1, Columns: 1, BitsAllocated: 8, SamplesPerPixel: 1})
	assert.Error(t, err)
}

func bytesOf(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func ramp(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7 + i/3)
	}
	return out
}
