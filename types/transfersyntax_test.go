package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupTransferSyntax(t *testing.T) {
	tests := []struct {
		name             string
		uid              string
		wantName         string
		wantEncapsulated bool
		wantLossy        bool
		wantExplicit     bool
		wantDeflated     bool
	}{
		{"implicit LE", ImplicitVRLittleEndian, "Implicit VR Little Endian", false, false, false, false},
		{"explicit LE", ExplicitVRLittleEndian, "Explicit VR Little Endian", false, false, true, false},
		{"deflated", DeflatedExplicitVRLittleEndian, "Deflated Explicit VR Little Endian", false, false, true, true},
		{"JPEG baseline", JPEGBaseline8Bit, "JPEG Baseline (Process 1)", true, true, true, false},
		{"JPEG lossless SV1", JPEGLosslessSV1, "JPEG Lossless SV1", true, false, true, false},
		{"JPEG 2000 lossless", JPEG2000Lossless, "JPEG 2000 Lossless Only", true, false, true, false},
		{"JPEG 2000", JPEG2000, "JPEG 2000", true, true, true, false},
		{"RLE", RLELossless, "RLE Lossless", true, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, ok := LookupTransferSyntax(tt.uid)
			require.True(t, ok)
			assert.Equal(t, tt.uid, ts.UID())
			assert.Equal(t, tt.wantName, ts.Name())
			assert.Equal(t, tt.wantEncapsulated, ts.Encapsulated())
			assert.Equal(t, tt.wantLossy, ts.Lossy())
			assert.Equal(t, tt.wantExplicit, ts.ExplicitVR())
			assert.Equal(t, tt.wantDeflated, ts.Deflated())
		})
	}
}

func TestLookupTransferSyntax_Interned(t *testing.T) {
	a, ok := LookupTransferSyntax(RLELossless)
	require.True(t, ok)
	b, ok := LookupTransferSyntax(RLELossless)
	require.True(t, ok)
	assert.Same(t, a, b)
}

func TestLookupTransferSyntax_Unknown(t *testing.T) {
	ts, ok := LookupTransferSyntax("1.2.3.4.5.6.7.8.9")
	assert.False(t, ok)
	assert.Nil(t, ts)
	assert.False(t, IsKnownTransferSyntax("1.2.3.4.5.6.7.8.9"))
	assert.False(t, IsLossless("1.2.3.4.5.6.7.8.9"))
	assert.False(t, IsEncapsulated("1.2.3.4.5.6.7.8.9"))
}

func TestIsLossless(t *testing.T) {
	assert.True(t, IsLossless(ImplicitVRLittleEndian))
	assert.True(t, IsLossless(RLELossless))
	assert.True(t, IsLossless(JPEG2000Lossless))
	assert.False(t, IsLossless(JPEGBaseline8Bit))
	assert.False(t, IsLossless(JPEG2000))
}

func TestTransferSyntaxUIDs_Sorted(t *testing.T) {
	uids := TransferSyntaxUIDs()
	require.NotEmpty(t, uids)
	assert.IsNonDecreasing(t, uids)
	assert.Contains(t, uids, ExplicitVRBigEndian)
}
