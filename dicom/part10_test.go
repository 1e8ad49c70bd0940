package dicom

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caio-sobreiro/dicomstore/types"
)

func encodePart10(t *testing.T, ts string, ds *Dataset) []byte {
	t.Helper()
	body, err := EncodeDatasetWithTransferSyntax(ds, ts)
	require.NoError(t, err)
	var buf bytes.Buffer
	meta := NewFileMeta(types.CTImageStorage, "1.2.3", ts, "STORESCU")
	require.NoError(t, WritePart10(&buf, meta, body))
	return buf.Bytes()
}

func TestWritePart10_Layout(t *testing.T) {
	data := encodePart10(t, types.ExplicitVRLittleEndian, sampleDataset())

	require.True(t, HasPart10Header(data))
	assert.Equal(t, make([]byte, 128), data[:128])
	assert.Equal(t, "DICM", string(data[128:132]))

	f, err := ParseFile(data)
	require.NoError(t, err)

	gl, ok := f.Meta.GetUint32(TagFileMetaInformationGroupLength)
	require.True(t, ok)
	// everything after the group length element up to the data set
	body, err := EncodeDatasetWithTransferSyntax(sampleDataset(), types.ExplicitVRLittleEndian)
	require.NoError(t, err)
	assert.Equal(t, len(data)-132-12-len(body), int(gl))

	assert.Equal(t, types.ExplicitVRLittleEndian, f.TransferSyntaxUID())
	assert.Equal(t, types.CTImageStorage, f.SOPClassUID())
	assert.Equal(t, "1.2.3", f.SOPInstanceUID())
	assert.Equal(t, ImplementationClassUID, f.Meta.GetString(TagImplementationClassUID))
	assert.Equal(t, "STORESCU", f.Meta.GetString(TagSourceApplicationEntityTitle))
	assert.Equal(t, "DOE^JANE", f.Dataset.GetString(TagPatientName))
}

func TestParseFile_EachTransferSyntax(t *testing.T) {
	for _, ts := range []string{types.ImplicitVRLittleEndian, types.DeflatedExplicitVRLittleEndian} {
		t.Run(ts, func(t *testing.T) {
			f, err := ParseFile(encodePart10(t, ts, sampleDataset()))
			require.NoError(t, err)
			assert.Equal(t, ts, f.TransferSyntaxUID())
			assert.Equal(t, "1.2.3", f.Dataset.GetString(TagSOPInstanceUID))
		})
	}
}

func TestFile_EncodeRoundTrip(t *testing.T) {
	f := &File{
		Meta:    NewFileMeta(types.CTImageStorage, "1.2.3", types.DeflatedExplicitVRLittleEndian, ""),
		Dataset: sampleDataset(),
	}
	path := filepath.Join(t.TempDir(), "deflated.dcm")
	require.NoError(t, WriteFile(path, f))

	back, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, back.Dataset.GetBytes(TagPixelData))
}

func TestStripPart10Header(t *testing.T) {
	body, err := EncodeDatasetWithTransferSyntax(sampleDataset(), types.ExplicitVRLittleEndian)
	require.NoError(t, err)

	stripped, err := StripPart10Header(encodePart10(t, types.ExplicitVRLittleEndian, sampleDataset()))
	require.NoError(t, err)
	assert.Equal(t, body, stripped)
}

func TestStripPart10Header_Invalid(t *testing.T) {
	_, err := StripPart10Header(make([]byte, 50))
	assert.ErrorContains(t, err, "too short")

	_, err = StripPart10Header(make([]byte, 200))
	assert.ErrorContains(t, err, "missing DICM")
}

func TestReadFileMeta_DoesNotDecodeDataset(t *testing.T) {
	var buf bytes.Buffer
	meta := NewFileMeta(types.MRImageStorage, "1.2.3.4", types.ExplicitVRLittleEndian, "")
	// a truncated element: the data set cannot be decoded
	require.NoError(t, WritePart10(&buf, meta, []byte{0x08, 0x00, 0x16, 0x00, 'U', 'I', 0x40, 0x00}))

	path := filepath.Join(t.TempDir(), "broken.dcm")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got, err := ReadFileMeta(path)
	require.NoError(t, err)
	assert.Equal(t, types.MRImageStorage, got.GetString(TagMediaStorageSOPClassUID))
	assert.Equal(t, "1.2.3.4", got.GetString(TagMediaStorageSOPInstanceUID))

	_, err = ReadFile(path)
	assert.Error(t, err)
}

func TestHasPart10Header(t *testing.T) {
	assert.False(t, HasPart10Header([]byte("DICM")))
	raw, err := sampleDataset().EncodeDataset()
	require.NoError(t, err)
	assert.False(t, HasPart10Header(raw))
}
