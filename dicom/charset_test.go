package dicom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeString(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		charset string
		want    string
	}{
		{"default repertoire", "DOE^JOHN", "", "DOE^JOHN"},
		{"latin-1", "M\xfcller^Hans", "ISO_IR 100", "Müller^Hans"},
		{"utf-8", "Müller^Hans", "ISO_IR 192", "Müller^Hans"},
		{"cyrillic", "\xb8\xd2\xd0\xdd\xde\xd2", "ISO_IR 144", "Иванов"},
		{"code extension without default", "YAMADA", "\\ISO 2022 IR 87", "YAMADA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeString(tt.raw, tt.charset)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeString_UnknownTerm(t *testing.T) {
	_, err := DecodeString("x", "ISO_IR 999")
	assert.ErrorContains(t, err, "not found")
}

func TestDataset_GetDecodedString(t *testing.T) {
	ds := NewDataset()
	ds.AddElement(TagSpecificCharacterSet, VR_CS, "ISO_IR 100")
	ds.AddElement(TagPatientName, VR_PN, "Gr\xfcn^Anna")

	got, err := ds.GetDecodedString(TagPatientName)
	require.NoError(t, err)
	assert.Equal(t, "Grün^Anna", got)
}
