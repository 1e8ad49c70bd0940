package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSOPClassInfo(t *testing.T) {
	tests := []struct {
		name      string
		uid       string
		wantName  string
		wantCat   string
		wantImage bool
	}{
		{"CT", CTImageStorage, "CT Image Storage", CategoryStorage, true},
		{"MR", MRImageStorage, "MR Image Storage", CategoryStorage, true},
		{"SR", BasicTextSRStorage, "Basic Text SR Storage", CategoryStorage, false},
		{"verification", VerificationSOPClass, "Verification SOP Class", CategoryVerification, false},
		{"unknown", "1.2.3.4.5.6.7.8.9", CategoryUnknown, CategoryUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := GetSOPClassInfo(tt.uid)
			assert.Equal(t, tt.uid, info.UID)
			assert.Equal(t, tt.wantName, info.Name)
			assert.Equal(t, tt.wantCat, info.Category)
			assert.Equal(t, tt.wantImage, info.Image)
		})
	}
}

func TestIsImageStorageSOPClass(t *testing.T) {
	assert.True(t, IsImageStorageSOPClass(CTImageStorage))
	assert.True(t, IsImageStorageSOPClass(SecondaryCaptureImageStorage))
	assert.False(t, IsImageStorageSOPClass(EncapsulatedPDFStorage))
	assert.False(t, IsImageStorageSOPClass(VerificationSOPClass))
	assert.False(t, IsImageStorageSOPClass("1.2.3"))

	assert.True(t, IsStorageSOPClass(EncapsulatedPDFStorage))
	assert.False(t, IsStorageSOPClass(VerificationSOPClass))
}

func TestStorageSOPClasses(t *testing.T) {
	uids := StorageSOPClasses()
	assert.Contains(t, uids, CTImageStorage)
	assert.Contains(t, uids, RTPlanStorage)
	assert.NotContains(t, uids, VerificationSOPClass)
	assert.IsNonDecreasing(t, uids)
}
