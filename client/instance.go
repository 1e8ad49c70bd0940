package client

import (
	"fmt"
	"os"

	"github.com/caio-sobreiro/dicomstore/dicom"
	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
)

// StorageInstance is one instance queued for sending: a Part 10 file on disk
// or an already loaded *dicom.File. The identifiers are read from the file
// meta information when the instance is created, so building a batch does
// not decode any data set.
type StorageInstance struct {
	path string
	file *dicom.File

	sopClassUID       string
	sopInstanceUID    string
	transferSyntaxUID string
}

// NewFileInstance reads the file meta information of path.
func NewFileInstance(path string) (*StorageInstance, error) {
	meta, err := dicom.ReadFileMeta(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	inst := &StorageInstance{
		path:              path,
		sopClassUID:       meta.GetString(dicom.TagMediaStorageSOPClassUID),
		sopInstanceUID:    meta.GetString(dicom.TagMediaStorageSOPInstanceUID),
		transferSyntaxUID: meta.GetString(dicom.TagTransferSyntaxUID),
	}
	if inst.sopClassUID == "" || inst.sopInstanceUID == "" || inst.transferSyntaxUID == "" {
		return nil, fmt.Errorf("read %s: %w: file meta information lacks SOP class, SOP instance or transfer syntax",
			path, dicomerrors.ErrInvalidDataset)
	}
	return inst, nil
}

// NewMemoryInstance wraps a loaded file.
func NewMemoryInstance(f *dicom.File) *StorageInstance {
	return &StorageInstance{
		file:              f,
		sopClassUID:       f.SOPClassUID(),
		sopInstanceUID:    f.SOPInstanceUID(),
		transferSyntaxUID: f.TransferSyntaxUID(),
	}
}

// Path returns the file path, or "" for an in-memory instance.
func (i *StorageInstance) Path() string { return i.path }

func (i *StorageInstance) SOPClassUID() string       { return i.sopClassUID }
func (i *StorageInstance) SOPInstanceUID() string    { return i.sopInstanceUID }
func (i *StorageInstance) TransferSyntaxUID() string { return i.transferSyntaxUID }

// Load returns the decoded instance, reading it from disk for file instances.
func (i *StorageInstance) Load() (*dicom.File, error) {
	if i.file != nil {
		return i.file, nil
	}
	return dicom.ReadFile(i.path)
}

// DataSet returns the data set bytes in the instance's own transfer syntax.
// File instances are sent as stored, without re-encoding.
func (i *StorageInstance) DataSet() ([]byte, error) {
	if i.file != nil {
		return dicom.EncodeDatasetWithTransferSyntax(i.file.Dataset, i.transferSyntaxUID)
	}
	raw, err := os.ReadFile(i.path)
	if err != nil {
		return nil, err
	}
	return dicom.StripPart10Header(raw)
}

// String identifies the instance in logs.
func (i *StorageInstance) String() string {
	if i.path != "" {
		return i.path
	}
	return i.sopInstanceUID
}
