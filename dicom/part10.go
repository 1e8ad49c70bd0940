package dicom

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/caio-sobreiro/dicomstore/types"
)

const (
	preambleLength = 128
	magic          = "DICM"
)

// Identification written into the file meta information of every file and
// into A-ASSOCIATE user information.
const (
	ImplementationClassUID    = "2.25.209384957812366427904321675124387519261"
	ImplementationVersionName = "DICOMSTORE_1_0"
)

// File is a Part 10 file: the file meta information group and the data set.
type File struct {
	Meta    *Dataset
	Dataset *Dataset
}

// TransferSyntaxUID returns the transfer syntax declared in the meta header.
func (f *File) TransferSyntaxUID() string {
	return f.Meta.GetString(TagTransferSyntaxUID)
}

// SOPClassUID returns the media storage SOP class, falling back to the data set.
func (f *File) SOPClassUID() string {
	if uid := f.Meta.GetString(TagMediaStorageSOPClassUID); uid != "" {
		return uid
	}
	if f.Dataset != nil {
		return f.Dataset.GetString(TagSOPClassUID)
	}
	return ""
}

// SOPInstanceUID returns the media storage SOP instance, falling back to the data set.
func (f *File) SOPInstanceUID() string {
	if uid := f.Meta.GetString(TagMediaStorageSOPInstanceUID); uid != "" {
		return uid
	}
	if f.Dataset != nil {
		return f.Dataset.GetString(TagSOPInstanceUID)
	}
	return ""
}

// Clone returns a deep copy of the file.
func (f *File) Clone() *File {
	return &File{Meta: f.Meta.Clone(), Dataset: f.Dataset.Clone()}
}

// NewFileMeta builds file meta information for an instance.
func NewFileMeta(sopClassUID, sopInstanceUID, transferSyntaxUID, sourceAETitle string) *Dataset {
	meta := NewDataset()
	meta.AddElement(TagFileMetaInformationVersion, VR_OB, []byte{0x00, 0x01})
	meta.AddElement(TagMediaStorageSOPClassUID, VR_UI, sopClassUID)
	meta.AddElement(TagMediaStorageSOPInstanceUID, VR_UI, sopInstanceUID)
	meta.AddElement(TagTransferSyntaxUID, VR_UI, transferSyntaxUID)
	meta.AddElement(TagImplementationClassUID, VR_UI, ImplementationClassUID)
	meta.AddElement(TagImplementationVersionName, VR_SH, ImplementationVersionName)
	if sourceAETitle != "" {
		meta.AddElement(TagSourceApplicationEntityTitle, VR_AE, sourceAETitle)
	}
	return meta
}

// ReadFile reads and decodes a whole Part 10 file.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFile(data)
}

// ParseFile decodes Part 10 bytes.
func ParseFile(data []byte) (*File, error) {
	meta, offset, err := parseMeta(data)
	if err != nil {
		return nil, err
	}
	ds, err := ParseDatasetWithTransferSyntax(data[offset:], meta.GetString(TagTransferSyntaxUID))
	if err != nil {
		return nil, err
	}
	return &File{Meta: meta, Dataset: ds}, nil
}

// ReadFileMeta reads only the preamble and file meta information of path,
// without decoding the data set.
func ReadFileMeta(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	meta, _, err := readMeta(bufio.NewReader(f))
	return meta, err
}

// readMeta returns the meta group and the number of bytes it occupied after the
// DICM prefix.
func readMeta(r *bufio.Reader) (*Dataset, int, error) {
	head := make([]byte, preambleLength+len(magic))
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, 0, fmt.Errorf("not a DICOM Part 10 file: %w", err)
	}
	if string(head[preambleLength:]) != magic {
		return nil, 0, fmt.Errorf("not a valid DICOM Part 10 file (missing DICM prefix at offset 128)")
	}

	var raw []byte
	for {
		peek, err := r.Peek(8)
		if err != nil || binary.LittleEndian.Uint16(peek) != 0x0002 {
			break
		}
		vr := string(peek[4:6])
		var header []byte
		var length uint32
		if isLongVR(vr) {
			header = make([]byte, 12)
			if _, err := io.ReadFull(r, header); err != nil {
				return nil, 0, err
			}
			length = binary.LittleEndian.Uint32(header[8:])
		} else {
			header = make([]byte, 8)
			if _, err := io.ReadFull(r, header); err != nil {
				return nil, 0, err
			}
			length = uint32(binary.LittleEndian.Uint16(header[6:]))
		}
		value := make([]byte, length)
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, 0, fmt.Errorf("file meta information truncated: %w", err)
		}
		raw = append(raw, header...)
		raw = append(raw, value...)
	}
	meta, err := ParseDataset(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("file meta information: %w", err)
	}
	if meta.GetString(TagTransferSyntaxUID) == "" {
		return nil, 0, fmt.Errorf("file meta information has no transfer syntax UID")
	}
	return meta, len(raw), nil
}

// parseMeta returns the meta group and the offset of the data set in data.
func parseMeta(data []byte) (*Dataset, int, error) {
	if len(data) < preambleLength+len(magic) {
		return nil, 0, fmt.Errorf("data too short to be DICOM Part 10 (need at least 132 bytes, got %d)", len(data))
	}
	meta, n, err := readMeta(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, 0, err
	}
	return meta, preambleLength + len(magic) + n, nil
}

// StripPart10Header removes the DICOM Part 10 preamble and File Meta Information
// to extract just the dataset.
//
// DIMSE operations such as C-STORE carry only the data set, without the Part 10
// wrapper.
func StripPart10Header(data []byte) ([]byte, error) {
	_, offset, err := parseMeta(data)
	if err != nil {
		return nil, err
	}
	if offset > len(data) {
		return nil, fmt.Errorf("failed to find dataset after File Meta Information")
	}
	return data[offset:], nil
}

// HasPart10Header checks if the data starts with a DICOM Part 10 header.
//
// Returns true if the data contains the 128-byte preamble followed by "DICM".
func HasPart10Header(data []byte) bool {
	if len(data) < preambleLength+len(magic) {
		return false
	}
	return string(data[preambleLength:preambleLength+len(magic)]) == magic
}

// WritePart10 writes preamble, meta information (with a computed group length)
// and an already encoded data set. The data set must be encoded in the transfer
// syntax named by meta.
func WritePart10(w io.Writer, meta *Dataset, dataset []byte) error {
	meta = meta.Clone()
	meta.Remove(TagFileMetaInformationGroupLength)
	body, err := meta.EncodeDataset()
	if err != nil {
		return fmt.Errorf("encode file meta information: %w", err)
	}

	group := NewDataset()
	group.AddElement(TagFileMetaInformationGroupLength, VR_UL, uint32(len(body)))
	groupBytes, err := group.EncodeDataset()
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(make([]byte, preambleLength)); err != nil {
		return err
	}
	for _, chunk := range [][]byte{[]byte(magic), groupBytes, body, dataset} {
		if _, err := bw.Write(chunk); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Encode serializes f as Part 10 bytes in its declared transfer syntax.
func (f *File) Encode() ([]byte, error) {
	ds, err := EncodeDatasetWithTransferSyntax(f.Dataset, f.TransferSyntaxUID())
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := WritePart10(&buf, f.Meta, ds); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes f to path.
func WriteFile(path string, f *File) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// IsNativeTransferSyntax reports whether pixel data in uid is stored uncompressed.
func IsNativeTransferSyntax(uid string) bool {
	ts, ok := types.LookupTransferSyntax(uid)
	return ok && !ts.Encapsulated()
}
