package types

import "sort"

// Transfer syntax UIDs from DICOM PS3.5 Section 10 and PS3.6 Annex A.4.
const (
	ImplicitVRLittleEndian         = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian         = "1.2.840.10008.1.2.1"
	ExplicitVRBigEndian            = "1.2.840.10008.1.2.2"
	DeflatedExplicitVRLittleEndian = "1.2.840.10008.1.2.1.99"

	JPEGBaseline8Bit  = "1.2.840.10008.1.2.4.50"
	JPEGExtended12Bit = "1.2.840.10008.1.2.4.51"
	JPEGLossless      = "1.2.840.10008.1.2.4.57"
	// JPEGLosslessSV1 is JPEG Lossless, Non-Hierarchical, First-Order Prediction
	// (Process 14, Selection Value 1), the lossless JPEG most archives speak.
	JPEGLosslessSV1 = "1.2.840.10008.1.2.4.70"

	JPEGLSLossless     = "1.2.840.10008.1.2.4.80"
	JPEGLSNearLossless = "1.2.840.10008.1.2.4.81"

	JPEG2000Lossless = "1.2.840.10008.1.2.4.90"
	JPEG2000         = "1.2.840.10008.1.2.4.91"

	RLELossless = "1.2.840.10008.1.2.5"

	MPEG2MainProfile        = "1.2.840.10008.1.2.4.100"
	MPEG4AVCH264HighProfile = "1.2.840.10008.1.2.4.102"
	HEVCH265MainProfile     = "1.2.840.10008.1.2.4.107"

	HTJ2KLossless = "1.2.840.10008.1.2.4.201"
	HTJ2K         = "1.2.840.10008.1.2.4.203"
)

// TransferSyntax describes one encoding of a data set. Values are interned: there is
// exactly one *TransferSyntax per UID, so pointer comparison is valid.
type TransferSyntax struct {
	uid          string
	name         string
	encapsulated bool
	lossy        bool
	explicitVR   bool
	bigEndian    bool
	deflated     bool
}

// UID returns the transfer syntax UID.
func (ts *TransferSyntax) UID() string { return ts.uid }

// Name returns the human readable name.
func (ts *TransferSyntax) Name() string { return ts.name }

// Encapsulated reports whether pixel data is stored as compressed fragments.
func (ts *TransferSyntax) Encapsulated() bool { return ts.encapsulated }

// Lossy reports whether the encoding may discard pixel information.
func (ts *TransferSyntax) Lossy() bool { return ts.lossy }

// ExplicitVR reports whether the VR is written into each element header.
func (ts *TransferSyntax) ExplicitVR() bool { return ts.explicitVR }

// BigEndian reports big endian byte ordering (retired syntax).
func (ts *TransferSyntax) BigEndian() bool { return ts.bigEndian }

// Deflated reports whether the data set is deflate-compressed as a whole.
func (ts *TransferSyntax) Deflated() bool { return ts.deflated }

func (ts *TransferSyntax) String() string { return ts.name + " (" + ts.uid + ")" }

var transferSyntaxRegistry = map[string]*TransferSyntax{}

func register(ts TransferSyntax) *TransferSyntax {
	p := &ts
	transferSyntaxRegistry[ts.uid] = p
	return p
}

func init() {
	register(TransferSyntax{uid: ImplicitVRLittleEndian, name: "Implicit VR Little Endian"})
	register(TransferSyntax{uid: ExplicitVRLittleEndian, name: "Explicit VR Little Endian", explicitVR: true})
	register(TransferSyntax{uid: ExplicitVRBigEndian, name: "Explicit VR Big Endian", explicitVR: true, bigEndian: true})
	register(TransferSyntax{uid: DeflatedExplicitVRLittleEndian, name: "Deflated Explicit VR Little Endian", explicitVR: true, deflated: true})

	// Every encapsulated syntax uses explicit VR little endian for the data set itself.
	encapsulated := []struct {
		uid, name string
		lossy     bool
	}{
		{JPEGBaseline8Bit, "JPEG Baseline (Process 1)", true},
		{JPEGExtended12Bit, "JPEG Extended (Process 2 & 4)", true},
		{JPEGLossless, "JPEG Lossless (Process 14)", false},
		{JPEGLosslessSV1, "JPEG Lossless SV1", false},
		{JPEGLSLossless, "JPEG-LS Lossless", false},
		{JPEGLSNearLossless, "JPEG-LS Near-Lossless", true},
		{JPEG2000Lossless, "JPEG 2000 Lossless Only", false},
		{JPEG2000, "JPEG 2000", true},
		{RLELossless, "RLE Lossless", false},
		{MPEG2MainProfile, "MPEG2 Main Profile @ Main Level", true},
		{MPEG4AVCH264HighProfile, "MPEG-4 AVC/H.264 High Profile", true},
		{HEVCH265MainProfile, "HEVC/H.265 Main Profile", true},
		{HTJ2KLossless, "High-Throughput JPEG 2000 Lossless", false},
		{HTJ2K, "High-Throughput JPEG 2000", true},
	}
	for _, e := range encapsulated {
		register(TransferSyntax{uid: e.uid, name: e.name, encapsulated: true, lossy: e.lossy, explicitVR: true})
	}
}

// LookupTransferSyntax returns the interned transfer syntax for uid.
func LookupTransferSyntax(uid string) (*TransferSyntax, bool) {
	ts, ok := transferSyntaxRegistry[uid]
	return ts, ok
}

// IsEncapsulated returns true if uid is a known transfer syntax with encapsulated pixel data.
func IsEncapsulated(uid string) bool {
	ts, ok := transferSyntaxRegistry[uid]
	return ok && ts.encapsulated
}

// IsLossless returns true for known transfer syntaxes that preserve every pixel bit.
// Native syntaxes are lossless.
func IsLossless(uid string) bool {
	ts, ok := transferSyntaxRegistry[uid]
	return ok && !ts.lossy
}

// IsKnownTransferSyntax reports whether uid is in the catalog.
func IsKnownTransferSyntax(uid string) bool {
	_, ok := transferSyntaxRegistry[uid]
	return ok
}

// TransferSyntaxUIDs returns every cataloged UID in sorted order.
func TransferSyntaxUIDs() []string {
	uids := make([]string, 0, len(transferSyntaxRegistry))
	for uid := range transferSyntaxRegistry {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

// NativeTransferSyntaxes lists the uncompressed syntaxes every node must support,
// in proposal order.
func NativeTransferSyntaxes() []string {
	return []string{ExplicitVRLittleEndian, ImplicitVRLittleEndian}
}
