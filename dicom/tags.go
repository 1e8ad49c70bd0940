package dicom

import "fmt"

// Tag represents a DICOM tag (group, element)
type Tag struct {
	Group   uint16
	Element uint16
}

// String returns the tag as a string in (GGGG,EEEE) format
func (t Tag) String() string {
	return fmt.Sprintf("(%04x,%04x)", t.Group, t.Element)
}

// Less orders tags by group, then element.
func (t Tag) Less(o Tag) bool {
	if t.Group != o.Group {
		return t.Group < o.Group
	}
	return t.Element < o.Element
}

// IsPrivate reports whether the tag belongs to an odd (private) group.
func (t Tag) IsPrivate() bool {
	return t.Group%2 == 1
}

// File meta information.
var (
	TagFileMetaInformationGroupLength = Tag{0x0002, 0x0000}
	TagFileMetaInformationVersion     = Tag{0x0002, 0x0001}
	TagMediaStorageSOPClassUID        = Tag{0x0002, 0x0002}
	TagMediaStorageSOPInstanceUID     = Tag{0x0002, 0x0003}
	TagTransferSyntaxUID              = Tag{0x0002, 0x0010}
	TagImplementationClassUID         = Tag{0x0002, 0x0012}
	TagImplementationVersionName      = Tag{0x0002, 0x0013}
	TagSourceApplicationEntityTitle   = Tag{0x0002, 0x0016}
)

// Identification and patient/study/series attributes.
var (
	TagSpecificCharacterSet = Tag{0x0008, 0x0005}
	TagImageType            = Tag{0x0008, 0x0008}
	TagSOPClassUID          = Tag{0x0008, 0x0016}
	TagSOPInstanceUID       = Tag{0x0008, 0x0018}
	TagStudyDate            = Tag{0x0008, 0x0020}
	TagStudyTime            = Tag{0x0008, 0x0030}
	TagAccessionNumber      = Tag{0x0008, 0x0050}
	TagModality             = Tag{0x0008, 0x0060}
	TagStudyDescription     = Tag{0x0008, 0x1030}
	TagSeriesDescription    = Tag{0x0008, 0x103E}
	TagPatientName          = Tag{0x0010, 0x0010}
	TagPatientID            = Tag{0x0010, 0x0020}
	TagPatientBirthDate     = Tag{0x0010, 0x0030}
	TagPatientSex           = Tag{0x0010, 0x0040}
	TagStudyInstanceUID     = Tag{0x0020, 0x000D}
	TagSeriesInstanceUID    = Tag{0x0020, 0x000E}
	TagStudyID              = Tag{0x0020, 0x0010}
	TagSeriesNumber         = Tag{0x0020, 0x0011}
	TagInstanceNumber       = Tag{0x0020, 0x0013}
)

// Image pixel module.
var (
	TagSamplesPerPixel           = Tag{0x0028, 0x0002}
	TagPhotometricInterpretation = Tag{0x0028, 0x0004}
	TagPlanarConfiguration       = Tag{0x0028, 0x0006}
	TagNumberOfFrames            = Tag{0x0028, 0x0008}
	TagRows                      = Tag{0x0028, 0x0010}
	TagColumns                   = Tag{0x0028, 0x0011}
	TagBitsAllocated             = Tag{0x0028, 0x0100}
	TagBitsStored                = Tag{0x0028, 0x0101}
	TagHighBit                   = Tag{0x0028, 0x0102}
	TagPixelRepresentation       = Tag{0x0028, 0x0103}
	TagLossyImageCompression     = Tag{0x0028, 0x2110}
	TagPixelData                 = Tag{0x7FE0, 0x0010}
)

// Overlay plane elements. The group is any even value in 0x6000-0x601E; use
// OverlayTag to build a tag for a specific plane.
const (
	OverlayRows          = 0x0010
	OverlayColumns       = 0x0011
	OverlayFrames        = 0x0015
	OverlayType          = 0x0040
	OverlayOrigin        = 0x0050
	OverlayFrameOrigin   = 0x0051
	OverlayBitsAllocated = 0x0100
	OverlayBitPosition   = 0x0102
	OverlayData          = 0x3000
)

// OverlayTag returns the tag of element in overlay group.
func OverlayTag(group, element uint16) Tag {
	return Tag{Group: group, Element: element}
}

// IsOverlayGroup reports whether group is a repeating 60xx overlay group.
func IsOverlayGroup(group uint16) bool {
	return group >= 0x6000 && group <= 0x601E && group%2 == 0
}

// Sequence delimitation tags.
var (
	tagItem                 = Tag{0xFFFE, 0xE000}
	tagItemDelimitation     = Tag{0xFFFE, 0xE00D}
	tagSequenceDelimitation = Tag{0xFFFE, 0xE0DD}
)

// dictionary maps tags to their VR for implicit VR decoding. Tags that are not
// listed decode as UN.
var dictionary = map[Tag]string{
	TagFileMetaInformationGroupLength: VR_UL,
	TagFileMetaInformationVersion:     VR_OB,
	TagMediaStorageSOPClassUID:        VR_UI,
	TagMediaStorageSOPInstanceUID:     VR_UI,
	TagTransferSyntaxUID:              VR_UI,
	TagImplementationClassUID:         VR_UI,
	TagImplementationVersionName:      VR_SH,
	TagSourceApplicationEntityTitle:   VR_AE,

	TagSpecificCharacterSet: VR_CS,
	TagImageType:            VR_CS,
	TagSOPClassUID:          VR_UI,
	TagSOPInstanceUID:       VR_UI,
	TagStudyDate:            VR_DA,
	TagStudyTime:            VR_TM,
	{0x0008, 0x0012}:        VR_DA, // Instance Creation Date
	{0x0008, 0x0013}:        VR_TM, // Instance Creation Time
	{0x0008, 0x0021}:        VR_DA, // Series Date
	{0x0008, 0x0023}:        VR_DA, // Content Date
	{0x0008, 0x0031}:        VR_TM, // Series Time
	{0x0008, 0x0033}:        VR_TM, // Content Time
	TagAccessionNumber:      VR_SH,
	TagModality:             VR_CS,
	{0x0008, 0x0070}:        VR_LO, // Manufacturer
	{0x0008, 0x0080}:        VR_LO, // Institution Name
	{0x0008, 0x0090}:        VR_PN, // Referring Physician's Name
	TagStudyDescription:     VR_LO,
	TagSeriesDescription:    VR_LO,
	{0x0008, 0x1090}:        VR_LO, // Manufacturer's Model Name
	{0x0008, 0x1140}:        VR_SQ, // Referenced Image Sequence
	{0x0008, 0x1150}:        VR_UI, // Referenced SOP Class UID
	{0x0008, 0x1155}:        VR_UI, // Referenced SOP Instance UID
	{0x0008, 0x2111}:        VR_ST, // Derivation Description

	TagPatientName:      VR_PN,
	TagPatientID:        VR_LO,
	TagPatientBirthDate: VR_DA,
	TagPatientSex:       VR_CS,
	{0x0010, 0x1010}:    VR_AS, // Patient's Age

	{0x0018, 0x0015}: VR_CS, // Body Part Examined
	{0x0018, 0x0050}: VR_DS, // Slice Thickness
	{0x0018, 0x0060}: VR_DS, // KVP

	TagStudyInstanceUID:  VR_UI,
	TagSeriesInstanceUID: VR_UI,
	TagStudyID:           VR_SH,
	TagSeriesNumber:      VR_IS,
	TagInstanceNumber:    VR_IS,
	{0x0020, 0x0020}:     VR_CS, // Patient Orientation
	{0x0020, 0x0032}:     VR_DS, // Image Position (Patient)
	{0x0020, 0x0037}:     VR_DS, // Image Orientation (Patient)
	{0x0020, 0x0052}:     VR_UI, // Frame of Reference UID

	TagSamplesPerPixel:           VR_US,
	TagPhotometricInterpretation: VR_CS,
	TagPlanarConfiguration:       VR_US,
	TagNumberOfFrames:            VR_IS,
	TagRows:                      VR_US,
	TagColumns:                   VR_US,
	{0x0028, 0x0030}:             VR_DS, // Pixel Spacing
	TagBitsAllocated:             VR_US,
	TagBitsStored:                VR_US,
	TagHighBit:                   VR_US,
	TagPixelRepresentation:       VR_US,
	{0x0028, 0x1050}:             VR_DS, // Window Center
	{0x0028, 0x1051}:             VR_DS, // Window Width
	{0x0028, 0x1052}:             VR_DS, // Rescale Intercept
	{0x0028, 0x1053}:             VR_DS, // Rescale Slope
	TagLossyImageCompression:     VR_CS,
	{0x0028, 0x2112}:             VR_DS, // Lossy Image Compression Ratio
	{0x0028, 0x2114}:             VR_CS, // Lossy Image Compression Method

	TagPixelData: VR_OW,
}

// overlayDictionary gives VRs of overlay elements, independent of the 60xx group.
var overlayDictionary = map[uint16]string{
	OverlayRows:          VR_US,
	OverlayColumns:       VR_US,
	OverlayFrames:        VR_IS,
	OverlayType:          VR_CS,
	OverlayOrigin:        VR_SS,
	OverlayFrameOrigin:   VR_US,
	OverlayBitsAllocated: VR_US,
	OverlayBitPosition:   VR_US,
	OverlayData:          VR_OW,
}

// LookupVR returns the dictionary VR for tag, or UN when the tag is unknown.
func LookupVR(tag Tag) string {
	if tag.Element == 0x0000 {
		return VR_UL // group length
	}
	if vr, ok := dictionary[tag]; ok {
		return vr
	}
	if IsOverlayGroup(tag.Group) {
		if vr, ok := overlayDictionary[tag.Element]; ok {
			return vr
		}
	}
	return VR_UN
}
