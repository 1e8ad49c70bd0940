package dicom

// VR (Value Representation) constants
const (
	VR_AE = "AE" // Application Entity
	VR_AS = "AS" // Age String
	VR_AT = "AT" // Attribute Tag
	VR_CS = "CS" // Code String
	VR_DA = "DA" // Date
	VR_DS = "DS" // Decimal String
	VR_DT = "DT" // Date Time
	VR_FL = "FL" // Floating Point Single
	VR_FD = "FD" // Floating Point Double
	VR_IS = "IS" // Integer String
	VR_LO = "LO" // Long String
	VR_LT = "LT" // Long Text
	VR_OB = "OB" // Other Byte
	VR_OD = "OD" // Other Double
	VR_OF = "OF" // Other Float
	VR_OL = "OL" // Other Long
	VR_OV = "OV" // Other Very Long
	VR_OW = "OW" // Other Word
	VR_PN = "PN" // Person Name
	VR_SH = "SH" // Short String
	VR_SL = "SL" // Signed Long
	VR_SQ = "SQ" // Sequence of Items
	VR_SS = "SS" // Signed Short
	VR_ST = "ST" // Short Text
	VR_SV = "SV" // Signed Very Long
	VR_TM = "TM" // Time
	VR_UC = "UC" // Unlimited Characters
	VR_UI = "UI" // Unique Identifier
	VR_UL = "UL" // Unsigned Long
	VR_UN = "UN" // Unknown
	VR_UR = "UR" // Universal Resource
	VR_US = "US" // Unsigned Short
	VR_UT = "UT" // Unlimited Text
	VR_UV = "UV" // Unsigned Very Long
)

type vrKind int

const (
	kindText vrKind = iota
	kindBinary
	kindSequence
)

type vrInfo struct {
	kind vrKind
	// long VRs carry 2 reserved bytes and a 32-bit length in explicit VR
	long bool
	pad  byte
}

var vrTable = map[string]vrInfo{
	VR_AE: {kindText, false, ' '},
	VR_AS: {kindText, false, ' '},
	VR_CS: {kindText, false, ' '},
	VR_DA: {kindText, false, ' '},
	VR_DS: {kindText, false, ' '},
	VR_DT: {kindText, false, ' '},
	VR_IS: {kindText, false, ' '},
	VR_LO: {kindText, false, ' '},
	VR_LT: {kindText, false, ' '},
	VR_PN: {kindText, false, ' '},
	VR_SH: {kindText, false, ' '},
	VR_ST: {kindText, false, ' '},
	VR_TM: {kindText, false, ' '},
	VR_UI: {kindText, false, 0x00},
	VR_UC: {kindText, true, ' '},
	VR_UR: {kindText, true, ' '},
	VR_UT: {kindText, true, ' '},

	VR_AT: {kindBinary, false, 0x00},
	VR_FL: {kindBinary, false, 0x00},
	VR_FD: {kindBinary, false, 0x00},
	VR_SL: {kindBinary, false, 0x00},
	VR_SS: {kindBinary, false, 0x00},
	VR_UL: {kindBinary, false, 0x00},
	VR_US: {kindBinary, false, 0x00},
	VR_OB: {kindBinary, true, 0x00},
	VR_OD: {kindBinary, true, 0x00},
	VR_OF: {kindBinary, true, 0x00},
	VR_OL: {kindBinary, true, 0x00},
	VR_OV: {kindBinary, true, 0x00},
	VR_OW: {kindBinary, true, 0x00},
	VR_SV: {kindBinary, true, 0x00},
	VR_UV: {kindBinary, true, 0x00},
	VR_UN: {kindBinary, true, 0x00},

	VR_SQ: {kindSequence, true, 0x00},
}

func lookupVR(vr string) (vrInfo, bool) {
	info, ok := vrTable[vr]
	return info, ok
}

// isLongVR reports whether vr uses the 12-byte explicit VR header.
func isLongVR(vr string) bool {
	info, ok := vrTable[vr]
	return !ok || info.long
}

// IsTextVR reports whether values of vr are character strings.
func IsTextVR(vr string) bool {
	info, ok := vrTable[vr]
	return ok && info.kind == kindText
}
