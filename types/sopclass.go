package types

import "sort"

// ApplicationContextUID is the only application context name defined by DICOM.
const ApplicationContextUID = "1.2.840.10008.3.1.1.1"

// VerificationSOPClass is the C-ECHO abstract syntax.
const VerificationSOPClass = "1.2.840.10008.1.1"

// Image storage SOP classes (PS3.4 Annex B.5).
const (
	ComputedRadiographyImageStorage                   = "1.2.840.10008.5.1.4.1.1.1"
	DigitalXRayImageStorageForPresentation            = "1.2.840.10008.5.1.4.1.1.1.1"
	DigitalXRayImageStorageForProcessing              = "1.2.840.10008.5.1.4.1.1.1.1.1"
	DigitalMammographyXRayImageStorageForPresentation = "1.2.840.10008.5.1.4.1.1.1.2"
	DigitalMammographyXRayImageStorageForProcessing   = "1.2.840.10008.5.1.4.1.1.1.2.1"
	DigitalIntraOralXRayImageStorageForPresentation   = "1.2.840.10008.5.1.4.1.1.1.3"

	CTImageStorage                        = "1.2.840.10008.5.1.4.1.1.2"
	EnhancedCTImageStorage                = "1.2.840.10008.5.1.4.1.1.2.1"
	LegacyConvertedEnhancedCTImageStorage = "1.2.840.10008.5.1.4.1.1.2.2"

	UltrasoundMultiFrameImageStorage = "1.2.840.10008.5.1.4.1.1.3.1"
	UltrasoundImageStorage           = "1.2.840.10008.5.1.4.1.1.6.1"
	EnhancedUSVolumeStorage          = "1.2.840.10008.5.1.4.1.1.6.2"

	MRImageStorage              = "1.2.840.10008.5.1.4.1.1.4"
	EnhancedMRImageStorage      = "1.2.840.10008.5.1.4.1.1.4.1"
	EnhancedMRColorImageStorage = "1.2.840.10008.5.1.4.1.1.4.3"

	SecondaryCaptureImageStorage                        = "1.2.840.10008.5.1.4.1.1.7"
	MultiFrameGrayscaleByteSecondaryCaptureImageStorage = "1.2.840.10008.5.1.4.1.1.7.1"
	MultiFrameGrayscaleWordSecondaryCaptureImageStorage = "1.2.840.10008.5.1.4.1.1.7.2"
	MultiFrameTrueColorSecondaryCaptureImageStorage     = "1.2.840.10008.5.1.4.1.1.7.3"

	XRayAngiographicImageStorage      = "1.2.840.10008.5.1.4.1.1.12.1"
	EnhancedXAImageStorage            = "1.2.840.10008.5.1.4.1.1.12.1.1"
	XRayRadiofluoroscopicImageStorage = "1.2.840.10008.5.1.4.1.1.12.2"
	BreastTomosynthesisImageStorage   = "1.2.840.10008.5.1.4.1.1.13.1.3"

	NuclearMedicineImageStorage = "1.2.840.10008.5.1.4.1.1.20"
	PETImageStorage             = "1.2.840.10008.5.1.4.1.1.128"
	EnhancedPETImageStorage     = "1.2.840.10008.5.1.4.1.1.130"
	RTImageStorage              = "1.2.840.10008.5.1.4.1.1.481.1"
	RTDoseStorage               = "1.2.840.10008.5.1.4.1.1.481.2"

	VLEndoscopicImageStorage              = "1.2.840.10008.5.1.4.1.1.77.1.1"
	VLMicroscopicImageStorage             = "1.2.840.10008.5.1.4.1.1.77.1.2"
	VLPhotographicImageStorage            = "1.2.840.10008.5.1.4.1.1.77.1.4"
	VLWholeSlideMicroscopyImageStorage    = "1.2.840.10008.5.1.4.1.1.77.1.6"
	OphthalmicPhotography8BitImageStorage = "1.2.840.10008.5.1.4.1.1.77.1.5.1"
)

// Non-image storage SOP classes. These never carry pixel data worth compressing.
const (
	GrayscaleSoftcopyPresentationStateStorage = "1.2.840.10008.5.1.4.1.1.11.1"
	BasicTextSRStorage                        = "1.2.840.10008.5.1.4.1.1.88.11"
	EnhancedSRStorage                         = "1.2.840.10008.5.1.4.1.1.88.22"
	ComprehensiveSRStorage                    = "1.2.840.10008.5.1.4.1.1.88.33"
	KeyObjectSelectionDocumentStorage         = "1.2.840.10008.5.1.4.1.1.88.59"
	RTStructureSetStorage                     = "1.2.840.10008.5.1.4.1.1.481.3"
	RTPlanStorage                             = "1.2.840.10008.5.1.4.1.1.481.5"
	EncapsulatedPDFStorage                    = "1.2.840.10008.5.1.4.1.1.104.1"
	EncapsulatedCDAStorage                    = "1.2.840.10008.5.1.4.1.1.104.2"
	RawDataStorage                            = "1.2.840.10008.5.1.4.1.1.66"
)

// Categories used by SOPClassInfo.
const (
	CategoryVerification = "Verification"
	CategoryStorage      = "Storage"
	CategoryUnknown      = "Unknown"
)

// SOPClassInfo provides human-readable information about a SOP Class UID
type SOPClassInfo struct {
	UID      string
	Name     string
	Category string
	// Image is set for storage classes whose instances carry Pixel Data and
	// may therefore be negotiated with an encapsulated transfer syntax.
	Image bool
}

var sopClassRegistry = map[string]SOPClassInfo{}

func addSOPClass(uid, name, category string, image bool) {
	sopClassRegistry[uid] = SOPClassInfo{UID: uid, Name: name, Category: category, Image: image}
}

func init() {
	addSOPClass(VerificationSOPClass, "Verification SOP Class", CategoryVerification, false)

	images := map[string]string{
		ComputedRadiographyImageStorage:                     "Computed Radiography Image Storage",
		DigitalXRayImageStorageForPresentation:              "Digital X-Ray Image Storage - For Presentation",
		DigitalXRayImageStorageForProcessing:                "Digital X-Ray Image Storage - For Processing",
		DigitalMammographyXRayImageStorageForPresentation:   "Digital Mammography X-Ray Image Storage - For Presentation",
		DigitalMammographyXRayImageStorageForProcessing:     "Digital Mammography X-Ray Image Storage - For Processing",
		DigitalIntraOralXRayImageStorageForPresentation:     "Digital Intra-Oral X-Ray Image Storage - For Presentation",
		CTImageStorage:                                      "CT Image Storage",
		EnhancedCTImageStorage:                              "Enhanced CT Image Storage",
		LegacyConvertedEnhancedCTImageStorage:               "Legacy Converted Enhanced CT Image Storage",
		UltrasoundMultiFrameImageStorage:                    "Ultrasound Multi-frame Image Storage",
		UltrasoundImageStorage:                              "Ultrasound Image Storage",
		EnhancedUSVolumeStorage:                             "Enhanced US Volume Storage",
		MRImageStorage:                                      "MR Image Storage",
		EnhancedMRImageStorage:                              "Enhanced MR Image Storage",
		EnhancedMRColorImageStorage:                         "Enhanced MR Color Image Storage",
		SecondaryCaptureImageStorage:                        "Secondary Capture Image Storage",
		MultiFrameGrayscaleByteSecondaryCaptureImageStorage: "Multi-frame Grayscale Byte Secondary Capture Image Storage",
		MultiFrameGrayscaleWordSecondaryCaptureImageStorage: "Multi-frame Grayscale Word Secondary Capture Image Storage",
		MultiFrameTrueColorSecondaryCaptureImageStorage:     "Multi-frame True Color Secondary Capture Image Storage",
		XRayAngiographicImageStorage:                        "X-Ray Angiographic Image Storage",
		EnhancedXAImageStorage:                              "Enhanced XA Image Storage",
		XRayRadiofluoroscopicImageStorage:                   "X-Ray Radiofluoroscopic Image Storage",
		BreastTomosynthesisImageStorage:                     "Breast Tomosynthesis Image Storage",
		NuclearMedicineImageStorage:                         "Nuclear Medicine Image Storage",
		PETImageStorage:                                     "PET Image Storage",
		EnhancedPETImageStorage:                             "Enhanced PET Image Storage",
		RTImageStorage:                                      "RT Image Storage",
		RTDoseStorage:                                       "RT Dose Storage",
		VLEndoscopicImageStorage:                            "VL Endoscopic Image Storage",
		VLMicroscopicImageStorage:                           "VL Microscopic Image Storage",
		VLPhotographicImageStorage:                          "VL Photographic Image Storage",
		VLWholeSlideMicroscopyImageStorage:                  "VL Whole Slide Microscopy Image Storage",
		OphthalmicPhotography8BitImageStorage:               "Ophthalmic Photography 8 Bit Image Storage",
	}
	for uid, name := range images {
		addSOPClass(uid, name, CategoryStorage, true)
	}

	others := map[string]string{
		GrayscaleSoftcopyPresentationStateStorage: "Grayscale Softcopy Presentation State Storage",
		BasicTextSRStorage:                        "Basic Text SR Storage",
		EnhancedSRStorage:                         "Enhanced SR Storage",
		ComprehensiveSRStorage:                    "Comprehensive SR Storage",
		KeyObjectSelectionDocumentStorage:         "Key Object Selection Document Storage",
		RTStructureSetStorage:                     "RT Structure Set Storage",
		RTPlanStorage:                             "RT Plan Storage",
		EncapsulatedPDFStorage:                    "Encapsulated PDF Storage",
		EncapsulatedCDAStorage:                    "Encapsulated CDA Storage",
		RawDataStorage:                            "Raw Data Storage",
	}
	for uid, name := range others {
		addSOPClass(uid, name, CategoryStorage, false)
	}
}

// GetSOPClassInfo returns information about a SOP Class UID
func GetSOPClassInfo(uid string) *SOPClassInfo {
	info, ok := sopClassRegistry[uid]
	if !ok {
		return &SOPClassInfo{UID: uid, Name: CategoryUnknown, Category: CategoryUnknown}
	}
	return &info
}

// IsStorageSOPClass returns true if the UID is a storage SOP class
func IsStorageSOPClass(uid string) bool {
	return GetSOPClassInfo(uid).Category == CategoryStorage
}

// IsImageStorageSOPClass returns true if instances of the class carry pixel data.
func IsImageStorageSOPClass(uid string) bool {
	info := GetSOPClassInfo(uid)
	return info.Category == CategoryStorage && info.Image
}

// StorageSOPClasses returns every known storage SOP class UID, sorted.
func StorageSOPClasses() []string {
	var uids []string
	for uid, info := range sopClassRegistry {
		if info.Category == CategoryStorage {
			uids = append(uids, uid)
		}
	}
	sort.Strings(uids)
	return uids
}
