package transcode

import (
	"encoding/binary"
	"fmt"

	"github.com/caio-sobreiro/dicomstore/dicom"
)

// NormalizeOverlays moves overlay planes embedded in the high bits of native
// pixel samples into their own Overlay Data elements. Every image frame an
// overlay covers, per its Image Frame Origin and Number of Frames in Overlay,
// is unpacked and has the overlay bit cleared. It returns the number
// of overlay groups it converted; a data set with nothing embedded, or
// encapsulated pixel data, is left as is.
func NormalizeOverlays(ds *dicom.Dataset, transferSyntaxUID string) (int, error) {
	if _, ok := ds.GetElement(dicom.TagPixelData); !ok {
		return 0, nil
	}
	groups := embeddedOverlayGroups(ds)
	if len(groups) == 0 {
		return 0, nil
	}

	px, err := dicom.ExtractPixelData(ds, transferSyntaxUID)
	if err != nil {
		return 0, err
	}
	if px.Encapsulated {
		return 0, nil
	}
	if px.SamplesPerPixel != 1 || (px.BitsAllocated != 8 && px.BitsAllocated != 16) {
		return 0, fmt.Errorf("embedded overlays need single-sample 8 or 16 bit pixels, have %d x %d bits",
			px.SamplesPerPixel, px.BitsAllocated)
	}
	lowBit := px.HighBit - px.BitsStored + 1
	for _, group := range groups {
		pos, _ := ds.GetUint16(dicom.OverlayTag(group, dicom.OverlayBitPosition))
		if int(pos) >= px.BitsAllocated {
			return 0, fmt.Errorf("overlay group %04x bit position %d outside %d bit samples", group, pos, px.BitsAllocated)
		}
		first, count, err := overlayFrames(ds, group, px.NumberOfFrames)
		if err != nil {
			return 0, err
		}
		rows, cols := px.Rows, px.Columns
		if v, ok := ds.GetInt(dicom.OverlayTag(group, dicom.OverlayRows)); ok && v > 0 && v < rows {
			rows = v
		}
		if v, ok := ds.GetInt(dicom.OverlayTag(group, dicom.OverlayColumns)); ok && v > 0 && v < cols {
			cols = v
		}
		strip := int(pos) < lowBit || int(pos) > px.HighBit

		// Overlay frames are packed back to back without padding between them.
		packed := make([]byte, (count*rows*cols+7)/8)
		for f := 0; f < count; f++ {
			frame, err := px.Frame(first + f)
			if err != nil {
				return 0, err
			}
			base := f * rows * cols
			for r := 0; r < rows; r++ {
				for c := 0; c < cols; c++ {
					i := r*px.Columns + c
					if sampleBit(frame, px.BitsAllocated, i, pos, strip) {
						bit := base + r*cols + c
						packed[bit/8] |= 1 << (bit % 8)
					}
				}
			}
		}
		if len(packed)%2 == 1 {
			packed = append(packed, 0)
		}

		ds.AddElement(dicom.OverlayTag(group, dicom.OverlayData), dicom.VR_OW, packed)
		ds.SetUint16(dicom.OverlayTag(group, dicom.OverlayBitsAllocated), 1)
		ds.SetUint16(dicom.OverlayTag(group, dicom.OverlayBitPosition), 0)
	}
	return len(groups), nil
}

// overlayFrames returns the zero-based first image frame an overlay group
// covers and how many frames it spans. Image Frame Origin is one-based; both
// it and Number of Frames in Overlay default to 1.
func overlayFrames(ds *dicom.Dataset, group uint16, imageFrames int) (first, count int, err error) {
	origin, count := 1, 1
	if v, ok := ds.GetInt(dicom.OverlayTag(group, dicom.OverlayFrameOrigin)); ok && v > 0 {
		origin = v
	}
	if v, ok := ds.GetInt(dicom.OverlayTag(group, dicom.OverlayFrames)); ok && v > 0 {
		count = v
	}
	first = origin - 1
	if first+count > imageFrames {
		return 0, 0, fmt.Errorf("overlay group %04x covers frames %d-%d of a %d frame image",
			group, origin, origin+count-1, imageFrames)
	}
	return first, count, nil
}

// embeddedOverlayGroups lists overlay groups whose bits live in the pixel data.
func embeddedOverlayGroups(ds *dicom.Dataset) []uint16 {
	var groups []uint16
	for group := uint16(0x6000); group <= 0x601E; group += 2 {
		allocated, ok := ds.GetUint16(dicom.OverlayTag(group, dicom.OverlayBitsAllocated))
		if ok && allocated > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

// sampleBit reads bit pos of sample i, clearing it in place when asked.
func sampleBit(frame []byte, bitsAllocated, i int, pos uint16, strip bool) bool {
	if bitsAllocated == 8 {
		set := frame[i]&(1<<pos) != 0
		if strip {
			frame[i] &^= 1 << pos
		}
		return set
	}
	v := binary.LittleEndian.Uint16(frame[i*2:])
	set := v&(1<<pos) != 0
	if strip {
		binary.LittleEndian.PutUint16(frame[i*2:], v&^(1<<pos))
	}
	return set
}
