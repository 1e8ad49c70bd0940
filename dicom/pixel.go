package dicom

import (
	"bytes"
	"fmt"

	"github.com/caio-sobreiro/dicomstore/types"
)

// PixelData is the image pixel module of a data set together with its pixel
// values, either native (one flat little endian buffer) or encapsulated.
type PixelData struct {
	Rows                      int
	Columns                   int
	BitsAllocated             int
	BitsStored                int
	HighBit                   int
	SamplesPerPixel           int
	PlanarConfiguration       int
	PixelRepresentation       int
	NumberOfFrames            int
	PhotometricInterpretation string

	// Encapsulated matches the Encapsulated flag of the transfer syntax the
	// data set is encoded in.
	Encapsulated bool
	Native       []byte
	Fragments    *EncapsulatedPixelData
}

// ExtractPixelData reads the pixel module of ds, which is encoded in transferSyntaxUID.
func ExtractPixelData(ds *Dataset, transferSyntaxUID string) (*PixelData, error) {
	ts, ok := types.LookupTransferSyntax(transferSyntaxUID)
	if !ok {
		return nil, fmt.Errorf("unknown transfer syntax %s", transferSyntaxUID)
	}
	el, ok := ds.GetElement(TagPixelData)
	if !ok {
		return nil, fmt.Errorf("data set has no pixel data")
	}

	p := &PixelData{
		PhotometricInterpretation: ds.GetString(TagPhotometricInterpretation),
		Encapsulated:              ts.Encapsulated(),
		NumberOfFrames:            1,
		SamplesPerPixel:           1,
	}
	required := []struct {
		tag Tag
		dst *int
	}{
		{TagRows, &p.Rows},
		{TagColumns, &p.Columns},
		{TagBitsAllocated, &p.BitsAllocated},
	}
	for _, r := range required {
		v, ok := ds.GetInt(r.tag)
		if !ok {
			return nil, fmt.Errorf("pixel module is missing %s", r.tag)
		}
		*r.dst = v
	}
	p.BitsStored = p.BitsAllocated
	p.HighBit = p.BitsAllocated - 1
	optional := []struct {
		tag Tag
		dst *int
	}{
		{TagBitsStored, &p.BitsStored},
		{TagHighBit, &p.HighBit},
		{TagSamplesPerPixel, &p.SamplesPerPixel},
		{TagPlanarConfiguration, &p.PlanarConfiguration},
		{TagPixelRepresentation, &p.PixelRepresentation},
		{TagNumberOfFrames, &p.NumberOfFrames},
	}
	for _, o := range optional {
		if v, ok := ds.GetInt(o.tag); ok {
			*o.dst = v
		}
	}
	if p.NumberOfFrames < 1 {
		p.NumberOfFrames = 1
	}

	switch v := el.Value.(type) {
	case *EncapsulatedPixelData:
		if !p.Encapsulated {
			return nil, fmt.Errorf("encapsulated pixel data in native transfer syntax %s", transferSyntaxUID)
		}
		p.Fragments = v
	case []byte:
		if p.Encapsulated {
			return nil, fmt.Errorf("native pixel data in encapsulated transfer syntax %s", transferSyntaxUID)
		}
		p.Native = v
	default:
		return nil, fmt.Errorf("unsupported pixel data value %T", el.Value)
	}
	return p, nil
}

// FrameLength returns the size in bytes of one native frame.
func (p *PixelData) FrameLength() int {
	bits := p.Rows * p.Columns * p.SamplesPerPixel * p.BitsAllocated
	return (bits + 7) / 8
}

// Frame returns the bytes of frame i: a slice of the native buffer, or the
// compressed bitstream of the frame for encapsulated data.
func (p *PixelData) Frame(i int) ([]byte, error) {
	if i < 0 || i >= p.NumberOfFrames {
		return nil, fmt.Errorf("frame %d out of range [0,%d)", i, p.NumberOfFrames)
	}
	if !p.Encapsulated {
		n := p.FrameLength()
		if (p.Rows*p.Columns*p.SamplesPerPixel*p.BitsAllocated)%8 != 0 && i > 0 {
			return nil, fmt.Errorf("frame %d is not byte aligned", i)
		}
		start, end := i*n, (i+1)*n
		if end > len(p.Native) {
			return nil, fmt.Errorf("pixel data holds %d bytes, frame %d needs %d", len(p.Native), i, end)
		}
		return p.Native[start:end], nil
	}
	return p.encapsulatedFrame(i)
}

func (p *PixelData) encapsulatedFrame(i int) ([]byte, error) {
	frags := p.Fragments.Fragments
	if len(frags) == 0 {
		return nil, fmt.Errorf("encapsulated pixel data has no fragments")
	}
	if p.NumberOfFrames == 1 {
		if len(frags) == 1 {
			return frags[0], nil
		}
		return bytes.Join(frags, nil), nil
	}

	offsets := p.Fragments.Offsets
	if len(offsets) == p.NumberOfFrames {
		start := uint32(offsets[i])
		end := ^uint32(0)
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		var frame []byte
		var pos uint32
		for _, f := range frags {
			if pos >= start && pos < end {
				frame = append(frame, f...)
			}
			pos += 8 + uint32(len(f)+len(f)%2)
		}
		if frame == nil {
			return nil, fmt.Errorf("basic offset table does not locate frame %d", i)
		}
		return frame, nil
	}
	if len(frags) == p.NumberOfFrames {
		return frags[i], nil
	}
	return nil, fmt.Errorf("cannot map %d fragments to %d frames without a basic offset table", len(frags), p.NumberOfFrames)
}

// Frames returns every frame in order.
func (p *PixelData) Frames() ([][]byte, error) {
	out := make([][]byte, p.NumberOfFrames)
	for i := range out {
		f, err := p.Frame(i)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// SetNativeFrames replaces the pixel values with concatenated native frames.
func (p *PixelData) SetNativeFrames(frames [][]byte) {
	p.Encapsulated = false
	p.Fragments = nil
	p.Native = bytes.Join(frames, nil)
}

// SetEncapsulatedFrames replaces the pixel values with one fragment per frame
// and a basic offset table.
func (p *PixelData) SetEncapsulatedFrames(frames [][]byte) {
	px := &EncapsulatedPixelData{Offsets: make([]uint32, len(frames))}
	var pos uint32
	for i, f := range frames {
		px.Offsets[i] = pos
		pos += 8 + uint32(len(f)+len(f)%2)
		px.Fragments = append(px.Fragments, f)
	}
	p.Encapsulated = true
	p.Native = nil
	p.Fragments = px
}

// Apply writes the pixel module and pixel values back into ds.
func (p *PixelData) Apply(ds *Dataset) {
	ds.SetUint16(TagRows, uint16(p.Rows))
	ds.SetUint16(TagColumns, uint16(p.Columns))
	ds.SetUint16(TagBitsAllocated, uint16(p.BitsAllocated))
	ds.SetUint16(TagBitsStored, uint16(p.BitsStored))
	ds.SetUint16(TagHighBit, uint16(p.HighBit))
	ds.SetUint16(TagSamplesPerPixel, uint16(p.SamplesPerPixel))
	ds.SetUint16(TagPixelRepresentation, uint16(p.PixelRepresentation))
	if p.SamplesPerPixel > 1 {
		ds.SetUint16(TagPlanarConfiguration, uint16(p.PlanarConfiguration))
	}
	if p.PhotometricInterpretation != "" {
		ds.SetString(TagPhotometricInterpretation, VR_CS, p.PhotometricInterpretation)
	}
	if _, ok := ds.GetElement(TagNumberOfFrames); ok || p.NumberOfFrames > 1 {
		ds.SetString(TagNumberOfFrames, VR_IS, fmt.Sprintf("%d", p.NumberOfFrames))
	}

	if p.Encapsulated {
		ds.AddElement(TagPixelData, VR_OB, p.Fragments)
		return
	}
	vr := VR_OW
	if p.BitsAllocated <= 8 {
		vr = VR_OB
	}
	ds.AddElement(TagPixelData, vr, p.Native)
}
