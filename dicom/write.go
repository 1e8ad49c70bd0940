package dicom

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"strings"

	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/types"
)

// EncodeDataset encodes a dataset to bytes (Explicit VR Little Endian)
func (d *Dataset) EncodeDataset() ([]byte, error) {
	e := &encoder{explicit: true}
	if err := e.writeDataset(d); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// EncodeDatasetWithTransferSyntax encodes a dataset using the provided transfer syntax.
func EncodeDatasetWithTransferSyntax(dataset *Dataset, transferSyntaxUID string) ([]byte, error) {
	if dataset == nil {
		return nil, nil
	}
	if transferSyntaxUID == "" {
		return dataset.EncodeDataset()
	}
	ts, ok := types.LookupTransferSyntax(transferSyntaxUID)
	if !ok || ts.BigEndian() {
		return nil, fmt.Errorf("%w: %s", dicomerrors.ErrUnsupportedTransfer, transferSyntaxUID)
	}

	e := &encoder{explicit: ts.ExplicitVR()}
	if err := e.writeDataset(dataset); err != nil {
		return nil, err
	}
	if !ts.Deflated() {
		return e.buf, nil
	}

	var out bytes.Buffer
	w, err := flate.NewWriter(&out, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(e.buf); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

type encoder struct {
	buf      []byte
	explicit bool
}

func (e *encoder) tag(t Tag) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, t.Group)
	e.buf = binary.LittleEndian.AppendUint16(e.buf, t.Element)
}

func (e *encoder) header(t Tag, vr string, length uint32) error {
	e.tag(t)
	if !e.explicit {
		e.buf = binary.LittleEndian.AppendUint32(e.buf, length)
		return nil
	}
	e.buf = append(e.buf, vr[0], vr[1])
	if isLongVR(vr) {
		e.buf = append(e.buf, 0, 0)
		e.buf = binary.LittleEndian.AppendUint32(e.buf, length)
		return nil
	}
	if length > 0xFFFF {
		return fmt.Errorf("%w: %s value of %d bytes exceeds VR %s", dicomerrors.ErrInvalidDataset, t, length, vr)
	}
	e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(length))
	return nil
}

func (e *encoder) item(t Tag, length uint32) {
	e.tag(t)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, length)
}

func (e *encoder) writeDataset(ds *Dataset) error {
	for _, tag := range ds.Tags() {
		if err := e.writeElement(ds.Elements[tag]); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) writeElement(el *Element) error {
	vr := el.VR
	if len(vr) != 2 {
		vr = LookupVR(el.Tag)
	}

	switch v := el.Value.(type) {
	case []*Dataset:
		if err := e.header(el.Tag, VR_SQ, undefinedLength); err != nil {
			return err
		}
		for _, item := range v {
			e.item(tagItem, undefinedLength)
			if err := e.writeDataset(item); err != nil {
				return err
			}
			e.item(tagItemDelimitation, 0)
		}
		e.item(tagSequenceDelimitation, 0)
		return nil

	case *EncapsulatedPixelData:
		if err := e.header(el.Tag, VR_OB, undefinedLength); err != nil {
			return err
		}
		e.item(tagItem, uint32(4*len(v.Offsets)))
		for _, off := range v.Offsets {
			e.buf = binary.LittleEndian.AppendUint32(e.buf, off)
		}
		for _, frag := range v.Fragments {
			padded := len(frag) + len(frag)%2
			e.item(tagItem, uint32(padded))
			e.buf = append(e.buf, frag...)
			if padded != len(frag) {
				e.buf = append(e.buf, 0)
			}
		}
		e.item(tagSequenceDelimitation, 0)
		return nil
	}

	value, err := encodeElementValue(el)
	if err != nil {
		return err
	}
	if len(value)%2 == 1 {
		pad := byte(0)
		if info, ok := lookupVR(vr); ok {
			pad = info.pad
		}
		value = append(value, pad)
	}
	if err := e.header(el.Tag, vr, uint32(len(value))); err != nil {
		return err
	}
	e.buf = append(e.buf, value...)
	return nil
}

// encodeElementValue encodes an element value to bytes
func encodeElementValue(element *Element) ([]byte, error) {
	switch v := element.Value.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(v), nil
	case []string:
		return []byte(strings.Join(v, "\\")), nil
	case []byte:
		return append([]byte(nil), v...), nil
	case uint16:
		return binary.LittleEndian.AppendUint16(nil, v), nil
	case []uint16:
		out := make([]byte, 0, len(v)*2)
		for _, x := range v {
			out = binary.LittleEndian.AppendUint16(out, x)
		}
		return out, nil
	case uint32:
		return binary.LittleEndian.AppendUint32(nil, v), nil
	case int:
		if IsTextVR(element.VR) {
			return []byte(fmt.Sprintf("%d", v)), nil
		}
		return nil, fmt.Errorf("%w: int value for %s VR %s", dicomerrors.ErrInvalidDataset, element.Tag, element.VR)
	default:
		return nil, fmt.Errorf("%w: unsupported value type %T for %s", dicomerrors.ErrInvalidDataset, v, element.Tag)
	}
}
