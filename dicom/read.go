package dicom

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	dicomerrors "github.com/caio-sobreiro/dicomstore/errors"
	"github.com/caio-sobreiro/dicomstore/types"
)

const undefinedLength = 0xFFFFFFFF

// DefaultMaxInflatedSize caps the inflated size of a deflated data set.
const DefaultMaxInflatedSize int64 = 512 << 20

var maxInflatedSize atomic.Int64

func init() {
	maxInflatedSize.Store(DefaultMaxInflatedSize)
}

// SetMaxInflatedSize sets the largest data set a deflated stream may inflate
// to. Zero or less restores the default.
func SetMaxInflatedSize(n int64) {
	if n <= 0 {
		n = DefaultMaxInflatedSize
	}
	maxInflatedSize.Store(n)
}

// MaxInflatedSize returns the current inflate cap.
func MaxInflatedSize() int64 {
	return maxInflatedSize.Load()
}

// ParseDataset parses a DICOM dataset from raw bytes (Explicit VR Little Endian)
func ParseDataset(data []byte) (*Dataset, error) {
	return parse(data, true)
}

// ParseDatasetWithTransferSyntax parses a dataset encoded in the given transfer
// syntax. Encapsulated syntaxes share the explicit VR little endian layout;
// the pixel data stays compressed.
func ParseDatasetWithTransferSyntax(data []byte, transferSyntaxUID string) (*Dataset, error) {
	if transferSyntaxUID == "" {
		return parse(data, true)
	}
	ts, ok := types.LookupTransferSyntax(transferSyntaxUID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", dicomerrors.ErrUnsupportedTransfer, transferSyntaxUID)
	}
	switch {
	case ts.BigEndian():
		return nil, fmt.Errorf("%w: %s", dicomerrors.ErrUnsupportedTransfer, ts.Name())
	case ts.Deflated():
		inflated, err := inflate(data, MaxInflatedSize())
		if err != nil {
			return nil, err
		}
		return parse(inflated, true)
	default:
		return parse(data, ts.ExplicitVR())
	}
}

func inflate(data []byte, limit int64) ([]byte, error) {
	inflated, err := io.ReadAll(io.LimitReader(flate.NewReader(bytes.NewReader(data)), limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: inflate: %v", dicomerrors.ErrInvalidDataset, err)
	}
	if int64(len(inflated)) > limit {
		return nil, fmt.Errorf("%w: inflated data set exceeds %d bytes", dicomerrors.ErrInvalidDataset, limit)
	}
	return inflated, nil
}

func parse(data []byte, explicit bool) (*Dataset, error) {
	d := &decoder{data: data, explicit: explicit}
	ds, err := d.readDataset(len(data), false)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

type decoder struct {
	data     []byte
	off      int
	explicit bool
}

func (d *decoder) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: offset %d: %s", dicomerrors.ErrInvalidDataset, d.off, fmt.Sprintf(format, args...))
}

func (d *decoder) need(n, end int) error {
	if n < 0 || d.off+n > end {
		return d.errorf("need %d bytes, %d left", n, end-d.off)
	}
	return nil
}

func (d *decoder) uint16() uint16 {
	v := binary.LittleEndian.Uint16(d.data[d.off:])
	d.off += 2
	return v
}

func (d *decoder) uint32() uint32 {
	v := binary.LittleEndian.Uint32(d.data[d.off:])
	d.off += 4
	return v
}

func (d *decoder) readTag() Tag {
	g := d.uint16()
	e := d.uint16()
	return Tag{Group: g, Element: e}
}

// readHeader reads the VR and length that follow a tag.
func (d *decoder) readHeader(tag Tag, end int) (string, uint32, error) {
	if !d.explicit || tag.Group == 0xFFFE {
		if err := d.need(4, end); err != nil {
			return "", 0, err
		}
		return LookupVR(tag), d.uint32(), nil
	}
	if err := d.need(4, end); err != nil {
		return "", 0, err
	}
	vr := string(d.data[d.off : d.off+2])
	if vr[0] < 'A' || vr[0] > 'Z' || vr[1] < 'A' || vr[1] > 'Z' {
		return "", 0, d.errorf("invalid VR %q for %s", vr, tag)
	}
	d.off += 2
	if !isLongVR(vr) {
		return vr, uint32(d.uint16()), nil
	}
	if err := d.need(6, end); err != nil {
		return "", 0, err
	}
	d.off += 2
	return vr, d.uint32(), nil
}

// readDataset reads elements until end, or until an item delimiter when inItem is set.
func (d *decoder) readDataset(end int, inItem bool) (*Dataset, error) {
	ds := NewDataset()
	for d.off < end {
		if err := d.need(4, end); err != nil {
			return nil, err
		}
		tag := d.readTag()

		if tag == tagItemDelimitation {
			if err := d.need(4, end); err != nil {
				return nil, err
			}
			d.off += 4
			if !inItem {
				return nil, d.errorf("unexpected item delimiter")
			}
			return ds, nil
		}
		if tag == tagSequenceDelimitation || tag == tagItem {
			return nil, d.errorf("unexpected %s outside a sequence", tag)
		}

		vr, length, err := d.readHeader(tag, end)
		if err != nil {
			return nil, err
		}

		el, err := d.readValue(tag, vr, length, end)
		if err != nil {
			return nil, fmt.Errorf("element %s: %w", tag, err)
		}
		ds.Elements[tag] = el
	}
	if inItem {
		return nil, d.errorf("item without delimiter")
	}
	return ds, nil
}

func (d *decoder) readValue(tag Tag, vr string, length uint32, end int) (*Element, error) {
	if length == undefinedLength {
		switch {
		case tag == TagPixelData:
			frags, err := d.readEncapsulated(end)
			if err != nil {
				return nil, err
			}
			return &Element{Tag: tag, VR: VR_OB, Value: frags}, nil
		case vr == VR_SQ:
			items, err := d.readSequence(end, true)
			if err != nil {
				return nil, err
			}
			return &Element{Tag: tag, VR: VR_SQ, Value: items}, nil
		case vr == VR_UN:
			// UN with undefined length is a sequence encoded in implicit VR.
			sub := &decoder{data: d.data, off: d.off, explicit: false}
			items, err := sub.readSequence(end, true)
			if err != nil {
				return nil, err
			}
			d.off = sub.off
			return &Element{Tag: tag, VR: VR_SQ, Value: items}, nil
		default:
			return nil, d.errorf("undefined length for VR %s", vr)
		}
	}

	if err := d.need(int(length), end); err != nil {
		return nil, err
	}
	valueEnd := d.off + int(length)

	if vr == VR_SQ {
		items, err := d.readSequence(valueEnd, false)
		if err != nil {
			return nil, err
		}
		d.off = valueEnd
		return &Element{Tag: tag, VR: vr, Value: items}, nil
	}

	raw := d.data[d.off:valueEnd]
	d.off = valueEnd
	return &Element{Tag: tag, VR: vr, Value: decodeValue(vr, raw)}, nil
}

func decodeValue(vr string, raw []byte) interface{} {
	if IsTextVR(vr) {
		return strings.TrimRight(string(raw), "\x00 ")
	}
	return raw
}

func (d *decoder) readItemHeader(end int) (Tag, uint32, error) {
	if err := d.need(8, end); err != nil {
		return Tag{}, 0, err
	}
	return d.readTag(), d.uint32(), nil
}

func (d *decoder) readSequence(end int, undefined bool) ([]*Dataset, error) {
	var items []*Dataset
	for {
		if !undefined && d.off >= end {
			return items, nil
		}
		tag, length, err := d.readItemHeader(end)
		if err != nil {
			return nil, err
		}
		if tag == tagSequenceDelimitation {
			if !undefined {
				return nil, d.errorf("sequence delimiter in defined length sequence")
			}
			return items, nil
		}
		if tag != tagItem {
			return nil, d.errorf("expected item, found %s", tag)
		}

		var item *Dataset
		if length == undefinedLength {
			item, err = d.readDataset(end, true)
		} else {
			if err := d.need(int(length), end); err != nil {
				return nil, err
			}
			itemEnd := d.off + int(length)
			item, err = d.readDataset(itemEnd, false)
			d.off = itemEnd
		}
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

func (d *decoder) readEncapsulated(end int) (*EncapsulatedPixelData, error) {
	px := &EncapsulatedPixelData{}
	first := true
	for {
		tag, length, err := d.readItemHeader(end)
		if err != nil {
			return nil, err
		}
		if tag == tagSequenceDelimitation {
			if first {
				return nil, d.errorf("encapsulated pixel data without basic offset table")
			}
			return px, nil
		}
		if tag != tagItem || length == undefinedLength {
			return nil, d.errorf("invalid fragment %s", tag)
		}
		if err := d.need(int(length), end); err != nil {
			return nil, err
		}
		value := d.data[d.off : d.off+int(length)]
		d.off += int(length)

		if first {
			first = false
			for i := 0; i+4 <= len(value); i += 4 {
				px.Offsets = append(px.Offsets, binary.LittleEndian.Uint32(value[i:]))
			}
			continue
		}
		px.Fragments = append(px.Fragments, value)
	}
}
