// Package dicom holds the data set model and its binary encodings: explicit and
// implicit VR little endian, deflated explicit VR little endian, encapsulated
// pixel data and Part 10 files.
package dicom

import (
	"encoding/binary"
	"sort"
	"strconv"
	"strings"
)

// Element represents a DICOM data element.
//
// Value holds a string for text VRs, []*Dataset for SQ, *EncapsulatedPixelData
// for compressed pixel data and raw little endian bytes for every other VR.
// Builders may also store uint16, []uint16, uint32 or []string; the encoder
// accepts them.
type Element struct {
	Tag   Tag
	VR    string
	Value interface{}
}

// EncapsulatedPixelData is pixel data stored as a basic offset table followed by
// compressed fragments (PS3.5 Annex A.4).
type EncapsulatedPixelData struct {
	Offsets   []uint32
	Fragments [][]byte
}

// Dataset represents a collection of DICOM elements
type Dataset struct {
	Elements map[Tag]*Element
}

// NewDataset creates a new empty dataset
func NewDataset() *Dataset {
	return &Dataset{
		Elements: make(map[Tag]*Element),
	}
}

// AddElement adds an element to the dataset, replacing any element with the same tag.
func (d *Dataset) AddElement(tag Tag, vr string, value interface{}) {
	d.Elements[tag] = &Element{
		Tag:   tag,
		VR:    vr,
		Value: value,
	}
}

// GetElement returns an element by tag
func (d *Dataset) GetElement(tag Tag) (*Element, bool) {
	element, exists := d.Elements[tag]
	return element, exists
}

// Remove deletes the element with tag, if present.
func (d *Dataset) Remove(tag Tag) {
	delete(d.Elements, tag)
}

// Len returns the number of top-level elements.
func (d *Dataset) Len() int {
	return len(d.Elements)
}

// Tags returns every tag in ascending order.
func (d *Dataset) Tags() []Tag {
	tags := make([]Tag, 0, len(d.Elements))
	for tag := range d.Elements {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Less(tags[j]) })
	return tags
}

// GetString returns a string value for a tag with padding removed.
func (d *Dataset) GetString(tag Tag) string {
	if element, exists := d.Elements[tag]; exists {
		switch v := element.Value.(type) {
		case string:
			return strings.TrimSpace(strings.TrimRight(v, "\x00"))
		case []string:
			return strings.TrimSpace(strings.Join(v, "\\"))
		}
	}
	return ""
}

// GetStrings returns a slice of string values for a tag
func (d *Dataset) GetStrings(tag Tag) []string {
	if element, exists := d.Elements[tag]; exists {
		switch v := element.Value.(type) {
		case string:
			parts := strings.Split(strings.TrimRight(v, "\x00 "), "\\")
			result := make([]string, len(parts))
			for i, part := range parts {
				result[i] = strings.TrimSpace(part)
			}
			return result
		case []string:
			return v
		}
	}
	return nil
}

// SetString stores a text value.
func (d *Dataset) SetString(tag Tag, vr, value string) {
	d.AddElement(tag, vr, value)
}

// GetUint16 returns the first US value of tag.
func (d *Dataset) GetUint16(tag Tag) (uint16, bool) {
	values := d.GetUint16s(tag)
	if len(values) == 0 {
		return 0, false
	}
	return values[0], true
}

// GetUint16s returns every US value of tag.
func (d *Dataset) GetUint16s(tag Tag) []uint16 {
	element, exists := d.Elements[tag]
	if !exists {
		return nil
	}
	switch v := element.Value.(type) {
	case uint16:
		return []uint16{v}
	case []uint16:
		return v
	case []byte:
		out := make([]uint16, len(v)/2)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(v[i*2:])
		}
		return out
	}
	return nil
}

// SetUint16 stores a single US value.
func (d *Dataset) SetUint16(tag Tag, value uint16) {
	d.AddElement(tag, VR_US, binary.LittleEndian.AppendUint16(nil, value))
}

// GetUint32 returns the first UL value of tag.
func (d *Dataset) GetUint32(tag Tag) (uint32, bool) {
	element, exists := d.Elements[tag]
	if !exists {
		return 0, false
	}
	switch v := element.Value.(type) {
	case uint32:
		return v, true
	case []byte:
		if len(v) >= 4 {
			return binary.LittleEndian.Uint32(v), true
		}
	}
	return 0, false
}

// GetInt returns an integer from an IS string or a US/UL binary value.
func (d *Dataset) GetInt(tag Tag) (int, bool) {
	element, exists := d.Elements[tag]
	if !exists {
		return 0, false
	}
	if IsTextVR(element.VR) {
		n, err := strconv.Atoi(d.GetString(tag))
		return n, err == nil
	}
	if element.VR == VR_UL {
		v, ok := d.GetUint32(tag)
		return int(v), ok
	}
	v, ok := d.GetUint16(tag)
	return int(v), ok
}

// GetBytes returns the raw value of a binary element.
func (d *Dataset) GetBytes(tag Tag) []byte {
	if element, exists := d.Elements[tag]; exists {
		if b, ok := element.Value.([]byte); ok {
			return b
		}
	}
	return nil
}

// GetSequence returns the items of an SQ element.
func (d *Dataset) GetSequence(tag Tag) []*Dataset {
	if element, exists := d.Elements[tag]; exists {
		if items, ok := element.Value.([]*Dataset); ok {
			return items
		}
	}
	return nil
}

// Clone returns a deep copy. Byte slices, sequences and fragments are copied so
// the clone can be modified without touching d.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := &Dataset{Elements: make(map[Tag]*Element, len(d.Elements))}
	for tag, el := range d.Elements {
		out.Elements[tag] = &Element{Tag: el.Tag, VR: el.VR, Value: cloneValue(el.Value)}
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch v := v.(type) {
	case []byte:
		return append([]byte(nil), v...)
	case []string:
		return append([]string(nil), v...)
	case []uint16:
		return append([]uint16(nil), v...)
	case []*Dataset:
		items := make([]*Dataset, len(v))
		for i, item := range v {
			items[i] = item.Clone()
		}
		return items
	case *EncapsulatedPixelData:
		frags := make([][]byte, len(v.Fragments))
		for i, f := range v.Fragments {
			frags[i] = append([]byte(nil), f...)
		}
		return &EncapsulatedPixelData{Offsets: append([]uint32(nil), v.Offsets...), Fragments: frags}
	default:
		return v
	}
}
