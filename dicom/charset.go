package dicom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Values without a Specific Character Set use the default repertoire. Decoding
// it as Windows-1252 is a superset of ASCII that tolerates stray high bytes.
var defaultCharacterRepertoire encoding.Encoding = charmap.Windows1252

// Specific Character Set defined terms (PS3.2 Annex D.6.2) and their charset labels.
var labelByTerm = map[string]string{
	"ISO_IR 6":   "us-ascii",
	"ISO_IR 100": "iso-ir-100",
	"ISO_IR 101": "iso-ir-101",
	"ISO_IR 109": "iso-ir-109",
	"ISO_IR 110": "iso-ir-110",
	"ISO_IR 144": "iso-ir-144",
	"ISO_IR 127": "iso-ir-127",
	"ISO_IR 126": "iso-ir-126",
	"ISO_IR 138": "iso-ir-138",
	"ISO_IR 148": "iso-ir-148",
	"ISO_IR 13":  "shift-jis",
	"ISO_IR 166": "tis-620",
	"ISO_IR 192": "utf-8",
	"GB18030":    "gb18030",
	"GBK":        "gbk",

	"ISO 2022 IR 6":   "us-ascii",
	"ISO 2022 IR 100": "iso-ir-100",
	"ISO 2022 IR 101": "iso-ir-101",
	"ISO 2022 IR 109": "iso-ir-109",
	"ISO 2022 IR 110": "iso-ir-110",
	"ISO 2022 IR 144": "iso-ir-144",
	"ISO 2022 IR 127": "iso-ir-127",
	"ISO 2022 IR 126": "iso-ir-126",
	"ISO 2022 IR 138": "iso-ir-138",
	"ISO 2022 IR 148": "iso-ir-148",
	"ISO 2022 IR 13":  "shift-jis",
	"ISO 2022 IR 166": "tis-620",
	"ISO 2022 IR 87":  "iso-2022-jp",
	"ISO 2022 IR 159": "iso-2022-jp",
	"ISO 2022 IR 149": "iso-ir-149",
}

// LookupCharacterSet returns the decoder for a Specific Character Set value.
// Multi-valued sets use the first extended term; the default repertoire is
// returned for an empty value.
func LookupCharacterSet(specificCharacterSet string) (encoding.Encoding, error) {
	term := ""
	for _, t := range strings.Split(specificCharacterSet, "\\") {
		t = strings.TrimSpace(t)
		if t != "" && t != "ISO 2022 IR 6" && t != "ISO_IR 6" {
			term = t
			break
		}
	}
	if term == "" {
		return defaultCharacterRepertoire, nil
	}
	label, ok := labelByTerm[term]
	if !ok {
		return nil, fmt.Errorf("specific character set defined term not found: %v", term)
	}
	enc, _ := charset.Lookup(label)
	if enc == nil {
		return nil, fmt.Errorf("missing encoding for label %q", label)
	}
	return enc, nil
}

// DecodeString converts raw value bytes to UTF-8 using the data set's
// Specific Character Set.
func DecodeString(raw, specificCharacterSet string) (string, error) {
	enc, err := LookupCharacterSet(specificCharacterSet)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().String(raw)
	if err != nil {
		return "", fmt.Errorf("decode %q: %w", specificCharacterSet, err)
	}
	return out, nil
}

// GetDecodedString returns the value of tag decoded per the data set's
// (0008,0005) Specific Character Set.
func (d *Dataset) GetDecodedString(tag Tag) (string, error) {
	return DecodeString(d.GetString(tag), d.GetString(TagSpecificCharacterSet))
}
