package dicom

import (
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// NewUID returns a UID under the 2.25 root derived from a random UUID (PS3.5 B.2).
func NewUID() string {
	id := uuid.New()
	return "2.25." + new(big.Int).SetBytes(id[:]).String()
}

// ValidUID reports whether uid is a syntactically valid UID: at most 64
// characters, dot-separated numeric components without leading zeros.
func ValidUID(uid string) bool {
	if uid == "" || len(uid) > 64 {
		return false
	}
	for _, part := range strings.Split(uid, ".") {
		if part == "" || (len(part) > 1 && part[0] == '0') {
			return false
		}
		for _, c := range part {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}
