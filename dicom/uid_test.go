package dicom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewUID(t *testing.T) {
	a, b := NewUID(), NewUID()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "2.25."))
	assert.True(t, ValidUID(a), a)
	assert.LessOrEqual(t, len(a), 64)
}

func TestValidUID(t *testing.T) {
	assert.True(t, ValidUID("1.2.840.10008.1.2"))
	assert.False(t, ValidUID(""))
	assert.False(t, ValidUID("1.02.3"))
	assert.False(t, ValidUID("1..2"))
	assert.False(t, ValidUID("1.2.a"))
	assert.False(t, ValidUID("../1.2"))
	assert.False(t, ValidUID(strings.Repeat("1.", 40)+"1"))
}
