package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUUID(t *testing.T) {
	assert := assert.New(t)
	uuid := UUID()
	assert.NotEmpty(uuid)
	assert.Regexp("^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$",
		uuid)
	assert.True(IsUUID(uuid))
}

func TestIsUUID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"3f5f8a7e-3c3c-4b8e-9a4e-2f1d2c3b4a59", true},
		{"3F5F8A7E-3C3C-4B8E-9A4E-2F1D2C3B4A59", true},
		{"urn:uuid:3f5f8a7e-3c3c-4b8e-9a4e-2f1d2c3b4a59", false},
		{"3f5f8a7e3c3c4b8e9a4e2f1d2c3b4a59", false},
		{"cp-1", false},
		{"", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, IsUUID(tc.in), tc.in)
	}
}
