package device

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImage_RoundTrip(t *testing.T) {
	// GIVEN a flashed read-only chip
	e := NewEEPROM("bios")
	e.Flash("computer.beep()\nreturn", "boot-disk", "BIOS")
	e.readOnly = true

	// WHEN it is saved and loaded again
	path := filepath.Join(t.TempDir(), "bios.toml")
	require.NoError(t, ImageOf(e).Save(path))
	img, err := LoadImage(path)
	require.NoError(t, err)
	restored, err := img.EEPROM()
	require.NoError(t, err)

	// THEN the contents and latch survive
	assert.Equal(t, "bios", restored.Address())
	assert.Equal(t, e.Code(), restored.Code())
	assert.Equal(t, "boot-disk", restored.Data())
	assert.Equal(t, "BIOS", restored.Label())
	assert.True(t, restored.ReadOnly())
	assert.Equal(t, e.Checksum(), restored.Checksum())
}

func TestDecodeImage_RejectsUnknownKeys(t *testing.T) {
	_, err := DecodeImage(strings.NewReader("code = \"x\"\nflavour = \"mint\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flavour")
}

func TestImage_EEPROM_ChecksumMismatch(t *testing.T) {
	img := &Image{Code: "return", Checksum: "0000000000000000"}
	_, err := img.EEPROM()
	assert.Error(t, err)
}

func TestImage_Validate(t *testing.T) {
	tests := []struct {
		name string
		img  Image
		ok   bool
	}{
		{"minimal", Image{Code: "return"}, true},
		{"code too large", Image{Code: strings.Repeat("x", EEPROMCodeSize+1)}, false},
		{"data too large", Image{Data: strings.Repeat("x", EEPROMDataSize+1)}, false},
		{"label too long", Image{Label: strings.Repeat("x", EEPROMLabelSize+1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.img.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestImage_Encode_DefaultLabel(t *testing.T) {
	img := &Image{Code: "return"}
	e, err := img.EEPROM()
	require.NoError(t, err)
	assert.Equal(t, DefaultLabel, e.Label())

	var buf bytes.Buffer
	require.NoError(t, img.Encode(&buf))
	assert.Contains(t, buf.String(), `code = "return"`)
}
