package device

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Image is the on-disk form of an EEPROM, stored as TOML.
type Image struct {
	Address  string `toml:"address,omitempty"`
	Label    string `toml:"label,omitempty"`
	ReadOnly bool   `toml:"readonly,omitempty"`
	Checksum string `toml:"checksum,omitempty"`
	Data     string `toml:"data,omitempty"`
	Code     string `toml:"code"`
}

// LoadImage reads an EEPROM image file.
func LoadImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	defer f.Close()
	img, err := DecodeImage(f)
	if err != nil {
		return nil, fmt.Errorf("parsing image %s: %w", path, err)
	}
	return img, nil
}

// DecodeImage parses an image. Unknown keys are rejected.
func DecodeImage(r io.Reader) (*Image, error) {
	var img Image
	md, err := toml.NewDecoder(r).Decode(&img)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return &img, nil
}

// Encode writes the image as TOML.
func (img *Image) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(img)
}

// Save writes the image to path.
func (img *Image) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	if err := img.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("encoding image: %w", err)
	}
	return f.Close()
}

// Validate checks sizes against the EEPROM capacities.
func (img *Image) Validate() error {
	if len(img.Code) > EEPROMCodeSize {
		return fmt.Errorf("code is %d bytes, EEPROM holds %d", len(img.Code), EEPROMCodeSize)
	}
	if len(img.Data) > EEPROMDataSize {
		return fmt.Errorf("data is %d bytes, EEPROM holds %d", len(img.Data), EEPROMDataSize)
	}
	if len(img.Label) > EEPROMLabelSize {
		return fmt.Errorf("label is %d bytes, at most %d allowed", len(img.Label), EEPROMLabelSize)
	}
	return nil
}

// EEPROM flashes the image onto a new chip. A recorded checksum must match
// the contents; a read-only image yields a locked chip.
func (img *Image) EEPROM() (*EEPROM, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	label := img.Label
	if label == "" {
		label = DefaultLabel
	}
	e := NewEEPROM(img.Address)
	e.Flash(img.Code, img.Data, label)
	if img.Checksum != "" && img.Checksum != e.Checksum() {
		return nil, errors.New("image checksum does not match its contents")
	}
	if img.ReadOnly {
		e.mu.Lock()
		e.readOnly = true
		e.mu.Unlock()
	}
	return e, nil
}

// ImageOf captures the current contents of an EEPROM.
func ImageOf(e *EEPROM) *Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &Image{
		Address:  e.Address(),
		Label:    e.label,
		ReadOnly: e.readOnly,
		Checksum: e.checksumLocked(),
		Data:     e.data,
		Code:     e.code,
	}
}
